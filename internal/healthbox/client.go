package healthbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	requestTimeout    = 10 * time.Second
	apiKeySettleDelay = 2 * time.Second

	apiPrefix     = "/v2/api"
	apiKeyValid   = "valid"
	defaultScheme = "http://"
)

// Client talks to one Healthbox over its local REST API. It keeps no state
// between calls beyond the device address.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient accepts a bare host ("192.168.1.20"), host:port or a full http URL.
func NewClient(host string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("healthbox host is required")
	}
	if !strings.Contains(host, "://") {
		host = defaultScheme + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid healthbox host %q", host)
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		sleep: sleepContext,
	}, nil
}

// BaseURL returns the normalized device address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) FetchCurrentData(ctx context.Context) (CurrentData, error) {
	var data CurrentData
	if err := c.getJSON(ctx, "/data/current", &data); err != nil {
		return CurrentData{}, err
	}
	return data, nil
}

func (c *Client) FetchRoomBoost(ctx context.Context, roomID int) (BoostStatus, error) {
	var boost BoostStatus
	if err := c.getJSON(ctx, boostPath(roomID), &boost); err != nil {
		return BoostStatus{}, err
	}
	return boost, nil
}

// StartRoomBoost enables boost for a room. timeoutSeconds is in seconds.
func (c *Client) StartRoomBoost(ctx context.Context, roomID, level, timeoutSeconds int) error {
	_, err := c.send(ctx, http.MethodPut, boostPath(roomID), boostRequest{
		Enable:  true,
		Level:   &level,
		Timeout: &timeoutSeconds,
	})
	return err
}

func (c *Client) StopRoomBoost(ctx context.Context, roomID int) error {
	_, err := c.send(ctx, http.MethodPut, boostPath(roomID), boostRequest{Enable: false})
	return err
}

func (c *Client) ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error {
	path := "/data/current/room/" + strconv.Itoa(roomID) + "/profile_name"
	_, err := c.send(ctx, http.MethodPut, path, profileName)
	return err
}

// ActivateAPIKey unlocks the advanced API. Some firmware answers with a
// non-JSON body on success, so the response is not decoded. The device needs
// a fixed settling delay before the key status can be read back.
func (c *Client) ActivateAPIKey(ctx context.Context, key string) error {
	const op = "POST " + apiPrefix + "/api_key"
	if strings.TrimSpace(key) == "" {
		return authError(op, fmt.Errorf("api key is empty"))
	}
	if _, err := c.send(ctx, http.MethodPost, "/api_key", key); err != nil {
		return err
	}
	if err := c.sleep(ctx, apiKeySettleDelay); err != nil {
		return classifyTransport(op, err)
	}
	return c.VerifyAPIKeyStatus(ctx)
}

func (c *Client) VerifyAPIKeyStatus(ctx context.Context) error {
	var status apiKeyStatus
	if err := c.getJSON(ctx, "/api_key/status", &status); err != nil {
		return err
	}
	if status.State != apiKeyValid {
		return authError("GET "+apiPrefix+"/api_key/status", fmt.Errorf("api key state %q", status.State))
	}
	return nil
}

// CheckConnectivity confirms the device answers without using credentials.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	_, err := c.send(ctx, http.MethodGet, "/data/current", nil)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	payload, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return unknownError(http.MethodGet+" "+apiPrefix+path, "decode response", err)
	}
	return nil
}

// send performs one request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	op := method + " " + apiPrefix + path

	endpoint, err := url.JoinPath(c.baseURL, apiPrefix, path)
	if err != nil {
		return nil, unknownError(op, "build url", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, unknownError(op, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, unknownError(op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(op, resp.StatusCode, payload)
	}
	return payload, nil
}

func boostPath(roomID int) string {
	return "/boost/" + strconv.Itoa(roomID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
