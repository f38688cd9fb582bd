package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"healthbox_bridge/internal/config"
	"healthbox_bridge/internal/healthbox"
	"healthbox_bridge/internal/logger"
	"healthbox_bridge/internal/models"
	"healthbox_bridge/internal/repository"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Coordinator states.
const (
	StateStarting    = "starting"
	StateHealthy     = "healthy"
	StateFailing     = "failing"
	StateNeedsReauth = "needs_reauth"
)

// Event types written by the coordinator and the control service.
const (
	EventBoostStart      = "BOOST_START"
	EventBoostStop       = "BOOST_STOP"
	EventProfileChange   = "PROFILE_CHANGE"
	EventPollFailed      = "POLL_FAILED"
	EventPollRecovered   = "POLL_RECOVERED"
	EventAuthFailed      = "AUTH_FAILED"
	EventAPIKeyActivated = "API_KEY_ACTIVATED"
)

const (
	DefaultPollInterval = 5 * time.Second
	pollKey             = "poll"
	opRefresh           = "refresh"
)

// ErrReauthRequired is wrapped in the authentication error Refresh returns
// after the device rejected the API key.
var ErrReauthRequired = errors.New("api key must be replaced")

// DeviceAPI is the subset of *healthbox.Client the coordinator drives.
type DeviceAPI interface {
	FetchCurrentData(ctx context.Context) (healthbox.CurrentData, error)
	FetchRoomBoost(ctx context.Context, roomID int) (healthbox.BoostStatus, error)
	StartRoomBoost(ctx context.Context, roomID, level, timeoutSeconds int) error
	StopRoomBoost(ctx context.Context, roomID int) error
	ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error
	ActivateAPIKey(ctx context.Context, key string) error
}

// SnapshotListener is called after every published snapshot, in the goroutine
// that ran the poll.
type SnapshotListener func(ctx context.Context, snap models.DeviceSnapshot)

type CoordinatorConfig struct {
	Interval    time.Duration
	BoostPolicy string // config.BoostPolicyFail or config.BoostPolicyOmit
	APIKey      string
}

type CoordinatorStatus struct {
	State               string    `json:"state"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	PollTotal           uint64    `json:"poll_total"`
	FailureTotal        uint64    `json:"failure_total"`
}

// Coordinator polls one device and holds the latest snapshot.
type Coordinator struct {
	api    DeviceAPI
	cfg    CoordinatorConfig
	events repository.EventRepo
	log    *logger.Logger
	now    func() time.Time

	group    singleflight.Group
	snapshot atomic.Pointer[models.DeviceSnapshot]

	mu        sync.RWMutex
	status    CoordinatorStatus
	listeners []SnapshotListener
}

func NewCoordinator(api DeviceAPI, cfg CoordinatorConfig, events repository.EventRepo, log *logger.Logger, listeners ...SnapshotListener) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.BoostPolicy == "" {
		cfg.BoostPolicy = config.BoostPolicyFail
	}
	return &Coordinator{
		api:       api,
		cfg:       cfg,
		events:    events,
		log:       log.Named("coordinator"),
		now:       time.Now,
		status:    CoordinatorStatus{State: StateStarting},
		listeners: listeners,
	}
}

// Subscribe adds a listener for snapshots published from now on.
func (c *Coordinator) Subscribe(l SnapshotListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Run polls on every tick until ctx is done. Ticks are skipped while the
// coordinator waits for a new API key.
func (c *Coordinator) Run(ctx context.Context) {
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.NeedsReauth() {
				continue
			}
			_, _ = c.Refresh(ctx)
		}
	}
}

// FirstRefresh activates the configured API key, if any, and runs the first
// poll. Callers treat an error as fatal for setup.
func (c *Coordinator) FirstRefresh(ctx context.Context) (models.DeviceSnapshot, error) {
	if c.cfg.APIKey != "" {
		if err := c.api.ActivateAPIKey(ctx, c.cfg.APIKey); err != nil {
			c.recordFailure(ctx, err)
			return models.DeviceSnapshot{}, fmt.Errorf("activate api key: %w", err)
		}
	}
	snap, err := c.Refresh(ctx)
	if err != nil {
		return models.DeviceSnapshot{}, fmt.Errorf("first refresh: %w", err)
	}
	return snap, nil
}

// Refresh runs a poll now. Concurrent callers share a single in-flight poll.
// While the coordinator waits for a new API key it refuses to poll; only
// Reauthenticate leaves that state.
func (c *Coordinator) Refresh(ctx context.Context) (models.DeviceSnapshot, error) {
	if c.NeedsReauth() {
		return models.DeviceSnapshot{}, &healthbox.Error{
			Kind: healthbox.KindAuthentication,
			Op:   opRefresh,
			Msg:  "waiting for a new api key",
			Err:  ErrReauthRequired,
		}
	}

	v, err, shared := c.group.Do(pollKey, c.pollFunc(ctx))
	// A joined poll cancelled by its owner says nothing about the device.
	if shared && errors.Is(err, context.Canceled) && ctx.Err() == nil {
		v, err, _ = c.group.Do(pollKey, c.pollFunc(ctx))
	}
	if err != nil {
		return models.DeviceSnapshot{}, err
	}
	return *v.(*models.DeviceSnapshot), nil
}

func (c *Coordinator) pollFunc(ctx context.Context) func() (any, error) {
	return func() (any, error) {
		snap, err := c.poll(ctx)
		if err != nil {
			c.recordFailure(ctx, err)
			return nil, err
		}
		c.publish(ctx, snap)
		return snap, nil
	}
}

// Reauthenticate activates a new API key and, once accepted, clears the
// needs_reauth state and polls immediately.
func (c *Coordinator) Reauthenticate(ctx context.Context, apiKey string) error {
	if err := c.api.ActivateAPIKey(ctx, apiKey); err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg.APIKey = apiKey
	if c.status.State == StateNeedsReauth {
		c.status.State = StateStarting
	}
	c.mu.Unlock()

	c.appendEvent(ctx, EventAPIKeyActivated, "API key activated", nil)
	c.log.Infow("api_key_activated")

	if _, err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after reauthentication: %w", err)
	}
	return nil
}

// Snapshot returns the last published snapshot; ok is false before the first
// successful poll. The result must be treated as read-only.
func (c *Coordinator) Snapshot() (models.DeviceSnapshot, bool) {
	p := c.snapshot.Load()
	if p == nil {
		return models.DeviceSnapshot{}, false
	}
	return *p, true
}

func (c *Coordinator) Status() CoordinatorStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Coordinator) NeedsReauth() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.State == StateNeedsReauth
}

func (c *Coordinator) StartRoomBoost(ctx context.Context, roomID, level, timeoutSeconds int) error {
	return c.api.StartRoomBoost(ctx, roomID, level, timeoutSeconds)
}

func (c *Coordinator) StopRoomBoost(ctx context.Context, roomID int) error {
	return c.api.StopRoomBoost(ctx, roomID)
}

func (c *Coordinator) ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error {
	return c.api.ChangeRoomProfile(ctx, roomID, profileName)
}

func (c *Coordinator) poll(ctx context.Context) (*models.DeviceSnapshot, error) {
	data, err := c.api.FetchCurrentData(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := healthbox.BuildSnapshot(data, c.now())
	if err != nil {
		return nil, err
	}
	if err := c.fillBoost(ctx, &snap); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// fillBoost fetches every room's boost state concurrently. Under the omit
// policy a failed room keeps a nil boost, except on authentication errors,
// which always fail the poll.
func (c *Coordinator) fillBoost(ctx context.Context, snap *models.DeviceSnapshot) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range snap.Rooms {
		room := &snap.Rooms[i]
		g.Go(func() error {
			b, err := c.api.FetchRoomBoost(gctx, room.RoomID)
			if err != nil {
				if c.cfg.BoostPolicy == config.BoostPolicyOmit && healthbox.KindOf(err) != healthbox.KindAuthentication && ctx.Err() == nil {
					c.log.Warnw("boost_fetch_failed", "room_id", room.RoomID, "error", err)
					return nil
				}
				return fmt.Errorf("room %d boost: %w", room.RoomID, err)
			}
			room.Boost = healthbox.ToBoostState(b)
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) publish(ctx context.Context, snap *models.DeviceSnapshot) {
	c.snapshot.Store(snap)

	c.mu.Lock()
	prev := c.status.State
	c.status.State = StateHealthy
	c.status.LastSuccess = snap.FetchedAt
	c.status.LastError = ""
	failures := c.status.ConsecutiveFailures
	c.status.ConsecutiveFailures = 0
	c.status.PollTotal++
	listeners := append([]SnapshotListener(nil), c.listeners...)
	c.mu.Unlock()

	if prev == StateFailing {
		c.appendEvent(ctx, EventPollRecovered, "Polling recovered", map[string]any{"failed_polls": failures})
		c.log.Infow("poll_recovered", "failed_polls", failures)
	}
	c.log.Debugw("snapshot_published", "serial", snap.Serial, "rooms", len(snap.Rooms))

	for _, l := range listeners {
		l(ctx, *snap)
	}
}

func (c *Coordinator) recordFailure(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		c.log.Debugw("poll_cancelled", "error", err)
		return
	}

	next := StateFailing
	if healthbox.KindOf(err) == healthbox.KindAuthentication {
		next = StateNeedsReauth
	}

	c.mu.Lock()
	prev := c.status.State
	c.status.State = next
	c.status.LastError = err.Error()
	c.status.ConsecutiveFailures++
	c.status.PollTotal++
	c.status.FailureTotal++
	failures := c.status.ConsecutiveFailures
	c.mu.Unlock()

	c.log.Warnw("poll_failed", "state", next, "consecutive_failures", failures, "error", err)
	if prev == next {
		return
	}
	meta := map[string]any{"error": err.Error(), "kind": healthbox.KindOf(err).String()}
	if next == StateNeedsReauth {
		c.appendEvent(ctx, EventAuthFailed, "Device rejected the API key", meta)
		return
	}
	c.appendEvent(ctx, EventPollFailed, "Polling the device failed", meta)
}

func (c *Coordinator) appendEvent(ctx context.Context, typ, desc string, meta map[string]any) {
	if c.events == nil {
		return
	}
	ev := models.Event{
		OccurredAt:  c.now().UTC(),
		Type:        typ,
		Description: desc,
	}
	if meta != nil {
		ev.Metadata = meta
	}
	if err := c.events.Append(ctx, ev); err != nil {
		c.log.Errorw("event_append_failed", "type", typ, "error", err)
	}
}
