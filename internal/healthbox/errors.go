package healthbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed device call.
type Kind int

const (
	// KindUnknown covers malformed responses and anything unclassified.
	KindUnknown Kind = iota
	// KindCommunication covers timeouts, transport failures and non-2xx statuses.
	KindCommunication
	// KindAuthentication means the device rejected the credentials (401/403 or an invalid key).
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindCommunication:
		return "communication"
	case KindAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Every *Error matches ErrClient.
var (
	ErrClient         = errors.New("healthbox api client error")
	ErrCommunication  = errors.New("healthbox communication error")
	ErrAuthentication = errors.New("healthbox authentication error")
)

const (
	msgInvalidCredentials = "invalid credentials"
	msgTimeout            = "timeout"
	msgTransport          = "transport failure"
	msgUnexpected         = "unexpected failure"
)

// Error is returned by every Client method.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("healthbox")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrClient:
		return true
	case ErrCommunication:
		return e.Kind == KindCommunication
	case ErrAuthentication:
		return e.Kind == KindAuthentication
	}
	return false
}

// HTTPStatusError carries a non-2xx device response.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

// KindOf reports the kind of err, or KindUnknown when err is not a device error.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return KindUnknown
}

func authError(op string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Msg: msgInvalidCredentials, Err: cause}
}

func unknownError(op, msg string, cause error) *Error {
	return &Error{Kind: KindUnknown, Op: op, Msg: msg, Err: cause}
}

// classifyTransport maps an error from http.Client.Do or a body read.
func classifyTransport(op string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindCommunication, Op: op, Msg: msgTimeout, Err: err}
	}
	return &Error{Kind: KindCommunication, Op: op, Msg: msgTransport, Err: err}
}

// classifyStatus maps a non-2xx status. 401 and 403 always win.
func classifyStatus(op string, status int, body []byte) *Error {
	statusErr := &HTTPStatusError{Status: status, Body: strings.TrimSpace(string(body))}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return authError(op, statusErr)
	}
	return &Error{Kind: KindCommunication, Op: op, Msg: msgTransport, Err: statusErr}
}
