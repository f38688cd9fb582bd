package service

import (
	"context"
	"strings"

	"healthbox_bridge/internal/healthbox"
	"healthbox_bridge/internal/logger"
)

// Setup error codes, as shown to the operator.
const (
	SetupErrAuth       = "auth"
	SetupErrConnection = "connection"
	SetupErrUnknown    = "unknown"
)

// ProbeAPI is the part of the device client used to validate a setup.
type ProbeAPI interface {
	CheckConnectivity(ctx context.Context) error
	ActivateAPIKey(ctx context.Context, key string) error
}

// ProbeFactory builds a client for a host that is not yet configured.
type ProbeFactory func(host string) (ProbeAPI, error)

// Reauthenticator is implemented by *Coordinator.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context, apiKey string) error
}

type SetupService struct {
	newProbe ProbeFactory
	coord    Reauthenticator
	log      *logger.Logger
}

func NewSetupService(newProbe ProbeFactory, coord Reauthenticator, log *logger.Logger) *SetupService {
	return &SetupService{newProbe: newProbe, coord: coord, log: log.Named("setup")}
}

// NewHealthboxProbe adapts healthbox.NewClient to ProbeFactory.
func NewHealthboxProbe(host string) (ProbeAPI, error) {
	c, err := healthbox.NewClient(host)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that host answers and, when apiKey is set, that the key is
// accepted. It returns "" on success or one of the SetupErr codes.
func (s *SetupService) Validate(ctx context.Context, host, apiKey string) string {
	probe, err := s.newProbe(host)
	if err != nil {
		s.log.Warnw("setup_invalid_host", "host", host, "error", err)
		return SetupErrConnection
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey != "" {
		err = probe.ActivateAPIKey(ctx, apiKey)
	} else {
		err = probe.CheckConnectivity(ctx)
	}
	if err == nil {
		return ""
	}

	code := setupCode(err)
	s.log.Warnw("setup_validation_failed", "host", host, "code", code, "error", err)
	return code
}

func (s *SetupService) Reauthenticate(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errEmptyAPIKey
	}
	return s.coord.Reauthenticate(ctx, apiKey)
}

func setupCode(err error) string {
	switch healthbox.KindOf(err) {
	case healthbox.KindAuthentication:
		return SetupErrAuth
	case healthbox.KindCommunication:
		return SetupErrConnection
	default:
		return SetupErrUnknown
	}
}
