package service

import (
	"context"
	"time"

	"healthbox_bridge/internal/entity"
	"healthbox_bridge/internal/logger"
	"healthbox_bridge/internal/models"
	"healthbox_bridge/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Control exposes the room actions.
type Control interface {
	StartRoomBoost(ctx context.Context, p BoostParams) error
	StopRoomBoost(ctx context.Context, roomID int) error
	ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error
}

// Monitoring exposes the live device state.
type Monitoring interface {
	GetSnapshot(ctx context.Context) (models.DeviceSnapshot, error)
	GetRoom(ctx context.Context, roomID int) (models.RoomState, error)
	GetStatus(ctx context.Context) CoordinatorStatus
	Refresh(ctx context.Context) (models.DeviceSnapshot, error)
	Entities(ctx context.Context) ([]entity.State, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.Event, error)
}

// History exposes recorded room readings.
type History interface {
	Record(ctx context.Context, snap models.DeviceSnapshot)
	Readings(ctx context.Context, f ReadingFilter) ([]models.Reading, error)
}

// Setup validates device settings and replaces a rejected API key.
type Setup interface {
	Validate(ctx context.Context, host, apiKey string) string
	Reauthenticate(ctx context.Context, apiKey string) error
}

// Service aggregates all sub-services.
type Service struct {
	Control
	Monitoring
	EventLog
	History
	Setup
	Authorization
}

type Options struct {
	Auth             AuthOptions
	HistoryRetention time.Duration
	NewProbe         ProbeFactory
}

// NewService wires the repositories and the coordinator into concrete
// services. Readings are only recorded once Service.History.Record is
// subscribed to the coordinator.
func NewService(repos *repository.Repository, coord *Coordinator, opts Options, log *logger.Logger) *Service {
	if opts.NewProbe == nil {
		opts.NewProbe = NewHealthboxProbe
	}
	return &Service{
		Control:       NewControlService(coord, repos.EventRepo, log),
		Monitoring:    NewMonitoringService(coord),
		EventLog:      NewEventLogService(repos.EventRepo),
		History:       NewHistoryService(repos.ReadingRepo, opts.HistoryRetention, log),
		Setup:         NewSetupService(opts.NewProbe, coord, log),
		Authorization: NewAuthService(repos.Auth, opts.Auth),
	}
}
