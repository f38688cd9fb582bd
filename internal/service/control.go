package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthbox_bridge/internal/logger"
	"healthbox_bridge/internal/models"
	"healthbox_bridge/internal/repository"
)

const (
	MinBoostLevel          = 10
	MaxBoostLevel          = 200
	MinBoostTimeoutMinutes = 5
	MaxBoostTimeoutMinutes = 720
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRoomNotFound = errors.New("room not found")
	ErrNoSnapshot   = errors.New("no device data yet")

	errInvalidBoostLevel   = fmt.Errorf("%w: boost level must be between %d and %d", ErrInvalidInput, MinBoostLevel, MaxBoostLevel)
	errInvalidBoostTimeout = fmt.Errorf("%w: boost timeout must be between %d and %d minutes", ErrInvalidInput, MinBoostTimeoutMinutes, MaxBoostTimeoutMinutes)
	errEmptyProfile        = fmt.Errorf("%w: profile name is required", ErrInvalidInput)
	errEmptyAPIKey         = fmt.Errorf("%w: api key is required", ErrInvalidInput)
)

// DeviceController is what the control service needs from the coordinator.
type DeviceController interface {
	Snapshot() (models.DeviceSnapshot, bool)
	StartRoomBoost(ctx context.Context, roomID, level, timeoutSeconds int) error
	StopRoomBoost(ctx context.Context, roomID int) error
	ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error
}

type ControlService struct {
	device    DeviceController
	eventRepo repository.EventRepo
	log       *logger.Logger
}

func NewControlService(device DeviceController, eventRepo repository.EventRepo, log *logger.Logger) *ControlService {
	return &ControlService{device: device, eventRepo: eventRepo, log: log.Named("control")}
}

// StartRoomBoost validates p and starts a boost. The timeout is sent to the
// device in seconds.
func (s *ControlService) StartRoomBoost(ctx context.Context, p BoostParams) error {
	if p.Level < MinBoostLevel || p.Level > MaxBoostLevel {
		return errInvalidBoostLevel
	}
	if p.TimeoutMinutes < MinBoostTimeoutMinutes || p.TimeoutMinutes > MaxBoostTimeoutMinutes {
		return errInvalidBoostTimeout
	}
	room, err := s.room(p.RoomID)
	if err != nil {
		return err
	}

	timeoutSec := p.TimeoutMinutes * 60
	if err := s.device.StartRoomBoost(ctx, p.RoomID, p.Level, timeoutSec); err != nil {
		return err
	}
	s.log.Infow("boost_started", "room_id", p.RoomID, "level", p.Level, "timeout_sec", timeoutSec)

	s.append(ctx, EventBoostStart, "Boost started in "+room.Name, map[string]any{
		"room_id":     p.RoomID,
		"level":       p.Level,
		"timeout_sec": timeoutSec,
	})
	return nil
}

func (s *ControlService) StopRoomBoost(ctx context.Context, roomID int) error {
	room, err := s.room(roomID)
	if err != nil {
		return err
	}
	if err := s.device.StopRoomBoost(ctx, roomID); err != nil {
		return err
	}
	s.log.Infow("boost_stopped", "room_id", roomID)

	s.append(ctx, EventBoostStop, "Boost stopped in "+room.Name, map[string]any{"room_id": roomID})
	return nil
}

func (s *ControlService) ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error {
	profileName = strings.TrimSpace(profileName)
	if profileName == "" {
		return errEmptyProfile
	}
	room, err := s.room(roomID)
	if err != nil {
		return err
	}
	if err := s.device.ChangeRoomProfile(ctx, roomID, profileName); err != nil {
		return err
	}
	s.log.Infow("profile_changed", "room_id", roomID, "profile", profileName)

	meta := map[string]any{"room_id": roomID, "to": profileName}
	if room.ProfileName != nil {
		meta["from"] = *room.ProfileName
	}
	s.append(ctx, EventProfileChange, "Profile of "+room.Name+" changed to "+profileName, meta)
	return nil
}

func (s *ControlService) room(roomID int) (models.RoomState, error) {
	snap, ok := s.device.Snapshot()
	if !ok {
		return models.RoomState{}, ErrNoSnapshot
	}
	room, ok := snap.Room(roomID)
	if !ok {
		return models.RoomState{}, fmt.Errorf("%w: %d", ErrRoomNotFound, roomID)
	}
	return room, nil
}

// append records a completed device action. The action already happened, so
// a failed write is logged and not reported to the caller.
func (s *ControlService) append(ctx context.Context, typ, desc string, meta map[string]any) {
	err := s.eventRepo.Append(ctx, models.Event{
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Errorw("event_append_failed", "type", typ, "error", err)
	}
}
