package service

import (
	"context"
	"fmt"

	"healthbox_bridge/internal/entity"
	"healthbox_bridge/internal/models"
)

// DeviceReader is the read side of the coordinator.
type DeviceReader interface {
	Snapshot() (models.DeviceSnapshot, bool)
	Status() CoordinatorStatus
	Refresh(ctx context.Context) (models.DeviceSnapshot, error)
}

type MonitoringService struct {
	device DeviceReader
}

func NewMonitoringService(device DeviceReader) *MonitoringService {
	return &MonitoringService{device: device}
}

// GetSnapshot returns ErrNoSnapshot until the first poll has succeeded.
func (s *MonitoringService) GetSnapshot(ctx context.Context) (models.DeviceSnapshot, error) {
	snap, ok := s.device.Snapshot()
	if !ok {
		return models.DeviceSnapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

func (s *MonitoringService) GetRoom(ctx context.Context, roomID int) (models.RoomState, error) {
	snap, err := s.GetSnapshot(ctx)
	if err != nil {
		return models.RoomState{}, err
	}
	room, ok := snap.Room(roomID)
	if !ok {
		return models.RoomState{}, fmt.Errorf("%w: %d", ErrRoomNotFound, roomID)
	}
	return room, nil
}

func (s *MonitoringService) GetStatus(ctx context.Context) CoordinatorStatus {
	return s.device.Status()
}

func (s *MonitoringService) Refresh(ctx context.Context) (models.DeviceSnapshot, error) {
	return s.device.Refresh(ctx)
}

// Entities describes the current snapshot and resolves every value.
func (s *MonitoringService) Entities(ctx context.Context) ([]entity.State, error) {
	snap, err := s.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return entity.States(entity.Build(snap), snap), nil
}
