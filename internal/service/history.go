package service

import (
	"context"
	"sync"
	"time"

	"healthbox_bridge/internal/logger"
	"healthbox_bridge/internal/models"
	"healthbox_bridge/internal/repository"
)

const pruneEvery = time.Hour

// HistoryService records one reading per room for every published snapshot
// and prunes readings older than the retention window.
type HistoryService struct {
	readingRepo repository.ReadingRepo
	retention   time.Duration
	log         *logger.Logger
	now         func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

func NewHistoryService(readingRepo repository.ReadingRepo, retention time.Duration, log *logger.Logger) *HistoryService {
	return &HistoryService{
		readingRepo: readingRepo,
		retention:   retention,
		log:         log.Named("history"),
		now:         time.Now,
	}
}

// Record stores snap. It has the SnapshotListener signature so the
// coordinator can call it directly.
func (s *HistoryService) Record(ctx context.Context, snap models.DeviceSnapshot) {
	readings := make([]models.Reading, 0, len(snap.Rooms))
	for _, r := range snap.Rooms {
		readings = append(readings, models.Reading{
			RoomID:       r.RoomID,
			RoomName:     r.Name,
			RecordedAt:   snap.FetchedAt,
			TemperatureC: r.IndoorTemperature,
			HumidityPct:  r.IndoorHumidity,
			CO2PPM:       r.IndoorCO2Concentration,
			AQI:          r.IndoorAQI,
			VOCPPM:       r.IndoorVOC,
		})
	}
	if err := s.readingRepo.AppendBatch(ctx, readings); err != nil {
		s.log.Errorw("record_readings_failed", "rooms", len(readings), "error", err)
		return
	}
	s.prune(ctx)
}

func (s *HistoryService) Readings(ctx context.Context, f ReadingFilter) ([]models.Reading, error) {
	from, to, err := normalizeRange(f.From, f.To)
	if err != nil {
		return nil, err
	}
	return s.readingRepo.List(ctx, f.RoomID, from, to, f.Limit)
}

func (s *HistoryService) prune(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	now := s.now()

	s.mu.Lock()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < pruneEvery {
		s.mu.Unlock()
		return
	}
	s.lastPrune = now
	s.mu.Unlock()

	n, err := s.readingRepo.DeleteBefore(ctx, now.Add(-s.retention))
	if err != nil {
		s.log.Errorw("prune_readings_failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Infow("readings_pruned", "deleted", n, "retention", s.retention.String())
	}
}
