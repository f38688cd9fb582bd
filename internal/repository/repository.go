package repository

import (
	"context"
	"database/sql"
	"time"

	"healthbox_bridge/internal/models"
)

// sqliteTimeLayout is how timestamps are written and compared in SQLite.
const sqliteTimeLayout = "2006-01-02 15:04:05"

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Count(ctx context.Context) (int, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.Event) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.Event, error)
}

// ReadingRepo stores per-room climate samples taken from published snapshots.
type ReadingRepo interface {
	AppendBatch(ctx context.Context, readings []models.Reading) error
	List(ctx context.Context, roomID int, from, to time.Time, limit int) ([]models.Reading, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Repository struct {
	EventRepo   EventRepo
	ReadingRepo ReadingRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		EventRepo:   NewEventSQLite(db),
		ReadingRepo: NewReadingSQLite(db),
		Auth:        NewUserRepository(db),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
