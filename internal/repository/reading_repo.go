package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"healthbox_bridge/internal/models"
)

const (
	insertReadingSQL = `INSERT INTO room_readings (room_id, room_name, recorded_at, temperature_c, humidity_pct, co2_ppm, aqi, voc_ppm) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	selectReadingSQL = `SELECT room_id, room_name, recorded_at, temperature_c, humidity_pct, co2_ppm, aqi, voc_ppm FROM room_readings`
	deleteReadingSQL = `DELETE FROM room_readings WHERE recorded_at < ?`

	defaultReadingLimit = 1000
)

type ReadingSQLite struct {
	db *sql.DB
}

func NewReadingSQLite(db *sql.DB) *ReadingSQLite { return &ReadingSQLite{db: db} }

var _ ReadingRepo = (*ReadingSQLite)(nil)

// AppendBatch writes all readings of one poll in a single transaction.
func (r *ReadingSQLite) AppendBatch(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin readings tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return fmt.Errorf("prepare reading insert: %w", err)
	}
	defer stmt.Close()

	for _, rd := range readings {
		if _, err := stmt.ExecContext(ctx,
			rd.RoomID,
			rd.RoomName,
			formatTime(rd.RecordedAt),
			rd.TemperatureC,
			rd.HumidityPct,
			nullFloat(rd.CO2PPM),
			nullFloat(rd.AQI),
			nullFloat(rd.VOCPPM),
		); err != nil {
			return fmt.Errorf("insert reading for room %d: %w", rd.RoomID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit readings tx: %w", err)
	}
	return nil
}

// List returns the newest readings of a room within [from, to], oldest first.
func (r *ReadingSQLite) List(ctx context.Context, roomID int, from, to time.Time, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = defaultReadingLimit
	}
	conds := []string{"room_id = ?"}
	args := []any{roomID}
	if !from.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, formatTime(to))
	}
	args = append(args, limit)

	q := selectReadingSQL + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY recorded_at DESC LIMIT ?"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []models.Reading
	for rows.Next() {
		var (
			rd            models.Reading
			co2, aqi, voc sql.NullFloat64
		)
		if err := rows.Scan(&rd.RoomID, &rd.RoomName, &rd.RecordedAt, &rd.TemperatureC, &rd.HumidityPct, &co2, &aqi, &voc); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		rd.RecordedAt = rd.RecordedAt.UTC()
		rd.CO2PPM = floatPtr(co2)
		rd.AQI = floatPtr(aqi)
		rd.VOCPPM = floatPtr(voc)
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteBefore prunes readings older than cutoff and returns how many were removed.
func (r *ReadingSQLite) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteReadingSQL, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
