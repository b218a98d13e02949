package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guild-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: sqlDB, logger: logger}
}

// Upsert stores one online-count sample bucketed by (date, hour). A duplicate
// bucket for the same day keeps the higher count.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *domain.ActivitySnapshot) error {
	if snap.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		snap.ID = id
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_snapshots (id, sample_date, day_of_week, hour_of_day, online_count, sampled_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sample_date, hour_of_day) DO UPDATE SET
			online_count = MAX(online_count, excluded.online_count),
			sampled_at = excluded.sampled_at`,
		snap.ID, snap.SampleDate, snap.DayOfWeek, snap.HourOfDay,
		snap.OnlineCount, snap.SampledAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s/%d: %w", snap.SampleDate, snap.HourOfDay, err)
	}
	return nil
}

func (r *SnapshotRepository) ListAll(ctx context.Context) ([]domain.ActivitySnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sample_date, day_of_week, hour_of_day, online_count, sampled_at
		FROM activity_snapshots ORDER BY sampled_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.ActivitySnapshot
	for rows.Next() {
		var s domain.ActivitySnapshot
		if err := rows.Scan(&s.ID, &s.SampleDate, &s.DayOfWeek, &s.HourOfDay,
			&s.OnlineCount, &s.SampledAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// ListSince bounds the heatmap window; zero time returns everything.
func (r *SnapshotRepository) ListSince(ctx context.Context, since time.Time) ([]domain.ActivitySnapshot, error) {
	if since.IsZero() {
		return r.ListAll(ctx)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sample_date, day_of_week, hour_of_day, online_count, sampled_at
		FROM activity_snapshots WHERE sampled_at >= ? ORDER BY sampled_at ASC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.ActivitySnapshot
	for rows.Next() {
		var s domain.ActivitySnapshot
		if err := rows.Scan(&s.ID, &s.SampleDate, &s.DayOfWeek, &s.HourOfDay,
			&s.OnlineCount, &s.SampledAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
