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

type RunRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRunRepository(sqlDB *sql.DB, logger zerolog.Logger) *RunRepository {
	return &RunRepository{db: sqlDB, logger: logger}
}

func (r *RunRepository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]domain.MythicRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, player_id, run_key, dungeon, key_level, score, clear_time_ms,
			par_time_ms, in_time, completed_at, run_url, created_at, updated_at
		FROM mythic_runs WHERE player_id = ?
		ORDER BY completed_at DESC LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for player %s: %w", playerID, err)
	}
	defer rows.Close()

	var runs []domain.MythicRun
	for rows.Next() {
		var run domain.MythicRun
		var runKey string
		if err := rows.Scan(&run.ID, &run.PlayerID, &runKey, &run.Dungeon, &run.KeyLevel,
			&run.Score, &run.ClearTimeMs, &run.ParTimeMs, &run.InTime,
			&run.CompletedAt, &run.RunURL, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Upsert inserts a run keyed by (player_id, run_key). An existing record is
// only overwritten when the new score is strictly greater, so re-ingesting
// the same upstream run is a no-op.
func (r *RunRepository) Upsert(ctx context.Context, run *domain.MythicRun, runKey string) error {
	if run.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		run.ID = id
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mythic_runs (id, player_id, run_key, dungeon, key_level, score,
			clear_time_ms, par_time_ms, in_time, completed_at, run_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id, run_key) DO UPDATE SET
			score = excluded.score,
			clear_time_ms = excluded.clear_time_ms,
			par_time_ms = excluded.par_time_ms,
			in_time = excluded.in_time,
			completed_at = excluded.completed_at,
			run_url = excluded.run_url,
			updated_at = excluded.updated_at
		WHERE excluded.score > mythic_runs.score`,
		run.ID, run.PlayerID, runKey, run.Dungeon, run.KeyLevel, run.Score,
		run.ClearTimeMs, run.ParTimeMs, run.InTime, run.CompletedAt.UTC(), run.RunURL, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s for player %s: %w", runKey, run.PlayerID, err)
	}
	return nil
}

// Prune deletes everything past the keep most-recent runs for the player.
func (r *RunRepository) Prune(ctx context.Context, playerID string, keep int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM mythic_runs WHERE player_id = ? AND id NOT IN (
			SELECT id FROM mythic_runs WHERE player_id = ?
			ORDER BY completed_at DESC LIMIT ?
		)`, playerID, playerID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune runs for player %s: %w", playerID, err)
	}
	return nil
}

func (r *RunRepository) CountByPlayer(ctx context.Context, playerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mythic_runs WHERE player_id = ?", playerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs for player %s: %w", playerID, err)
	}
	return n, nil
}
