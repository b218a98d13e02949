package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"guild-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type GuildRunRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGuildRunRepository(sqlDB *sql.DB, logger zerolog.Logger) *GuildRunRepository {
	return &GuildRunRepository{db: sqlDB, logger: logger}
}

func (r *GuildRunRepository) Exists(ctx context.Context, runKey string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM guild_runs WHERE run_key = ?", runKey).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check guild run %s: %w", runKey, err)
	}
	return n > 0, nil
}

func (r *GuildRunRepository) Create(ctx context.Context, run *domain.GuildMythicRun) error {
	if run.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		run.ID = id
	}

	memberIDs, err := json.Marshal(run.MemberIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal member ids: %w", err)
	}
	memberNames, err := json.Marshal(run.MemberNames)
	if err != nil {
		return fmt.Errorf("failed to marshal member names: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO guild_runs (id, run_key, dungeon, key_level, clear_time_ms,
			in_time, score, completed_at, member_count, member_ids, member_names, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunKey, run.Dungeon, run.KeyLevel, run.ClearTimeMs,
		run.InTime, run.Score, run.CompletedAt.UTC(), run.MemberCount,
		string(memberIDs), string(memberNames), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create guild run %s: %w", run.RunKey, err)
	}
	return nil
}

func (r *GuildRunRepository) List(ctx context.Context, limit int) ([]domain.GuildMythicRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_key, dungeon, key_level, clear_time_ms, in_time, score,
			completed_at, member_count, member_ids, member_names, created_at
		FROM guild_runs ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query guild runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.GuildMythicRun
	for rows.Next() {
		var run domain.GuildMythicRun
		var memberIDs, memberNames string
		if err := rows.Scan(&run.ID, &run.RunKey, &run.Dungeon, &run.KeyLevel,
			&run.ClearTimeMs, &run.InTime, &run.Score, &run.CompletedAt,
			&run.MemberCount, &memberIDs, &memberNames, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guild run: %w", err)
		}
		if err := json.Unmarshal([]byte(memberIDs), &run.MemberIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal member ids: %w", err)
		}
		if err := json.Unmarshal([]byte(memberNames), &run.MemberNames); err != nil {
			return nil, fmt.Errorf("failed to unmarshal member names: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
