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

type RaidRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRaidRepository(sqlDB *sql.DB, logger zerolog.Logger) *RaidRepository {
	return &RaidRepository{db: sqlDB, logger: logger}
}

func (r *RaidRepository) Upsert(ctx context.Context, p *domain.RaidProgress) error {
	if p.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		p.ID = id
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO raid_progress (id, raid_name, difficulty, bosses_killed,
			bosses_total, last_kill_at, report_code, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(raid_name, difficulty) DO UPDATE SET
			bosses_killed = MAX(bosses_killed, excluded.bosses_killed),
			bosses_total = excluded.bosses_total,
			last_kill_at = excluded.last_kill_at,
			report_code = excluded.report_code,
			updated_at = excluded.updated_at`,
		p.ID, p.RaidName, p.Difficulty, p.BossesKilled, p.BossesTotal,
		p.LastKillAt.UTC(), p.ReportCode, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert raid progress %s/%s: %w", p.RaidName, p.Difficulty, err)
	}
	return nil
}

func (r *RaidRepository) List(ctx context.Context) ([]domain.RaidProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, raid_name, difficulty, bosses_killed, bosses_total,
			last_kill_at, report_code, updated_at
		FROM raid_progress ORDER BY raid_name, difficulty`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raid progress: %w", err)
	}
	defer rows.Close()

	var progress []domain.RaidProgress
	for rows.Next() {
		var p domain.RaidProgress
		if err := rows.Scan(&p.ID, &p.RaidName, &p.Difficulty, &p.BossesKilled,
			&p.BossesTotal, &p.LastKillAt, &p.ReportCode, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raid progress: %w", err)
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}
