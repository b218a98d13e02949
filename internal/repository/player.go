package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guild-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var ErrPlayerNotFound = errors.New("player not found")

const playerColumns = `id, name, realm, class, spec, race, role, avatar_url,
	item_level, mythic_score, highest_key_level, rank_name, rank_index,
	is_active, last_seen, last_sync_at, total_runs, most_played_dungeon,
	runs_in_time, runs_over_time, runs_low, runs_mid, runs_high, runs_elite,
	messages_total, messages_today, last_message, last_message_at,
	created_at, updated_at`

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: sqlDB, logger: logger}
}

type playerScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row playerScanner) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(
		&p.ID, &p.Name, &p.Realm, &p.Class, &p.Spec, &p.Race, &p.Role, &p.AvatarURL,
		&p.ItemLevel, &p.MythicScore, &p.HighestKeyLevel, &p.RankName, &p.RankIndex,
		&p.IsActive, &p.LastSeen, &p.LastSyncAt, &p.TotalRuns, &p.MostPlayedDungeon,
		&p.RunsInTime, &p.RunsOverTime, &p.RunsLow, &p.RunsMid, &p.RunsHigh, &p.RunsElite,
		&p.MessagesTotal, &p.MessagesToday, &p.LastMessage, &p.LastMessageAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepository) Get(ctx context.Context, id string) (*domain.Player, error) {
	query := fmt.Sprintf("SELECT %s FROM players WHERE id = ?", playerColumns)
	p, err := scanPlayer(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	return p, err
}

func (r *PlayerRepository) GetByNameRealm(ctx context.Context, name, realm string) (*domain.Player, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM players WHERE name = ? COLLATE NOCASE AND realm = ? COLLATE NOCASE",
		playerColumns)
	p, err := scanPlayer(r.db.QueryRowContext(ctx, query, name, realm))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	return p, err
}

func (r *PlayerRepository) List(ctx context.Context, activeOnly bool) ([]domain.Player, error) {
	query := fmt.Sprintf("SELECT %s FROM players ORDER BY name, realm", playerColumns)
	if activeOnly {
		query = fmt.Sprintf("SELECT %s FROM players WHERE is_active = 1 ORDER BY name, realm", playerColumns)
	}
	return r.queryPlayers(ctx, query)
}

// ListForSync returns active players ordered oldest-synced first, bounded to
// limit. Tie-breaking within the same clock hour is left to the caller.
func (r *PlayerRepository) ListForSync(ctx context.Context, limit int) ([]domain.Player, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM players WHERE is_active = 1 ORDER BY last_sync_at ASC LIMIT ?",
		playerColumns)
	return r.queryPlayers(ctx, query, limit)
}

func (r *PlayerRepository) queryPlayers(ctx context.Context, query string, args ...any) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// UpsertRoster creates or reactivates a player from an uploader roster entry.
// Only identity and rank fields are written; sync-owned and counter fields
// are left untouched on update.
func (r *PlayerRepository) UpsertRoster(ctx context.Context, name, realm, class string, rankName string, rankIndex int) (*domain.Player, error) {
	existing, err := r.GetByNameRealm(ctx, name, realm)
	now := time.Now().UTC()

	if errors.Is(err, ErrPlayerNotFound) {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO players (id, name, realm, class, rank_name, rank_index, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			id, name, realm, class, rankName, rankIndex, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert player %s-%s: %w", name, realm, err)
		}
		return r.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if class == "" {
		class = existing.Class
	}
	if rankName == "" {
		rankName = existing.RankName
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE players SET class = ?, rank_name = ?, rank_index = ?, is_active = 1, updated_at = ?
		WHERE id = ?`,
		class, rankName, rankIndex, now, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update player %s: %w", existing.ID, err)
	}
	return r.Get(ctx, existing.ID)
}

func (r *PlayerRepository) Create(ctx context.Context, p *domain.Player) error {
	if p.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		p.ID = id
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (id, name, realm, class, spec, race, rank_name, rank_index, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Realm, p.Class, p.Spec, p.Race, p.RankName, p.RankIndex, p.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create player %s-%s: %w", p.Name, p.Realm, err)
	}
	return nil
}

func (r *PlayerRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE players SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set active for player %s: %w", id, err)
	}
	return nil
}

// SetAllInactive flips the whole roster inactive. Only the legacy uploader
// reconciliation mode uses it.
func (r *PlayerRepository) SetAllInactive(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE players SET is_active = 0, updated_at = ?", time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate roster: %w", err)
	}
	return nil
}

// UpdateProfile writes the fields owned by the third-party sync.
func (r *PlayerRepository) UpdateProfile(ctx context.Context, p *domain.Player) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE players SET class = ?, spec = ?, race = ?, role = ?, avatar_url = ?,
			item_level = ?, mythic_score = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Class, p.Spec, p.Race, p.Role, p.AvatarURL,
		p.ItemLevel, p.MythicScore, time.Now().UTC(), time.Now().UTC(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile for player %s: %w", p.ID, err)
	}
	return nil
}

func (r *PlayerRepository) TouchSync(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		"UPDATE players SET last_sync_at = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return fmt.Errorf("failed to touch sync timestamp for player %s: %w", id, err)
	}
	return nil
}

// StatsUpdate carries one run's worth of counter increments; all counters
// only move forward.
type StatsUpdate struct {
	InTime            bool
	Bracket           string // "low", "mid", "high", "elite"
	KeyLevel          int
	MostPlayedDungeon string
}

func (r *PlayerRepository) ApplyStats(ctx context.Context, playerID string, u StatsUpdate) error {
	inTime, overTime := 0, 1
	if u.InTime {
		inTime, overTime = 1, 0
	}
	low, mid, high, elite := 0, 0, 0, 0
	switch u.Bracket {
	case "low":
		low = 1
	case "mid":
		mid = 1
	case "high":
		high = 1
	default:
		elite = 1
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE players SET
			total_runs = total_runs + 1,
			runs_in_time = runs_in_time + ?,
			runs_over_time = runs_over_time + ?,
			runs_low = runs_low + ?,
			runs_mid = runs_mid + ?,
			runs_high = runs_high + ?,
			runs_elite = runs_elite + ?,
			highest_key_level = MAX(highest_key_level, ?),
			most_played_dungeon = ?,
			updated_at = ?
		WHERE id = ?`,
		inTime, overTime, low, mid, high, elite, u.KeyLevel,
		u.MostPlayedDungeon, time.Now().UTC(), playerID)
	if err != nil {
		return fmt.Errorf("failed to apply stats for player %s: %w", playerID, err)
	}
	return nil
}

// ChatUpdate fields are pointers: only explicitly-present payload fields
// overwrite stored values.
type ChatUpdate struct {
	RankName      *string
	RankIndex     *int
	MessagesTotal *int
	MessagesToday *int
	LastSeen      *string
	LastMessage   *string
	LastMessageAt *time.Time
}

func (r *PlayerRepository) ApplyChat(ctx context.Context, playerID string, u ChatUpdate) error {
	set := "updated_at = ?"
	args := []any{time.Now().UTC()}

	add := func(col string, v any) {
		set += ", " + col + " = ?"
		args = append(args, v)
	}
	if u.RankName != nil {
		add("rank_name", *u.RankName)
	}
	if u.RankIndex != nil {
		add("rank_index", *u.RankIndex)
	}
	if u.MessagesTotal != nil {
		add("messages_total", *u.MessagesTotal)
	}
	if u.MessagesToday != nil {
		add("messages_today", *u.MessagesToday)
	}
	if u.LastSeen != nil {
		add("last_seen", *u.LastSeen)
	}
	if u.LastMessage != nil {
		add("last_message", *u.LastMessage)
	}
	if u.LastMessageAt != nil {
		add("last_message_at", u.LastMessageAt.UTC())
	}

	args = append(args, playerID)
	_, err := r.db.ExecContext(ctx, "UPDATE players SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to apply chat update for player %s: %w", playerID, err)
	}
	return nil
}

// ResetStats zeroes the rolling counters. Administrative action only.
func (r *PlayerRepository) ResetStats(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE players SET total_runs = 0, runs_in_time = 0, runs_over_time = 0,
			runs_low = 0, runs_mid = 0, runs_high = 0, runs_elite = 0,
			highest_key_level = 0, most_played_dungeon = '', updated_at = ?
		WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reset stats for player %s: %w", id, err)
	}
	return nil
}

// Delete hard-deletes a player row. The only caller is the admin endpoint;
// automated flows deactivate instead.
func (r *PlayerRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM players WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete player %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlayerNotFound
	}
	return nil
}
