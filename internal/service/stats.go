package service

import (
	"context"
	"sync"

	"guild-tracker/internal/constants"
	"guild-tracker/internal/domain"
	"guild-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// StatsAggregator incrementally folds newly-confirmed-novel runs into a
// player's rolling counters without re-scanning run history. It is stateful
// but idempotence is the caller's job: feeding the same run twice
// double-counts, so only runs the RunDeduper confirmed novel may be passed
// in.
type StatsAggregator struct {
	players *repository.PlayerRepository
	runs    *repository.RunRepository
	logger  zerolog.Logger

	mu sync.Mutex
	// Per-player dungeon frequency, seeded from stored runs the first time a
	// player is touched in this process lifetime, then incremented per run.
	// dungeonOrder preserves first-seen order for tie-breaking.
	dungeonCounts map[string]map[string]int
	dungeonOrder  map[string][]string
}

func NewStatsAggregator(players *repository.PlayerRepository, runs *repository.RunRepository, logger zerolog.Logger) *StatsAggregator {
	return &StatsAggregator{
		players:       players,
		runs:          runs,
		logger:        logger,
		dungeonCounts: make(map[string]map[string]int),
		dungeonOrder:  make(map[string][]string),
	}
}

func (a *StatsAggregator) Update(ctx context.Context, playerID string, run *domain.MythicRun) error {
	mostPlayed, err := a.bumpDungeon(ctx, playerID, run.Dungeon)
	if err != nil {
		return err
	}

	update := repository.StatsUpdate{
		InTime:            run.ClearTimeMs <= run.ParTimeMs,
		Bracket:           levelBracket(run.KeyLevel),
		KeyLevel:          run.KeyLevel,
		MostPlayedDungeon: mostPlayed,
	}
	if err := a.players.ApplyStats(ctx, playerID, update); err != nil {
		return err
	}

	a.logger.Debug().
		Str("player_id", playerID).
		Str("dungeon", run.Dungeon).
		Int("level", run.KeyLevel).
		Bool("in_time", update.InTime).
		Str("bracket", update.Bracket).
		Msg("stats updated")
	return nil
}

func (a *StatsAggregator) bumpDungeon(ctx context.Context, playerID, dungeon string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts, ok := a.dungeonCounts[playerID]
	if !ok {
		counts = make(map[string]int)
		var order []string
		stored, err := a.runs.ListByPlayer(ctx, playerID, constants.RunRetention)
		if err != nil {
			return "", err
		}
		// Stored runs come newest-first; seed in chronological order so the
		// first-seen tie-break matches ingestion order.
		for i := len(stored) - 1; i >= 0; i-- {
			d := stored[i].Dungeon
			if counts[d] == 0 {
				order = append(order, d)
			}
			counts[d]++
		}
		a.dungeonCounts[playerID] = counts
		a.dungeonOrder[playerID] = order
	}

	if counts[dungeon] == 0 {
		a.dungeonOrder[playerID] = append(a.dungeonOrder[playerID], dungeon)
	}
	counts[dungeon]++

	best, bestCount := "", 0
	for _, d := range a.dungeonOrder[playerID] {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best, nil
}

// Reset drops the in-memory frequency map for a player; the next Update
// reseeds from stored runs. Used after an administrative stats reset.
func (a *StatsAggregator) Reset(playerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.dungeonCounts, playerID)
	delete(a.dungeonOrder, playerID)
}

func levelBracket(level int) string {
	switch {
	case level <= constants.BracketLowMax:
		return "low"
	case level <= constants.BracketMidMax:
		return "mid"
	case level <= constants.BracketHighMax:
		return "high"
	default:
		return "elite"
	}
}
