package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"guild-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPlayer(t *testing.T, players *PlayerRepository) *domain.Player {
	t.Helper()
	p, err := players.UpsertRoster(context.Background(), "Thrall", "Quel'Thalas", "Shaman", "", 2)
	require.NoError(t, err)
	return p
}

func TestRunUpsertKeepsHigherScore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	runs := NewRunRepository(db, zerolog.Nop())
	p := seedPlayer(t, players)

	completed := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	run := &domain.MythicRun{
		PlayerID: p.ID, Dungeon: "Grim Batol", KeyLevel: 12,
		Score: 280, CompletedAt: completed,
	}
	require.NoError(t, runs.Upsert(ctx, run, "9001-grim-batol"))

	// Lower or equal score: no overwrite.
	lower := &domain.MythicRun{
		PlayerID: p.ID, Dungeon: "Grim Batol", KeyLevel: 12,
		Score: 270, CompletedAt: completed,
	}
	require.NoError(t, runs.Upsert(ctx, lower, "9001-grim-batol"))

	stored, err := runs.ListByPlayer(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 280, stored[0].Score, 0.01)

	// Strictly greater score replaces.
	higher := &domain.MythicRun{
		PlayerID: p.ID, Dungeon: "Grim Batol", KeyLevel: 12,
		Score: 295, CompletedAt: completed,
	}
	require.NoError(t, runs.Upsert(ctx, higher, "9001-grim-batol"))

	stored, err = runs.ListByPlayer(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 295, stored[0].Score, 0.01)
}

func TestRunPruneKeepsNewest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	runs := NewRunRepository(db, zerolog.Nop())
	p := seedPlayer(t, players)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		run := &domain.MythicRun{
			PlayerID: p.ID, Dungeon: "Ara-Kara", KeyLevel: 10,
			CompletedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}
		require.NoError(t, runs.Upsert(ctx, run, fmt.Sprintf("run-%d", i)))
	}

	require.NoError(t, runs.Prune(ctx, p.ID, 5))

	n, err := runs.CountByPlayer(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	stored, err := runs.ListByPlayer(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 5)
	assert.True(t, stored[0].CompletedAt.After(stored[4].CompletedAt), "newest first")
	assert.True(t, stored[4].CompletedAt.Equal(base.Add(3*24*time.Hour)), "oldest three pruned")
}

func TestRunsCascadeOnPlayerDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	runs := NewRunRepository(db, zerolog.Nop())
	p := seedPlayer(t, players)

	run := &domain.MythicRun{
		PlayerID: p.ID, Dungeon: "Grim Batol", KeyLevel: 12,
		CompletedAt: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC),
	}
	require.NoError(t, runs.Upsert(ctx, run, "9001"))

	require.NoError(t, players.Delete(ctx, p.ID))

	n, err := runs.CountByPlayer(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
