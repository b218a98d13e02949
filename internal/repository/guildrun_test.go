package repository

import (
	"context"
	"testing"
	"time"

	"guild-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuildRunCreateAndExists(t *testing.T) {
	ctx := context.Background()
	repo := NewGuildRunRepository(newTestDB(t), zerolog.Nop())

	exists, err := repo.Exists(ctx, "9001-grim-batol")
	require.NoError(t, err)
	assert.False(t, exists)

	run := &domain.GuildMythicRun{
		RunKey:      "9001-grim-batol",
		Dungeon:     "Grim Batol",
		KeyLevel:    12,
		ClearTimeMs: 1_700_000,
		InTime:      true,
		Score:       280.5,
		CompletedAt: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC),
		MemberCount: 5,
		MemberIDs:   []string{"id-1", "id-2"},
		MemberNames: []string{"Thrall", "Jaina"},
	}
	require.NoError(t, repo.Create(ctx, run))

	exists, err = repo.Exists(ctx, "9001-grim-batol")
	require.NoError(t, err)
	assert.True(t, exists)

	stored, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []string{"id-1", "id-2"}, stored[0].MemberIDs)
	assert.Equal(t, []string{"Thrall", "Jaina"}, stored[0].MemberNames)
	assert.Equal(t, 5, stored[0].MemberCount)
}

func TestGuildRunListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewGuildRunRepository(newTestDB(t), zerolog.Nop())

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, key := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Create(ctx, &domain.GuildMythicRun{
			RunKey: key, Dungeon: "Ara-Kara", KeyLevel: 10,
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	stored, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "third", stored[0].RunKey)
	assert.Equal(t, "second", stored[1].RunKey)
}
