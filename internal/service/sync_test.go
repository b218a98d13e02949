package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"guild-tracker/internal/api"
	"guild-tracker/internal/config"
	"guild-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fakeProfileBody = `{
		"name": "Thrall",
		"race": "Orc",
		"class": "Shaman",
		"active_spec_name": "Enhancement",
		"active_role": "DPS",
		"thumbnail_url": "https://render.example/thrall.jpg",
		"gear": {"item_level_equipped": 620.5},
		"mythic_plus_scores_by_season": [{"season": "season-tww-2", "scores": {"all": 2500.4}}],
		"mythic_plus_recent_runs": [{
			"dungeon": "Grim Batol",
			"mythic_level": 12,
			"completed_at": "2026-03-14T20:00:00Z",
			"clear_time_ms": 1700000,
			"par_time_ms": 1800000,
			"score": 280.5,
			"url": "https://raider.io/mythic-plus-runs/season-tww-2/9001-grim-batol"
		}],
		"mythic_plus_best_runs": [{
			"dungeon": "Ara-Kara",
			"mythic_level": 10,
			"completed_at": "2026-03-10T19:00:00Z",
			"clear_time_ms": 1600000,
			"par_time_ms": 1800000,
			"score": 250.0,
			"url": "https://raider.io/mythic-plus-runs/season-tww-2/8001-ara-kara"
		}]
	}`

	fakeRunDetailsBody = `{
		"season": "season-tww-2",
		"dungeon_name": "Grim Batol",
		"mythic_level": 12,
		"clear_time_ms": 1700000,
		"keystone_time_ms": 1800000,
		"completed_at": "2026-03-14T20:00:00Z",
		"score": 280.5,
		"roster": [
			{"character": {"name": "Thrall", "realm": {"name": "Quel'Thalas", "slug": "quel-thalas"}}},
			{"character": {"name": "Jaina", "realm": {"name": "Quel'Thalas", "slug": "quel-thalas"}}},
			{"character": {"name": "Randompug", "realm": {"name": "Stormrage", "slug": "stormrage"}}}
		]
	}`
)

func newFakeRaiderIO(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/characters/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "Thrall" {
			http.Error(w, `{"error":"Not Found"}`, http.StatusNotFound)
			return
		}
		assert.Equal(t, "quel-thalas", r.URL.Query().Get("realm"))
		fmt.Fprint(w, fakeProfileBody)
	})
	mux.HandleFunc("/api/v1/mythic-plus/run-details", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "season-tww-2", r.URL.Query().Get("season"))
		if r.URL.Query().Get("id") != "9001" {
			http.Error(w, `{"error":"Not Found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprint(w, fakeRunDetailsBody)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestSyncService(t *testing.T, repos *testRepos, baseURL string) *SyncService {
	t.Helper()
	cfg := &config.Config{RaiderIOBaseURL: baseURL, Region: "us", DefaultRealm: "Quel'Thalas"}
	nop := zerolog.Nop()
	detector := NewGuildRunDetector(repos.guildRuns, repos.events, nop)
	stats := NewStatsAggregator(repos.players, repos.runs, nop)
	return NewSyncService(api.NewRaiderIOClient(cfg), repos.players, repos.runs, detector, stats, nop)
}

func TestSyncBatch(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	server := newFakeRaiderIO(t)
	svc := newTestSyncService(t, repos, server.URL)

	thrall, err := repos.players.UpsertRoster(ctx, "Thrall", "Quel'Thalas", "Shaman", "", 2)
	require.NoError(t, err)
	_, err = repos.players.UpsertRoster(ctx, "Jaina", "Quel'Thalas", "Mage", "", 2)
	require.NoError(t, err)

	result, err := svc.SyncBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed, "missing upstream profile is a soft failure")
	assert.Equal(t, 2, result.NewRuns)

	got, err := repos.players.Get(ctx, thrall.ID)
	require.NoError(t, err)
	assert.Equal(t, "Enhancement", got.Spec)
	assert.Equal(t, "Orc", got.Race)
	assert.InDelta(t, 2500.4, got.MythicScore, 0.01)
	assert.InDelta(t, 620.5, got.ItemLevel, 0.01)
	assert.False(t, got.LastSyncAt.IsZero())

	runs, err := repos.runs.ListByPlayer(ctx, thrall.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "Grim Batol", runs[0].Dungeon, "newest first")
	assert.True(t, runs[0].InTime)

	// Both tracked members appear in the run roster: one guild run, one event.
	guildRuns, err := repos.guildRuns.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, guildRuns, 1)
	assert.Equal(t, "9001-grim-batol", guildRuns[0].RunKey)

	events, err := repos.events.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSyncBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	server := newFakeRaiderIO(t)
	svc := newTestSyncService(t, repos, server.URL)

	thrall, err := repos.players.UpsertRoster(ctx, "Thrall", "Quel'Thalas", "Shaman", "", 2)
	require.NoError(t, err)

	_, err = svc.SyncBatch(ctx)
	require.NoError(t, err)

	result, err := svc.SyncBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped, "unchanged profile is a skip")
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.NewRuns, "re-fetched runs are not novel")

	got, err := repos.players.Get(ctx, thrall.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalRuns, "counters unchanged by the second pass")

	guildRuns, err := repos.guildRuns.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, guildRuns, 1)
}

func TestSyncAdvancesRotationOnFailure(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	server := newFakeRaiderIO(t)
	svc := newTestSyncService(t, repos, server.URL)

	missing, err := repos.players.UpsertRoster(ctx, "Ghost", "Quel'Thalas", "", "", 9)
	require.NoError(t, err)

	result, err := svc.SyncBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// A permanently missing player must not pin the front of the rotation.
	got, err := repos.players.Get(ctx, missing.ID)
	require.NoError(t, err)
	assert.False(t, got.LastSyncAt.IsZero())
	assert.True(t, got.IsActive, "upstream absence never deactivates a roster member")
}

func TestProcessRunsTieBreakKeepsFirstSeenDungeon(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	svc := newTestSyncService(t, repos, "http://127.0.0.1:0")

	player, err := repos.players.UpsertRoster(ctx, "Thrall", "Quel'Thalas", "Shaman", "", 2)
	require.NoError(t, err)

	stored := &domain.MythicRun{
		PlayerID:    player.ID,
		Dungeon:     "Ara-Kara",
		KeyLevel:    10,
		CompletedAt: time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repos.runs.Upsert(ctx, stored, compositeRunKey(stored.Dungeon, stored.KeyLevel, stored.CompletedAt)))

	profile := &api.CharacterProfile{
		MythicPlusRecentRuns: []api.Run{
			{Dungeon: "Grim Batol", MythicLevel: 12,
				CompletedAt: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)},
		},
	}

	result := &SyncResult{}
	require.NoError(t, svc.processRuns(ctx, player, profile, nil, false, result))
	assert.Equal(t, 1, result.NewRuns)

	// Dungeon counts are now tied one-one; first-seen wins, and the run
	// being folded in must not count against its own seed.
	got, err := repos.players.Get(ctx, player.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ara-Kara", got.MostPlayedDungeon)
}

func TestProcessRunsURLlessRunSurvivesTimestampJitter(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	svc := newTestSyncService(t, repos, "http://127.0.0.1:0")

	player, err := repos.players.UpsertRoster(ctx, "Thrall", "Quel'Thalas", "Shaman", "", 2)
	require.NoError(t, err)

	profileAt := func(completed time.Time) *api.CharacterProfile {
		return &api.CharacterProfile{
			MythicPlusRecentRuns: []api.Run{
				{Dungeon: "Grim Batol", MythicLevel: 12, CompletedAt: completed},
			},
		}
	}
	completed := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	result := &SyncResult{}
	require.NoError(t, svc.processRuns(ctx, player, profileAt(completed), nil, false, result))
	require.NoError(t, svc.processRuns(ctx, player, profileAt(completed.Add(90*time.Second)), nil, false, result))

	assert.Equal(t, 1, result.NewRuns, "same UTC day is the same run")

	count, err := repos.runs.CountByPlayer(ctx, player.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-ingestion updates the stored row in place")
}

func TestMergeRunsRecentPriority(t *testing.T) {
	profile := &api.CharacterProfile{
		MythicPlusRecentRuns: []api.Run{
			{Dungeon: "Grim Batol", Score: 280, URL: "https://x/1",
				CompletedAt: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)},
		},
		MythicPlusBestRuns: []api.Run{
			{Dungeon: "Grim Batol", Score: 300, URL: "https://x/1",
				CompletedAt: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)},
			{Dungeon: "Ara-Kara", Score: 250, URL: "https://x/2",
				CompletedAt: time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)},
		},
	}

	merged := mergeRuns(profile, false)
	require.Len(t, merged, 2)
	assert.Equal(t, float64(280), merged[0].Score, "recent entry wins the URL collision")
	assert.Equal(t, "Ara-Kara", merged[1].Dungeon)
}

func TestExtractRunID(t *testing.T) {
	tests := []struct {
		url string
		id  int64
		ok  bool
	}{
		{"https://raider.io/mythic-plus-runs/season-1/9001-grim-batol", 9001, true},
		{"https://raider.io/mythic-plus-runs/season-1/9001", 9001, true},
		{"https://raider.io/mythic-plus-runs/season-1/9001/", 9001, true},
		{"https://raider.io/mythic-plus-runs/season-1/grim-batol", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		id, ok := extractRunID(tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.id, id, tt.url)
	}
}

func TestShuffleSameHourKeepsHourOrdering(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	players := []domain.Player{
		{ID: "a", LastSyncAt: base.Add(5 * time.Minute)},
		{ID: "b", LastSyncAt: base.Add(20 * time.Minute)},
		{ID: "c", LastSyncAt: base.Add(time.Hour)},
		{ID: "d", LastSyncAt: base.Add(2 * time.Hour)},
	}

	shuffleSameHour(players)

	// a and b may swap within their shared hour; c and d keep their slots.
	assert.ElementsMatch(t, []string{"a", "b"}, []string{players[0].ID, players[1].ID})
	assert.Equal(t, "c", players[2].ID)
	assert.Equal(t, "d", players[3].ID)
}
