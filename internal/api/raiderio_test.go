package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"guild-tracker/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealmSlug(t *testing.T) {
	tests := []struct {
		realm string
		want  string
	}{
		{"Quel'Thalas", "quelthalas"},
		{"Argent Dawn", "argent-dawn"},
		{"Azjol-Nerub", "azjol-nerub"},
		{"Stormrage", "stormrage"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RealmSlug(tt.realm), tt.realm)
	}
}

func TestGetCharacterProfile(t *testing.T) {
	var gotFields string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/characters/profile", r.URL.Path)
		gotFields = r.URL.Query().Get("fields")

		switch r.URL.Query().Get("name") {
		case "Thrall":
			fmt.Fprint(w, `{
				"name": "Thrall",
				"class": "Shaman",
				"gear": {"item_level_equipped": 620.5},
				"mythic_plus_scores_by_season": [{"season": "season-tww-2", "scores": {"all": 2500.4}}]
			}`)
		case "Broken":
			http.Error(w, `{"error":"Bad Request"}`, http.StatusBadRequest)
		default:
			http.Error(w, `{"error":"Not Found"}`, http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewRaiderIOClient(&config.Config{RaiderIOBaseURL: server.URL, Region: "us"})
	ctx := context.Background()

	profile, err := client.GetCharacterProfile(ctx, "Thrall", "Quel'Thalas", false)
	require.NoError(t, err)
	assert.Equal(t, "Shaman", profile.Class)
	assert.InDelta(t, 2500.4, profile.CurrentScore(), 0.01)
	assert.NotContains(t, gotFields, "alternate", "shallow fetch stays on the base field set")

	_, err = client.GetCharacterProfile(ctx, "Thrall", "Quel'Thalas", true)
	require.NoError(t, err)
	assert.Contains(t, gotFields, "mythic_plus_alternate_runs")
	assert.Contains(t, gotFields, "mythic_plus_highest_level_runs")

	// Missing character and malformed name both map to ErrNotFound.
	_, err = client.GetCharacterProfile(ctx, "Nobody", "Quel'Thalas", false)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = client.GetCharacterProfile(ctx, "Broken", "Quel'Thalas", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRunDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/mythic-plus/run-details", r.URL.Path)
		require.Equal(t, "season-tww-2", r.URL.Query().Get("season"))
		require.Equal(t, "9001", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{
			"dungeon_name": "Grim Batol",
			"mythic_level": 12,
			"clear_time_ms": 1700000,
			"keystone_time_ms": 1800000,
			"roster": [{"character": {"name": "Thrall", "realm": {"name": "Quel'Thalas"}}}]
		}`)
	}))
	defer server.Close()

	client := NewRaiderIOClient(&config.Config{RaiderIOBaseURL: server.URL, Region: "us"})

	details, err := client.GetRunDetails(context.Background(), "season-tww-2", 9001)
	require.NoError(t, err)
	assert.Equal(t, "Grim Batol", details.DungeonName)
	assert.Equal(t, int64(1_800_000), details.ParTimeMs)
	require.Len(t, details.Roster, 1)
	assert.Equal(t, "Thrall", details.Roster[0].Character.Name)
}

func TestCurrentScoreEmptySeasons(t *testing.T) {
	p := &CharacterProfile{}
	assert.Zero(t, p.CurrentScore())
}
