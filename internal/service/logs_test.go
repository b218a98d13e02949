package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"guild-tracker/internal/api"
	"guild-tracker/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeWarcraftLogs(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "test-token", "token_type": "bearer", "expires_in": 3600}`)
	})

	mux.HandleFunc("/api/v2/client", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "guildData"):
			fmt.Fprint(w, `{"data": {"guildData": {"guild": {"id": 42, "name": "Test Guild"}}}}`)

		case strings.Contains(req.Query, "reports("):
			fmt.Fprint(w, `{"data": {"reportData": {"reports": {"data": [
				{"code": "rep-1", "title": "Week 1", "startTime": 1700000000000,
				 "zone": {"name": "Liberation of Undermine", "encounters": [
					{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4},
					{"id": 5}, {"id": 6}, {"id": 7}, {"id": 8}]}},
				{"code": "rep-2", "title": "Week 2", "startTime": 1700600000000,
				 "zone": {"name": "Liberation of Undermine", "encounters": [
					{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4},
					{"id": 5}, {"id": 6}, {"id": 7}, {"id": 8}]}}
			]}}}}`)

		case strings.Contains(req.Query, "fights("):
			if req.Variables["code"] == "rep-1" {
				fmt.Fprint(w, `{"data": {"reportData": {"report": {"fights": [
					{"id": 1, "name": "Vexie", "difficulty": 5, "kill": true, "endTime": 600000},
					{"id": 2, "name": "Rik Reverb", "difficulty": 5, "kill": false, "endTime": 900000}
				]}}}}`)
			} else {
				fmt.Fprint(w, `{"data": {"reportData": {"report": {"fights": [
					{"id": 1, "name": "Vexie", "difficulty": 5, "kill": true, "endTime": 300000},
					{"id": 2, "name": "Rik Reverb", "difficulty": 5, "kill": true, "endTime": 1200000},
					{"id": 3, "name": "Vexie", "difficulty": 4, "kill": true, "endTime": 1500000}
				]}}}}`)
			}

		default:
			fmt.Fprint(w, `{"errors": [{"message": "unknown query"}]}`)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestLogsSyncDistinctBossProgress(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	server := newFakeWarcraftLogs(t)

	cfg := &config.Config{
		GuildName:                "Test Guild",
		GuildRealm:               "Quel'Thalas",
		Region:                   "us",
		WarcraftLogsBaseURL:      server.URL,
		WarcraftLogsTokenURL:     server.URL + "/oauth/token",
		WarcraftLogsClientID:     "id",
		WarcraftLogsClientSecret: "secret",
	}
	svc := NewLogsSyncService(api.NewWarcraftLogsClient(cfg), repos.raids, cfg, zerolog.Nop())

	require.NoError(t, svc.Sync(ctx))

	progress, err := repos.raids.List(ctx)
	require.NoError(t, err)
	require.Len(t, progress, 2)

	// List orders by raid then difficulty: Heroic before Mythic.
	heroic, mythic := progress[0], progress[1]
	assert.Equal(t, "Heroic", heroic.Difficulty)
	assert.Equal(t, 1, heroic.BossesKilled)

	assert.Equal(t, "Liberation of Undermine", mythic.RaidName)
	assert.Equal(t, "Mythic", mythic.Difficulty)
	assert.Equal(t, 2, mythic.BossesKilled, "repeat kills of the same boss count once")
	assert.Equal(t, 8, mythic.BossesTotal)
	assert.Equal(t, "rep-2", mythic.ReportCode, "latest kill wins the report attribution")
}
