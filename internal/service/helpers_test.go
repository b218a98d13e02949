package service

import (
	"database/sql"
	"testing"

	"guild-tracker/internal/config"
	"guild-tracker/internal/database"
	"guild-tracker/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		DefaultRealm:    "Quel'Thalas",
		Region:          "us",
		RaiderIOBaseURL: "http://127.0.0.1:0",
	}
}

type testRepos struct {
	players   *repository.PlayerRepository
	runs      *repository.RunRepository
	guildRuns *repository.GuildRunRepository
	events    *repository.EventRepository
	snapshots *repository.SnapshotRepository
	uploaders *repository.UploaderRepository
	raids     *repository.RaidRepository
}

func newTestRepos(db *sql.DB) *testRepos {
	nop := zerolog.Nop()
	return &testRepos{
		players:   repository.NewPlayerRepository(db, nop),
		runs:      repository.NewRunRepository(db, nop),
		guildRuns: repository.NewGuildRunRepository(db, nop),
		events:    repository.NewEventRepository(db, nop),
		snapshots: repository.NewSnapshotRepository(db, nop),
		uploaders: repository.NewUploaderRepository(db, nop),
		raids:     repository.NewRaidRepository(db, nop),
	}
}

func newTestUploadService(r *testRepos) *UploadService {
	return NewUploadService(r.players, r.uploaders, r.snapshots, newTestConfig(), zerolog.Nop())
}

func intPtr(v int) *int { return &v }
