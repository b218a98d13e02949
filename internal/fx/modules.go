package fx

import (
	"guild-tracker/internal/api"
	"guild-tracker/internal/config"
	"guild-tracker/internal/database"
	"guild-tracker/internal/logger"
	"guild-tracker/internal/repository"
	"guild-tracker/internal/scheduler"
	"guild-tracker/internal/server"
	"guild-tracker/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewRunRepository),
	fx.Provide(repository.NewGuildRunRepository),
	fx.Provide(repository.NewEventRepository),
	fx.Provide(repository.NewSnapshotRepository),
	fx.Provide(repository.NewUploaderRepository),
	fx.Provide(repository.NewRaidRepository),
	// api clients
	fx.Provide(api.NewRaiderIOClient),
	fx.Provide(api.NewWarcraftLogsClient),
	// svc
	fx.Provide(service.NewGuildRunDetector),
	fx.Provide(service.NewStatsAggregator),
	fx.Provide(service.NewSyncService),
	fx.Provide(service.NewUploadService),
	fx.Provide(service.NewHeatmapService),
	fx.Provide(service.NewLogsSyncService),
	// scheduler
	fx.Provide(scheduler.New),
	// server
	fx.Provide(server.New),
)
