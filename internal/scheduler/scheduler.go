package scheduler

import (
	"context"
	"sync/atomic"

	"guild-tracker/internal/config"
	"guild-tracker/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler drives the periodic roster sync and combat-log sync. The two
// timers are independent; each carries its own guard flag so a tick that
// fires while the previous one is still running is skipped, never queued.
// Stopping the scheduler only prevents future ticks; an in-flight pass runs
// to completion.
type Scheduler struct {
	cron   *cron.Cron
	sync   *service.SyncService
	logs   *service.LogsSyncService
	logger zerolog.Logger
	cfg    *config.Config

	syncRunning atomic.Bool
	logsRunning atomic.Bool
}

func New(syncSvc *service.SyncService, logsSvc *service.LogsSyncService, cfg *config.Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		sync:   syncSvc,
		logs:   logsSvc,
		logger: logger,
		cfg:    cfg,
	}
}

func (s *Scheduler) Start() error {
	cronLogger := &zerologAdapter{logger: s.logger}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger)))

	if _, err := s.cron.AddFunc(s.cfg.SyncCron, s.runSync); err != nil {
		return err
	}

	if s.cfg.WarcraftLogsClientID != "" {
		if _, err := s.cron.AddFunc(s.cfg.LogsSyncCron, s.runLogsSync); err != nil {
			return err
		}
	} else {
		s.logger.Info().Msg("combat-log sync disabled: no client credentials")
	}

	s.cron.Start()
	s.logger.Info().
		Str("sync_cron", s.cfg.SyncCron).
		Str("logs_cron", s.cfg.LogsSyncCron).
		Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Scheduler) runSync() {
	if !s.syncRunning.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("sync tick skipped: previous pass still running")
		return
	}
	defer s.syncRunning.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
	defer cancel()

	if _, err := s.sync.SyncBatch(ctx); err != nil {
		s.logger.Error().Err(err).Msg("sync pass failed")
	}
}

func (s *Scheduler) runLogsSync() {
	if !s.logsRunning.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("combat-log tick skipped: previous pass still running")
		return
	}
	defer s.logsRunning.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
	defer cancel()

	if err := s.logs.Sync(ctx); err != nil {
		s.logger.Error().Err(err).Msg("combat-log sync failed")
	}
}

// zerologAdapter satisfies cron.Logger.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (a *zerologAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (a *zerologAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
