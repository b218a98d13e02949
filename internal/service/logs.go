package service

import (
	"context"
	"time"

	"guild-tracker/internal/api"
	"guild-tracker/internal/config"
	"guild-tracker/internal/domain"
	"guild-tracker/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	reportFetchLimit      = 10
	fightFetchConcurrency = 3
)

// LogsSyncService derives raid progress from the combat-log analytics API:
// recent guild reports are scanned for boss kills per difficulty. Runs on
// its own timer, independent of the roster sync.
type LogsSyncService struct {
	wcl    *api.WarcraftLogsClient
	raids  *repository.RaidRepository
	logger zerolog.Logger

	guildName  string
	guildRealm string
	region     string
}

func NewLogsSyncService(wcl *api.WarcraftLogsClient, raids *repository.RaidRepository, cfg *config.Config, logger zerolog.Logger) *LogsSyncService {
	return &LogsSyncService{
		wcl:        wcl,
		raids:      raids,
		logger:     logger,
		guildName:  cfg.GuildName,
		guildRealm: cfg.GuildRealm,
		region:     cfg.Region,
	}
}

func (s *LogsSyncService) Sync(ctx context.Context) error {
	guild, err := s.wcl.GetGuild(ctx, s.guildName, s.guildRealm, s.region)
	if err != nil {
		return err
	}

	reports, err := s.wcl.GetReports(ctx, guild.ID, reportFetchLimit)
	if err != nil {
		return err
	}

	// Fight listings are independent per report; fetch them concurrently,
	// then fold sequentially so the accumulation stays deterministic.
	fightsByReport := make([][]api.WCLFight, len(reports))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fightFetchConcurrency)
	for i, report := range reports {
		if report.Zone.Name == "" {
			continue
		}
		g.Go(func() error {
			fights, err := s.wcl.GetFights(gctx, report.Code)
			if err != nil {
				// One unreadable report never aborts the pass.
				s.logger.Warn().Err(err).Str("report", report.Code).Msg("fight listing failed")
				return nil
			}
			fightsByReport[i] = fights
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// (raid, difficulty) -> accumulated progress across reports. Distinct
	// bosses only: killing the same boss in five reports is one boss down.
	type key struct {
		raid       string
		difficulty string
	}
	progress := make(map[key]*domain.RaidProgress)
	killed := make(map[key]map[string]struct{})

	for i, report := range reports {
		reportStart := api.ReportTime(report.StartTime)
		for _, fight := range fightsByReport[i] {
			if !fight.Kill {
				continue
			}
			k := key{raid: report.Zone.Name, difficulty: api.DifficultyName(fight.Difficulty)}
			p, ok := progress[k]
			if !ok {
				p = &domain.RaidProgress{
					RaidName:    k.raid,
					Difficulty:  k.difficulty,
					BossesTotal: len(report.Zone.Encounters),
				}
				progress[k] = p
				killed[k] = make(map[string]struct{})
			}
			if _, ok := killed[k][fight.Name]; !ok {
				killed[k][fight.Name] = struct{}{}
				p.BossesKilled++
			}
			killAt := reportStart.Add(time.Duration(fight.EndTime) * time.Millisecond)
			if killAt.After(p.LastKillAt) {
				p.LastKillAt = killAt
				p.ReportCode = report.Code
			}
		}
	}

	for _, p := range progress {
		if p.BossesKilled > p.BossesTotal && p.BossesTotal > 0 {
			p.BossesKilled = p.BossesTotal
		}
		if err := s.raids.Upsert(ctx, p); err != nil {
			return err
		}
	}

	s.logger.Info().Int("raids", len(progress)).Msg("combat-log sync completed")
	return nil
}
