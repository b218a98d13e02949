package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"guild-tracker/internal/api"
	"guild-tracker/internal/constants"
	"guild-tracker/internal/domain"
	"guild-tracker/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SyncService rotates through the active roster in bounded batches, enriches
// each player from the Mythic+ scoring API, and feeds fetched runs through
// guild detection, deduplication, and stats aggregation. Players are
// processed one at a time; the limiters space requests out to respect
// upstream rate limits.
type SyncService struct {
	rio      *api.RaiderIOClient
	players  *repository.PlayerRepository
	runs     *repository.RunRepository
	detector *GuildRunDetector
	stats    *StatsAggregator
	logger   zerolog.Logger

	playerLimiter *rate.Limiter
	detailLimiter *rate.Limiter
}

func NewSyncService(
	rio *api.RaiderIOClient,
	players *repository.PlayerRepository,
	runs *repository.RunRepository,
	detector *GuildRunDetector,
	stats *StatsAggregator,
	logger zerolog.Logger,
) *SyncService {
	return &SyncService{
		rio:           rio,
		players:       players,
		runs:          runs,
		detector:      detector,
		stats:         stats,
		logger:        logger,
		playerLimiter: rate.NewLimiter(rate.Every(constants.PlayerFetchDelay), 1),
		detailLimiter: rate.NewLimiter(rate.Every(constants.RunDetailDelay), 1),
	}
}

type SyncResult struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	NewRuns   int `json:"new_runs"`
}

// SyncBatch processes one rotation batch: the least-recently-synced active
// players, with randomized ordering between players last synced within the
// same clock hour so the rotation never pins the same subset.
func (s *SyncService) SyncBatch(ctx context.Context) (*SyncResult, error) {
	batch, err := s.players.ListForSync(ctx, constants.SyncBatchSize)
	if err != nil {
		return nil, err
	}
	shuffleSameHour(batch)

	active, err := s.players.List(ctx, true)
	if err != nil {
		return nil, err
	}
	lookup := BuildLookup(active)

	result := &SyncResult{}
	for i := range batch {
		if err := s.playerLimiter.Wait(ctx); err != nil {
			return result, err
		}
		s.syncPlayer(ctx, &batch[i], lookup, false, result)
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("new_runs", result.NewRuns).
		Msg("sync batch completed")
	return result, nil
}

// DeepSync pulls the extra alternate-season and highest-level run lists for
// one player and processes the full merged set. On-demand backfill only.
func (s *SyncService) DeepSync(ctx context.Context, name, realm string) (*SyncResult, error) {
	player, err := s.players.GetByNameRealm(ctx, name, realm)
	if err != nil {
		return nil, err
	}

	active, err := s.players.List(ctx, true)
	if err != nil {
		return nil, err
	}
	lookup := BuildLookup(active)

	result := &SyncResult{}
	s.syncPlayer(ctx, player, lookup, true, result)
	return result, nil
}

// syncPlayer never aborts the batch: all failures are folded into the result
// counters and the pass moves on.
func (s *SyncService) syncPlayer(ctx context.Context, player *domain.Player, lookup map[string]*domain.Player, deep bool, result *SyncResult) {
	result.Processed++
	log := s.logger.With().Str("player", player.Key()).Logger()

	profile, err := s.rio.GetCharacterProfile(ctx, player.Name, player.Realm, deep)
	if err != nil {
		result.Failed++
		if errors.Is(err, api.ErrNotFound) {
			log.Debug().Msg("player not found upstream")
		} else {
			log.Warn().Err(err).Msg("profile fetch failed")
		}
		// Advance the rotation even on failure so a permanently missing
		// player cannot pin the front of the queue.
		if err := s.players.TouchSync(ctx, player.ID); err != nil {
			log.Warn().Err(err).Msg("failed to touch sync timestamp")
		}
		return
	}

	if profileChanged(player, profile) {
		player.Class = profile.Class
		player.Spec = profile.ActiveSpecName
		player.Race = profile.Race
		player.Role = profile.ActiveRole
		player.AvatarURL = profile.ThumbnailURL
		player.ItemLevel = profile.Gear.ItemLevelEquipped
		player.MythicScore = profile.CurrentScore()
		if err := s.players.UpdateProfile(ctx, player); err != nil {
			result.Failed++
			log.Error().Err(err).Msg("failed to persist profile update")
			return
		}
		result.Updated++
	} else {
		if err := s.players.TouchSync(ctx, player.ID); err != nil {
			log.Warn().Err(err).Msg("failed to touch sync timestamp")
		}
		result.Skipped++
	}

	if err := s.processRuns(ctx, player, profile, lookup, deep, result); err != nil {
		log.Warn().Err(err).Msg("run processing failed")
	}
}

func (s *SyncService) processRuns(ctx context.Context, player *domain.Player, profile *api.CharacterProfile, lookup map[string]*domain.Player, deep bool, result *SyncResult) error {
	season := currentSeason(profile)

	// Fetch full party details for recent runs and hand them to the guild
	// detector before any per-player bookkeeping.
	var details []detectedRun
	for _, run := range profile.MythicPlusRecentRuns {
		runID, ok := extractRunID(run.URL)
		if !ok {
			continue
		}
		if err := s.detailLimiter.Wait(ctx); err != nil {
			return err
		}
		detail, err := s.rio.GetRunDetails(ctx, season, runID)
		if err != nil {
			s.logger.Debug().Err(err).Int64("run_id", runID).Msg("run detail fetch failed")
			continue
		}
		details = append(details, detectedRun{URL: run.URL, Details: detail})
	}
	if err := s.detector.Detect(ctx, details, lookup); err != nil {
		return err
	}

	merged := mergeRuns(profile, deep)
	if !deep && len(merged) > constants.RecentRunSyncLimit {
		merged = merged[:constants.RecentRunSyncLimit]
	}

	stored, err := s.runs.ListByPlayer(ctx, player.ID, constants.RunRetention)
	if err != nil {
		return err
	}
	deduper := NewRunDeduper(stored)

	for _, upstream := range merged {
		run := &domain.MythicRun{
			PlayerID:    player.ID,
			Dungeon:     upstream.Dungeon,
			KeyLevel:    upstream.MythicLevel,
			Score:       upstream.Score,
			ClearTimeMs: upstream.ClearTimeMs,
			ParTimeMs:   upstream.ParTimeMs,
			InTime:      upstream.ClearTimeMs <= upstream.ParTimeMs,
			CompletedAt: upstream.CompletedAt,
			RunURL:      upstream.URL,
		}
		if deduper.IsNewRun(run) {
			// Stats fold before the upsert: the aggregator's first-touch
			// frequency seed reads stored runs, and the run being counted
			// must not be in that set yet.
			if err := s.stats.Update(ctx, player.ID, run); err != nil {
				return err
			}
			result.NewRuns++
		}

		// URL-less runs persist under the deduper's day-truncated identity,
		// so a re-fetch with shifted timestamps updates the existing row.
		runKey := compositeRunKey(run.Dungeon, run.KeyLevel, run.CompletedAt)
		if run.RunURL != "" {
			runKey = deriveRunKey(run.RunURL, run.Dungeon, run.KeyLevel, run.CompletedAt.UnixMilli())
		}
		if err := s.runs.Upsert(ctx, run, runKey); err != nil {
			return err
		}
		deduper.MarkSeen(run)
	}

	return s.runs.Prune(ctx, player.ID, constants.RunRetention)
}

// profileChanged compares the small set of sync-owned fields; score and item
// level are compared rounded so upstream decimal jitter does not count as a
// change.
func profileChanged(player *domain.Player, profile *api.CharacterProfile) bool {
	return math.Round(player.MythicScore) != math.Round(profile.CurrentScore()) ||
		math.Round(player.ItemLevel) != math.Round(profile.Gear.ItemLevelEquipped) ||
		player.Spec != profile.ActiveSpecName ||
		player.Race != profile.Race ||
		player.Class != profile.Class ||
		player.AvatarURL != profile.ThumbnailURL
}

// mergeRuns combines the best-runs and recent-runs lists (plus the deep-sync
// extras), deduplicating by URL with recent runs taking priority, newest
// first.
func mergeRuns(profile *api.CharacterProfile, deep bool) []api.Run {
	seen := make(map[string]struct{})
	var merged []api.Run

	add := func(runs []api.Run) {
		for _, run := range runs {
			if run.URL != "" {
				if _, ok := seen[run.URL]; ok {
					continue
				}
				seen[run.URL] = struct{}{}
			}
			merged = append(merged, run)
		}
	}

	add(profile.MythicPlusRecentRuns)
	add(profile.MythicPlusBestRuns)
	if deep {
		add(profile.MythicPlusAlternateRuns)
		add(profile.MythicPlusHighestRuns)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CompletedAt.After(merged[j].CompletedAt)
	})
	return merged
}

func currentSeason(profile *api.CharacterProfile) string {
	if len(profile.MythicPlusScoresBySeason) > 0 && profile.MythicPlusScoresBySeason[0].Season != "" {
		return profile.MythicPlusScoresBySeason[0].Season
	}
	return "current"
}

// extractRunID pulls the numeric run id out of a canonical run URL, whose
// trailing segment is "<id>" or "<id>-<slug>".
func extractRunID(runURL string) (int64, bool) {
	trimmed := strings.TrimRight(runURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return 0, false
	}
	segment := trimmed[idx+1:]
	if dash := strings.IndexByte(segment, '-'); dash > 0 {
		segment = segment[:dash]
	}
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// shuffleSameHour randomizes order between players whose last sync fell in
// the same clock hour, keeping the overall oldest-first rotation.
func shuffleSameHour(players []domain.Player) {
	i := 0
	for i < len(players) {
		j := i + 1
		hour := players[i].LastSyncAt.UTC().Truncate(time.Hour)
		for j < len(players) && players[j].LastSyncAt.UTC().Truncate(time.Hour).Equal(hour) {
			j++
		}
		group := players[i:j]
		rand.Shuffle(len(group), func(a, b int) {
			group[a], group[b] = group[b], group[a]
		})
		i = j
	}
}
