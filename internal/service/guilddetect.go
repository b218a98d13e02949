package service

import (
	"context"
	"fmt"
	"strings"

	"guild-tracker/internal/api"
	"guild-tracker/internal/domain"
	"guild-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// GuildRunDetector cross-references run rosters against the active roster
// and records a guild run plus one feed event the first time a run with two
// or more tracked members is seen. The active-player lookup is built per
// sync pass and passed in explicitly so passes stay independently testable.
type GuildRunDetector struct {
	guildRuns *repository.GuildRunRepository
	events    *repository.EventRepository
	logger    zerolog.Logger
}

func NewGuildRunDetector(guildRuns *repository.GuildRunRepository, events *repository.EventRepository, logger zerolog.Logger) *GuildRunDetector {
	return &GuildRunDetector{guildRuns: guildRuns, events: events, logger: logger}
}

// BuildLookup maps normalized "name-realm" keys to active players.
func BuildLookup(players []domain.Player) map[string]*domain.Player {
	lookup := make(map[string]*domain.Player, len(players))
	for i := range players {
		p := &players[i]
		if !p.IsActive {
			continue
		}
		lookup[memberKey(p.Name, p.Realm)] = p
	}
	return lookup
}

// Detect processes run details against the lookup. Re-processing a run on a
// later poll is a no-op: the run-key uniqueness check short-circuits before
// any write.
func (d *GuildRunDetector) Detect(ctx context.Context, runs []detectedRun, lookup map[string]*domain.Player) error {
	for _, run := range runs {
		if len(run.Details.Roster) < 2 {
			continue
		}

		var matched []*domain.Player
		for _, entry := range run.Details.Roster {
			if p, ok := lookup[memberKey(entry.Character.Name, entry.Character.Realm.Name)]; ok {
				matched = append(matched, p)
			}
		}
		if len(matched) < 2 {
			continue
		}

		runKey := deriveRunKey(run.URL, run.Details.DungeonName, run.Details.MythicLevel, run.Details.CompletedAt.UnixMilli())
		exists, err := d.guildRuns.Exists(ctx, runKey)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		names := make([]string, len(matched))
		ids := make([]string, len(matched))
		for i, p := range matched {
			names[i] = p.Name
			ids[i] = p.ID
		}

		guildRun := &domain.GuildMythicRun{
			RunKey:      runKey,
			Dungeon:     run.Details.DungeonName,
			KeyLevel:    run.Details.MythicLevel,
			ClearTimeMs: run.Details.ClearTimeMs,
			InTime:      run.Details.ClearTimeMs <= run.Details.ParTimeMs,
			Score:       run.Details.Score,
			CompletedAt: run.Details.CompletedAt,
			MemberCount: len(run.Details.Roster),
			MemberIDs:   ids,
			MemberNames: names,
		}
		if err := d.guildRuns.Create(ctx, guildRun); err != nil {
			return err
		}

		event := &domain.ActivityEvent{
			PlayerID: matched[0].ID,
			Description: fmt.Sprintf("Guild group cleared %s +%d: %s",
				run.Details.DungeonName, run.Details.MythicLevel, strings.Join(names, ", ")),
		}
		if err := d.events.Create(ctx, event); err != nil {
			return err
		}

		d.logger.Info().
			Str("run_key", runKey).
			Str("dungeon", run.Details.DungeonName).
			Int("level", run.Details.MythicLevel).
			Strs("members", names).
			Msg("guild run detected")
	}
	return nil
}

// detectedRun pairs a run's canonical URL (for key derivation) with its
// fetched party detail.
type detectedRun struct {
	URL     string
	Details *api.RunDetails
}

// deriveRunKey prefers the trailing path segment of the canonical URL and
// falls back to dungeon|level|completionEpochMillis.
func deriveRunKey(runURL, dungeon string, level int, completedMillis int64) string {
	if runURL != "" {
		trimmed := strings.TrimRight(runURL, "/")
		if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
			return trimmed[idx+1:]
		}
	}
	return fmt.Sprintf("%s|%d|%d", dungeon, level, completedMillis)
}

// memberKey normalizes a character reference for lookup: lowercase name,
// realm stripped of apostrophes, hyphens, and spaces with a small set of
// accented Latin vowels transliterated.
func memberKey(name, realm string) string {
	return strings.ToLower(name) + "-" + normalizeRealm(realm)
}

var realmTransliterations = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ñ", "n",
)

func normalizeRealm(realm string) string {
	realm = strings.ToLower(realm)
	realm = strings.ReplaceAll(realm, "'", "")
	realm = strings.ReplaceAll(realm, "-", "")
	realm = strings.ReplaceAll(realm, " ", "")
	return realmTransliterations.Replace(realm)
}
