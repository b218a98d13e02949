package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guild-tracker/internal/config"
	"guild-tracker/internal/domain"
	"guild-tracker/internal/repository"

	"github.com/rs/zerolog"
)

const (
	RosterModeNoChange = "no_change"
	RosterModeDelta    = "delta"
	RosterModeFull     = "full"

	PhaseStart = "start"
	PhaseChunk = "chunk"
	PhaseFinal = "final"
)

// OutOfOrderError rejects a batch that arrived out of sequence. It carries
// enough detail for the uploader to resume from the expected index.
type OutOfOrderError struct {
	Expected int
	Received int
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order batch: expected index %d, received %d", e.Expected, e.Received)
}

type UploadResult struct {
	PlayersUpserted    int    `json:"players_upserted"`
	PlayersRemoved     int    `json:"players_removed"`
	SnapshotsProcessed int    `json:"snapshots_processed"`
	ChatProcessed      int    `json:"chat_processed"`
	Phase              string `json:"phase"`
}

// UploadService reconciles uploader roster snapshots against the stored
// roster. The one invariant that must never break: absence of a player in a
// batch never implies removal. Deactivation happens only through an explicit
// removed_members list behind the removal guard, or through the legacy
// whole-session protocol.
type UploadService struct {
	players   *repository.PlayerRepository
	uploaders *repository.UploaderRepository
	snapshots *repository.SnapshotRepository
	logger    zerolog.Logger

	defaultRealm string
}

func NewUploadService(
	players *repository.PlayerRepository,
	uploaders *repository.UploaderRepository,
	snapshots *repository.SnapshotRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) *UploadService {
	return &UploadService{
		players:      players,
		uploaders:    uploaders,
		snapshots:    snapshots,
		logger:       logger,
		defaultRealm: cfg.DefaultRealm,
	}
}

// rosterStrategy is one reconciliation protocol. The modern and legacy
// protocols have incompatible invariants and stay in separate
// implementations, selected by the roster_mode discriminant.
type rosterStrategy interface {
	apply(ctx context.Context, status *domain.UploaderStatus, req *UploadRequest, result *UploadResult) error
}

func (s *UploadService) Process(ctx context.Context, uploaderID string, req *UploadRequest) (*UploadResult, error) {
	status, err := s.uploaders.Get(ctx, uploaderID)
	if err != nil {
		return nil, err
	}
	status.LastHeartbeatAt = time.Now().UTC()

	result := &UploadResult{}

	// Ordering enforcement comes first: a misordered batch is rejected with
	// zero mutation of any kind.
	if req.BatchIndex != nil {
		expected := status.LastBatchIndex + 1
		if req.SessionPhase == PhaseStart {
			expected = 0
		}
		if *req.BatchIndex != expected {
			status.State = domain.UploaderOutOfOrder
			status.ExpectedIndex = expected
			status.ReceivedIndex = *req.BatchIndex
			status.LastError = fmt.Sprintf("expected batch %d, received %d", expected, *req.BatchIndex)
			if err := s.uploaders.Save(ctx, status); err != nil {
				return nil, err
			}
			return nil, &OutOfOrderError{Expected: expected, Received: *req.BatchIndex}
		}
		// An accepted in-sequence batch clears a prior out-of-order state so
		// the status endpoint reflects the recovery immediately.
		if status.State == domain.UploaderOutOfOrder {
			status.State = domain.UploaderProcessing
			status.LastError = ""
		}
	}

	if req.HasRosterMode && req.RosterMode == RosterModeNoChange {
		// Heartbeat only; no roster mutation of any kind.
	} else {
		var strategy rosterStrategy
		if req.HasRosterMode {
			strategy = &modernStrategy{s: s}
		} else {
			strategy = &legacyStrategy{s: s}
		}
		if err := strategy.apply(ctx, status, req, result); err != nil {
			return nil, err
		}
	}

	// Activity snapshots and chat counters are additive and idempotent;
	// they carry no removal risk and are processed in every mode.
	if err := s.processSnapshots(ctx, req.Snapshots, result); err != nil {
		return nil, err
	}
	if err := s.processChat(ctx, req.ChatActivity, result); err != nil {
		return nil, err
	}

	if err := s.uploaders.Save(ctx, status); err != nil {
		return nil, err
	}

	result.Phase = string(status.State)
	s.logger.Info().
		Str("uploader", uploaderID).
		Str("mode", req.RosterMode).
		Str("phase", req.SessionPhase).
		Int("upserted", result.PlayersUpserted).
		Int("removed", result.PlayersRemoved).
		Int("snapshots", result.SnapshotsProcessed).
		Int("chat", result.ChatProcessed).
		Msg("upload processed")
	return result, nil
}

// modernStrategy implements the delta/full batched protocol. A player is
// deactivated only when named in removed_members on the final phase with the
// removal guard passing.
type modernStrategy struct {
	s *UploadService
}

func (m *modernStrategy) apply(ctx context.Context, status *domain.UploaderStatus, req *UploadRequest, result *UploadResult) error {
	s := m.s

	switch req.SessionPhase {
	case PhaseStart:
		if req.SessionID != status.SessionID {
			status.SessionID = req.SessionID
			status.LastBatchIndex = -1
		}
		status.State = domain.UploaderProcessing
		if err := s.upsertRoster(ctx, req.MasterRoster, result); err != nil {
			return err
		}
		m.recordBatch(status, req)

	case PhaseChunk:
		if err := s.upsertRoster(ctx, req.MasterRoster, result); err != nil {
			return err
		}
		m.recordBatch(status, req)

	case PhaseFinal:
		if err := s.upsertRoster(ctx, req.MasterRoster, result); err != nil {
			return err
		}
		if err := s.applyRemovals(ctx, req, result); err != nil {
			return err
		}
		m.clearSession(status)

	default:
		// Single-shot upload: roster plus removals in one request; an
		// explicit final-batch flag also clears the session.
		if err := s.upsertRoster(ctx, req.MasterRoster, result); err != nil {
			return err
		}
		if err := s.applyRemovals(ctx, req, result); err != nil {
			return err
		}
		if req.IsFinalBatch {
			m.clearSession(status)
		}
	}
	return nil
}

func (m *modernStrategy) recordBatch(status *domain.UploaderStatus, req *UploadRequest) {
	if req.BatchIndex != nil {
		status.LastBatchIndex = *req.BatchIndex
	}
}

func (m *modernStrategy) clearSession(status *domain.UploaderStatus) {
	status.State = domain.UploaderIdle
	status.SessionID = ""
	status.LastBatchIndex = -1
	status.LastError = ""
	status.LastCompletedAt = time.Now().UTC()
}

// legacyStrategy preserves the pre-roster_mode protocol unchanged: a new
// session eagerly deactivates the whole roster, and each batch reactivates
// the players it carries. A player absent from every batch of the session
// stays inactive at session end. A client crash mid-session can leave the
// roster transiently fully inactive; that behavior is inherited and kept.
type legacyStrategy struct {
	s *UploadService
}

func (l *legacyStrategy) apply(ctx context.Context, status *domain.UploaderStatus, req *UploadRequest, result *UploadResult) error {
	s := l.s

	if req.SessionID != "" && req.SessionID != status.SessionID {
		if err := s.players.SetAllInactive(ctx); err != nil {
			return err
		}
		status.SessionID = req.SessionID
		status.LastBatchIndex = -1
		status.State = domain.UploaderProcessing
		s.logger.Warn().
			Str("session_id", req.SessionID).
			Msg("legacy session started: roster marked inactive pending reactivation")
	}

	if err := s.upsertRoster(ctx, req.MasterRoster, result); err != nil {
		return err
	}
	if req.BatchIndex != nil {
		status.LastBatchIndex = *req.BatchIndex
	}

	if req.IsFinalBatch {
		status.State = domain.UploaderIdle
		status.SessionID = ""
		status.LastBatchIndex = -1
		status.LastCompletedAt = time.Now().UTC()
	}
	return nil
}

func (s *UploadService) upsertRoster(ctx context.Context, roster map[string]RosterEntry, result *UploadResult) error {
	for key, entry := range roster {
		name, realm := s.splitKey(key)
		if name == "" {
			continue
		}
		if _, err := s.players.UpsertRoster(ctx, name, realm, entry.Class, entry.RankName, entry.RankIndex); err != nil {
			return err
		}
		result.PlayersUpserted++
	}
	return nil
}

// applyRemovals deactivates explicitly-listed members, and only behind the
// guard: the caller must assert confirm_removals or supply a
// base_roster_hash, both safety checks against a truncated payload mass-
// deactivating the roster. add_update_only skips removals unconditionally.
func (s *UploadService) applyRemovals(ctx context.Context, req *UploadRequest, result *UploadResult) error {
	if len(req.RemovedMembers) == 0 || req.AddUpdateOnly {
		return nil
	}
	if !req.ConfirmRemovals && req.BaseRosterHash == "" {
		s.logger.Warn().
			Int("count", len(req.RemovedMembers)).
			Msg("removal guard blocked: no confirm_removals or base_roster_hash")
		return nil
	}

	for _, key := range req.RemovedMembers {
		name, realm := s.splitKey(key)
		if name == "" {
			continue
		}
		player, err := s.players.GetByNameRealm(ctx, name, realm)
		if errors.Is(err, repository.ErrPlayerNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !player.IsActive {
			continue
		}
		if err := s.players.SetActive(ctx, player.ID, false); err != nil {
			return err
		}
		result.PlayersRemoved++
	}
	return nil
}

func (s *UploadService) processSnapshots(ctx context.Context, samples []SnapshotSample, result *UploadResult) error {
	for _, sample := range samples {
		if sample.TS <= 0 {
			continue
		}
		t := time.Unix(sample.TS, 0).UTC()
		snap := &domain.ActivitySnapshot{
			SampleDate:  t.Format("2006-01-02"),
			DayOfWeek:   mondayIndexed(t.Weekday()),
			HourOfDay:   t.Hour(),
			OnlineCount: sample.OnlineCount,
			SampledAt:   t,
		}
		if err := s.snapshots.Upsert(ctx, snap); err != nil {
			return err
		}
		result.SnapshotsProcessed++
	}
	return nil
}

// processChat updates message counters for players that already exist; chat
// history never creates roster members.
func (s *UploadService) processChat(ctx context.Context, chat map[string]ChatEntry, result *UploadResult) error {
	for key, entry := range chat {
		name, realm := s.splitKey(key)
		if name == "" {
			continue
		}
		player, err := s.players.GetByNameRealm(ctx, name, realm)
		if errors.Is(err, repository.ErrPlayerNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		update := repository.ChatUpdate{
			RankName:      entry.RankName,
			RankIndex:     entry.RankIndex,
			MessagesTotal: entry.Total,
			MessagesToday: entry.Today,
			LastSeen:      entry.LastSeen,
			LastMessage:   entry.LastMessage,
		}
		if entry.LastSeen == nil && entry.LastSeenTS != nil && *entry.LastSeenTS > 0 {
			seen := time.Unix(*entry.LastSeenTS, 0).UTC().Format("2006-01-02 15:04")
			update.LastSeen = &seen
		}
		if entry.LastMessageTS != nil && *entry.LastMessageTS > 0 {
			ts := time.Unix(*entry.LastMessageTS, 0).UTC()
			update.LastMessageAt = &ts
		}
		if err := s.players.ApplyChat(ctx, player.ID, update); err != nil {
			return err
		}
		result.ChatProcessed++
	}
	return nil
}

// splitKey splits "Name-Realm"; a bare name gets the configured default
// realm, matching the uploader's canonical-name convention.
func (s *UploadService) splitKey(key string) (name, realm string) {
	name, realm, ok := strings.Cut(key, "-")
	if !ok || realm == "" {
		return key, s.defaultRealm
	}
	return name, realm
}
