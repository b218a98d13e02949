package service

import (
	"encoding/json"
	"fmt"
)

// Two generations of the uploader addon are in the field: one sends
// snake_case keys, the other camelCase. Payloads are normalized here, at the
// boundary, into one canonical UploadRequest so nothing downstream has to
// know two spellings exist.

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Message)
}

type RosterEntry struct {
	Class     string `json:"class"`
	Level     int    `json:"lvl"`
	RankName  string `json:"rankName"`
	RankIndex int    `json:"rankIndex"`
}

type SnapshotSample struct {
	TS          int64 `json:"ts"`
	OnlineCount int   `json:"onlineCount"`
}

// ChatEntry fields are pointers: an absent field must not overwrite what is
// already stored.
type ChatEntry struct {
	RankName      *string `json:"rankName"`
	RankIndex     *int    `json:"rankIndex"`
	Total         *int    `json:"total"`
	Today         *int    `json:"today"`
	LastSeen      *string `json:"lastSeen"`
	LastSeenTS    *int64  `json:"lastSeenTS"`
	LastMessage   *string `json:"lastMessage"`
	LastMessageTS *int64  `json:"lastMessageTS"`
}

// UploadRequest is the canonical, normalized upload payload.
type UploadRequest struct {
	// RosterMode is one of "no_change", "delta", "full"; HasRosterMode is
	// false for legacy uploaders that predate the field entirely.
	RosterMode    string
	HasRosterMode bool

	SessionPhase string // "start", "chunk", "final", or "" for single-shot
	SessionID    string
	BatchIndex   *int
	IsFinalBatch bool

	ConfirmRemovals bool
	BaseRosterHash  string
	AddUpdateOnly   bool

	MasterRoster   map[string]RosterEntry
	RemovedMembers []string

	Snapshots    []SnapshotSample
	ChatActivity map[string]ChatEntry
}

// rawUpload accepts both key spellings side by side.
type rawUpload struct {
	RosterMode      *string `json:"roster_mode"`
	RosterModeC     *string `json:"rosterMode"`
	SessionPhase    *string `json:"session_phase"`
	SessionPhaseC   *string `json:"sessionPhase"`
	SessionID       *string `json:"session_id"`
	SessionIDC      *string `json:"sessionId"`
	BatchIndex      *int    `json:"batch_index"`
	BatchIndexC     *int    `json:"batchIndex"`
	IsFinalBatch    *bool   `json:"is_final_batch"`
	IsFinalBatchC   *bool   `json:"isFinalBatch"`
	ConfirmRemovals *bool   `json:"confirm_removals"`
	ConfirmRemovalC *bool   `json:"confirmRemovals"`
	BaseRosterHash  *string `json:"base_roster_hash"`
	BaseRosterHashC *string `json:"baseRosterHash"`
	AddUpdateOnly   *bool   `json:"add_update_only"`
	AddUpdateOnlyC  *bool   `json:"addUpdateOnly"`

	MasterRoster    map[string]RosterEntry `json:"master_roster"`
	MasterRosterC   map[string]RosterEntry `json:"masterRoster"`
	RemovedMembers  []string               `json:"removed_members"`
	RemovedMembersC []string               `json:"removedMembers"`

	Snapshots []SnapshotSample     `json:"stats"`
	ChatData  map[string]ChatEntry `json:"data"`
}

// ParseUploadRequest decodes and normalizes an upload payload body.
func ParseUploadRequest(body []byte) (*UploadRequest, error) {
	var raw rawUpload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ValidationError{Field: "body", Message: "malformed JSON: " + err.Error()}
	}

	req := &UploadRequest{
		SessionPhase:    pickString(raw.SessionPhase, raw.SessionPhaseC),
		SessionID:       pickString(raw.SessionID, raw.SessionIDC),
		IsFinalBatch:    pickBool(raw.IsFinalBatch, raw.IsFinalBatchC),
		ConfirmRemovals: pickBool(raw.ConfirmRemovals, raw.ConfirmRemovalC),
		BaseRosterHash:  pickString(raw.BaseRosterHash, raw.BaseRosterHashC),
		AddUpdateOnly:   pickBool(raw.AddUpdateOnly, raw.AddUpdateOnlyC),
		Snapshots:       raw.Snapshots,
		ChatActivity:    raw.ChatData,
	}

	if raw.RosterMode != nil || raw.RosterModeC != nil {
		req.HasRosterMode = true
		req.RosterMode = pickString(raw.RosterMode, raw.RosterModeC)
	}
	if raw.BatchIndex != nil {
		req.BatchIndex = raw.BatchIndex
	} else if raw.BatchIndexC != nil {
		req.BatchIndex = raw.BatchIndexC
	}
	req.MasterRoster = raw.MasterRoster
	if req.MasterRoster == nil {
		req.MasterRoster = raw.MasterRosterC
	}
	req.RemovedMembers = raw.RemovedMembers
	if req.RemovedMembers == nil {
		req.RemovedMembers = raw.RemovedMembersC
	}

	if err := req.validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *UploadRequest) validate() error {
	if r.HasRosterMode {
		switch r.RosterMode {
		case RosterModeNoChange, RosterModeDelta, RosterModeFull:
		default:
			return &ValidationError{Field: "roster_mode", Message: "must be no_change, delta, or full"}
		}
	}
	switch r.SessionPhase {
	case "", PhaseStart, PhaseChunk, PhaseFinal:
	default:
		return &ValidationError{Field: "session_phase", Message: "must be start, chunk, or final"}
	}
	if r.SessionPhase != "" && !r.HasRosterMode {
		return &ValidationError{Field: "session_phase", Message: "batched sessions require roster_mode"}
	}
	if r.SessionPhase != "" && r.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "required for batched uploads"}
	}
	if r.BatchIndex != nil && *r.BatchIndex < 0 {
		return &ValidationError{Field: "batch_index", Message: "must not be negative"}
	}
	for key := range r.MasterRoster {
		if key == "" {
			return &ValidationError{Field: "master_roster", Message: "empty member key"}
		}
	}
	return nil
}

func pickString(snake, camel *string) string {
	if snake != nil {
		return *snake
	}
	if camel != nil {
		return *camel
	}
	return ""
}

func pickBool(snake, camel *bool) bool {
	if snake != nil {
		return *snake
	}
	if camel != nil {
		return *camel
	}
	return false
}
