package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guild-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type UploaderRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewUploaderRepository(sqlDB *sql.DB, logger zerolog.Logger) *UploaderRepository {
	return &UploaderRepository{db: sqlDB, logger: logger}
}

// Get returns the status row for an uploader identity, creating a fresh idle
// row on first sight.
func (r *UploaderRepository) Get(ctx context.Context, uploaderID string) (*domain.UploaderStatus, error) {
	status, err := r.get(ctx, uploaderID)
	if errors.Is(err, sql.ErrNoRows) {
		status = &domain.UploaderStatus{
			UploaderID:     uploaderID,
			State:          domain.UploaderIdle,
			LastBatchIndex: -1,
		}
		if err := r.Save(ctx, status); err != nil {
			return nil, err
		}
		return status, nil
	}
	return status, err
}

func (r *UploaderRepository) get(ctx context.Context, uploaderID string) (*domain.UploaderStatus, error) {
	var s domain.UploaderStatus
	var state string
	err := r.db.QueryRowContext(ctx, `
		SELECT uploader_id, state, session_id, last_batch_index, expected_index,
			received_index, last_error, last_heartbeat_at, last_completed_at, updated_at
		FROM uploader_status WHERE uploader_id = ?`, uploaderID).Scan(
		&s.UploaderID, &state, &s.SessionID, &s.LastBatchIndex, &s.ExpectedIndex,
		&s.ReceivedIndex, &s.LastError, &s.LastHeartbeatAt, &s.LastCompletedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.State = domain.UploaderState(state)
	return &s, nil
}

func (r *UploaderRepository) Save(ctx context.Context, s *domain.UploaderStatus) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploader_status (uploader_id, state, session_id, last_batch_index,
			expected_index, received_index, last_error, last_heartbeat_at, last_completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uploader_id) DO UPDATE SET
			state = excluded.state,
			session_id = excluded.session_id,
			last_batch_index = excluded.last_batch_index,
			expected_index = excluded.expected_index,
			received_index = excluded.received_index,
			last_error = excluded.last_error,
			last_heartbeat_at = excluded.last_heartbeat_at,
			last_completed_at = excluded.last_completed_at,
			updated_at = excluded.updated_at`,
		s.UploaderID, string(s.State), s.SessionID, s.LastBatchIndex,
		s.ExpectedIndex, s.ReceivedIndex, s.LastError,
		s.LastHeartbeatAt.UTC(), s.LastCompletedAt.UTC(), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save uploader status %s: %w", s.UploaderID, err)
	}
	return nil
}

func (r *UploaderRepository) List(ctx context.Context) ([]domain.UploaderStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uploader_id, state, session_id, last_batch_index, expected_index,
			received_index, last_error, last_heartbeat_at, last_completed_at, updated_at
		FROM uploader_status ORDER BY uploader_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploader status: %w", err)
	}
	defer rows.Close()

	var statuses []domain.UploaderStatus
	for rows.Next() {
		var s domain.UploaderStatus
		var state string
		if err := rows.Scan(&s.UploaderID, &state, &s.SessionID, &s.LastBatchIndex,
			&s.ExpectedIndex, &s.ReceivedIndex, &s.LastError,
			&s.LastHeartbeatAt, &s.LastCompletedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan uploader status: %w", err)
		}
		s.State = domain.UploaderState(state)
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}
