package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means no record matched the given key. For the open
	// path this is a logged miss, not an error.
	ErrNotFound = errors.New("tracking record not found")
	// ErrUpdate means the store rejected the operation.
	ErrUpdate = errors.New("tracking record update failed")
)

// TrackingStore implements tracking record persistence against PostgreSQL.
type TrackingStore struct{ db *sql.DB }

// NewTrackingStore creates a Postgres-backed tracking store.
func NewTrackingStore(db *sql.DB) *TrackingStore { return &TrackingStore{db: db} }

// RecordOpen applies the open event to the record matching trackingID as a
// single UPDATE: status, last-open context, history append and counter
// increment land atomically, so open_count always equals the history length.
func (s *TrackingStore) RecordOpen(ctx context.Context, trackingID string, ev OpenEvent) error {
	entry, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdate, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tracking_records
		SET status = $1,
		    open_count = open_count + 1,
		    last_opened = $2,
		    response_user_agent = $3,
		    response_ip = $4,
		    open_history = open_history || $5::jsonb,
		    updated_at = $2
		WHERE tracking_id = $6
	`, StatusOpened, ev.Timestamp, ev.UserAgent, ev.IP, entry, trackingID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUpdate, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdate, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Create inserts a fresh record with status sent and an empty history.
func (s *TrackingStore) Create(ctx context.Context, rec *TrackingRecord) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tracking_records
			(tracking_id, message_id, recipient, subject, body,
			 status, open_count, open_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, '[]'::jsonb, $7, $7)
		RETURNING id
	`, rec.TrackingID, rec.MessageID, rec.Recipient, rec.Subject, rec.Body,
		StatusSent, now).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("create tracking record: %w", err)
	}
	rec.Status = StatusSent
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// GetByTrackingID loads one record with its full open history.
func (s *TrackingStore) GetByTrackingID(ctx context.Context, trackingID string) (*TrackingRecord, error) {
	rec := &TrackingRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tracking_id, message_id, recipient, subject, body,
		       status, open_count, last_opened, response_user_agent,
		       response_ip, open_history, bounce_details, created_at, updated_at
		FROM tracking_records
		WHERE tracking_id = $1
	`, trackingID).Scan(
		&rec.ID, &rec.TrackingID, &rec.MessageID, &rec.Recipient, &rec.Subject,
		&rec.Body, &rec.Status, &rec.OpenCount, &rec.LastOpened,
		&rec.ResponseUserAgent, &rec.ResponseIP, &rec.OpenHistory,
		&rec.BounceDetails, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking record: %w", err)
	}
	return rec, nil
}

// List returns the most recent records, without bodies or histories.
func (s *TrackingStore) List(ctx context.Context, limit int) ([]TrackingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tracking_id, message_id, recipient, subject,
		       status, open_count, last_opened, created_at, updated_at
		FROM tracking_records
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tracking records: %w", err)
	}
	defer rows.Close()

	var recs []TrackingRecord
	for rows.Next() {
		var rec TrackingRecord
		if err := rows.Scan(
			&rec.ID, &rec.TrackingID, &rec.MessageID, &rec.Recipient,
			&rec.Subject, &rec.Status, &rec.OpenCount, &rec.LastOpened,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tracking record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tracking records: %w", err)
	}
	return recs, nil
}

// MarkBounced records a bounce against the record matching messageID.
func (s *TrackingStore) MarkBounced(ctx context.Context, messageID, details string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracking_records
		SET status = $1, bounce_details = $2, updated_at = $3
		WHERE message_id = $4
	`, StatusBounced, details, time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdate, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdate, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
