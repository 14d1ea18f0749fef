package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/models"
)

// CreateRecording inserts a newly-uploaded Recording in status "queued".
func (c *Client) CreateRecording(ctx context.Context, r *models.Recording) error {
	_, err:= c.db.ExecContext(ctx, `
		INSERT INTO recordings (id, company_id, object_key, original_name, duration_secs, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.CompanyID, r.ObjectKey, r.OriginalName, r.DurationSecs, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// GetRecording implements pkg/pipeline.Store and pkg/queue.Store.
func (c *Client) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	row:= c.db.QueryRowContext(ctx, `
		SELECT id, company_id, object_key, original_name, duration_secs, status, transcript_id, failure_reason, created_at, updated_at
		FROM recordings WHERE id = $1`, id)

		var r models.Recording
		var transcriptID sql.NullString
		err:= row.Scan(&r.ID, &r.CompanyID, &r.ObjectKey, &r.OriginalName, &r.DurationSecs, &r.Status,
			&transcriptID, &r.FailureReason, &r.CreatedAt, &r.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		if transcriptID.Valid {
			r.TranscriptID = &transcriptID.String
		}
		return &r, nil
	}

	// UpdateRecordingStatus implements pkg/pipeline.Store: transitions a
	// Recording's ingestion state, recording a failure reason on terminal
	// failure (queued -> processing -> completed|failed machine).
	func (c *Client) UpdateRecordingStatus(ctx context.Context, recordingID string, status models.RecordingStatus, failureReason string) error {
		res, err:= c.db.ExecContext(ctx, `
			UPDATE recordings SET status = $2, failure_reason = $3, updated_at = now() WHERE id = $1`,
			recordingID, status, failureReason,
		)
		if err != nil {
			return fmt.Errorf("update recording status: %w", err)
		}
		return requireRowsAffected(res)
	}

	// SetRecordingTranscript links a completed transcript back onto its
	// Recording, used alongside SaveTranscript once ASR succeeds.
	func (c *Client) SetRecordingTranscript(ctx context.Context, recordingID, transcriptID string) error {
		res, err:= c.db.ExecContext(ctx, `
			UPDATE recordings SET transcript_id = $2, updated_at = now() WHERE id = $1`,
			recordingID, transcriptID,
		)
		if err != nil {
			return fmt.Errorf("set recording transcript: %w", err)
		}
		return requireRowsAffected(res)
	}
