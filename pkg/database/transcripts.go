package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/models"
)

// GetTranscript implements pkg/pipeline.Store.
func (c *Client) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	row:= c.db.QueryRowContext(ctx, `
		SELECT id, recording_id, segments, duration_secs, language, redacted, normalized_at
		FROM transcripts WHERE id = $1`, id)

		var t models.Transcript
		var segments []byte
		err:= row.Scan(&t.ID, &t.RecordingID, &segments, &t.DurationSecs, &t.Language, &t.Redacted, &t.NormalizedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		if err:= json.Unmarshal(segments, &t.Segments); err != nil {
			return nil, fmt.Errorf("unmarshal segments: %w", err)
		}
		return &t, nil
	}

	// SaveTranscript implements pkg/pipeline.Store: upserts the normalized,
	// redacted transcript and links it back onto its
	// Recording in the same transaction.
	func (c *Client) SaveTranscript(ctx context.Context, t *models.Transcript) error {
		segments, err:= json.Marshal(t.Segments)
		if err != nil {
			return fmt.Errorf("marshal segments: %w", err)
		}

		tx, err:= c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin save transcript transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err:= tx.ExecContext(ctx, `
			INSERT INTO transcripts (id, recording_id, segments, duration_secs, language, redacted, normalized_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET segments = $3, duration_secs = $4, language = $5, redacted = $6, normalized_at = $7`,
			t.ID, t.RecordingID, segments, t.DurationSecs, t.Language, t.Redacted, t.NormalizedAt,
		); err != nil {
			return fmt.Errorf("upsert transcript: %w", err)
		}

		if _, err:= tx.ExecContext(ctx, `
			UPDATE recordings SET transcript_id = $2, updated_at = now() WHERE id = $1`,
			t.RecordingID, t.ID,
		); err != nil {
			return fmt.Errorf("link transcript to recording: %w", err)
		}

		return tx.Commit()
	}
