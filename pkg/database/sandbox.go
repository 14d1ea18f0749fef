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

// SaveSandboxRun implements pkg/queue.Store: upserts a SandboxRun's final
// state (running, completed with a result, or failed), never touching the
// evaluations table (sandbox runs never persist an
// Evaluation).
func (c *Client) SaveSandboxRun(ctx context.Context, run *models.SandboxRun) error {
	inputTranscript, err:= json.Marshal(run.InputTranscript)
	if err != nil {
		return fmt.Errorf("marshal input transcript: %w", err)
	}
	result, err:= json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal sandbox result: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO sandbox_runs (id, company_id, blueprint_id, status, input_transcript, result, failure_reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		status = $4, input_transcript = $5, result = $6, failure_reason = $7`,
		run.ID, run.CompanyID, run.BlueprintID, run.Status, inputTranscript, result, run.FailureReason, run.CreatedAt, run.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert sandbox run: %w", err)
	}
	return nil
}

// GetSandboxRun loads a SandboxRun by id, for polling an async sandbox
// task's result.
func (c *Client) GetSandboxRun(ctx context.Context, id string) (*models.SandboxRun, error) {
	row:= c.db.QueryRowContext(ctx, `
		SELECT id, company_id, blueprint_id, status, input_transcript, result, failure_reason, created_at, expires_at
		FROM sandbox_runs WHERE id = $1`, id)

		var run models.SandboxRun
		var inputTranscript, result sql.NullString
		err:= row.Scan(&run.ID, &run.CompanyID, &run.BlueprintID, &run.Status, &inputTranscript, &result,
			&run.FailureReason, &run.CreatedAt, &run.ExpiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("scan sandbox run: %w", err)
		}
		if inputTranscript.Valid {
			if err:= json.Unmarshal([]byte(inputTranscript.String), &run.InputTranscript); err != nil {
				return nil, fmt.Errorf("unmarshal input transcript: %w", err)
			}
		}
		if result.Valid {
			if err:= json.Unmarshal([]byte(result.String), &run.Result); err != nil {
				return nil, fmt.Errorf("unmarshal sandbox result: %w", err)
			}
		}
		return &run, nil
	}
