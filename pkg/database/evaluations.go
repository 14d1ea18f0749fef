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

// GetEvaluationByRecording implements pkg/pipeline.Store: the pipeline
// checks for an existing Evaluation before re-running, since a recording
// may be evaluated at most once ( preconditions).
func (c *Client) GetEvaluationByRecording(ctx context.Context, recordingID string) (*models.Evaluation, error) {
	row:= c.db.QueryRowContext(ctx, `
		SELECT id, company_id, recording_id, transcript_id, compiled_flow_version_id, blueprint_id, status,
		deterministic_results, llm_stage_evaluations, final, failure_reason, created_at, updated_at, completed_at
		FROM evaluations WHERE recording_id = $1`, recordingID)
		return scanEvaluation(row)
	}

	// GetEvaluation loads an Evaluation by its own id.
	func (c *Client) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
		row:= c.db.QueryRowContext(ctx, `
			SELECT id, company_id, recording_id, transcript_id, compiled_flow_version_id, blueprint_id, status,
			deterministic_results, llm_stage_evaluations, final, failure_reason, created_at, updated_at, completed_at
			FROM evaluations WHERE id = $1`, id)
			return scanEvaluation(row)
		}

		func scanEvaluation(row *sql.Row) (*models.Evaluation, error) {
			var e models.Evaluation
			var deterministic, stageEvals, final sql.NullString
			err:= row.Scan(&e.ID, &e.CompanyID, &e.RecordingID, &e.TranscriptID, &e.CompiledFlowVersionID, &e.BlueprintID, &e.Status,
				&deterministic, &stageEvals, &final, &e.FailureReason, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apperrors.ErrNotFound
			}
			if err != nil {
				return nil, fmt.Errorf("scan evaluation: %w", err)
			}
			if deterministic.Valid {
				if err:= json.Unmarshal([]byte(deterministic.String), &e.DeterministicResults); err != nil {
					return nil, fmt.Errorf("unmarshal deterministic results: %w", err)
				}
			}
			if stageEvals.Valid {
				if err:= json.Unmarshal([]byte(stageEvals.String), &e.LLMStageEvaluations); err != nil {
					return nil, fmt.Errorf("unmarshal llm stage evaluations: %w", err)
				}
			}
			if final.Valid {
				if err:= json.Unmarshal([]byte(final.String), &e.Final); err != nil {
					return nil, fmt.Errorf("unmarshal final evaluation: %w", err)
				}
			}
			return &e, nil
		}

		// SaveEvaluation implements pkg/pipeline.Store: upserts the terminal
		// Evaluation document, one per recording.
		func (c *Client) SaveEvaluation(ctx context.Context, e *models.Evaluation) error {
			deterministic, err:= json.Marshal(e.DeterministicResults)
			if err != nil {
				return fmt.Errorf("marshal deterministic results: %w", err)
			}
			stageEvals, err:= json.Marshal(e.LLMStageEvaluations)
			if err != nil {
				return fmt.Errorf("marshal llm stage evaluations: %w", err)
			}
			final, err:= json.Marshal(e.Final)
			if err != nil {
				return fmt.Errorf("marshal final evaluation: %w", err)
			}

			_, err = c.db.ExecContext(ctx, `
				INSERT INTO evaluations (id, company_id, recording_id, transcript_id, compiled_flow_version_id, blueprint_id, status,
					deterministic_results, llm_stage_evaluations, final, failure_reason, created_at, updated_at, completed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				ON CONFLICT (recording_id) DO UPDATE SET
				status = $7, deterministic_results = $8, llm_stage_evaluations = $9, final = $10,
				failure_reason = $11, updated_at = $13, completed_at = $14`,
				e.ID, e.CompanyID, e.RecordingID, e.TranscriptID, e.CompiledFlowVersionID, e.BlueprintID, e.Status,
				deterministic, stageEvals, final, e.FailureReason, e.CreatedAt, e.UpdatedAt, e.CompletedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert evaluation: %w", err)
			}
			return nil
		}
