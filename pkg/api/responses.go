package api

import (
	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/models"
)

// BlueprintResponse is the wire shape for a single Blueprint.
type BlueprintResponse struct {
	*models.Blueprint
}

// PublishResponse is the body of `POST /blueprints/:id/publish`:
// `{ job_id, status, links }`. job_id is set to the new
// BlueprintVersion's id, since the compile task's idempotency key is
// already keyed on it (queue.CompileIdempotencyKey(blueprintVersionID)) —
// there is no separate task-status table, so publish-status polling
// resolves status from the BlueprintVersion itself rather than from a
// queue-assigned task id.
type PublishResponse struct {
	JobID string `json:"job_id"`
	Status string `json:"status"`
	Links map[string]string `json:"links"`
}

// PublishStatusResponse is the body of `GET /blueprints/:id/publish-status/:job_id`.
// Status is derived from whether the BlueprintVersion's compiled flow has
// been persisted yet: "succeeded" once set, "queued" otherwise. This
// cannot distinguish "still queued" from "failed validation" without a
// dedicated task-status table, which this scope does not warrant; a
// failed compile is instead visible through the blueprint's own status
// staying "draft" after a publish attempt.
type PublishStatusResponse struct {
	JobID string `json:"job_id"`
	Status string `json:"status"`
	CompiledFlowVersionID *string `json:"compiled_flow_version_id,omitempty"`
}

// EvaluateResponse is the body of `POST /recordings/:id/evaluate`:
// `{ evaluation_id, status }`.
type EvaluateResponse struct {
	EvaluationID string `json:"evaluation_id"`
	Status string `json:"status"`
}

// EvaluationResponse is the full structured Evaluation document (
// §6). The wire contract names overall_score, overall_passed,
// requires_human_review, and confidence_score as top-level fields
// alongside the three structured documents; the internal models.Evaluation
// nests those summary numbers inside Final, so this flattens them for the
// external response rather than changing the persisted shape.
type EvaluationResponse struct {
	EvaluationID string `json:"evaluation_id"`
	RecordingID string `json:"recording_id"`
	BlueprintID string `json:"blueprint_id"`
	CompiledFlowVersionID string `json:"compiled_flow_version_id"`
	Status string `json:"status"`

	OverallScore *float64 `json:"overall_score,omitempty"`
	OverallPassed *bool `json:"overall_passed,omitempty"`
	RequiresHumanReview *bool `json:"requires_human_review,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`

	DeterministicResults *models.DeterministicResults `json:"deterministic_results,omitempty"`
	LLMStageEvaluations []*models.LLMStageEvaluation `json:"llm_stage_evaluations,omitempty"`
	FinalEvaluation *models.FinalEvaluation `json:"final_evaluation,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
}

// newEvaluationResponse flattens an Evaluation into its wire shape.
func newEvaluationResponse(e *models.Evaluation) *EvaluationResponse {
	resp:= &EvaluationResponse{
		EvaluationID: e.ID,
		RecordingID: e.RecordingID,
		BlueprintID: e.BlueprintID,
		CompiledFlowVersionID: e.CompiledFlowVersionID,
		Status: string(e.Status),
		DeterministicResults: e.DeterministicResults,
		LLMStageEvaluations: e.LLMStageEvaluations,
		FinalEvaluation: e.Final,
		FailureReason: e.FailureReason,
	}
	if e.Final != nil {
		score:= e.Final.OverallScore
		passed:= e.Final.Passed
		confidence:= e.Final.Confidence
		reviewRequired:= e.Final.ReviewRoute != models.ReviewRouteNone
		resp.OverallScore = &score
		resp.OverallPassed = &passed
		resp.ConfidenceScore = &confidence
		resp.RequiresHumanReview = &reviewRequired
	}
	return resp
}

// SandboxEvaluateResponse is the body of `POST /blueprints/:id/sandbox-evaluate`.
type SandboxEvaluateResponse struct {
	RunID string `json:"run_id"`
	Status string `json:"status"`
}

// SandboxRunResponse is the body of `GET /blueprints/:id/sandbox-runs/:run_id`
//: `{ status, result? }`.
type SandboxRunResponse struct {
	Status string `json:"status"`
	Result *models.SandboxResult `json:"result,omitempty"`
}

// errorFields is retained so callers can format apperrors.CompilationError
// details consistently in error envelopes.
func errorFields(errs []apperrors.FieldError) []map[string]string {
	out:= make([]map[string]string, 0, len(errs))
	for _, e:= range errs {
		out = append(out, map[string]string{"field": e.Field, "message": e.Message})
	}
	return out
}
