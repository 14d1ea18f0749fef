package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/queue"
)

// evaluateRecording handles POST /recordings/:id/evaluate:
// `{ evaluation_id, status }`. A recording may be evaluated at most once
//, so this checks for an existing Evaluation before enqueuing
// rather than pre-creating a pending row itself — pipeline.Pipeline.Run
// treats a pre-existing pending/running Evaluation as "already in
// progress" and would otherwise reject its own about-to-run task. When no
// Evaluation exists yet, the task is enqueued under
// queue.EvaluateIdempotencyKey(recording_id) and evaluation_id comes back
// empty: Pipeline.Run mints the Evaluation's id itself once it actually
// runs, so the caller polls GET /evaluations/{recording_id} rather than
// by evaluation id.
func (s *Server) evaluateRecording(c *gin.Context) {
	var req EvaluateRequest
	if err:= c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx:= c.Request.Context()
	recordingID:= c.Param("id")

	existing, err:= s.store.GetEvaluationByRecording(ctx, recordingID)
	if err != nil && !apperrors.IsNotFound(err) {
		writeError(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, EvaluateResponse{EvaluationID: existing.ID, Status: string(existing.Status)})
		return
	}

	payload:= queue.EvaluateTaskPayload{
		CompanyID: extractCompanyID(c),
		RecordingID: recordingID,
		BlueprintID: req.BlueprintID,
	}
	if _, _, err:= s.queue.Enqueue(ctx, queue.TaskKindEvaluateRecording, payload,
		queue.EvaluateIdempotencyKey(recordingID), 0); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, EvaluateResponse{Status: "queued"})
}

// getEvaluationByRecording handles GET /evaluations/:recording_id:
// the full structured Evaluation document.
func (s *Server) getEvaluationByRecording(c *gin.Context) {
	evaluation, err:= s.store.GetEvaluationByRecording(c.Request.Context(), c.Param("recording_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEvaluationResponse(evaluation))
}
