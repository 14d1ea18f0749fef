package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/queue"
)

// sandboxEvaluate handles POST /blueprints/:id/sandbox-evaluate.
// Sync mode invokes the same sandbox-evaluate task handler function
// in-process and waits for it to finish ("task handlers are
// the same function invoked in-process for synchronous flows"); async
// mode enqueues it onto the background queue and returns immediately. An
// optional Idempotency-Key header dedupes client retries; absent one, the
// freshly generated run id is used, which is unique per request by
// construction.
func (s *Server) sandboxEvaluate(c *gin.Context) {
	var req SandboxEvaluateRequest
	if err:= c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Input.Transcript == nil && req.Input.RecordingID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input must supply either a transcript or a recording_id"})
		return
	}

	ctx:= c.Request.Context()
	runID:= models.NewID()
	payload:= queue.SandboxTaskPayload{
		SandboxRunID: runID,
		CompanyID: extractCompanyID(c),
		BlueprintID: c.Param("id"),
		RecordingID: req.Input.RecordingID,
		Transcript: req.Input.Transcript,
	}

	idempotencyKey:= c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = queue.SandboxIdempotencyKey(runID)
	}

	if req.Mode == "async" {
		if _, _, err:= s.queue.Enqueue(ctx, queue.TaskKindSandboxEvaluate, payload, idempotencyKey, 0); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, SandboxEvaluateResponse{RunID: runID, Status: string(models.SandboxRunStatusPending)})
		return
	}

	raw, err:= json.Marshal(payload)
	if err != nil {
		writeError(c, err)
		return
	}
	if err:= s.sandboxHandler(ctx, raw); err != nil {
		writeError(c, err)
		return
	}

	run, err:= s.store.GetSandboxRun(ctx, runID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SandboxEvaluateResponse{RunID: run.ID, Status: string(run.Status)})
}

// getSandboxRun handles GET /blueprints/:id/sandbox-runs/:run_id:
// `{ status, result? }`.
func (s *Server) getSandboxRun(c *gin.Context) {
	run, err:= s.store.GetSandboxRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SandboxRunResponse{Status: string(run.Status), Result: run.Result})
}
