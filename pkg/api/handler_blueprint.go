package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/blueprint"
	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/queue"
)

// createBlueprint handles POST /blueprints: a new draft Blueprint (the
// authoring state machine starts at "draft").
func (s *Server) createBlueprint(c *gin.Context) {
	var req CreateBlueprintRequest
	if err:= c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now:= time.Now().UTC()
	bp:= &models.Blueprint{
		ID: models.NewID(),
		CompanyID: extractCompanyID(c),
		Name: req.Name,
		Description: req.Description,
		Status: models.BlueprintStatusDraft,
		VersionNumber: 1,
		Stages: req.Stages,
		CreatedBy: extractAuthor(c),
		CreatedAt: now,
		UpdatedAt: now,
	}
	assignIDs(bp)

	if err:= s.store.CreateBlueprint(c.Request.Context(), bp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bp)
}

// listBlueprints handles GET /blueprints?include_archived=true.
func (s *Server) listBlueprints(c *gin.Context) {
	includeArchived, _:= strconv.ParseBool(c.Query("include_archived"))

	blueprints, err:= s.store.ListBlueprints(c.Request.Context(), extractCompanyID(c), includeArchived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blueprints": blueprints})
}

// getBlueprint handles GET /blueprints/:id.
func (s *Server) getBlueprint(c *gin.Context) {
	bp, err:= s.store.GetBlueprint(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bp)
}

// updateBlueprint handles PUT /blueprints/:id. Only draft blueprints
// accept edits; publishing freezes an immutable snapshot.
func (s *Server) updateBlueprint(c *gin.Context) {
	var req UpdateBlueprintRequest
	if err:= c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx:= c.Request.Context()
	bp, err:= s.store.GetBlueprint(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if bp.Status != models.BlueprintStatusDraft {
		writeError(c, apperrors.NewPreconditionError("only a draft blueprint can be edited"))
		return
	}

	bp.Name = req.Name
	bp.Description = req.Description
	bp.Stages = req.Stages
	assignIDs(bp)

	if err:= s.store.UpdateBlueprint(ctx, bp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bp)
}

// archiveBlueprint handles DELETE /blueprints/:id: blueprints are never
// hard-deleted once they may have compiled artifacts or evaluations
// referencing them, so archive is the terminal state either draft or
// published can move to ( state machine).
func (s *Server) archiveBlueprint(c *gin.Context) {
	ctx:= c.Request.Context()
	bp, err:= s.store.GetBlueprint(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	bp.Status = models.BlueprintStatusArchived
	if err:= s.store.UpdateBlueprint(ctx, bp); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// publishBlueprint handles POST /blueprints/:id/publish:
// freezes a BlueprintVersion snapshot, then enqueues the compile task
// under the idempotency key the background handler and the synchronous
// path share.
func (s *Server) publishBlueprint(c *gin.Context) {
	var req PublishBlueprintRequest
	if err:= c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx:= c.Request.Context()
	bp, err:= s.store.GetBlueprint(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if bp.Status != models.BlueprintStatusDraft {
		writeError(c, apperrors.NewPreconditionError("only a draft blueprint can be published"))
		return
	}

	version:= &models.BlueprintVersion{
		ID: models.NewID(),
		BlueprintID: bp.ID,
		VersionNumber: bp.VersionNumber,
		Snapshot: *bp,
		PublishedBy: extractAuthor(c),
		PublishNote: req.PublishNote,
		CreatedAt: time.Now().UTC(),
	}

	bp.Status = models.BlueprintStatusPublished
	bp.VersionNumber++
	bp.UpdatedAt = time.Now().UTC()

	if err:= s.store.PublishBlueprint(ctx, bp, version); err != nil {
		writeError(c, err)
		return
	}

	payload:= queue.CompileTaskPayload{
		BlueprintID: bp.ID,
		BlueprintVersionID: version.ID,
		CompileOptions: blueprint.ValidationOptions{
			ForceNormalizeWeights: req.ForceNormalizeWeights,
		},
		UserID: extractAuthor(c),
	}

	if _, _, err:= s.queue.Enqueue(ctx, queue.TaskKindCompileBlueprint, payload,
		queue.CompileIdempotencyKey(version.ID), 0); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, PublishResponse{
			JobID: version.ID,
			Status: "queued",
			Links: map[string]string{
				"status": "/blueprints/" + bp.ID + "/publish-status/" + version.ID,
			},
	})
}

// publishStatus handles GET /blueprints/:id/publish-status/:job_id. job_id
// is the BlueprintVersion id minted by publishBlueprint; status is
// derived from whether that version now references a compiled flow (see
// PublishStatusResponse's doc comment for why this is approximate).
func (s *Server) publishStatus(c *gin.Context) {
	version, err:= s.store.GetBlueprintVersion(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	status:= "queued"
	if version.CompiledFlowVersionID != nil {
		status = "succeeded"
	}
	c.JSON(http.StatusOK, PublishStatusResponse{
			JobID: version.ID,
			Status: status,
			CompiledFlowVersionID: version.CompiledFlowVersionID,
	})
}

// assignIDs fills in Stage/Behavior ids and back-references left blank by
// the author-facing request body. The Blueprint Mapper (C5) reads
// stage.ID and behavior.ID as source references rather than generating
// them itself, so they must already be set before a Blueprint
// is ever compiled.
func assignIDs(bp *models.Blueprint) {
	for _, stage:= range bp.Stages {
		if stage.ID == "" {
			stage.ID = models.NewID()
		}
		stage.BlueprintID = bp.ID
		for _, b:= range stage.Behaviors {
			if b.ID == "" {
				b.ID = models.NewID()
			}
			b.StageID = stage.ID
		}
	}
}
