package api

import (
	"github.com/calliq/qaengine/pkg/blueprint"
	"github.com/calliq/qaengine/pkg/models"
)

// CreateBlueprintRequest is the body of `POST /blueprints`.
type CreateBlueprintRequest struct {
	Name string `json:"name" binding:"required"`
	Description string `json:"description"`
	Stages []*models.Stage `json:"stages"`
}

// UpdateBlueprintRequest is the body of `PUT /blueprints/:id`. Only draft
// blueprints accept edits (authoring state machine).
type UpdateBlueprintRequest struct {
	Name string `json:"name" binding:"required"`
	Description string `json:"description"`
	Stages []*models.Stage `json:"stages"`
}

// PublishBlueprintRequest is the body of `POST /blueprints/:id/publish`.
type PublishBlueprintRequest struct {
	ForceNormalizeWeights bool `json:"force_normalize_weights"`
	PublishNote string `json:"publish_note"`
	CompilerOptions blueprint.ValidationOptions `json:"compiler_options"`
}

// EvaluateRequest is the body of `POST /recordings/:id/evaluate`.
type EvaluateRequest struct {
	BlueprintID string `json:"blueprint_id" binding:"required"`
}

// SandboxEvaluateRequest is the body of `POST /blueprints/:id/sandbox-evaluate`.
type SandboxEvaluateRequest struct {
	Mode string `json:"mode" binding:"required,oneof=sync async"`
	Input SandboxEvaluateInput `json:"input"`
}

// SandboxEvaluateInput carries exactly one of the two supported ad hoc
// inputs ("input: { transcript? | recording_id? }").
type SandboxEvaluateInput struct {
	Transcript *models.Transcript `json:"transcript,omitempty"`
	RecordingID *string `json:"recording_id,omitempty"`
}
