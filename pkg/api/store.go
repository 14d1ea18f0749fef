// Package api exposes the JSON-over-HTTP surface: blueprint authoring
// and publish, evaluation submission, sandbox runs, and the internal
// task-handler endpoints the queue dispatches onto. Built on gin
// middleware and routing throughout.
package api

import (
	"context"

	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/queue"
)

// Store is the persistence surface the HTTP layer needs: the task
// handlers' Store (blueprint + pipeline + sandbox bookkeeping) plus the
// author-facing CRUD and publish operations. Implemented by
// pkg/database.Client.
type Store interface {
	queue.Store

	CreateBlueprint(ctx context.Context, bp *models.Blueprint) error
	UpdateBlueprint(ctx context.Context, bp *models.Blueprint) error
	ListBlueprints(ctx context.Context, companyID string, includeArchived bool) ([]*models.Blueprint, error)
	PublishBlueprint(ctx context.Context, bp *models.Blueprint, version *models.BlueprintVersion) error
	GetSandboxRun(ctx context.Context, id string) (*models.SandboxRun, error)
	GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error)
}
