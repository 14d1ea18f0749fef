package blueprint

import (
	"context"
	"time"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/models"
)

// Store is the persistence collaborator the Compiler needs: atomic
// publish of a compiled flow version plus lookup of an already-compiled
// version for idempotent recompilation ("the compiler is
// idempotent when invoked with the same BlueprintVersion id").
type Store interface {
	// CompiledFlowVersionForBlueprintVersion returns the existing compiled
	// flow version id for a blueprint version, if one was already
	// persisted.
	CompiledFlowVersionForBlueprintVersion(ctx context.Context, blueprintVersionID string) (string, bool, error)

	// PersistCompiledFlowVersion writes flow, its stages/steps/rules/
	// rubric, and updates the owning Blueprint + BlueprintVersion to
	// reference it, all within a single transaction.
	PersistCompiledFlowVersion(ctx context.Context, bp *models.Blueprint, blueprintVersionID string, flow *models.CompiledFlowVersion) error
}

// Result is the Compiler's output contract ("(success,
// compiled_flow_version_id, errors, warnings)").
type Result struct {
	Success bool
	CompiledFlowVersionID string
	Errors []apperrors.FieldError
	Warnings []apperrors.FieldError
}

// Compile orchestrates validation, mapping, and atomic persistence. It
// never mutates bp in place beyond weight normalization when
// requested.
func Compile(ctx context.Context, store Store, bp *models.Blueprint, blueprintVersionID string, versionNumber int, opts ValidationOptions) (Result, error) {
	if existingID, found, err:= store.CompiledFlowVersionForBlueprintVersion(ctx, blueprintVersionID); err != nil {
		return Result{}, apperrors.NewInternalError(err)
	} else if found {
		return Result{Success: true, CompiledFlowVersionID: existingID}, nil
	}

	validation:= Validate(bp, opts)
	if !validation.OK() {
		return Result{Errors: validation.Errors, Warnings: validation.Warnings}, nil
	}

	if opts.ForceNormalizeWeights {
		NormalizeWeights(bp)
	}

	flow:= Map(bp, versionNumber, time.Now().UTC())
	flow.BlueprintVersionID = blueprintVersionID
	if flow.RubricTemplate != nil {
		flow.RubricTemplate.PassThreshold = 70
	}

	if err:= store.PersistCompiledFlowVersion(ctx, bp, blueprintVersionID, flow); err != nil {
		return Result{
			Errors: []apperrors.FieldError{{Field: "persistence", Message: err.Error()}},
		}, apperrors.NewCompilationError(apperrors.FieldError{Field: "persistence", Message: err.Error()})
	}

	return Result{
		Success: true,
		CompiledFlowVersionID: flow.ID,
		Warnings: validation.Warnings,
	}, nil
}
