package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/blueprint"
	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/pipeline"
)

// Store is the persistence surface the task handlers need, composed from
// the narrower collaborator interfaces pkg/blueprint and pkg/pipeline
// already define plus the sandbox-run bookkeeping this package owns.
type Store interface {
	blueprint.Store
	pipeline.Store

	GetBlueprintVersion(ctx context.Context, blueprintVersionID string) (*models.BlueprintVersion, error)
	SaveSandboxRun(ctx context.Context, run *models.SandboxRun) error
}

// CompileTaskPayload is the body of `POST /tasks/compile-blueprint`.
type CompileTaskPayload struct {
	BlueprintID string `json:"blueprint_id"`
	BlueprintVersionID string `json:"blueprint_version_id"`
	CompileOptions blueprint.ValidationOptions `json:"compile_options"`
	UserID string `json:"user_id"`
}

// EvaluateTaskPayload is the body of `POST /tasks/process-recording`.
type EvaluateTaskPayload struct {
	CompanyID string `json:"company_id"`
	RecordingID string `json:"recording_id"`
	BlueprintID string `json:"blueprint_id"`
}

// SandboxTaskPayload is the body of `POST /tasks/sandbox-evaluate`.
type SandboxTaskPayload struct {
	SandboxRunID string `json:"sandbox_run_id"`
	CompanyID string `json:"company_id"`
	BlueprintID string `json:"blueprint_id"`
	RecordingID *string `json:"recording_id,omitempty"`
	Transcript *models.Transcript `json:"transcript,omitempty"`
}

// CompileHandler builds the `compile-blueprint` task handler, shared
// verbatim between the background queue dispatch path and the
// publish-then-sandbox synchronous path.
func CompileHandler(store Store) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload CompileTaskPayload
		if err:= json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("unmarshal compile task payload: %w", err)
		}

		version, err:= store.GetBlueprintVersion(ctx, payload.BlueprintVersionID)
		if err != nil {
			return fmt.Errorf("load blueprint version %s: %w", payload.BlueprintVersionID, err)
		}

		result, err:= blueprint.Compile(ctx, store, &version.Snapshot, payload.BlueprintVersionID, version.VersionNumber, payload.CompileOptions)
		if err != nil {
			return err
		}
		if !result.Success {
			return apperrors.NewCompilationError(result.Errors...)
		}
		return nil
	}
}

// EvaluateHandler builds the `process-recording` task handler: it is a
// thin adapter over pkg/pipeline.Pipeline.Run.
func EvaluateHandler(p *pipeline.Pipeline) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload EvaluateTaskPayload
		if err:= json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("unmarshal evaluate task payload: %w", err)
		}

		_, err:= p.Run(ctx, pipeline.Request{
				CompanyID: payload.CompanyID,
				RecordingID: payload.RecordingID,
				BlueprintID: payload.BlueprintID,
		})
		return err
	}
}

// SandboxHandler builds the `sandbox-evaluate` task handler: resolves a
// transcript (supplied directly, or via the recording's existing
// transcript/ASR), compiles the blueprint synchronously if it has no
// compiled flow yet, runs C11 steps 3-6 through Pipeline.Sandbox, and
// persists only the SandboxRun/SandboxResult — never an Evaluation.
func SandboxHandler(store Store, p *pipeline.Pipeline) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload SandboxTaskPayload
		if err:= json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("unmarshal sandbox task payload: %w", err)
		}

		run:= &models.SandboxRun{
			ID: payload.SandboxRunID,
			CompanyID: payload.CompanyID,
			BlueprintID: payload.BlueprintID,
			Status: models.SandboxRunStatusRunning,
			CreatedAt: time.Now(),
		}

		bp, err:= store.GetBlueprint(ctx, payload.BlueprintID)
		if err != nil {
			return failSandbox(ctx, store, run, fmt.Errorf("load blueprint: %w", err))
		}

		flow, err:= resolveCompiledFlow(ctx, store, bp)
		if err != nil {
			return failSandbox(ctx, store, run, err)
		}

		transcript, err:= resolveSandboxTranscript(ctx, store, p, payload)
		if err != nil {
			return failSandbox(ctx, store, run, err)
		}
		run.InputTranscript = transcript

		result:= p.Sandbox(ctx, flow, transcript)
		run.Result = result
		run.Status = models.SandboxRunStatusCompleted

		if err:= store.SaveSandboxRun(ctx, run); err != nil {
			return fmt.Errorf("persist sandbox run: %w", err)
		}
		return nil
	}
}

// resolveCompiledFlow returns the Blueprint's compiled flow, compiling it
// synchronously first if it has none ("if the referenced
// Blueprint lacks a compiled flow, the handler triggers compilation
// synchronously before evaluation").
func resolveCompiledFlow(ctx context.Context, store Store, bp *models.Blueprint) (*models.CompiledFlowVersion, error) {
	if bp.CompiledFlowVersionID != nil {
		return store.GetCompiledFlowVersion(ctx, *bp.CompiledFlowVersionID)
	}

	flow:= blueprint.Map(bp, bp.VersionNumber, time.Now().UTC())
	if flow.RubricTemplate != nil {
		flow.RubricTemplate.PassThreshold = 70
	}
	return flow, nil
}

// resolveSandboxTranscript honors a caller-supplied transcript first,
// then falls back to an existing recording's transcript (or ASR, if the
// recording has none yet).
func resolveSandboxTranscript(ctx context.Context, store Store, p *pipeline.Pipeline, payload SandboxTaskPayload) (*models.Transcript, error) {
	if payload.Transcript != nil {
		return payload.Transcript, nil
	}
	if payload.RecordingID == nil {
		return nil, fmt.Errorf("sandbox run requires either a transcript or a recording_id")
	}

	recording, err:= store.GetRecording(ctx, *payload.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", *payload.RecordingID, err)
	}
	if recording.TranscriptID != nil {
		return store.GetTranscript(ctx, *recording.TranscriptID)
	}
	if p.ASR == nil {
		return nil, apperrors.NewTranscriptionError(recording.ID, fmt.Errorf("no ASR provider configured"))
	}
	return p.ASR.Transcribe(ctx, recording)
}

func failSandbox(ctx context.Context, store Store, run *models.SandboxRun, cause error) error {
	run.Status = models.SandboxRunStatusFailed
	run.FailureReason = apperrors.Truncate(cause.Error())
	_ = store.SaveSandboxRun(ctx, run)
	return cause
}
