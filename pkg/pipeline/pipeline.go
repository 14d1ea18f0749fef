// Package pipeline implements the Evaluation Pipeline (C11): coordinates
// a single recording's evaluation across C1-C10 with idempotent state
// transitions.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/config"
	"github.com/calliq/qaengine/pkg/detection"
	"github.com/calliq/qaengine/pkg/llmeval"
	"github.com/calliq/qaengine/pkg/masking"
	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/rules"
	"github.com/calliq/qaengine/pkg/scoring"
	"github.com/calliq/qaengine/pkg/telemetry"
	"github.com/calliq/qaengine/pkg/transcript"
)

// Store is the persistence collaborator the pipeline needs. Implemented
// by pkg/database.
type Store interface {
	GetRecording(ctx context.Context, recordingID string) (*models.Recording, error)
	GetBlueprint(ctx context.Context, blueprintID string) (*models.Blueprint, error)
	GetCompiledFlowVersion(ctx context.Context, id string) (*models.CompiledFlowVersion, error)
	GetEvaluationByRecording(ctx context.Context, recordingID string) (*models.Evaluation, error)
	GetTranscript(ctx context.Context, transcriptID string) (*models.Transcript, error)
	SaveTranscript(ctx context.Context, t *models.Transcript) error
	SaveEvaluation(ctx context.Context, e *models.Evaluation) error
	UpdateRecordingStatus(ctx context.Context, recordingID string, status models.RecordingStatus, failureReason string) error
}

// ASRProvider transcribes a recording's audio ( §6).
type ASRProvider interface {
	Transcribe(ctx context.Context, recording *models.Recording) (*models.Transcript, error)
}

// Request identifies the evaluation to run and the tenant making the
// request ( "Preconditions").
type Request struct {
	CompanyID string
	RecordingID string
	BlueprintID string
}

// Pipeline wires the collaborators C11 orchestrates.
type Pipeline struct {
	Store Store
	ASR ASRProvider
	Embedder detection.Embedder
	LLM llmeval.Provider
	Masker *masking.Service

	// Defaults supplies the normalization thresholds ensureTranscript
	// passes to the Transcript Normalizer. Nil falls back to
	// transcript.DefaultOptions().
	Defaults *config.Defaults

	// Timeouts bounds the per-stage suspension points. Nil falls back to
	// config.DefaultStageTimeouts().
	Timeouts *config.StageTimeouts
}

// Run executes the full C11 contract for one recording and returns the
// persisted Evaluation.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.Evaluation, error) {
	recording, blueprint, flow, existing, err:= p.preconditions(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	evaluation:= &models.Evaluation{
		ID: models.NewID(),
		CompanyID: req.CompanyID,
		RecordingID: req.RecordingID,
		CompiledFlowVersionID: flow.ID,
		BlueprintID: blueprint.ID,
		Status: models.EvaluationStatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err:= p.Store.UpdateRecordingStatus(ctx, recording.ID, models.RecordingStatusProcessing, ""); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	transcriptTimer:= telemetry.NewTimer()
	transcript, err:= p.ensureTranscript(ctx, recording)
	transcriptTimer.RecordPipelineStage("transcription")
	if err != nil {
		p.fail(ctx, recording, evaluation, err)
		return nil, err
	}
	evaluation.TranscriptID = transcript.ID

	detectionTimer:= telemetry.NewTimer()
	detectionResult:= detection.Detect(ctx, p.Embedder, transcript.Segments, flow.Stages, detection.Options{})
	detectionTimer.RecordPipelineStage("detection")

	stepDetections:= make(map[string]*models.StepDetection, len(detectionResult.Steps))
	for _, d:= range detectionResult.Steps {
		stepDetections[d.StepID] = d
		if d.Detected {
			telemetry.RecordDetection(d.StepID)
		}
	}

	rulesTimer:= telemetry.NewTimer()
	ruleResults:= rules.Evaluate(flow.ComplianceRules, rules.Input{
			Segments: transcript.Segments,
			StepDetections: stepDetections,
	})
	rulesTimer.RecordPipelineStage("rules")
	for _, r:= range ruleResults {
		outcome:= "pass"
		if !r.Passed {
			outcome = "fail"
		}
		telemetry.RecordRuleEvaluation(outcome)
	}

	llmTimer:= telemetry.NewTimer()
	stageEvals:= p.runLLMStages(ctx, flow, transcript, ruleResults)
	llmTimer.RecordPipelineStage("llm_eval")

	scoringTimer:= telemetry.NewTimer()
	final:= scoring.Score(scoring.Input{
			Template: flow.RubricTemplate,
			StepDetections: stepDetections,
			RuleResults: ruleResults,
			StageEvals: stageEvals,
			ASRConfidence: averageASRConfidence(transcript.Segments),
	})
	scoringTimer.RecordPipelineStage("scoring")

	evaluation.DeterministicResults = &models.DeterministicResults{
		StepDetections: detectionResult.Steps,
		RuleResults: ruleResults,
	}
	evaluation.LLMStageEvaluations = flattenStageEvals(stageEvals)
	evaluation.Final = final
	evaluation.Status = models.EvaluationStatusCompleted
	now:= time.Now()
	evaluation.CompletedAt = &now
	evaluation.UpdatedAt = now

	if err:= p.Store.SaveEvaluation(ctx, evaluation); err != nil {
		p.fail(ctx, recording, evaluation, err)
		return nil, apperrors.NewInternalError(err)
	}
	if err:= p.Store.UpdateRecordingStatus(ctx, recording.ID, models.RecordingStatusCompleted, ""); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	telemetry.RecordEvaluation()
	return evaluation, nil
}

// Sandbox runs C11 steps 3-6 (detection, rules, LLM stages, scoring)
// against a transcript without touching the Store, for previewing a
// Blueprint's effect ("execute C11 steps 3-6 without
// persisting an Evaluation").
func (p *Pipeline) Sandbox(ctx context.Context, flow *models.CompiledFlowVersion, transcript *models.Transcript) *models.SandboxResult {
	detectionResult:= detection.Detect(ctx, p.Embedder, transcript.Segments, flow.Stages, detection.Options{})

	stepDetections:= make(map[string]*models.StepDetection, len(detectionResult.Steps))
	for _, d:= range detectionResult.Steps {
		stepDetections[d.StepID] = d
	}

	ruleResults:= rules.Evaluate(flow.ComplianceRules, rules.Input{
			Segments: transcript.Segments,
			StepDetections: stepDetections,
	})

	stageEvals:= p.runLLMStages(ctx, flow, transcript, ruleResults)

	final:= scoring.Score(scoring.Input{
			Template: flow.RubricTemplate,
			StepDetections: stepDetections,
			RuleResults: ruleResults,
			StageEvals: stageEvals,
			ASRConfidence: averageASRConfidence(transcript.Segments),
	})

	return &models.SandboxResult{
		DeterministicResults: &models.DeterministicResults{
			StepDetections: detectionResult.Steps,
			RuleResults: ruleResults,
		},
		LLMStageEvaluations: flattenStageEvals(stageEvals),
		Final: final,
	}
}

// preconditions implements returning the existing
// Evaluation verbatim when one is already terminal, per the idempotency
// guarantee.
func (p *Pipeline) preconditions(ctx context.Context, req Request) (*models.Recording, *models.Blueprint, *models.CompiledFlowVersion, *models.Evaluation, error) {
	recording, err:= p.Store.GetRecording(ctx, req.RecordingID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if recording.CompanyID != req.CompanyID {
		return nil, nil, nil, nil, apperrors.NewPreconditionError("recording does not belong to the requesting tenant")
	}

	blueprint, err:= p.Store.GetBlueprint(ctx, req.BlueprintID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if blueprint.CompanyID != recording.CompanyID {
		return nil, nil, nil, nil, apperrors.NewPreconditionError("blueprint tenant does not match recording tenant")
	}
	if blueprint.Status != models.BlueprintStatusPublished || blueprint.CompiledFlowVersionID == nil {
		return nil, nil, nil, nil, apperrors.NewPreconditionError("blueprint is not published and compiled")
	}

	flow, err:= p.Store.GetCompiledFlowVersion(ctx, *blueprint.CompiledFlowVersionID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	existing, err:= p.Store.GetEvaluationByRecording(ctx, req.RecordingID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, nil, nil, nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.EvaluationStatusCompleted:
			return recording, blueprint, flow, existing, nil
		case models.EvaluationStatusPending, models.EvaluationStatusRunning:
			return nil, nil, nil, nil, apperrors.NewPreconditionError("evaluation already in progress for this recording")
		}
	}

	return recording, blueprint, flow, nil, nil
}

// ensureTranscript returns the recording's transcript, transcribing and
// normalizing it if one doesn't exist yet: ASR -> Transcript Normalizer
// (C1) -> PII Redactor (C2) -> persisted transcript.
func (p *Pipeline) ensureTranscript(ctx context.Context, recording *models.Recording) (*models.Transcript, error) {
	if recording.TranscriptID != nil {
		t, err:= p.Store.GetTranscript(ctx, *recording.TranscriptID)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	if p.ASR == nil {
		return nil, apperrors.NewTranscriptionError(recording.ID, fmt.Errorf("no ASR provider configured"))
	}
	raw, err:= p.ASR.Transcribe(ctx, recording)
	if err != nil {
		return nil, apperrors.NewTranscriptionError(recording.ID, err)
	}

	alignCtx, cancel:= context.WithTimeout(ctx, p.alignmentTimeout())
	defer cancel()

	result:= transcript.Normalize(raw.Segments, p.normalizationOptions())
	normalized:= transcript.BuildTranscript(recording.ID, result, raw.Language, time.Now())

	if p.Masker != nil {
		normalized = p.Masker.RedactTranscript(normalized)
	}

	if err:= p.Store.SaveTranscript(alignCtx, normalized); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return normalized, nil
}

// alignmentTimeout bounds the SaveTranscript call that persists the
// normalized transcript (Normalize itself takes no context), falling back
// to config.DefaultStageTimeouts().Alignment when p.Timeouts is unset.
func (p *Pipeline) alignmentTimeout() time.Duration {
	if p.Timeouts == nil {
		return config.DefaultStageTimeouts().Alignment
	}
	return p.Timeouts.Alignment
}

// normalizationOptions builds the Transcript Normalizer's thresholds from
// p.Defaults, falling back to transcript.DefaultOptions() when unset.
// RuleHitTimes is always empty here: normalization runs before rule
// evaluation, so no rule hits exist yet to widen the trim window around.
func (p *Pipeline) normalizationOptions() transcript.Options {
	if p.Defaults == nil {
		return transcript.DefaultOptions()
	}
	return transcript.Options{
		MaxTranscriptSeconds: p.Defaults.MaxTranscriptSeconds,
		KeepSegmentsSeconds: p.Defaults.KeepSegmentsSeconds,
		RuleEventPaddingSecs: p.Defaults.RuleEventPaddingSeconds,
		SpeakerMergeGapSecs: p.Defaults.SpeakerMergeGapSeconds,
	}
}

// runLLMStages implements one C9 call per stage in
// ordering_index order, keyed by the stage's rubric category id so
// scoring can resolve `llm_stage_name` mappings.
func (p *Pipeline) runLLMStages(ctx context.Context, flow *models.CompiledFlowVersion, transcript *models.Transcript, ruleResults []*models.RuleResult) map[string]*models.LLMStageEvaluation {
	ruleStageByRuleID:= ruleIDToStageID(flow)

	out:= make(map[string]*models.LLMStageEvaluation, len(flow.Stages))
	for i, stage:= range flow.Stages {
		scoped:= rulesForStage(stage.ID, ruleResults, ruleStageByRuleID)

		categoryID:= stage.ID
		if i < len(flow.RubricTemplate.Categories) {
			categoryID = flow.RubricTemplate.Categories[i].ID
		}

		eval:= llmeval.EvaluateStage(ctx, p.LLM, llmeval.StageInput{
				StageID: stage.ID,
				StageName: stage.StageName,
				Segments: transcript.Segments,
				RuleResults: scoped,
		})
		out[categoryID] = eval
	}
	return out
}

// ruleIDToStageID indexes every compiled rule's owning stage, resolved
// through the rule's SourceStepID back-reference.
func ruleIDToStageID(flow *models.CompiledFlowVersion) map[string]string {
	stepToStage:= make(map[string]string)
	for _, stage:= range flow.Stages {
		for _, step:= range stage.Steps {
			stepToStage[step.ID] = stage.ID
		}
	}
	ruleToStage:= make(map[string]string, len(flow.ComplianceRules))
	for _, rule:= range flow.ComplianceRules {
		if stageID, ok:= stepToStage[rule.SourceStepID]; ok {
			ruleToStage[rule.ID] = stageID
		}
	}
	return ruleToStage
}

func rulesForStage(stageID string, results []*models.RuleResult, ruleStageByRuleID map[string]string) []*models.RuleResult {
	var out []*models.RuleResult
	for _, r:= range results {
		if ruleStageByRuleID[r.RuleID] == stageID {
			out = append(out, r)
		}
	}
	return out
}

func flattenStageEvals(stageEvals map[string]*models.LLMStageEvaluation) []*models.LLMStageEvaluation {
	out:= make([]*models.LLMStageEvaluation, 0, len(stageEvals))
	for _, e:= range stageEvals {
		out = append(out, e)
	}
	return out
}

func averageASRConfidence(segments []*models.Segment) float64 {
	if len(segments) == 0 {
		return 1.0
	}
	sum:= 0.0
	n:= 0
	for _, s:= range segments {
		if s.Confidence > 0 {
			sum += s.Confidence
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// fail marks both the evaluation and recording failed,
// step 7: "never leave the recording in processing indefinitely".
func (p *Pipeline) fail(ctx context.Context, recording *models.Recording, evaluation *models.Evaluation, cause error) {
	evaluation.Status = models.EvaluationStatusFailed
	evaluation.FailureReason = apperrors.Truncate(cause.Error())
	evaluation.UpdatedAt = time.Now()
	_ = p.Store.SaveEvaluation(ctx, evaluation)
	_ = p.Store.UpdateRecordingStatus(ctx, recording.ID, models.RecordingStatusFailed, apperrors.Truncate(cause.Error()))
}
