package models

import "time"

// EvaluationStatus is the evaluation lifecycle (pending →
// completed|failed).
type EvaluationStatus string

const (
	EvaluationStatusPending EvaluationStatus = "pending"
	EvaluationStatusRunning EvaluationStatus = "running"
	EvaluationStatusCompleted EvaluationStatus = "completed"
	EvaluationStatusFailed EvaluationStatus = "failed"
)

// ReviewRoute says whether a completed evaluation should be surfaced for
// human review before the score is considered final ( "confidence
// and routing").
type ReviewRoute string

const (
	ReviewRouteNone ReviewRoute = "none"
	ReviewRouteRecommended ReviewRoute = "recommended"
	ReviewRouteRequired ReviewRoute = "required"
)

// Evaluation is the terminal document produced by running the pipeline
// (C11) for one recording against one compiled flow version.
type Evaluation struct {
	ID string `json:"id"`
	CompanyID string `json:"company_id"`
	RecordingID string `json:"recording_id"`
	TranscriptID string `json:"transcript_id,omitempty"`
	CompiledFlowVersionID string `json:"compiled_flow_version_id"`
	BlueprintID string `json:"blueprint_id"`
	Status EvaluationStatus `json:"status"`

	DeterministicResults *DeterministicResults `json:"deterministic_results,omitempty"`
	LLMStageEvaluations []*LLMStageEvaluation `json:"llm_stage_evaluations,omitempty"`
	Final *FinalEvaluation `json:"final,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepDetection is the per-step output of the Detection Engine (C7),
// mirroring BehaviorResult.
type StepDetection struct {
	StepID string `json:"step_id"`
	Detected bool `json:"detected"`
	MatchType string `json:"match_type,omitempty"` // exact | semantic | hybrid
	MatchedText string `json:"matched_text,omitempty"`
	SegmentID string `json:"segment_id,omitempty"`
	StartSecs float64 `json:"start_secs,omitempty"`
	EndSecs float64 `json:"end_secs,omitempty"`
	Confidence float64 `json:"confidence"`
	Violation bool `json:"violation"`
	CriticalAction CriticalAction `json:"critical_action,omitempty"`
}

// RuleResult is the per-rule output of the Deterministic Rule Engine (C8).
type RuleResult struct {
	RuleID string `json:"rule_id"`
	Passed bool `json:"passed"`
	Severity RuleSeverity `json:"severity"`
	Evidence []string `json:"evidence,omitempty"` // segment ids
	Detail string `json:"detail,omitempty"`
	Action CriticalAction `json:"action_on_fail,omitempty"`
}

// DeterministicResults bundles everything the non-LLM stages (C7, C8)
// produced for an evaluation.
type DeterministicResults struct {
	StepDetections []*StepDetection `json:"step_detections"`
	RuleResults []*RuleResult `json:"rule_results"`
}

// StepJudgment is one step-level line item within a stage judgment
// ("step_evaluations: [{step_id, passed, rationale,
// evidence[]}]").
type StepJudgment struct {
	StepID string `json:"step_id"`
	Passed bool `json:"passed"`
	Rationale string `json:"rationale"`
	Evidence []string `json:"evidence,omitempty"` // segment ids
}

// LLMStageEvaluation is one schema-validated structured judgment from the
// LLM Stage Evaluator (C9), or its deterministic fallback.
type LLMStageEvaluation struct {
	StageID string `json:"stage_id"`
	StageScore float64 `json:"stage_score"` // 0-100
	StepEvaluations []*StepJudgment `json:"step_evaluations"`
	StageFeedback []string `json:"stage_feedback,omitempty"`
	StageConfidence float64 `json:"stage_confidence"` // 0-1
	CriticalViolation bool `json:"critical_violation"`
	UsedFallback bool `json:"used_fallback"`
	PromptHash string `json:"prompt_hash,omitempty"`
}

// CategoryScore is one rubric category's resolved score.
type CategoryScore struct {
	CategoryID string `json:"category_id"`
	Name string `json:"name"`
	Score float64 `json:"score"` // 0-100
	Passed bool `json:"passed"`
}

// FinalEvaluation is the Rubric Scorer's (C10) output: the number the
// business actually cares about.
type FinalEvaluation struct {
	OverallScore float64 `json:"overall_score"` // 0-100
	Passed bool `json:"passed"`
	CategoryScores []*CategoryScore `json:"category_scores"`
	CriticalFailures []string `json:"critical_failures,omitempty"` // rule/step IDs that triggered an override
	Confidence float64 `json:"confidence"`
	ReviewRoute ReviewRoute `json:"review_route"`
}
