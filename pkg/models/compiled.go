package models

import "time"

// StepExpectation governs how strictly a compiled step's presence affects
// scoring ( "Compilation").
type StepExpectation string

const (
	StepExpectationRequired StepExpectation = "required"
	StepExpectationOptional StepExpectation = "optional"
	StepExpectationForbidden StepExpectation = "forbidden"
)

// CompiledFlowVersion is the immutable artifact produced by the Compiler
// (C6) from a published BlueprintVersion. The pipeline evaluates against
// this, never against the mutable Blueprint tree.
type CompiledFlowVersion struct {
	ID string `json:"id"`
	BlueprintID string `json:"blueprint_id"`
	BlueprintVersionID string `json:"blueprint_version_id"`
	CompiledAt time.Time `json:"compiled_at"`
	Stages []*CompiledFlowStage `json:"stages"`
	ComplianceRules []*CompiledComplianceRule `json:"compliance_rules"`
	RubricTemplate *CompiledRubricTemplate `json:"rubric_template"`
}

// CompiledFlowStage mirrors a Blueprint Stage, flattened with resolved
// weights.
type CompiledFlowStage struct {
	ID string `json:"id"`
	SourceStageID string `json:"source_stage_id"`
	StageName string `json:"stage_name"`
	OrderingIndex int `json:"ordering_index"`
	Weight float64 `json:"weight"` // resolved, sums to 100 across stages
	Steps []*CompiledFlowStep `json:"steps"`
}

// CompiledFlowStep is one behavior lowered to its detection-ready form.
type CompiledFlowStep struct {
	ID string `json:"id"`
	SourceBehaviorID string `json:"source_behavior_id"`
	StepName string `json:"step_name"`
	Description string `json:"description,omitempty"`
	Expectation StepExpectation `json:"expectation"`
	ExpectedRole ExpectedRole `json:"expected_role"`
	DetectionMode DetectionMode `json:"detection_mode"`
	Phrases []string `json:"phrases,omitempty"`
	PhraseEmbeddings [][]float32 `json:"-"` // populated lazily by the embedding service, never serialized
	Weight float64 `json:"weight"`
	Critical bool `json:"critical"`
	CriticalAction CriticalAction `json:"critical_action,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// RuleKind enumerates the deterministic rule families the Rule Engine (C8)
// evaluates.
type RuleKind string

const (
	RuleKindRequiredPhrase RuleKind = "required_phrase"
	RuleKindForbiddenPhrase RuleKind = "forbidden_phrase"
	RuleKindSequence RuleKind = "sequence"
	RuleKindTiming RuleKind = "timing"
	RuleKindVerification RuleKind = "verification"
	RuleKindConditional RuleKind = "conditional"
	RuleKindRequiredStep RuleKind = "required_step"
)

// RuleSeverity mirrors compliance rule severities.
type RuleSeverity string

const (
	RuleSeverityCritical RuleSeverity = "critical"
	RuleSeverityMajor RuleSeverity = "major"
	RuleSeverityMinor RuleSeverity = "minor"
)

// CompiledComplianceRule is a deterministic rule lowered from blueprint
// metadata hints plus behavior phrases, evaluated independently of the
// Detection Engine's confidence scoring.
type CompiledComplianceRule struct {
	ID string `json:"id"`
	Kind RuleKind `json:"kind"`
	Name string `json:"name"`
	SourceStepID string `json:"source_step_id,omitempty"`
	Phrases []string `json:"phrases,omitempty"`
	SequenceSteps []string `json:"sequence_steps,omitempty"` // ordered list of step IDs
	WindowSeconds *float64 `json:"window_seconds,omitempty"`
	Expression string `json:"expression,omitempty"` // CEL expression for conditional rules
	Severity RuleSeverity `json:"severity"`
	Critical bool `json:"critical"`
	CriticalAction CriticalAction `json:"critical_action,omitempty"`
}

// CompiledRubricTemplate is the scoring tree the Rubric Scorer (C10) walks.
type CompiledRubricTemplate struct {
	ID string `json:"id"`
	Categories []*CompiledRubricCategory `json:"categories"`
	PassThreshold float64 `json:"pass_threshold"`
	CriticalOverrides bool `json:"critical_overrides"` // whether any critical-failure can override an otherwise-passing score
}

// CompiledRubricCategory groups step-level mappings under a weighted
// category (typically one per blueprint stage).
type CompiledRubricCategory struct {
	ID string `json:"id"`
	Name string `json:"name"`
	Weight float64 `json:"weight"`
	Mappings []*CompiledRubricMapping `json:"mappings"`
}

// CompiledRubricMapping ties a rubric category line item back to the
// compiled step (or rule) whose detection result feeds it.
type CompiledRubricMapping struct {
	ID string `json:"id"`
	StepID string `json:"step_id,omitempty"`
	RuleID string `json:"rule_id,omitempty"`
	LLMStageName string `json:"llm_stage_name,omitempty"`
	Weight float64 `json:"weight"`
}
