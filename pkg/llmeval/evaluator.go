// Package llmeval implements the LLM Stage Evaluator (C9): a
// schema-validated structured judgment per stage, with a deterministic
// fallback when the provider fails or returns malformed output.
package llmeval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/calliq/qaengine/pkg/models"
)

// FallbackConfidence is the fixed confidence the deterministic fallback
// reports ("stage_confidence = 0.5").
const FallbackConfidence = 0.5

// Penalty weights for the deterministic fallback ("penalty
// rules: missing required = -20, major = -40, minor = -10, timing = -10").
// RuleResult carries only a severity, not a rule kind, so the
// fallback keys penalties off severity rather than the documented named
// categories: critical severity (the heaviest failure this taxonomy can
// express) takes the "major" penalty, major severity takes the "missing
// required" penalty, and minor takes the "minor"/"timing" penalty (both
// -10, so they collapse to one constant).
const (
	penaltyCriticalSeverity = -40.0
	penaltyMajorSeverity = -20.0
	penaltyMinorSeverity = -10.0
	discretionaryCap = 10.0
)

// Provider is the external LLM collaborator. It receives a fully rendered
// prompt and must return the raw JSON text of the model's structured
// judgment ("request a structured judgment from an external
// LLM").
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StageInput bundles what one stage evaluation needs.
type StageInput struct {
	StageID string
	StageName string
	Segments []*models.Segment
	RuleResults []*models.RuleResult // rules scoped to this stage
}

// rawJudgment is the wire shape the LLM must produce, validated before
// being lifted into models.LLMStageEvaluation.
type rawJudgment struct {
	StageScore *float64 `json:"stage_score"`
	StepEvaluations []rawStepJudgment `json:"step_evaluations"`
	StageFeedback []string `json:"stage_feedback"`
	StageConfidence *float64 `json:"stage_confidence"`
	CriticalViolation bool `json:"critical_violation"`
}

type rawStepJudgment struct {
	StepID string `json:"step_id"`
	Passed bool `json:"passed"`
	Rationale string `json:"rationale"`
	Evidence []string `json:"evidence"`
}

// EvaluateStage runs C9 for one stage: build a deterministic prompt, ask
// the provider, validate the response against the documented schema, and
// fall back to a deterministic rule-derived judgment on any failure.
func EvaluateStage(ctx context.Context, provider Provider, in StageInput) *models.LLMStageEvaluation {
	system, user:= buildPrompt(in)
	promptHash:= hashPrompt(system + "\x00" + user)

	if provider == nil {
		return fallback(in, promptHash)
	}

	raw, err:= provider.Generate(ctx, system, user)
	if err != nil {
		return fallback(in, promptHash)
	}

	judgment, err:= parseAndValidate(raw)
	if err != nil {
		return fallback(in, promptHash)
	}

	return toEvaluation(in.StageID, judgment, promptHash, false)
}

func toEvaluation(stageID string, raw *rawJudgment, promptHash string, usedFallback bool) *models.LLMStageEvaluation {
	steps:= make([]*models.StepJudgment, 0, len(raw.StepEvaluations))
	for _, s:= range raw.StepEvaluations {
		steps = append(steps, &models.StepJudgment{
				StepID: s.StepID,
				Passed: s.Passed,
				Rationale: s.Rationale,
				Evidence: s.Evidence,
		})
	}
	return &models.LLMStageEvaluation{
		StageID: stageID,
		StageScore: clamp(*raw.StageScore, 0, 100),
		StepEvaluations: steps,
		StageFeedback: raw.StageFeedback,
		StageConfidence: clamp(*raw.StageConfidence, 0, 1),
		CriticalViolation: raw.CriticalViolation,
		UsedFallback: usedFallback,
		PromptHash: promptHash,
	}
}

// parseAndValidate decodes the provider's JSON text and enforces the
// documented schema: stage_score and stage_confidence must be present and
// in range, every step evaluation must name a step id.
func parseAndValidate(text string) (*rawJudgment, error) {
	var raw rawJudgment
	if err:= json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if raw.StageScore == nil {
		return nil, fmt.Errorf("missing stage_score")
	}
	if *raw.StageScore < 0 || *raw.StageScore > 100 {
		return nil, fmt.Errorf("stage_score out of range: %v", *raw.StageScore)
	}
	if raw.StageConfidence == nil {
		return nil, fmt.Errorf("missing stage_confidence")
	}
	if *raw.StageConfidence < 0 || *raw.StageConfidence > 1 {
		return nil, fmt.Errorf("stage_confidence out of range: %v", *raw.StageConfidence)
	}
	for i, s:= range raw.StepEvaluations {
		if s.StepID == "" {
			return nil, fmt.Errorf("step_evaluations[%d] missing step_id", i)
		}
	}
	return &raw, nil
}

// fallback synthesizes a deterministic judgment purely from rule outcomes
// when the LLM provider is unavailable.
func fallback(in StageInput, promptHash string) *models.LLMStageEvaluation {
	score:= 100.0
	critical:= false
	steps:= make([]*models.StepJudgment, 0, len(in.RuleResults))
	feedback:= []string{"deterministic fallback: LLM provider unavailable or returned an invalid response"}

	for _, r:= range in.RuleResults {
		if r.Passed {
			continue
		}
		switch r.Severity {
		case models.RuleSeverityCritical:
			score += penaltyCriticalSeverity
			critical = true
		case models.RuleSeverityMajor:
			score += penaltyMajorSeverity
		case models.RuleSeverityMinor:
			score += penaltyMinorSeverity
		}
		steps = append(steps, &models.StepJudgment{
				StepID: r.RuleID,
				Passed: false,
				Rationale: r.Detail,
				Evidence: r.Evidence,
		})
	}

	return &models.LLMStageEvaluation{
		StageID: in.StageID,
		StageScore: clamp(score, 0, 100),
		StepEvaluations: steps,
		StageFeedback: feedback,
		StageConfidence: FallbackConfidence,
		CriticalViolation: critical,
		UsedFallback: true,
		PromptHash: promptHash,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func hashPrompt(prompt string) string {
	sum:= sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
