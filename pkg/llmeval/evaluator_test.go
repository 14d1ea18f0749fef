package llmeval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calliq/qaengine/pkg/models"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func sampleInput() StageInput {
	return StageInput{
		StageID:   "s1",
		StageName: "Opening",
		Segments: []*models.Segment{
			{ID: "seg1", Speaker: models.RoleAgent, Text: "thank you for calling", StartSecs: 0, EndSecs: 2},
		},
		RuleResults: []*models.RuleResult{
			{RuleID: "r1", Passed: true, Severity: models.RuleSeverityMajor},
		},
	}
}

func TestEvaluateStage_HappyPath(t *testing.T) {
	provider := &fakeProvider{response: `{
		"stage_score": 85,
		"step_evaluations": [{"step_id": "step1", "passed": true, "rationale": "greeted warmly", "evidence": ["seg1"]}],
		"stage_feedback": ["good opening"],
		"stage_confidence": 0.9,
		"critical_violation": false
	}`}

	result := EvaluateStage(context.Background(), provider, sampleInput())

	require.NotNil(t, result)
	assert.False(t, result.UsedFallback)
	assert.Equal(t, "s1", result.StageID)
	assert.Equal(t, 85.0, result.StageScore)
	assert.Equal(t, 0.9, result.StageConfidence)
	require.Len(t, result.StepEvaluations, 1)
	assert.Equal(t, "step1", result.StepEvaluations[0].StepID)
	assert.NotEmpty(t, result.PromptHash)
}

func TestEvaluateStage_ProviderErrorFallsBack(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream timeout")}
	result := EvaluateStage(context.Background(), provider, sampleInput())

	assert.True(t, result.UsedFallback)
	assert.Equal(t, FallbackConfidence, result.StageConfidence)
}

func TestEvaluateStage_MalformedJSONFallsBack(t *testing.T) {
	provider := &fakeProvider{response: "not json at all"}
	result := EvaluateStage(context.Background(), provider, sampleInput())

	assert.True(t, result.UsedFallback)
	assert.Equal(t, 0.5, result.StageConfidence)
}

func TestEvaluateStage_MissingRequiredFieldFallsBack(t *testing.T) {
	provider := &fakeProvider{response: `{"step_evaluations": []}`}
	result := EvaluateStage(context.Background(), provider, sampleInput())
	assert.True(t, result.UsedFallback)
}

func TestEvaluateStage_OutOfRangeScoreFallsBack(t *testing.T) {
	provider := &fakeProvider{response: `{"stage_score": 150, "stage_confidence": 0.5, "step_evaluations": []}`}
	result := EvaluateStage(context.Background(), provider, sampleInput())
	assert.True(t, result.UsedFallback)
}

func TestEvaluateStage_NilProviderFallsBack(t *testing.T) {
	result := EvaluateStage(context.Background(), nil, sampleInput())
	assert.True(t, result.UsedFallback)
}

func TestFallback_PenalizesFailedRulesBySeverity(t *testing.T) {
	in := StageInput{
		StageID: "s1",
		RuleResults: []*models.RuleResult{
			{RuleID: "r-critical", Passed: false, Severity: models.RuleSeverityCritical},
			{RuleID: "r-major", Passed: false, Severity: models.RuleSeverityMajor},
			{RuleID: "r-minor", Passed: false, Severity: models.RuleSeverityMinor},
			{RuleID: "r-ok", Passed: true, Severity: models.RuleSeverityMajor},
		},
	}
	result := EvaluateStage(context.Background(), nil, in)

	assert.Equal(t, 100.0-40.0-20.0-10.0, result.StageScore)
	assert.True(t, result.CriticalViolation)
	assert.Len(t, result.StepEvaluations, 3)
}

func TestFallback_ScoreClampedToZero(t *testing.T) {
	var rules []*models.RuleResult
	for i := 0; i < 10; i++ {
		rules = append(rules, &models.RuleResult{RuleID: "r", Passed: false, Severity: models.RuleSeverityCritical})
	}
	result := EvaluateStage(context.Background(), nil, StageInput{StageID: "s1", RuleResults: rules})
	assert.Equal(t, 0.0, result.StageScore)
}

func TestEvaluateStage_PromptHashDeterministic(t *testing.T) {
	in := sampleInput()
	r1 := EvaluateStage(context.Background(), nil, in)
	r2 := EvaluateStage(context.Background(), nil, in)
	assert.Equal(t, r1.PromptHash, r2.PromptHash)
}
