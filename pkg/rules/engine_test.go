package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calliq/qaengine/pkg/models"
)

func segs() []*models.Segment {
	return []*models.Segment{
		{ID: "seg1", Text: "thank you for calling, may I have your account number", StartSecs: 0, EndSecs: 3},
		{ID: "seg2", Text: "here is my account number one two three", StartSecs: 3, EndSecs: 6},
		{ID: "seg3", Text: "have a great day goodbye", StartSecs: 6, EndSecs: 8},
	}
}

func windowPtr(f float64) *float64 { return &f }

func TestEvaluate_RequiredPhrasePass(t *testing.T) {
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindRequiredPhrase, Phrases: []string{"thank you for calling"}, Severity: models.RuleSeverityMajor}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{Segments: segs()})
	require.Len(t, res, 1)
	assert.True(t, res[0].Passed)
	assert.Equal(t, []string{"seg1"}, res[0].Evidence)
}

func TestEvaluate_RequiredPhraseFail(t *testing.T) {
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindRequiredPhrase, Phrases: []string{"how can I help"}, Severity: models.RuleSeverityMajor, CriticalAction: models.CriticalActionFlagOnly}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{Segments: segs()})
	assert.False(t, res[0].Passed)
	assert.Equal(t, models.CriticalActionFlagOnly, res[0].Action)
}

func TestEvaluate_ForbiddenPhrasePass(t *testing.T) {
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindForbiddenPhrase, Phrases: []string{"i guarantee"}}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{Segments: segs()})
	assert.True(t, res[0].Passed)
}

func TestEvaluate_ForbiddenPhraseFail(t *testing.T) {
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindForbiddenPhrase, Phrases: []string{"goodbye"}}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{Segments: segs()})
	assert.False(t, res[0].Passed)
	assert.Equal(t, []string{"seg3"}, res[0].Evidence)
}

func TestEvaluate_SequencePassInOrder(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, StartSecs: 1, SegmentID: "seg1"},
		"stepB": {StepID: "stepB", Detected: true, StartSecs: 5, SegmentID: "seg2"},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindSequence, SequenceSteps: []string{"stepA", "stepB"}}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.True(t, res[0].Passed)
}

func TestEvaluate_SequenceFailOutOfOrder(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, StartSecs: 8},
		"stepB": {StepID: "stepB", Detected: true, StartSecs: 2},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindSequence, SequenceSteps: []string{"stepA", "stepB"}}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.False(t, res[0].Passed)
}

func TestEvaluate_SequenceFailMissingStep(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, StartSecs: 1},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindSequence, SequenceSteps: []string{"stepA", "stepB"}}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.False(t, res[0].Passed)
}

func TestEvaluate_TimingPassWithinWindow(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, StartSecs: 10, SegmentID: "seg1"},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindTiming, SourceStepID: "stepA", WindowSeconds: windowPtr(30)}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.True(t, res[0].Passed)
}

func TestEvaluate_TimingFailAfterWindow(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, StartSecs: 45},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindTiming, SourceStepID: "stepA", WindowSeconds: windowPtr(30)}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.False(t, res[0].Passed)
}

func TestEvaluate_VerificationPassHighConfidence(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, Confidence: 0.9, SegmentID: "seg1"},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindVerification, SourceStepID: "stepA"}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.True(t, res[0].Passed)
}

func TestEvaluate_VerificationFailLowConfidence(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, Confidence: 0.2},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindVerification, SourceStepID: "stepA"}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.False(t, res[0].Passed)
}

func TestEvaluate_ConditionalPass(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true},
		"stepB": {StepID: "stepB", Detected: false},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindConditional, Expression: `detected["stepA"] && !detected["stepB"]`}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.True(t, res[0].Passed)
}

func TestEvaluate_ConditionalFail(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: false},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindConditional, Expression: `detected["stepA"]`}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.False(t, res[0].Passed)
}

func TestEvaluate_ConditionalInvalidExpressionFails(t *testing.T) {
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindConditional, Expression: `this is not valid cel (`}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: map[string]*models.StepDetection{}})
	assert.False(t, res[0].Passed)
}

func TestEvaluate_ResultsSortedByRuleID(t *testing.T) {
	r1 := &models.CompiledComplianceRule{ID: "rb", Kind: models.RuleKindForbiddenPhrase, Phrases: []string{"zzz"}}
	r2 := &models.CompiledComplianceRule{ID: "ra", Kind: models.RuleKindForbiddenPhrase, Phrases: []string{"zzz"}}
	res := Evaluate([]*models.CompiledComplianceRule{r1, r2}, Input{Segments: segs()})
	require.Len(t, res, 2)
	assert.Equal(t, "ra", res[0].RuleID)
	assert.Equal(t, "rb", res[1].RuleID)
}

func TestEvaluate_RequiredStepPassesWhenDetected(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: true, SegmentID: "seg1"},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindRequiredStep, SourceStepID: "stepA"}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.True(t, res[0].Passed)
	assert.Equal(t, []string{"seg1"}, res[0].Evidence)
}

func TestEvaluate_RequiredStepFailsWhenNotDetected(t *testing.T) {
	dets := map[string]*models.StepDetection{
		"stepA": {StepID: "stepA", Detected: false},
	}
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKindRequiredStep, SourceStepID: "stepA"}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{StepDetections: dets})
	assert.False(t, res[0].Passed)
}

func TestEvaluate_UnknownKindFails(t *testing.T) {
	rule := &models.CompiledComplianceRule{ID: "r1", Kind: models.RuleKind("bogus")}
	res := Evaluate([]*models.CompiledComplianceRule{rule}, Input{})
	assert.False(t, res[0].Passed)
}
