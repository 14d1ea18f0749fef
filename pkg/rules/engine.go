// Package rules implements the Deterministic Rule Engine (C8): pure,
// I/O-free evaluation of compiled compliance rules against a transcript
// and the Detection Engine's step results.
package rules

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"

	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/textnorm"
)

// Input bundles everything a rule evaluation needs. Nothing here is
// mutated.
type Input struct {
	Segments []*models.Segment
	StepDetections map[string]*models.StepDetection // keyed by step id
}

// Evaluate runs every compiled rule against the input and returns results
// sorted by rule id for deterministic output.
func Evaluate(rules []*models.CompiledComplianceRule, in Input) []*models.RuleResult {
	out:= make([]*models.RuleResult, 0, len(rules))
	for _, rule:= range rules {
		out = append(out, evaluateOne(rule, in))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

func evaluateOne(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	switch rule.Kind {
	case models.RuleKindRequiredPhrase:
		return requiredPhrase(rule, in)
	case models.RuleKindForbiddenPhrase:
		return forbiddenPhrase(rule, in)
	case models.RuleKindSequence:
		return sequence(rule, in)
	case models.RuleKindTiming:
		return timing(rule, in)
	case models.RuleKindVerification:
		return verification(rule, in)
	case models.RuleKindConditional:
		return conditional(rule, in)
	case models.RuleKindRequiredStep:
		return requiredStep(rule, in)
	default:
		return fail(rule, fmt.Sprintf("unknown rule kind: %s", rule.Kind))
	}
}

func pass(rule *models.CompiledComplianceRule, evidence []string, detail string) *models.RuleResult {
	return &models.RuleResult{RuleID: rule.ID, Passed: true, Severity: rule.Severity, Evidence: evidence, Detail: detail}
}

func fail(rule *models.CompiledComplianceRule, detail string) *models.RuleResult {
	return &models.RuleResult{RuleID: rule.ID, Passed: false, Severity: rule.Severity, Detail: detail, Action: rule.CriticalAction}
}

// requiredPhrase passes iff at least one segment contains any of the
// rule's phrases (required_phrase).
func requiredPhrase(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	evidence, ok:= findPhrases(rule.Phrases, in.Segments)
	if ok {
		return pass(rule, evidence, "")
	}
	return fail(rule, fmt.Sprintf("none of the required phrases were found: %v", rule.Phrases))
}

// forbiddenPhrase passes iff none of the rule's phrases occur anywhere in
// the transcript (forbidden_phrase).
func forbiddenPhrase(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	evidence, ok:= findPhrases(rule.Phrases, in.Segments)
	if ok {
		return fail(rule, fmt.Sprintf("forbidden phrase detected: %v", evidence))
	}
	return pass(rule, nil, "")
}

func findPhrases(phrases []string, segments []*models.Segment) (evidence []string, found bool) {
	for _, seg:= range segments {
		text:= textnorm.Normalize(seg.Text)
		for _, phrase:= range phrases {
			if containsPhrase(text, textnorm.Normalize(phrase)) {
				evidence = append(evidence, seg.ID)
				found = true
			}
		}
	}
	return evidence, found
}

func containsPhrase(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for i:= 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// requiredStep passes iff the Detection Engine reports the referenced step
// detected, for required/critical behaviors with no phrases to match on
// (semantic-only detection_mode).
func requiredStep(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	det, ok:= in.StepDetections[rule.SourceStepID]
	if !ok || !det.Detected {
		return fail(rule, fmt.Sprintf("step %s was not detected", rule.SourceStepID))
	}
	return pass(rule, []string{det.SegmentID}, "")
}

// sequence passes iff every step in SequenceSteps was detected, in
// ascending start-time order matching the configured order (// sequence_rule).
func sequence(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	var times []float64
	var evidence []string
	for _, stepID:= range rule.SequenceSteps {
		det, ok:= in.StepDetections[stepID]
		if !ok || !det.Detected {
			return fail(rule, fmt.Sprintf("step %s in sequence was not detected", stepID))
		}
		times = append(times, det.StartSecs)
		evidence = append(evidence, det.SegmentID)
	}
	for i:= 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return fail(rule, fmt.Sprintf("step %s occurred out of order", rule.SequenceSteps[i]))
		}
	}
	return pass(rule, evidence, "")
}

// timing passes iff the referenced step was detected within WindowSeconds
// of the call start (timing_rule).
func timing(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	det, ok:= in.StepDetections[rule.SourceStepID]
	if !ok || !det.Detected {
		return fail(rule, fmt.Sprintf("step %s was not detected", rule.SourceStepID))
	}
	if rule.WindowSeconds != nil && det.StartSecs > *rule.WindowSeconds {
		return fail(rule, fmt.Sprintf("step %s detected at %.1fs, after the %.1fs window", rule.SourceStepID, det.StartSecs, *rule.WindowSeconds))
	}
	return pass(rule, []string{det.SegmentID}, "")
}

// verification passes iff the referenced step was detected with at least
// medium confidence; a low-confidence detection is treated as an
// unverified occurrence (verification_rule).
const verificationMinConfidence = 0.5

func verification(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	det, ok:= in.StepDetections[rule.SourceStepID]
	if !ok || !det.Detected {
		return fail(rule, fmt.Sprintf("step %s was not detected", rule.SourceStepID))
	}
	if det.Confidence < verificationMinConfidence {
		return fail(rule, fmt.Sprintf("step %s detected with low confidence (%.2f)", rule.SourceStepID, det.Confidence))
	}
	return pass(rule, []string{det.SegmentID}, "")
}

// conditional evaluates a CEL boolean expression over the detection
// results (conditional_rule). The expression has one variable,
// `detected`, a map from step id to bool.
func conditional(rule *models.CompiledComplianceRule, in Input) *models.RuleResult {
	env, err:= cel.NewEnv(cel.Variable("detected", cel.MapType(cel.StringType, cel.BoolType)))
	if err != nil {
		return fail(rule, fmt.Sprintf("cel environment error: %v", err))
	}

	ast, issues:= env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return fail(rule, fmt.Sprintf("invalid conditional expression: %v", issues.Err()))
	}

	program, err:= env.Program(ast)
	if err != nil {
		return fail(rule, fmt.Sprintf("cel program error: %v", err))
	}

	detected:= make(map[string]bool, len(in.StepDetections))
	for id, det:= range in.StepDetections {
		detected[id] = det.Detected
	}

	out, _, err:= program.Eval(map[string]any{"detected": detected})
	if err != nil {
		return fail(rule, fmt.Sprintf("cel evaluation error: %v", err))
	}

	ok, isBool:= out.Value().(bool)
	if !isBool {
		return fail(rule, "conditional expression did not evaluate to a boolean")
	}
	if !ok {
		return fail(rule, fmt.Sprintf("condition failed: %s", rule.Expression))
	}
	return pass(rule, nil, "")
}
