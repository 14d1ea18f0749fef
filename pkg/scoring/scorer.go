// Package scoring implements the Rubric Scorer (C10): combines per-stage
// LLM (or fallback) scores and deterministic rule/step results through a
// CompiledRubricTemplate into a final evaluation.
package scoring

import (
	"math"

	"github.com/calliq/qaengine/pkg/models"
)

// DefaultLowConfidenceThreshold is the documented default
// ("configured_low_conf_threshold (default 0.5)").
const DefaultLowConfidenceThreshold = 0.5

// passBandWidth is how close overall_score may sit to the pass threshold
// before review is recommended ("within a narrow band around
// pass_threshold"). It equals the default of
// config.Defaults.PassThresholdBand, which the scorer does not read.
const passBandWidth = 3.0

// Input bundles everything the scorer needs.
type Input struct {
	Template *models.CompiledRubricTemplate
	StepDetections map[string]*models.StepDetection // keyed by step id
	RuleResults []*models.RuleResult
	StageEvals map[string]*models.LLMStageEvaluation // keyed by stage-mapped category id
	ASRConfidence float64
	LowConfidenceThreshold float64
}

// Score runs C10's algorithm and returns the final evaluation document.
func Score(in Input) *models.FinalEvaluation {
	if in.LowConfidenceThreshold == 0 {
		in.LowConfidenceThreshold = DefaultLowConfidenceThreshold
	}

	categoryScores:= make([]*models.CategoryScore, 0, len(in.Template.Categories))
	overall:= 0.0
	anyLowConfidence:= false
	anyFallback:= false
	var confidences []float64

	for _, cat:= range in.Template.Categories {
		score:= categoryScore(cat, in)
		passed:= score >= in.Template.PassThreshold
		categoryScores = append(categoryScores, &models.CategoryScore{
				CategoryID: cat.ID,
				Name: cat.Name,
				Score: score,
				Passed: passed,
		})
		overall += score * cat.Weight / 100.0
	}
	overall = clampRound(overall)

	for _, stage:= range in.StageEvals {
		confidences = append(confidences, stage.StageConfidence)
		if stage.StageConfidence < in.LowConfidenceThreshold {
			anyLowConfidence = true
		}
		if stage.UsedFallback {
			anyFallback = true
		}
	}

	criticalFailures:= criticalFailureIDs(in.RuleResults, in.StageEvals)
	overallPassed:= len(criticalFailures) == 0
	if overallPassed {
		for _, c:= range categoryScores {
			if !c.Passed {
				overallPassed = false
				break
			}
		}
	}

	nearBoundary:= math.Abs(overall-in.Template.PassThreshold) <= passBandWidth
	requiresReview:= anyLowConfidence || nearBoundary || anyFallback

	confidence:= blendConfidence(confidences, in.ASRConfidence)

	return &models.FinalEvaluation{
		OverallScore: overall,
		Passed: overallPassed,
		CategoryScores: categoryScores,
		CriticalFailures: criticalFailures,
		Confidence: confidence,
		ReviewRoute: reviewRoute(requiresReview, anyLowConfidence),
	}
}

// categoryScore computes one rubric category's weighted contribution
// (step mappings contribute passed?100:0, stage mappings
// contribute the stage/step target score, normalized by mapping weight).
func categoryScore(cat *models.CompiledRubricCategory, in Input) float64 {
	if len(cat.Mappings) == 0 {
		return 0
	}
	weightSum:= 0.0
	weighted:= 0.0
	for _, m:= range cat.Mappings {
		weightSum += m.Weight
		weighted += m.Weight * mappingTarget(cat.ID, m, in)
	}
	if weightSum == 0 {
		return 0
	}
	return clampRound(weighted / weightSum)
}

// mappingTarget resolves one mapping's 0-100 contribution: a step mapping
// prefers the LLM's judgment for that step (from the owning stage's
// StepEvaluations) over the deterministic detection result, falling back
// to detection only when the LLM didn't evaluate the step; a rule mapping
// scores 100/0 on pass; an LLM stage mapping uses the stage's resolved
// score.
func mappingTarget(categoryID string, m *models.CompiledRubricMapping, in Input) float64 {
	switch {
	case m.StepID != "":
		if stage, ok:= in.StageEvals[categoryID]; ok {
			for _, sj:= range stage.StepEvaluations {
				if sj.StepID == m.StepID {
					if sj.Passed {
						return 100
					}
					return 0
				}
			}
		}
		if det, ok:= in.StepDetections[m.StepID]; ok && det.Detected {
			return 100
		}
		return 0
	case m.RuleID != "":
		for _, r:= range in.RuleResults {
			if r.RuleID == m.RuleID {
				if r.Passed {
					return 100
				}
				return 0
			}
		}
		return 0
	case m.LLMStageName != "":
		if stage, ok:= in.StageEvals[m.LLMStageName]; ok {
			return stage.StageScore
		}
		return 0
	default:
		return 0
	}
}

// criticalFailureIDs collects rule and stage ids that force
// overall_passed=false ("any compliance rule of severity
// critical failed or critical_action = fail_overall triggered").
func criticalFailureIDs(rules []*models.RuleResult, stages map[string]*models.LLMStageEvaluation) []string {
	var ids []string
	for _, r:= range rules {
		if !r.Passed && (r.Severity == models.RuleSeverityCritical || r.Action == models.CriticalActionFailOverall) {
			ids = append(ids, r.RuleID)
		}
	}
	for id, s:= range stages {
		if s.CriticalViolation {
			ids = append(ids, id)
		}
	}
	return ids
}

// blendConfidence blends the mean stage confidence with ASR confidence,
// weighted 0.7 to 0.3 ("weighted blend of stage
// confidences and ASR confidence"). With no stage confidences, ASR
// confidence alone is returned.
func blendConfidence(stageConfidences []float64, asrConfidence float64) float64 {
	if len(stageConfidences) == 0 {
		return clamp01(asrConfidence)
	}
	sum:= 0.0
	for _, c:= range stageConfidences {
		sum += c
	}
	avgStage:= sum / float64(len(stageConfidences))
	blended:= 0.7*avgStage + 0.3*asrConfidence
	return clamp01(blended)
}

func reviewRoute(requiresReview, lowConfidence bool) models.ReviewRoute {
	switch {
	case lowConfidence:
		return models.ReviewRouteRequired
	case requiresReview:
		return models.ReviewRouteRecommended
	default:
		return models.ReviewRouteNone
	}
}

func clampRound(v float64) float64 {
	r:= math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
