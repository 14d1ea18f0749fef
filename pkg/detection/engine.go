// Package detection implements the Detection Engine (C7): locates
// compiled steps' occurrences in a diarized transcript using a hybrid of
// exact-phrase and semantic-embedding matching.
package detection

import (
	"context"
	"sort"
	"strings"

	"github.com/calliq/qaengine/pkg/embedding"
	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/textnorm"
)

// sortStagesByOrdering returns stages ordered by OrderingIndex, leaving
// the caller's slice untouched.
func sortStagesByOrdering(stages []*models.CompiledFlowStage) []*models.CompiledFlowStage {
	out:= append([]*models.CompiledFlowStage(nil), stages...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderingIndex < out[j].OrderingIndex })
	return out
}

// DefaultSemanticThreshold is the documented default: detected iff the
// similarity score is at least 0.72.
const DefaultSemanticThreshold = 0.72

// Embedder is the collaborator the engine needs for semantic matching.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures a detection run.
type Options struct {
	SemanticThreshold float64
}

// StageAggregate summarizes step detections belonging to one compiled
// stage.
type StageAggregate struct {
	StageID string
	DetectedCount int
	ViolationCount int
}

// Result is the engine's output ("{ behaviors: [...],
// stages: {...} }").
type Result struct {
	Steps []*models.StepDetection
	Stages map[string]*StageAggregate
}

// Detect runs the per-step flow across every compiled step, returning
// results in (stage ordering_index, step order within stage) order, the
// determinism guarantee "Ordering".
func Detect(ctx context.Context, embedder Embedder, segments []*models.Segment, stages []*models.CompiledFlowStage, opts Options) Result {
	if opts.SemanticThreshold == 0 {
		opts.SemanticThreshold = DefaultSemanticThreshold
	}

	result:= Result{Stages: make(map[string]*StageAggregate)}

	type ordered struct {
		stageIdx int
		stepIdx int
		stageID string
		step *models.CompiledFlowStep
	}
	var all []ordered
	for si, stage:= range sortStagesByOrdering(stages) {
		result.Stages[stage.ID] = &StageAggregate{StageID: stage.ID}
		for wi, step:= range stage.Steps {
			all = append(all, ordered{stageIdx: si, stepIdx: wi, stageID: stage.ID, step: step})
		}
	}

	for _, o:= range all {
		detection:= detectStep(ctx, embedder, segments, o.step, opts)
		result.Steps = append(result.Steps, detection)

		agg:= result.Stages[o.stageID]
		if detection.Detected {
			agg.DetectedCount++
		}
		if detection.Violation {
			agg.ViolationCount++
		}
	}

	return result
}

// detectStep runs the five-step per-behavior flow.
func detectStep(ctx context.Context, embedder Embedder, segments []*models.Segment, step *models.CompiledFlowStep, opts Options) *models.StepDetection {
	candidates:= filterBySpeaker(segments, step.ExpectedRole)

	var best *models.StepDetection
	for _, seg:= range candidates {
		d:= matchSegment(ctx, embedder, seg, step, opts)
		if d == nil {
			continue
		}
		if best == nil || d.Confidence > best.Confidence ||
		(d.Confidence == best.Confidence && d.StartSecs < best.StartSecs) {
			best = d
		}
	}

	if best == nil {
		best = &models.StepDetection{StepID: step.ID, Detected: false}
	}

	best.Violation = isViolation(step, best.Detected)
	if best.Violation {
		best.CriticalAction = step.CriticalAction
	}
	return best
}

func filterBySpeaker(segments []*models.Segment, role models.ExpectedRole) []*models.Segment {
	out:= make([]*models.Segment, 0, len(segments))
	for _, s:= range segments {
		if s.Speaker == role {
			out = append(out, s)
		}
	}
	return out
}

func matchSegment(ctx context.Context, embedder Embedder, seg *models.Segment, step *models.CompiledFlowStep, opts Options) *models.StepDetection {
	switch step.DetectionMode {
	case models.DetectionModeExactPhrase:
		return exactMatch(seg, step)
	case models.DetectionModeSemantic:
		return semanticMatch(ctx, embedder, seg, step, opts)
	case models.DetectionModeHybrid:
		if d:= exactMatch(seg, step); d != nil {
			return d
		}
		return semanticMatch(ctx, embedder, seg, step, opts)
	default:
		return nil
	}
}

func exactMatch(seg *models.Segment, step *models.CompiledFlowStep) *models.StepDetection {
	normalizedText:= textnorm.Normalize(seg.Text)
	for _, phrase:= range step.Phrases {
		if strings.Contains(normalizedText, textnorm.Normalize(phrase)) {
			return &models.StepDetection{
				StepID: step.ID,
				Detected: true,
				MatchType: "exact",
				MatchedText: phrase,
				SegmentID: seg.ID,
				StartSecs: seg.StartSecs,
				EndSecs: seg.EndSecs,
				Confidence: blendConfidence(1.0, seg.Confidence),
			}
		}
	}
	return nil
}

func semanticMatch(ctx context.Context, embedder Embedder, seg *models.Segment, step *models.CompiledFlowStep, opts Options) *models.StepDetection {
	if embedder == nil {
		return nil
	}
	target:= strings.Join(append([]string{stepDescription(step)}, step.Phrases...), " || ")

	utteranceVec, err:= embedder.Embed(ctx, seg.Text)
	if err != nil {
		return nil
	}
	targetVec, err:= embedder.Embed(ctx, target)
	if err != nil {
		return nil
	}

	sim:= embedding.Similarity(utteranceVec, targetVec)
	if sim < opts.SemanticThreshold {
		return nil
	}

	return &models.StepDetection{
		StepID: step.ID,
		Detected: true,
		MatchType: "semantic",
		MatchedText: seg.Text,
		SegmentID: seg.ID,
		StartSecs: seg.StartSecs,
		EndSecs: seg.EndSecs,
		Confidence: blendConfidence(sim, seg.Confidence),
	}
}

func stepDescription(step *models.CompiledFlowStep) string {
	if step.Description != "" {
		return step.Description
	}
	return step.StepName
}

// blendConfidence is a weighted mean of detector confidence and ASR
// confidence, clamped to [0,1].
func blendConfidence(detectorConfidence, asrConfidence float64) float64 {
	if asrConfidence <= 0 {
		asrConfidence = 1.0 // no ASR confidence supplied: do not penalize
	}
	blended:= 0.7*detectorConfidence + 0.3*asrConfidence
	if blended < 0 {
		return 0
	}
	if blended > 1 {
		return 1
	}
	return blended
}

// isViolation reports whether a step's detection outcome is a compliance
// violation: a required/critical step not detected, or a forbidden step
// detected.
func isViolation(step *models.CompiledFlowStep, detected bool) bool {
	switch step.Expectation {
	case models.StepExpectationRequired:
		return !detected
	case models.StepExpectationForbidden:
		return detected
		default: // optional
		return false
	}
}
