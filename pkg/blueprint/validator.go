// Package blueprint implements the Blueprint Validator (C4), Mapper (C5),
// and Compiler (C6): the publish-time pipeline that turns an author's
// mutable Blueprint tree into immutable compiled artifacts.
package blueprint

import (
	"fmt"
	"sort"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/textnorm"
)

const (
	maxPhraseLen = 200
	weightSumEpsilon = 0.01
)

var supportedLanguageHints = map[string]bool{
	"en": true, "en-us": true, "en-gb": true, "es": true, "fr": true, "de": true,
}

// ValidationOptions controls optional publish-time behavior.
type ValidationOptions struct {
	ForceNormalizeWeights bool
}

// ValidationResult holds validator output: hard errors block publish,
// warnings do not.
type ValidationResult struct {
	Errors []apperrors.FieldError
	Warnings []apperrors.FieldError
}

func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate runs the fixed-order publish-time checks.
func Validate(bp *models.Blueprint, opts ValidationOptions) ValidationResult {
	var res ValidationResult

	// 1. >= 1 stage; each stage has >= 1 behavior.
	if len(bp.Stages) == 0 {
		res.Errors = append(res.Errors, fe("stages", "blueprint must have at least one stage"))
	}
	for si, stage:= range bp.Stages {
		if len(stage.Behaviors) == 0 {
			res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].behaviors", si), "stage must have at least one behavior"))
		}
	}

	// 2. Unique stage names; unique behavior names within stage.
	stageNames:= make(map[string]bool)
	for si, stage:= range bp.Stages {
		if stageNames[stage.StageName] {
			res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].stage_name", si), "duplicate stage name: "+stage.StageName))
		}
		stageNames[stage.StageName] = true

		behaviorNames:= make(map[string]bool)
		for bi, b:= range stage.Behaviors {
			if behaviorNames[b.BehaviorName] {
				res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].behaviors[%d].behavior_name", si, bi), "duplicate behavior name within stage: "+b.BehaviorName))
			}
			behaviorNames[b.BehaviorName] = true
		}
	}

	// 3. Every behavior weight >= 0.
	for si, stage:= range bp.Stages {
		for bi, b:= range stage.Behaviors {
			if b.Weight < 0 {
				res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].behaviors[%d].weight", si, bi), "weight must be >= 0"))
			}
		}
	}

	// 4. Stage weights sum to 100 (unless force_normalize_weights).
	if !opts.ForceNormalizeWeights {
		sum:= 0.0
		anySet:= false
		for _, stage:= range bp.Stages {
			if stage.StageWeight != nil {
				sum += *stage.StageWeight
				anySet = true
			}
		}
		if anySet && abs(sum-100) > weightSumEpsilon {
			res.Errors = append(res.Errors, fe("stages", fmt.Sprintf("stage weights sum to %.2f, expected 100 (or set force_normalize_weights)", sum)))
		}
	}

	// 5. Within each stage, sum of behavior weights > 0 (unless force_normalize_weights).
	if !opts.ForceNormalizeWeights {
		for si, stage:= range bp.Stages {
			sum:= 0.0
			for _, b:= range stage.Behaviors {
				sum += b.Weight
			}
			if len(stage.Behaviors) > 0 && sum <= 0 {
				res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].behaviors", si), "behavior weights within stage must sum to > 0"))
			}
		}
	}

	// 6. detection_mode != semantic => non-empty phrases, each <= 200 chars.
	for si, stage:= range bp.Stages {
		for bi, b:= range stage.Behaviors {
			if b.DetectionMode != models.DetectionModeSemantic {
				if len(b.Phrases) == 0 {
					res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].behaviors[%d].phrases", si, bi), "non-semantic detection mode requires at least one phrase"))
				}
				for pi, p:= range b.Phrases {
					if len(p) > maxPhraseLen {
						res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].behaviors[%d].phrases[%d]", si, bi, pi), "phrase exceeds 200 characters"))
					}
				}
			}
		}
	}

	// 7. behavior_type = critical => critical_action present.
	for si, stage:= range bp.Stages {
		for bi, b:= range stage.Behaviors {
			if b.BehaviorType == models.BehaviorTypeCritical && b.CriticalAction == "" {
				res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d].behaviors[%d].critical_action", si, bi), "critical behavior requires critical_action"))
			}
		}
	}

	// 8. required ∩ forbidden = ∅ per stage (hard error).
	for si, stage:= range bp.Stages {
		required:= make(map[string]bool)
		forbidden:= make(map[string]bool)
		for _, b:= range stage.Behaviors {
			for _, p:= range b.Phrases {
				switch b.BehaviorType {
				case models.BehaviorTypeRequired, models.BehaviorTypeCritical:
					required[normalizePhrase(p)] = true
				case models.BehaviorTypeForbidden:
					forbidden[normalizePhrase(p)] = true
				}
			}
		}
		for p:= range required {
			if forbidden[p] {
				res.Errors = append(res.Errors, fe(fmt.Sprintf("stages[%d]", si), "phrase appears in both required and forbidden behaviors: "+p))
			}
		}
	}

	// 9. Duplicate phrases across behaviors within a stage -> warning.
	for si, stage:= range bp.Stages {
		seen:= make(map[string]string) // phrase -> behavior name
		for _, b:= range stage.Behaviors {
			for _, p:= range b.Phrases {
				key:= normalizePhrase(p)
				if owner, ok:= seen[key]; ok && owner != b.BehaviorName {
					res.Warnings = append(res.Warnings, fe(fmt.Sprintf("stages[%d]", si), fmt.Sprintf("phrase %q duplicated across behaviors %q and %q", p, owner, b.BehaviorName)))
					continue
				}
				seen[key] = b.BehaviorName
			}
		}
	}

	// 10. Language hint outside supported list -> warning.
	for si, stage:= range bp.Stages {
		for bi, b:= range stage.Behaviors {
			if hint, ok:= b.Metadata.LanguageHint(); ok && !supportedLanguageHints[hint] {
				res.Warnings = append(res.Warnings, fe(fmt.Sprintf("stages[%d].behaviors[%d].metadata.language_hint", si, bi), "unsupported language hint: "+hint))
			}
		}
	}

	return res
}

// NormalizeWeights scales stage weights to sum to 100 and, within each
// stage, behavior weights to sum to that stage's resolved weight,
// distributing evenly when the original sums are zero (
// "Optional normalization").
func NormalizeWeights(bp *models.Blueprint) {
	stageSum:= 0.0
	for _, stage:= range bp.Stages {
		if stage.StageWeight != nil {
			stageSum += *stage.StageWeight
		}
	}

	n:= len(bp.Stages)
	for _, stage:= range bp.Stages {
		var resolved float64
		switch {
		case stageSum <= 0 && n > 0:
			resolved = 100.0 / float64(n)
		case stage.StageWeight != nil:
			resolved = *stage.StageWeight / stageSum * 100.0
		default:
			resolved = 0
		}
		stage.StageWeight = &resolved

		behaviorSum:= 0.0
		for _, b:= range stage.Behaviors {
			behaviorSum += b.Weight
		}
		m:= len(stage.Behaviors)
		for _, b:= range stage.Behaviors {
			switch {
			case behaviorSum <= 0 && m > 0:
				b.Weight = resolved / float64(m)
			default:
				b.Weight = b.Weight / behaviorSum * resolved
			}
		}
	}
}

func fe(field, msg string) apperrors.FieldError {
	return apperrors.FieldError{Field: field, Message: msg}
}

func normalizePhrase(p string) string {
	return textnorm.Normalize(p)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// sortedStages returns stages sorted by OrderingIndex, used by the mapper
// and compiler so compilation is deterministic regardless of input order.
func sortedStages(bp *models.Blueprint) []*models.Stage {
	out:= make([]*models.Stage, len(bp.Stages))
	copy(out, bp.Stages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderingIndex < out[j].OrderingIndex })
	return out
}
