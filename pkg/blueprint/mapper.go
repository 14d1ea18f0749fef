package blueprint

import (
	"fmt"
	"time"

	"github.com/calliq/qaengine/pkg/models"
)

// Map is the pure function lowering a Blueprint snapshot to compiled
// artifacts. All artifact ids are pre-generated so
// cross-references are resolvable before persistence.
func Map(bp *models.Blueprint, versionNumber int, compiledAt time.Time) *models.CompiledFlowVersion {
	flowID:= models.NewID()

	flow:= &models.CompiledFlowVersion{
		ID: flowID,
		BlueprintID: bp.ID,
		CompiledAt: compiledAt,
	}

	stages:= sortedStages(bp)
	stageWeightSum:= stageWeightSum(stages)

	var rubricCategories []*models.CompiledRubricCategory

	for _, stage:= range stages {
		compiledStage:= &models.CompiledFlowStage{
			ID: models.NewID(),
			SourceStageID: stage.ID,
			StageName: stage.StageName,
			OrderingIndex: stage.OrderingIndex,
			Weight: resolveStageWeight(stage, stageWeightSum, len(stages)),
		}

		var mappings []*models.CompiledRubricMapping
		behaviorWeightSum:= behaviorWeightSum(stage)

		for _, b:= range stage.Behaviors {
			step:= mapStep(b)
			compiledStage.Steps = append(compiledStage.Steps, step)

			if rule:= mapComplianceRule(b, step.ID); rule != nil {
				flow.ComplianceRules = append(flow.ComplianceRules, rule)
			}

			mappings = append(mappings, &models.CompiledRubricMapping{
					ID: models.NewID(),
					StepID: step.ID,
					Weight: resolveMappingWeight(b, behaviorWeightSum, len(stage.Behaviors), compiledStage.Weight),
			})
		}

		flow.Stages = append(flow.Stages, compiledStage)
		rubricCategories = append(rubricCategories, &models.CompiledRubricCategory{
				ID: models.NewID(),
				Name: stage.StageName,
				Weight: compiledStage.Weight,
				Mappings: mappings,
		})
	}

	flow.RubricTemplate = &models.CompiledRubricTemplate{
		ID: models.NewID(),
		Categories: rubricCategories,
	}

	return flow
}

// DisplayName computes the globally disambiguated compiled-flow name,
// formatted as "{name} (bp:{short} v{n})".
func DisplayName(bp *models.Blueprint, versionNumber int) string {
	return fmt.Sprintf("%s (bp:%s v%d)", bp.Name, models.ShortID(bp.ID), versionNumber)
}

func mapStep(b *models.Behavior) *models.CompiledFlowStep {
	return &models.CompiledFlowStep{
		ID: models.NewID(),
		SourceBehaviorID: b.ID,
		StepName: b.BehaviorName,
		Description: b.Description,
		Expectation: expectationFor(b.BehaviorType),
		ExpectedRole: expectedRole(b),
		DetectionMode: b.DetectionMode,
		Phrases: append([]string(nil), b.Phrases...), // always carried through, preserved byte-for-byte
		Weight: b.Weight,
		Critical: b.BehaviorType == models.BehaviorTypeCritical,
		CriticalAction: b.CriticalAction,
		Metadata: b.Metadata,
	}
}

func expectationFor(t models.BehaviorType) models.StepExpectation {
	switch t {
	case models.BehaviorTypeForbidden:
		return models.StepExpectationForbidden
	case models.BehaviorTypeOptional:
		return models.StepExpectationOptional
		default: // required, critical
		return models.StepExpectationRequired
	}
}

// expectedRole defaults to agent unless the behavior's
// metadata documents a caller speaker.
func expectedRole(b *models.Behavior) models.ExpectedRole {
	if speaker, ok:= b.Metadata.Speaker(); ok && speaker == string(models.RoleCaller) {
		return models.RoleCaller
	}
	return models.RoleAgent
}

// mapComplianceRule maps one behavior to a compliance rule:
// required/critical -> required_phrase (phrases present) or required_step
// (semantic-only); forbidden -> forbidden_phrase; optional -> none.
func mapComplianceRule(b *models.Behavior, stepID string) *models.CompiledComplianceRule {
	switch b.BehaviorType {
	case models.BehaviorTypeRequired, models.BehaviorTypeCritical:
		kind:= models.RuleKindRequiredPhrase
		if len(b.Phrases) == 0 {
			kind = models.RuleKindRequiredStep
		}
		severity:= models.RuleSeverityMajor
		if b.BehaviorType == models.BehaviorTypeCritical {
			severity = models.RuleSeverityCritical
		}
		return &models.CompiledComplianceRule{
			ID: models.NewID(),
			Kind: kind,
			Name: b.BehaviorName,
			SourceStepID: stepID,
			Phrases: append([]string(nil), b.Phrases...),
			Severity: severity,
			Critical: b.BehaviorType == models.BehaviorTypeCritical,
			CriticalAction: b.CriticalAction,
		}
	case models.BehaviorTypeForbidden:
		return &models.CompiledComplianceRule{
			ID: models.NewID(),
			Kind: models.RuleKindForbiddenPhrase,
			Name: b.BehaviorName,
			SourceStepID: stepID,
			Phrases: append([]string(nil), b.Phrases...),
			Severity: models.RuleSeverityMajor,
			Critical: false,
			CriticalAction: b.CriticalAction,
		}
		default: // optional
		return nil
	}
}

func stageWeightSum(stages []*models.Stage) float64 {
	sum:= 0.0
	for _, s:= range stages {
		if s.StageWeight != nil {
			sum += *s.StageWeight
		}
	}
	return sum
}

// resolveStageWeight normalizes from supplied stage weights, or
// distributes evenly when absent ( "Rubric" rule).
func resolveStageWeight(stage *models.Stage, sum float64, n int) float64 {
	if sum <= 0 {
		if n == 0 {
			return 0
		}
		return round2(100.0 / float64(n))
	}
	if stage.StageWeight == nil {
		return 0
	}
	return round2(*stage.StageWeight / sum * 100.0)
}

func behaviorWeightSum(stage *models.Stage) float64 {
	sum:= 0.0
	for _, b:= range stage.Behaviors {
		sum += b.Weight
	}
	return sum
}

// resolveMappingWeight splits the category (stage) weight evenly across
// behaviors by default, or proportionally when behavior weights were
// supplied ("Step mappings split the category weight evenly
// across the stage's behaviors by default").
func resolveMappingWeight(b *models.Behavior, sum float64, n int, categoryWeight float64) float64 {
	if sum <= 0 {
		if n == 0 {
			return 0
		}
		return round2(categoryWeight / float64(n))
	}
	return round2(b.Weight / sum * categoryWeight)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
