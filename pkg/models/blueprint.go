package models

import "time"

// BlueprintStatus is the authoring lifecycle state of a Blueprint:
// draft, published, or archived. Archive reaches either state.
type BlueprintStatus string

const (
	BlueprintStatusDraft BlueprintStatus = "draft"
	BlueprintStatusPublished BlueprintStatus = "published"
	BlueprintStatusArchived BlueprintStatus = "archived"
)

// DetectionMode is how a Behavior's occurrence is located in a transcript.
type DetectionMode string

const (
	DetectionModeSemantic DetectionMode = "semantic"
	DetectionModeExactPhrase DetectionMode = "exact_phrase"
	DetectionModeHybrid DetectionMode = "hybrid"
)

// BehaviorType classifies what an agent is expected (or forbidden) to do.
type BehaviorType string

const (
	BehaviorTypeRequired BehaviorType = "required"
	BehaviorTypeOptional BehaviorType = "optional"
	BehaviorTypeForbidden BehaviorType = "forbidden"
	BehaviorTypeCritical BehaviorType = "critical"
)

// CriticalAction describes what happens when a critical behavior's
// condition is met (present, for forbidden; absent, for required).
type CriticalAction string

const (
	CriticalActionFailStage CriticalAction = "fail_stage"
	CriticalActionFailOverall CriticalAction = "fail_overall"
	CriticalActionFlagOnly CriticalAction = "flag_only"
)

// ExpectedRole is the speaker role a compiled step expects to hear from.
type ExpectedRole string

const (
	RoleAgent ExpectedRole = "agent"
	RoleCaller ExpectedRole = "caller"
)

// Blueprint is the author-editable definition of how a call should go and
// how it is scored. It is mutable until published.
type Blueprint struct {
	ID string `json:"id"`
	CompanyID string `json:"company_id"`
	Name string `json:"name"`
	Description string `json:"description"`
	Status BlueprintStatus `json:"status"`
	VersionNumber int `json:"version_number"`
	CompiledFlowVersionID *string `json:"compiled_flow_version_id,omitempty"`
	Stages []*Stage `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string `json:"created_by,omitempty"`
}

// Stage is an ordered section of a call (e.g. Opening) containing
// behaviors.
type Stage struct {
	ID string `json:"id"`
	BlueprintID string `json:"blueprint_id"`
	StageName string `json:"stage_name"`
	OrderingIndex int `json:"ordering_index"`
	StageWeight *float64 `json:"stage_weight,omitempty"` // 0-100
	Behaviors []*Behavior `json:"behaviors"`
}

// Behavior is an atomic thing an agent is expected (or forbidden) to do
// within a stage.
type Behavior struct {
	ID string `json:"id"`
	StageID string `json:"stage_id"`
	BehaviorName string `json:"behavior_name"`
	Description string `json:"description"`
	BehaviorType BehaviorType `json:"behavior_type"`
	DetectionMode DetectionMode `json:"detection_mode"`
	Phrases []string `json:"phrases,omitempty"`
	Weight float64 `json:"weight"`
	CriticalAction CriticalAction `json:"critical_action,omitempty"`
	UIOrder int `json:"ui_order"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Metadata is an opaque attribute dictionary carried verbatim into compiled
// artifacts. Documented keys get typed accessors below; all
// other keys are preserved untouched.
type Metadata map[string]any

// Speaker returns the documented "speaker" metadata key, if set.
func (m Metadata) Speaker() (string, bool) {
	v, ok:= stringValue(m, "speaker")
	return v, ok
}

// LanguageHint returns the documented "language_hint" metadata key.
func (m Metadata) LanguageHint() (string, bool) {
	v, ok:= stringValue(m, "language_hint")
	return v, ok
}

// ExpectedDurationHint returns the documented "expected_duration_hint" key,
// in seconds.
func (m Metadata) ExpectedDurationHint() (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok:= m["expected_duration_hint"]
	if !ok {
		return 0, false
	}
	f, ok:= v.(float64)
	return f, ok
}

// TimingRequirement returns the documented "timing_requirement" metadata
// key as a raw map for the caller to interpret (used by timing_rule
// compilation hints).
func (m Metadata) TimingRequirement() (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok:= m["timing_requirement"]
	if !ok {
		return nil, false
	}
	asMap, ok:= v.(map[string]any)
	return asMap, ok
}

// Examples returns the documented "examples" metadata key.
func (m Metadata) Examples() ([]string, bool) {
	if m == nil {
		return nil, false
	}
	v, ok:= m["examples"]
	if !ok {
		return nil, false
	}
	raw, ok:= v.([]any)
	if !ok {
		return nil, false
	}
	out:= make([]string, 0, len(raw))
	for _, item:= range raw {
		if s, ok:= item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func stringValue(m Metadata, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok:= m[key]
	if !ok {
		return "", false
	}
	s, ok:= v.(string)
	return s, ok
}

// BlueprintVersion is an immutable snapshot created on publish.
type BlueprintVersion struct {
	ID string `json:"id"`
	BlueprintID string `json:"blueprint_id"`
	VersionNumber int `json:"version_number"`
	Snapshot Blueprint `json:"snapshot"`
	CompiledFlowVersionID *string `json:"compiled_flow_version_id,omitempty"`
	PublishedBy string `json:"published_by"`
	PublishNote string `json:"publish_note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
