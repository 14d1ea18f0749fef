package config

// Defaults contains system-wide default tunables applied when a Blueprint
// or a pipeline run does not override them ( §5, §9).
type Defaults struct {
	// SemanticMatchThreshold is the minimum cosine similarity for a
	// semantic detection to count as "detected" ( default 0.72).
	SemanticMatchThreshold float64 `yaml:"semantic_match_threshold,omitempty"`

	// LowConfidenceThreshold triggers human review when a stage confidence
	// falls below it ( default 0.5).
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold,omitempty"`

	// PassThresholdBand is the half-width of a review band around
	// pass_threshold. Nothing outside this package reads it; the scorer
	// applies its own fixed band of 3 points around the overall score.
	PassThresholdBand float64 `yaml:"pass_threshold_band,omitempty"`

	// MaxTranscriptSeconds is the duration above which the Transcript
	// Normalizer trims a call around key events ( default 1200).
	MaxTranscriptSeconds float64 `yaml:"max_transcript_seconds,omitempty"`

	// KeepSegmentsSeconds is how much of the start and end of a trimmed
	// transcript is always kept.
	KeepSegmentsSeconds float64 `yaml:"keep_segments_seconds,omitempty"`

	// RuleEventPaddingSeconds is the ± window kept around a segment that
	// coincides with a rule hit when trimming.
	RuleEventPaddingSeconds float64 `yaml:"rule_event_padding_seconds,omitempty"`

	// SpeakerMergeGapSeconds is the maximum gap between consecutive
	// same-speaker segments that still get merged ( default 1.5).
	SpeakerMergeGapSeconds float64 `yaml:"speaker_merge_gap_seconds,omitempty"`
}

// DefaultDefaults returns the built-in system defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		SemanticMatchThreshold: 0.72,
		LowConfidenceThreshold: 0.5,
		PassThresholdBand: 3.0,
		MaxTranscriptSeconds: 1200,
		KeepSegmentsSeconds: 60,
		RuleEventPaddingSeconds: 30,
		SpeakerMergeGapSeconds: 1.5,
	}
}
