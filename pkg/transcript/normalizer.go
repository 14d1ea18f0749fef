// Package transcript implements the Transcript Normalizer (C1): cleans
// diarized segments, merges same-speaker runs, and trims long calls
// around key events.
package transcript

import (
	"regexp"
	"strings"
	"time"

	"github.com/calliq/qaengine/pkg/models"
)

// fillerTokens is the fixed set of filler words removed during cleaning
// ("remove filler tokens drawn from a fixed set").
var fillerTokens = map[string]bool{
	"um": true, "uh": true, "uhh": true, "umm": true,
	"erm": true, "ah": true, "hmm": true, "mhm": true,
	"like": true, "you know": true,
}

var (
	noiseMarkerRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctSpacingRe = regexp.MustCompile(`\s+([.,!?;:])`)
)

// MaxTranscriptSeconds and KeepSegmentsSeconds are the documented defaults
// ("configured maximum (default 1200 s)"; "first and last
// keep_segments seconds"). Callers normally supply the configured values
// from pkg/config; these are exported as the documented fallback.
const (
	DefaultMaxTranscriptSeconds = 1200.0
	DefaultKeepSegmentsSeconds = 60.0
	DefaultRuleEventPadding = 30.0
	DefaultSpeakerMergeGap = 1.5
)

// Options configures a normalization run.
type Options struct {
	MaxTranscriptSeconds float64
	KeepSegmentsSeconds float64
	RuleEventPaddingSecs float64
	SpeakerMergeGapSecs float64
	// RuleHitTimes are the start times (seconds) of segments that
	// coincided with a rule hit, used to widen the keep-ranges around
	// them when trimming.
	RuleHitTimes []float64
}

// DefaultOptions returns the documented default thresholds.
func DefaultOptions() Options {
	return Options{
		MaxTranscriptSeconds: DefaultMaxTranscriptSeconds,
		KeepSegmentsSeconds: DefaultKeepSegmentsSeconds,
		RuleEventPaddingSecs: DefaultRuleEventPadding,
		SpeakerMergeGapSecs: DefaultSpeakerMergeGap,
	}
}

// Metadata carries the normalization statistics the contract requires
// ("compression ratio, segment/speaker-change counts, trim
// flag").
type Metadata struct {
	CompressionRatio float64
	SegmentCount int
	SpeakerChangeCount int
	Trimmed bool
}

// Result is the normalizer's output.
type Result struct {
	NormalizedText string
	Segments []*models.Segment
	Metadata Metadata
}

// Normalize runs the four-step pipeline from clean, merge,
// trim, reconstruct.
func Normalize(segments []*models.Segment, opts Options) Result {
	originalCount:= len(segments)

	cleaned:= cleanAll(segments)
	merged:= mergeConsecutive(cleaned, opts.SpeakerMergeGapSecs)
	trimmed, wasTrimmed:= trimToKeyRanges(merged, opts)

	text:= reconstruct(trimmed)

	compressionRatio:= 1.0
	if originalCount > 0 {
		compressionRatio = float64(len(trimmed)) / float64(originalCount)
	}

	return Result{
		NormalizedText: text,
		Segments: trimmed,
		Metadata: Metadata{
			CompressionRatio: compressionRatio,
			SegmentCount: len(trimmed),
			SpeakerChangeCount: countSpeakerChanges(trimmed),
			Trimmed: wasTrimmed,
		},
	}
}

// cleanAll cleans every segment, dropping any that become empty while
// preserving the original transcript's ordering. The original text is not
// retained on the returned segment; preserving it for audit is satisfied
// by the caller holding onto the pre-normalization
// Transcript it was given, which is never mutated in place).
func cleanAll(segments []*models.Segment) []*models.Segment {
	out:= make([]*models.Segment, 0, len(segments))
	for _, seg:= range segments {
		cleanedText:= cleanText(seg.Text)
		if cleanedText == "" {
			continue
		}
		clone:= *seg
		clone.Text = cleanedText
		out = append(out, &clone)
	}
	return out
}

func cleanText(text string) string {
	text = noiseMarkerRe.ReplaceAllString(text, "{noise}")

	words:= strings.Fields(text)
	kept:= make([]string, 0, len(words))
	for i:= 0; i < len(words); i++ {
		w:= words[i]
		lower:= strings.ToLower(strings.Trim(w, ".,!?;:"))
		if i+1 < len(words) && fillerTokens[lower+" "+strings.ToLower(strings.Trim(words[i+1], ".,!?;:"))] {
			i++
			continue
		}
		if fillerTokens[lower] {
			continue
		}
		kept = append(kept, w)
	}
	text = strings.Join(kept, " ")

	text = whitespaceRe.ReplaceAllString(text, " ")
	text = punctSpacingRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// mergeConsecutive merges consecutive same-speaker segments whose gap is
// at or below gapSecs, taking the minimum confidence.
func mergeConsecutive(segments []*models.Segment, gapSecs float64) []*models.Segment {
	if len(segments) == 0 {
		return segments
	}
	out:= make([]*models.Segment, 0, len(segments))
	current:= *segments[0]

	for _, seg:= range segments[1:] {
		gap:= seg.StartSecs - current.EndSecs
		if seg.Speaker == current.Speaker && gap <= gapSecs {
			current.Text = strings.TrimSpace(current.Text + " " + seg.Text)
			current.EndSecs = seg.EndSecs
			if seg.Confidence < current.Confidence {
				current.Confidence = seg.Confidence
			}
			continue
		}
		merged:= current
		out = append(out, &merged)
		current = *seg
	}
	out = append(out, &current)
	return out
}

// trimToKeyRanges keeps only segments overlapping the first/last
// keep-seconds window or a padded window around any rule-hit time, when
// the transcript exceeds opts.MaxTranscriptSeconds.
func trimToKeyRanges(segments []*models.Segment, opts Options) ([]*models.Segment, bool) {
	if len(segments) == 0 {
		return segments, false
	}

	duration:= segments[len(segments)-1].EndSecs
	if duration <= opts.MaxTranscriptSeconds {
		return segments, false
	}

	type timeRange struct{ start, end float64 }
	ranges:= []timeRange{
		{0, opts.KeepSegmentsSeconds},
		{duration - opts.KeepSegmentsSeconds, duration},
	}
	for _, hit:= range opts.RuleHitTimes {
		ranges = append(ranges, timeRange{hit - opts.RuleEventPaddingSecs, hit + opts.RuleEventPaddingSecs})
	}

	overlaps:= func(seg *models.Segment) bool {
		for _, r:= range ranges {
			if seg.StartSecs <= r.end && seg.EndSecs >= r.start {
				return true
			}
		}
		return false
	}

	out:= make([]*models.Segment, 0, len(segments))
	for _, seg:= range segments {
		if overlaps(seg) {
			out = append(out, seg)
		}
	}
	return out, true
}

// reconstruct builds "Role: text" lines in temporal order (
// step 4).
func reconstruct(segments []*models.Segment) string {
	var b strings.Builder
	for i, seg:= range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(roleLabel(seg.Speaker))
		b.WriteString(": ")
		b.WriteString(seg.Text)
	}
	return b.String()
}

func roleLabel(role models.ExpectedRole) string {
	switch role {
	case models.RoleAgent:
		return "Agent"
	case models.RoleCaller:
		return "Caller"
	default:
		return "Other"
	}
}

func countSpeakerChanges(segments []*models.Segment) int {
	if len(segments) < 2 {
		return 0
	}
	count:= 0
	for i:= 1; i < len(segments); i++ {
		if segments[i].Speaker != segments[i-1].Speaker {
			count++
		}
	}
	return count
}

// BuildTranscript assembles a models.Transcript from a normalization
// result, for callers that need the full persisted shape rather than just
// the text/segments.
func BuildTranscript(recordingID string, res Result, language string, normalizedAt time.Time) *models.Transcript {
	duration:= 0.0
	if len(res.Segments) > 0 {
		duration = res.Segments[len(res.Segments)-1].EndSecs
	}
	return &models.Transcript{
		ID: models.NewID(),
		RecordingID: recordingID,
		Segments: res.Segments,
		DurationSecs: duration,
		Language: language,
		NormalizedAt: normalizedAt,
	}
}
