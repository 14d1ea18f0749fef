// Package masking implements the PII Redactor: regex-based redaction with
// stable placeholder tokens, applied to transcript text before it reaches
// any LLM call.
package masking

import (
	"log/slog"

	"github.com/calliq/qaengine/pkg/models"
)

// RedactionNotice is substituted for content that could not be safely
// redacted (fail-closed).
const RedactionNotice = "[REDACTED: masking failure, content withheld]"

// Service applies PII masking to transcripts and raw text. Created once at
// application startup (singleton). Thread-safe and stateless aside from
// the compiled patterns.
type Service struct {
	patterns map[string]*CompiledPattern
}

// NewService creates a masking service with all builtin patterns compiled
// eagerly at creation time.
func NewService() (*Service, error) {
	patterns, err:= compilePatterns()
	if err != nil {
		return nil, err
	}
	slog.Info("Masking service initialized", "compiled_patterns", len(patterns))
	return &Service{patterns: patterns}, nil
}

// Redact masks PII in a single string, applying patterns in the fixed
// patternOrder so cue-word patterns (account_number, order_id) claim their
// matches before the generic digit-run pattern (card_number) would
// otherwise consume them.
//
// Redaction is idempotent: redact(redact(x)) == redact(x), since
// placeholder tokens like {{EMAIL}} never match any builtin pattern.
func (s *Service) Redact(text string) string {
	if text == "" {
		return text
	}
	masked, err:= s.applyPatterns(text)
	if err != nil {
		slog.Error("Masking failed, redacting content (fail-closed)", "error", err)
		return RedactionNotice
	}
	return masked
}

func (s *Service) applyPatterns(text string) (string, error) {
	masked:= text
	for _, name:= range patternOrder {
		p, ok:= s.patterns[name]
		if !ok {
			continue
		}
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked, nil
}

// RedactTranscript returns a copy of t with every segment's text masked
// plus the transcript marked redacted. Timestamps and speaker tags are
// never touched ("never loses timestamp or speaker").
func (s *Service) RedactTranscript(t *models.Transcript) *models.Transcript {
	if t == nil {
		return nil
	}
	out:= *t
	out.Segments = make([]*models.Segment, len(t.Segments))
	for i, seg:= range t.Segments {
		segCopy:= *seg
		segCopy.Text = s.Redact(seg.Text)
		out.Segments[i] = &segCopy
	}
	out.Redacted = true
	return &out
}

// RedactText masks PII in aggregate text not attached to a transcript
// (e.g. blueprint sample phrases surfaced in sandbox previews).
func (s *Service) RedactText(text string) string {
	return s.Redact(text)
}
