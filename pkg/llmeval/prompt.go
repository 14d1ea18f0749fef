package llmeval

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You are a call quality auditor. You are given a stage of a call transcript ` +
`and the deterministic compliance results already computed for it. Return ONLY a single JSON object ` +
`matching this shape, with no surrounding prose:
{
	"stage_score": <number 0-100>,
	"step_evaluations": [{"step_id": <string>, "passed": <bool>, "rationale": <string>, "evidence": [<segment id strings>]}],
	"stage_feedback": [<string>],
	"stage_confidence": <number 0-1>,
	"critical_violation": <bool>
}`

// buildPrompt renders the deterministic system/user prompt pair for one
// stage ("The prompt is deterministic"). Segment order and
// rule order are both already fixed by their producing stages, so the
// same stage input always renders the same prompt text.
func buildPrompt(in StageInput) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Stage: %s (%s)\n\nTranscript:\n", in.StageName, in.StageID)
	for _, seg:= range in.Segments {
		fmt.Fprintf(&b, "[%s %.1f-%.1fs] (%s): %s\n", seg.ID, seg.StartSecs, seg.EndSecs, seg.Speaker, seg.Text)
	}

	b.WriteString("\nDeterministic rule results:\n")
	for _, r:= range in.RuleResults {
		status:= "passed"
		if !r.Passed {
			status = "failed"
		}
		fmt.Fprintf(&b, "[%s severity=%s] %s: %s\n", r.RuleID, r.Severity, status, r.Detail)
	}

	return systemPromptTemplate, b.String()
}
