package masking

import (
	"fmt"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement
// placeholder token.
type CompiledPattern struct {
	Name string
	Regex *regexp.Regexp
	Replacement string
	Description string
}

// rawPattern is the uncompiled form, kept distinct from CompiledPattern.
type rawPattern struct {
	Pattern string
	Replacement string
	Description string
}

// builtinPatterns() returns the fixed set of PII patterns the redactor
// applies. The placeholder tokens are part of the contract
// downstream components (detection, LLM prompts) rely on, so unlike the
// teacher's per-MCP-server pattern groups, this set is not configurable
// per tenant.
func builtinPatterns() map[string]rawPattern {
	return map[string]rawPattern{
		"email": {
			Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `{{EMAIL}}`,
			Description: "email addresses",
		},
		"ssn": {
			Pattern: `\b\d{3}-\d{2}-\d{4}\b`,
			Replacement: `{{SSN}}`,
			Description: "social security numbers",
		},
		"account_number": {
			Pattern: `(?i)\baccount\s*(?:number|#|no\.?)?\s*(?:is\s+)?[:#]?\s*(\d{6,17})\b`,
			Replacement: `{{ACCOUNT_NUMBER}}`,
			Description: "account numbers following an 'account' cue word",
		},
		"order_id": {
			Pattern: `(?i)\b(?:order|confirmation)\s*(?:number|#|no\.?|id)?\s*[:#]?\s*([A-Z0-9]{6,12})\b`,
			Replacement: `{{ORDER_ID}}`,
			Description: "order/confirmation identifiers following a cue word",
		},
		"card_number": {
			Pattern: `\b(?:\d[ -]?){13,19}\b`,
			Replacement: `{{CARD_NUMBER}}`,
			Description: "payment card numbers (13-19 digits, spaced or dashed)",
		},
		"phone": {
			Pattern: `(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`,
			Replacement: `{{PHONE}}`,
			Description: "US-format phone numbers",
		},
		"address": {
			Pattern: `\b\d{1,6}\s+[A-Za-z0-9.'\s]{1,40}\s(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl)\.?\b`,
			Replacement: `{{ADDRESS}}`,
			Description: "street addresses",
		},
		"name": {
			Pattern: `(?i)\bmy name is\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+){0,2})\b`,
			Replacement: `{{NAME}}`,
			Description: "self-introduced caller names",
		},
	}
}

// patternOrder is the fixed application order. Cue-word patterns
// (account_number, order_id) run before the bare-digit card_number
// pattern they'd otherwise be swallowed by; email/ssn/address/name anchor
// on distinct word boundaries and are order-independent with the rest.
var patternOrder = []string{
	"email", "ssn", "account_number", "order_id", "card_number", "phone", "address", "name",
}

// compilePatterns() compiles every builtin pattern. A compile failure is
// only possible if a pattern literal itself is malformed, which the
// builtin set never is; reported for completeness in case the set is ever
// extended.
func compilePatterns() (map[string]*CompiledPattern, error) {
	out:= make(map[string]*CompiledPattern, len(builtinPatterns()))
	for name, p:= range builtinPatterns() {
		re, err:= regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", name, err)
		}
		out[name] = &CompiledPattern{
			Name: name,
			Regex: re,
			Replacement: p.Replacement,
			Description: p.Description,
		}
	}
	return out, nil
}
