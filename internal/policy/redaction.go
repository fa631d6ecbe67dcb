package policy

import (
	"regexp"
	"strings"
)

type redaction struct {
	pattern *regexp.Regexp
	mask    string
}

// Cards run before phones, otherwise long card numbers match the phone pattern.
var redactions = []redaction{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:sk|csk|AIza)[-_A-Za-z0-9]{16,}\b`), "[REDACTED_KEY]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks emails, API keys, card and phone numbers in candidate text.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range redactions {
		next := r.pattern.ReplaceAllString(out, r.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// PreviewForLog redacts s and truncates it to limit runes with an ellipsis.
// Candidate answers and model output only reach logs through here.
func PreviewForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s, _ = RedactPII(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
