package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card before phone, or card numbers are classified as phones.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

const logExcerptRunes = 64

// LogExcerpt prepares user-authored text for a log line: PII masked,
// whitespace collapsed, and cut to a short excerpt.
func LogExcerpt(input string) string {
	out, _ := RedactPII(input)
	out = strings.Join(strings.Fields(out), " ")
	r := []rune(out)
	if len(r) > logExcerptRunes {
		return string(r[:logExcerptRunes]) + "…"
	}
	return out
}
