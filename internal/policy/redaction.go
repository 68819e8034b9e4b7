package policy

import "regexp"

type redactRule struct {
	re     *regexp.Regexp
	marker string
}

// Order matters: credentials inside URLs go before the email rule, and card
// numbers before phone numbers.
var redactRules = []redactRule{
	{regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://)[^/\s:@]+:[^/\s@]+@`), "${1}[REDACTED_CREDENTIALS]@"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// Redact masks personal data and URL credentials before text reaches a log.
func Redact(input string) (string, bool) {
	out := input
	for _, r := range redactRules {
		out = r.re.ReplaceAllString(out, r.marker)
	}
	return out, out != input
}

// RedactString is Redact without the changed flag, for log fields.
func RedactString(input string) string {
	out, _ := Redact(input)
	return out
}
