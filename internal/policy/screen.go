package policy

import (
	"regexp"
	"strings"
)

// Screen is the outcome of checking raw user input before classification.
type Screen struct {
	Blocked bool
	Reason  string
}

var blockedInputPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?i)\b(exfiltrate|steal|dump credentials|leak secrets?)\b`), "secret exfiltration"},
	{regexp.MustCompile(`(?i)\b(print|show|reveal|list)\b.*\b(api[_ -]?keys?|tokens?|passwords?|secrets?|credentials)\b`), "credential disclosure"},
	{regexp.MustCompile(`(?i)\bignore\b.{0,20}\b(previous|prior|above|all)\b.{0,20}\b(instructions|rules|prompts?)\b`), "instruction override"},
	{regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter|update|insert)\b`), "statement injection"},
}

// ScreenInput blocks requests that try to extract secrets, override system
// instructions or smuggle statements into generated queries.
func ScreenInput(input string) Screen {
	in := strings.TrimSpace(input)
	if in == "" {
		return Screen{}
	}
	for _, p := range blockedInputPatterns {
		if p.re.MatchString(in) {
			return Screen{Blocked: true, Reason: p.reason}
		}
	}
	return Screen{}
}
