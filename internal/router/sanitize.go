package router

import (
	"regexp"
	"strings"
)

// injectionPatterns match common prompt-injection phrasings in user content.
// Matches are replaced, not rejected, so a question that merely mentions one
// of these phrases still gets answered.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(your|previous|prior)\s+instructions`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)act\s+as\s+(a|an|if)\s+`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)\s+`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)\bDAN\s+mode\b`),
	regexp.MustCompile(`(?i)system\s*prompt\s*:`),
	regexp.MustCompile(`(?i)<\s*/?\s*system\s*>`),
}

const redacted = "[REDACTED]"

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

var templateEscaper = strings.NewReplacer(
	"{", `\{`,
	"}", `\}`,
	"$", `\$`,
)

// sanitizeUser neutralizes injection phrasings and strips control characters
// from user-authored content. Newlines and tabs survive.
func sanitizeUser(text string) string {
	out := controlChars.ReplaceAllString(text, "")
	for _, p := range injectionPatterns {
		out = p.ReplaceAllString(out, redacted)
	}
	return out
}

// sanitizeSystem escapes template metacharacters so user data interpolated
// into a system preamble cannot alter its structure.
func sanitizeSystem(text string) string {
	return templateEscaper.Replace(controlChars.ReplaceAllString(text, ""))
}
