package actions

import (
	"fmt"
	"html"
	"regexp"
)

// Patterns that indicate markup or code injection in assistant output. This
// is defense-in-depth before display, not a semantic safety guarantee.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b.*?(?:</script>|$)`),
	regexp.MustCompile(`(?is)<iframe\b.*?(?:</iframe>|$)`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bnew\s+Function\s*\(`),
	regexp.MustCompile(`(?i)document\.(?:write|cookie)\b`),
}

// EscapeUnsafe neutralizes known dangerous spans by structural escaping,
// leaving the surrounding reply intact.
func EscapeUnsafe(text string) string {
	for _, pattern := range unsafePatterns {
		text = pattern.ReplaceAllStringFunc(text, neutralize)
	}
	return text
}

// neutralize escapes a matched span. Spans with no markup characters, like a
// bare javascript: scheme, are defanged by entity-encoding their first
// character instead.
func neutralize(s string) string {
	escaped := html.EscapeString(s)
	if escaped != s {
		return escaped
	}
	return fmt.Sprintf("&#%d;%s", s[0], s[1:])
}
