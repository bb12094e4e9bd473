package actions

import (
	"regexp"
	"strings"

	"github.com/ciciliostudio/sidekick/internal/types"
)

// Local commands are short imperative phrases typed by the user that resolve
// to a Highlight without any reply-generation round trip. Recognized forms:
//
//	highlight "Submit"        highlight Submit
//	scroll to "Pricing"       scroll Pricing
//	highlight id=email        highlight name=q
var localPattern = regexp.MustCompile(`(?i)^\s*(?:highlight|scroll(?:\s+to)?)\s+(.+?)\s*$`)

var (
	idArgPattern   = regexp.MustCompile(`(?i)^id\s*=\s*(\S+)$`)
	nameArgPattern = regexp.MustCompile(`(?i)^name\s*=\s*(\S+)$`)
)

// ParseLocalCommand recognizes the local shorthand grammar. It reports false
// for anything that should be sent to the assistant instead.
func ParseLocalCommand(input string) (*types.ActionCommand, bool) {
	match := localPattern.FindStringSubmatch(input)
	if match == nil {
		return nil, false
	}

	arg := strings.TrimSpace(match[1])

	var target types.TargetDescriptor
	switch {
	case idArgPattern.MatchString(arg):
		target.ID = idArgPattern.FindStringSubmatch(arg)[1]
	case nameArgPattern.MatchString(arg):
		target.Name = nameArgPattern.FindStringSubmatch(arg)[1]
	default:
		target.Text = unquote(arg)
	}

	if target.Empty() {
		return nil, false
	}
	return &types.ActionCommand{Kind: types.ActionHighlight, Target: target}, true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
