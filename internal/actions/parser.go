// Package actions turns assistant replies into structured commands. Markers
// are inline HTML comments with JSON payloads; a malformed payload drops that
// marker without disturbing the rest of the reply.
package actions

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ciciliostudio/sidekick/internal/logging"
	"github.com/ciciliostudio/sidekick/internal/types"
)

var (
	fillFormPattern  = regexp.MustCompile(`(?s)<!--ACTION:FILL_FORM:(.*?)-->`)
	clickPattern     = regexp.MustCompile(`(?s)<!--ACTION:CLICK:(.*?)-->`)
	highlightPattern = regexp.MustCompile(`(?s)<!--ACTION:HIGHLIGHT:(.*?)-->`)
)

// Parse scans assistant text for action markers. It returns the text with
// all recognized markers stripped, plus the well-formed commands found.
func Parse(text string) (string, []types.ActionCommand) {
	var commands []types.ActionCommand

	for _, match := range fillFormPattern.FindAllStringSubmatch(text, -1) {
		if cmd, ok := parseFillForm(match[1]); ok {
			commands = append(commands, cmd)
		}
	}
	for _, match := range clickPattern.FindAllStringSubmatch(text, -1) {
		if cmd, ok := parseTargeted(types.ActionClick, match[1]); ok {
			commands = append(commands, cmd)
		}
	}
	for _, match := range highlightPattern.FindAllStringSubmatch(text, -1) {
		if cmd, ok := parseTargeted(types.ActionHighlight, match[1]); ok {
			commands = append(commands, cmd)
		}
	}

	cleaned := fillFormPattern.ReplaceAllString(text, "")
	cleaned = clickPattern.ReplaceAllString(cleaned, "")
	cleaned = highlightPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(collapseBlankLines(cleaned))

	return cleaned, commands
}

func parseFillForm(payload string) (types.ActionCommand, bool) {
	var raw []types.FormFieldValue
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &raw); err != nil {
		logging.Warn("dropping malformed FILL_FORM payload: %v", err)
		return types.ActionCommand{}, false
	}

	// Only fields that can be resolved survive.
	fields := make([]types.FormFieldValue, 0, len(raw))
	for _, f := range raw {
		if f.ID == "" && f.Name == "" && f.Label == "" {
			continue
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		logging.Warn("dropping FILL_FORM marker with no resolvable fields")
		return types.ActionCommand{}, false
	}

	return types.ActionCommand{Kind: types.ActionFillForm, Fields: fields}, true
}

func parseTargeted(kind types.ActionKind, payload string) (types.ActionCommand, bool) {
	var target types.TargetDescriptor
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &target); err != nil {
		logging.Warn("dropping malformed %s payload: %v", kind, err)
		return types.ActionCommand{}, false
	}
	if target.Empty() {
		logging.Warn("dropping %s marker with empty target", kind)
		return types.ActionCommand{}, false
	}
	return types.ActionCommand{Kind: kind, Target: target}, true
}

// collapseBlankLines tidies the gaps stripped markers leave behind.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
