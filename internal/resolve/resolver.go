// Package resolve maps logical target descriptors onto concrete page
// elements. Resolution priority is id > name > text; the first satisfied rule
// wins and ties within a rule fall to document order.
package resolve

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ciciliostudio/sidekick/internal/types"
)

// ErrNotFound means no rule matched; callers surface it as a reported
// failure rather than retrying.
var ErrNotFound = errors.New("target not found")

// ancestorDepth bounds the container-text fallback around form fields.
const ancestorDepth = 4

// Match is a resolved element plus a CSS selector the live driver can use.
type Match struct {
	Selection *goquery.Selection
	TagName   string
	Text      string
	Selector  string
}

// Resolve finds the element a descriptor points at within the document.
func Resolve(doc *goquery.Document, target types.TargetDescriptor) (*Match, error) {
	if target.Empty() {
		return nil, ErrNotFound
	}

	if target.ID != "" {
		if m := byID(doc, target.ID); m != nil {
			return m, nil
		}
	}
	if target.Name != "" {
		if m := byName(doc, target.Name); m != nil {
			return m, nil
		}
	}
	if target.Text != "" {
		if m := byText(doc, target.Text); m != nil {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

func byID(doc *goquery.Document, id string) *Match {
	var found *goquery.Selection
	doc.Find("[id]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.AttrOr("id", "") == id {
			found = sel
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return newMatch(found)
}

// byName matches the name attribute. When several elements share the name,
// plausible hosts (inputs and buttons) win over the rest.
func byName(doc *goquery.Document, name string) *Match {
	var candidates []*goquery.Selection
	doc.Find("[name]").Each(func(_ int, sel *goquery.Selection) {
		if sel.AttrOr("name", "") == name {
			candidates = append(candidates, sel)
		}
	})
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 1 {
		for _, sel := range candidates {
			switch goquery.NodeName(sel) {
			case "input", "button", "select", "textarea":
				return newMatch(sel)
			}
		}
	}
	return newMatch(candidates[0])
}

// byText tries, in order: clickable elements (exact then substring), label
// text leading to its field, placeholder/aria-label on fields, then bounded
// ancestor text around a field. Matching is case-insensitive.
func byText(doc *goquery.Document, text string) *Match {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}

	if m := clickableByText(doc, needle); m != nil {
		return m
	}
	if m := fieldByLabelText(doc, needle); m != nil {
		return m
	}
	if m := fieldByHint(doc, needle); m != nil {
		return m
	}
	return fieldByAncestorText(doc, needle)
}

const clickableSelector = "button, a, input[type='submit'], input[type='button'], [role='button']"

func clickableByText(doc *goquery.Document, needle string) *Match {
	var exact, partial *goquery.Selection
	doc.Find(clickableSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		t := strings.ToLower(elementText(sel))
		if t == "" {
			return true
		}
		if t == needle {
			exact = sel
			return false
		}
		if partial == nil && strings.Contains(t, needle) {
			partial = sel
		}
		return true
	})
	if exact != nil {
		return newMatch(exact)
	}
	if partial != nil {
		return newMatch(partial)
	}
	return nil
}

func fieldByLabelText(doc *goquery.Document, needle string) *Match {
	var field *goquery.Selection
	doc.Find("label").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		t := strings.ToLower(strings.TrimSpace(label.Text()))
		if t == "" || !strings.Contains(t, needle) {
			return true
		}
		if forID := label.AttrOr("for", ""); forID != "" {
			if m := byID(doc, forID); m != nil {
				field = m.Selection
				return false
			}
		}
		if nested := label.Find("input, textarea, select").First(); nested.Length() > 0 {
			field = nested
			return false
		}
		return true
	})
	if field == nil {
		return nil
	}
	return newMatch(field)
}

func fieldByHint(doc *goquery.Document, needle string) *Match {
	var found *goquery.Selection
	doc.Find("input, textarea, select").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		placeholder := strings.ToLower(sel.AttrOr("placeholder", ""))
		ariaLabel := strings.ToLower(sel.AttrOr("aria-label", ""))
		if (placeholder != "" && strings.Contains(placeholder, needle)) ||
			(ariaLabel != "" && strings.Contains(ariaLabel, needle)) {
			found = sel
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return newMatch(found)
}

// fieldByAncestorText climbs a bounded number of levels from each field and
// matches the surrounding container's text.
func fieldByAncestorText(doc *goquery.Document, needle string) *Match {
	var found *goquery.Selection
	doc.Find("input, textarea, select").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		ancestor := sel.Parent()
		for depth := 0; depth < ancestorDepth && ancestor.Length() > 0; depth++ {
			if goquery.NodeName(ancestor) == "body" {
				break
			}
			if strings.Contains(strings.ToLower(ancestor.Text()), needle) {
				found = sel
				return false
			}
			ancestor = ancestor.Parent()
		}
		return true
	})
	if found == nil {
		return nil
	}
	return newMatch(found)
}

// elementText is the visible text of a clickable, falling back to the value
// attribute for input buttons.
func elementText(sel *goquery.Selection) string {
	text := strings.TrimSpace(sel.Text())
	if text == "" && goquery.NodeName(sel) == "input" {
		text = strings.TrimSpace(sel.AttrOr("value", ""))
	}
	return text
}

func newMatch(sel *goquery.Selection) *Match {
	return &Match{
		Selection: sel,
		TagName:   goquery.NodeName(sel),
		Text:      elementText(sel),
		Selector:  SelectorFor(sel),
	}
}
