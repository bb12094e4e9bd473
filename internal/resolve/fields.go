package resolve

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ciciliostudio/sidekick/internal/types"
)

// ResolveFormField locates the element a fill-form field assignment refers
// to: by id, then by name, then by label text. Radio groups are special: the
// member whose value or label matches the assignment wins, and an
// affirmative sentinel value selects the first member.
func ResolveFormField(doc *goquery.Document, field types.FormFieldValue) (*Match, error) {
	if field.ID != "" {
		if m := byID(doc, field.ID); m != nil {
			return m, nil
		}
	}

	if field.Name != "" {
		group := namedFields(doc, field.Name)
		if len(group) > 0 {
			if allRadios(group) {
				if m := pickRadio(doc, group, field.Value); m != nil {
					return m, nil
				}
			} else {
				return newMatch(group[0]), nil
			}
		}
	}

	if field.Label != "" {
		needle := strings.ToLower(strings.TrimSpace(field.Label))
		if m := fieldByLabelText(doc, needle); m != nil {
			if isRadio(m.Selection) {
				if name := m.Selection.AttrOr("name", ""); name != "" {
					if picked := pickRadio(doc, namedFields(doc, name), field.Value); picked != nil {
						return picked, nil
					}
				}
			}
			return m, nil
		}
	}

	return nil, ErrNotFound
}

func namedFields(doc *goquery.Document, name string) []*goquery.Selection {
	var group []*goquery.Selection
	doc.Find("input, select, textarea").Each(func(_ int, sel *goquery.Selection) {
		if sel.AttrOr("name", "") == name {
			group = append(group, sel)
		}
	})
	return group
}

func isRadio(sel *goquery.Selection) bool {
	return goquery.NodeName(sel) == "input" &&
		strings.EqualFold(sel.AttrOr("type", ""), "radio")
}

func allRadios(group []*goquery.Selection) bool {
	for _, sel := range group {
		if !isRadio(sel) {
			return false
		}
	}
	return len(group) > 0
}

// affirmative values mean "select this group" without naming a member.
var affirmative = map[string]bool{
	"yes": true, "true": true, "on": true, "1": true, "checked": true,
	"selected": true,
}

// pickRadio selects a radio-group member by value, then by its label text,
// defaulting to the first member for affirmative sentinels.
func pickRadio(doc *goquery.Document, group []*goquery.Selection, value string) *Match {
	if len(group) == 0 {
		return nil
	}
	want := strings.ToLower(strings.TrimSpace(value))

	for _, radio := range group {
		if strings.ToLower(radio.AttrOr("value", "")) == want {
			return newMatch(radio)
		}
	}
	for _, radio := range group {
		if label := radioLabel(doc, radio); label != "" && strings.Contains(strings.ToLower(label), want) {
			return newMatch(radio)
		}
	}
	if affirmative[want] {
		return newMatch(group[0])
	}
	return nil
}

func radioLabel(doc *goquery.Document, radio *goquery.Selection) string {
	if id := radio.AttrOr("id", ""); id != "" {
		var text string
		doc.Find("label[for]").EachWithBreak(func(_ int, label *goquery.Selection) bool {
			if label.AttrOr("for", "") == id {
				text = strings.TrimSpace(label.Text())
				return false
			}
			return true
		})
		if text != "" {
			return text
		}
	}
	if wrapper := radio.ParentsFiltered("label").First(); wrapper.Length() > 0 {
		return strings.TrimSpace(wrapper.Text())
	}
	return ""
}
