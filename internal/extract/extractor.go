// Package extract produces PageContext snapshots from a serialized host
// document. Extraction is all-or-nothing: any failure yields no context.
package extract

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ciciliostudio/sidekick/internal/types"
)

const (
	// MaxWords bounds the prompt size downstream, not the extraction cost.
	MaxWords = 5000

	// MaxClickables caps the clickable list after deduplication.
	MaxClickables = 50

	minTextLen = 2
)

// ErrNoBody is returned when the page body is not yet attached.
var ErrNoBody = errors.New("page body not available")

// nonRendering tags never contribute visible text.
var nonRendering = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"meta":     true,
	"link":     true,
	"head":     true,
	"title":    true,
	"iframe":   true,
	"object":   true,
	"svg":      true,
}

// Extract builds a PageContext from the serialized document. The caller
// supplies the live URL, title and current selection alongside the HTML.
func Extract(htmlContent, pageURL, title, selection string) (*types.PageContext, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return nil, ErrNoBody
	}

	words := strings.Fields(collectVisibleText(body.Get(0)))
	if len(words) > MaxWords {
		words = words[:MaxWords]
	}

	ctx := &types.PageContext{
		URL:          pageURL,
		Title:        title,
		VisibleText:  strings.Join(words, " "),
		Headings:     collectHeadings(doc),
		SelectedText: strings.TrimSpace(selection),
		FormFields:   collectFormFields(doc),
		Clickables:   collectClickables(doc),
		ExtractedAt:  time.Now(),
		WordCount:    len(words),
	}
	return ctx, nil
}

// collectVisibleText walks text nodes under root, rejecting anything whose
// nearest element ancestor is non-rendering or hidden, and anything whose
// trimmed text is shorter than two characters.
func collectVisibleText(root *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if nonRendering[n.Data] || isHidden(n) {
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if len(text) >= minTextLen {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return b.String()
}

// isHidden checks the hints a serialized DOM carries: the hidden attribute
// and inline display/visibility/opacity styles.
func isHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(attr.Val), " ", "")
			if strings.Contains(style, "display:none") ||
				strings.Contains(style, "visibility:hidden") ||
				strings.Contains(style, "opacity:0;") ||
				strings.HasSuffix(style, "opacity:0") {
				return true
			}
		case "type":
			if n.Data == "input" && attr.Val == "hidden" {
				return true
			}
		}
	}
	return false
}

func collectHeadings(doc *goquery.Document) []types.Heading {
	var headings []types.Heading
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		level := int(sel.Get(0).Data[1] - '0')
		headings = append(headings, types.Heading{Level: level, Text: text})
	})
	return headings
}

func collectFormFields(doc *goquery.Document) []types.FieldDescriptor {
	labelFor := labelIndex(doc)

	var fields []types.FieldDescriptor
	doc.Find("input, textarea, select").Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)
		fieldType := tag
		if tag == "input" {
			fieldType = strings.ToLower(sel.AttrOr("type", "text"))
			if fieldType == "hidden" {
				return
			}
		}

		id := sel.AttrOr("id", "")
		field := types.FieldDescriptor{
			ID:           id,
			Name:         sel.AttrOr("name", ""),
			Type:         fieldType,
			CurrentValue: sel.AttrOr("value", ""),
			Placeholder:  sel.AttrOr("placeholder", ""),
		}

		// Explicit for-association wins over an enclosing label wrapper.
		if id != "" {
			field.Label = labelFor[id]
		}
		if field.Label == "" {
			if wrapper := sel.ParentsFiltered("label").First(); wrapper.Length() > 0 {
				field.Label = strings.TrimSpace(wrapper.Text())
			}
		}

		fields = append(fields, field)
	})
	return fields
}

// labelIndex maps input ids to the text of their explicit labels.
func labelIndex(doc *goquery.Document) map[string]string {
	index := make(map[string]string)
	doc.Find("label[for]").Each(func(_ int, sel *goquery.Selection) {
		forID := sel.AttrOr("for", "")
		text := strings.TrimSpace(sel.Text())
		if forID != "" && text != "" {
			if _, seen := index[forID]; !seen {
				index[forID] = text
			}
		}
	})
	return index
}

func collectClickables(doc *goquery.Document) []types.ClickableDescriptor {
	var buttons, anchors []types.ClickableDescriptor

	doc.Find("button, input[type='submit'], input[type='button']").Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)
		text := strings.TrimSpace(sel.Text())
		if tag == "input" && text == "" {
			text = strings.TrimSpace(sel.AttrOr("value", ""))
		}
		buttons = append(buttons, types.ClickableDescriptor{
			ID:      sel.AttrOr("id", ""),
			Name:    sel.AttrOr("name", ""),
			TagName: tag,
			Text:    text,
			Type:    sel.AttrOr("type", ""),
			Role:    sel.AttrOr("role", ""),
		})
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := sel.AttrOr("href", "")
		if strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		text := strings.TrimSpace(sel.Text())
		if !isActionAnchor(sel, text) {
			return
		}
		anchors = append(anchors, types.ClickableDescriptor{
			ID:      sel.AttrOr("id", ""),
			TagName: "a",
			Text:    text,
			Role:    sel.AttrOr("role", ""),
			Href:    href,
		})
	})

	// Buttons outrank links; qualifying anchors fill the remaining slots.
	combined := append(buttons, anchors...)

	seen := make(map[string]bool, len(combined))
	result := make([]types.ClickableDescriptor, 0, len(combined))
	for _, c := range combined {
		key := strings.ToLower(c.Text) + "\x00" + c.ID + "\x00" + c.TagName
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, c)
		if len(result) >= MaxClickables {
			break
		}
	}
	return result
}

// actionVerbs biases anchor inclusion toward call-to-action controls over
// navigational chrome.
var actionVerbs = map[string]bool{
	"get": true, "start": true, "try": true, "buy": true, "sign": true,
	"log": true, "login": true, "join": true, "download": true,
	"subscribe": true, "learn": true, "contact": true, "apply": true,
	"book": true, "order": true, "shop": true, "view": true, "see": true,
	"read": true, "add": true, "create": true, "submit": true, "send": true,
	"continue": true, "register": true, "upgrade": true, "install": true,
}

func isActionAnchor(sel *goquery.Selection, text string) bool {
	if sel.AttrOr("role", "") == "button" {
		return true
	}
	class := strings.ToLower(sel.AttrOr("class", ""))
	if strings.Contains(class, "btn") || strings.Contains(class, "button") {
		return true
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	return actionVerbs[strings.Trim(words[0], ".,!")]
}
