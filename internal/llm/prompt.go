package llm

import (
	"fmt"
	"strings"

	"github.com/ciciliostudio/sidekick/internal/types"
)

// markerGrammar documents the inline action markers the assistant may embed
// in a reply. The action parser strips them before display.
const markerGrammar = `You can act on the page by embedding action markers in your reply. Each marker
is an HTML comment with a JSON payload and is removed before the user sees
your text:

<!--ACTION:FILL_FORM:[{"id":"","name":"","label":"Email","value":"user@example.com"}]-->
  Fill form fields. Identify each field by id, name, or visible label;
  always include the value.

<!--ACTION:CLICK:{"id":"","name":"","text":"Submit"}-->
  Click a button or link. Identify it by id, name, or visible text.

<!--ACTION:HIGHLIGHT:{"text":"Pricing"}-->
  Highlight an element so the user can find it.

Rules: at most one marker per action type per reply. Every action is shown to
the user for confirmation before it runs; describe in your visible text what
the action will do. Only reference elements listed in the page context.`

// BuildSystemPrompt serializes the page snapshot and appends the marker
// grammar. With no snapshot the assistant still learns the grammar but is
// told the page is unavailable.
func BuildSystemPrompt(page *types.PageContext) string {
	var b strings.Builder
	b.WriteString("You are Sidekick, an assistant embedded in the user's current web page. ")
	b.WriteString("Answer questions about the page and help the user act on it.\n\n")

	if page == nil {
		b.WriteString("Page context is currently unavailable; answer from the conversation alone ")
		b.WriteString("and say so when the user asks about page content.\n\n")
		b.WriteString(markerGrammar)
		return b.String()
	}

	fmt.Fprintf(&b, "Current page: %s\nURL: %s\n", page.Title, page.URL)

	if len(page.Headings) > 0 {
		b.WriteString("\nHeadings:\n")
		for _, h := range page.Headings {
			fmt.Fprintf(&b, "  h%d: %s\n", h.Level, h.Text)
		}
	}

	if page.SelectedText != "" {
		fmt.Fprintf(&b, "\nUser's current selection:\n%s\n", page.SelectedText)
	}

	if len(page.FormFields) > 0 {
		b.WriteString("\nForm fields:\n")
		for _, f := range page.FormFields {
			fmt.Fprintf(&b, "  - type=%s", f.Type)
			if f.ID != "" {
				fmt.Fprintf(&b, " id=%q", f.ID)
			}
			if f.Name != "" {
				fmt.Fprintf(&b, " name=%q", f.Name)
			}
			if f.Label != "" {
				fmt.Fprintf(&b, " label=%q", f.Label)
			}
			if f.Placeholder != "" {
				fmt.Fprintf(&b, " placeholder=%q", f.Placeholder)
			}
			b.WriteString("\n")
		}
	}

	if len(page.Clickables) > 0 {
		b.WriteString("\nClickable elements:\n")
		for _, c := range page.Clickables {
			fmt.Fprintf(&b, "  - <%s>", c.TagName)
			if c.Text != "" {
				fmt.Fprintf(&b, " %q", c.Text)
			}
			if c.ID != "" {
				fmt.Fprintf(&b, " id=%q", c.ID)
			}
			if c.Href != "" {
				fmt.Fprintf(&b, " href=%q", c.Href)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nPage text (%d words):\n%s\n\n", page.WordCount, page.VisibleText)
	b.WriteString(markerGrammar)
	return b.String()
}
