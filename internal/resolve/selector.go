package resolve

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// SelectorFor builds a CSS selector the live page driver can use to address
// the resolved element. Attribute forms are preferred; a positional
// nth-of-type path is the fallback for anonymous elements.
func SelectorFor(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}

	if id := sel.AttrOr("id", ""); id != "" {
		return fmt.Sprintf(`[id=%q]`, id)
	}
	if name := sel.AttrOr("name", ""); name != "" {
		return fmt.Sprintf(`%s[name=%q]`, goquery.NodeName(sel), name)
	}
	return positionalPath(sel.Get(0))
}

// positionalPath walks up to the body building tag:nth-of-type segments.
// It is deterministic against the same serialized DOM the live page holds.
func positionalPath(n *html.Node) string {
	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if cur.Data == "body" || cur.Data == "html" {
			break
		}
		segments = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", cur.Data, nthOfType(cur))}, segments...)
	}
	if len(segments) == 0 {
		return n.Data
	}
	return "body > " + strings.Join(segments, " > ")
}

func nthOfType(n *html.Node) int {
	nth := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			nth++
		}
	}
	return nth
}
