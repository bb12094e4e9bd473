package types

import "time"

// PageContext is an immutable snapshot of the host page at extraction time.
// A fresh extraction supersedes the previous snapshot; snapshots are never
// mutated in place.
type PageContext struct {
	URL          string                `json:"url"`
	Title        string                `json:"title"`
	VisibleText  string                `json:"visible_text"`
	Headings     []Heading             `json:"headings"`
	SelectedText string                `json:"selected_text,omitempty"`
	FormFields   []FieldDescriptor     `json:"form_fields"`
	Clickables   []ClickableDescriptor `json:"clickables"`
	ExtractedAt  time.Time             `json:"extracted_at"`
	WordCount    int                   `json:"word_count"`
}

// Heading is a document heading tagged with its numeric level (1..6).
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// FieldDescriptor describes one eligible input/textarea/select found at
// extraction time. Hidden inputs are never described.
type FieldDescriptor struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Type         string `json:"type"`
	Label        string `json:"label,omitempty"`
	CurrentValue string `json:"current_value,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`
}

// ClickableDescriptor describes a button, submit input, or call-to-action
// anchor. The extractor deduplicates by (text, id, tag) and caps the list.
type ClickableDescriptor struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	TagName string `json:"tag_name"`
	Text    string `json:"text,omitempty"`
	Type    string `json:"type,omitempty"`
	Role    string `json:"role,omitempty"`
	Href    string `json:"href,omitempty"`
}
