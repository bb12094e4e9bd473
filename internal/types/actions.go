package types

import "time"

// ActionKind discriminates the ActionCommand union.
type ActionKind string

const (
	ActionFillForm  ActionKind = "fill_form"
	ActionClick     ActionKind = "click"
	ActionHighlight ActionKind = "highlight"
)

// Category names used by the pending-action store. One in-flight command is
// allowed per category.
const (
	CategoryForm      = "form"
	CategoryClick     = "click"
	CategoryHighlight = "highlight"
)

// TargetDescriptor identifies a page element logically. At least one field
// must be set; resolution priority is id > name > text.
type TargetDescriptor struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`
}

// Empty reports whether the descriptor carries no identifying field.
func (t TargetDescriptor) Empty() bool {
	return t.ID == "" && t.Name == "" && t.Text == ""
}

// FormFieldValue is one field assignment inside a fill-form command.
type FormFieldValue struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
}

// Target converts the field's identifiers into a resolvable descriptor.
func (f FormFieldValue) Target() TargetDescriptor {
	return TargetDescriptor{ID: f.ID, Name: f.Name, Text: f.Label}
}

// ActionCommand is the tagged union produced by the action parser. Fields is
// populated for fill_form, Target for click and highlight.
type ActionCommand struct {
	Kind   ActionKind       `json:"kind"`
	Fields []FormFieldValue `json:"fields,omitempty"`
	Target TargetDescriptor `json:"target,omitempty"`
}

// Category maps the command kind onto its pending-action category.
func (c ActionCommand) Category() string {
	switch c.Kind {
	case ActionFillForm:
		return CategoryForm
	case ActionClick:
		return CategoryClick
	default:
		return CategoryHighlight
	}
}

// ExecutionResult reports the outcome of a confirmed command. FillForm
// reports per-field counts; Click and Highlight report the element's text or
// a failure reason.
type ExecutionResult struct {
	Success     bool   `json:"success"`
	Filled      int    `json:"filled,omitempty"`
	Failed      int    `json:"failed,omitempty"`
	ElementText string `json:"element_text,omitempty"`
	Reason      string `json:"reason,omitempty"`
	// PendingID is set when the command was parked awaiting confirmation
	// instead of executed; the confirmation must echo it.
	PendingID string `json:"pending_id,omitempty"`
}

// Message is one turn of the chat transcript.
type Message struct {
	Role    string    `json:"role"` // "user", "assistant", or "system"
	Content string    `json:"content"`
	Time    time.Time `json:"time,omitempty"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
