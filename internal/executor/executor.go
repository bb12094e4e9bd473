// Package executor carries out confirmed action commands against the live
// page. Unconfirmed commands are parked in the pending store and surfaced to
// the chat surface as confirmation requests; nothing runs without a fresh
// confirmed flag.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ciciliostudio/sidekick/internal/logging"
	"github.com/ciciliostudio/sidekick/internal/pending"
	"github.com/ciciliostudio/sidekick/internal/resolve"
	"github.com/ciciliostudio/sidekick/internal/types"
)

// Failure reasons reported to the UI.
const (
	ReasonNotFound     = "not found"
	ReasonNotVisible   = "not visible"
	ReasonNeedsConfirm = "awaiting confirmation"
)

// FieldKind is the capability tag resolved once at element-lookup time and
// dispatched through ApplyValue.
type FieldKind int

const (
	TextLike   FieldKind = iota // text, email, number, date/time, textarea
	Checkable                   // checkbox, radio
	Selectable                  // select
)

// PageDriver is the live-page surface the executor drives. The chromedp
// driver implements it against a real tab; tests use a fake.
type PageDriver interface {
	// Snapshot parses the page's current serialized DOM.
	Snapshot(ctx context.Context) (*goquery.Document, error)
	// ApplyValue writes a field value through the native value path for
	// the element kind, then dispatches input and change notifications.
	ApplyValue(ctx context.Context, selector string, kind FieldKind, value string) error
	// Click dispatches a mousedown/click/mouseup sequence.
	Click(ctx context.Context, selector string) error
	// SubmitForm dispatches a submit notification on the form.
	SubmitForm(ctx context.Context, selector string) error
	IsVisible(ctx context.Context, selector string) (bool, error)
	ScrollIntoView(ctx context.Context, selector string) error
	// Highlight applies a temporary outline and restores the prior
	// inline style once the duration elapses.
	Highlight(ctx context.Context, selector string, d time.Duration) error
}

// Executor gates and runs action commands.
type Executor struct {
	driver  PageDriver
	pending *pending.Store

	settleDelay       time.Duration
	submitDelay       time.Duration
	highlightDuration time.Duration
}

// New creates an executor with the standard delays.
func New(driver PageDriver, store *pending.Store) *Executor {
	return &Executor{
		driver:            driver,
		pending:           store,
		settleDelay:       300 * time.Millisecond,
		submitDelay:       500 * time.Millisecond,
		highlightDuration: 3 * time.Second,
	}
}

// Pending exposes the store so the owning agent can confirm and cancel.
func (e *Executor) Pending() *pending.Store {
	return e.pending
}

// Execute runs a command if confirmed; otherwise it parks the command as the
// category's pending action and reports that confirmation is required.
func (e *Executor) Execute(ctx context.Context, cmd types.ActionCommand, confirmed bool) types.ExecutionResult {
	if !confirmed {
		id := e.pending.Put(cmd)
		logging.Debug("command %s parked awaiting confirmation (%s)", cmd.Kind, id)
		return types.ExecutionResult{Reason: ReasonNeedsConfirm, PendingID: id}
	}

	var result types.ExecutionResult
	switch cmd.Kind {
	case types.ActionFillForm:
		result = e.fillForm(ctx, cmd)
	case types.ActionClick:
		result = e.click(ctx, cmd)
	case types.ActionHighlight:
		result = e.highlight(ctx, cmd)
	default:
		result = types.ExecutionResult{Reason: "unknown command kind"}
	}

	e.pending.Resolve(cmd.Category())
	return result
}

// Confirm resolves the category's pending command and executes it.
func (e *Executor) Confirm(ctx context.Context, category, pendingID string) (types.ExecutionResult, error) {
	cmd, err := e.pending.Confirm(category, pendingID)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	return e.Execute(ctx, cmd, true), nil
}

// fillForm fills each field independently; per-field failures are tallied,
// never aborting the remaining fields.
func (e *Executor) fillForm(ctx context.Context, cmd types.ActionCommand) types.ExecutionResult {
	doc, err := e.driver.Snapshot(ctx)
	if err != nil {
		return types.ExecutionResult{Reason: err.Error(), Failed: len(cmd.Fields)}
	}

	filled, failed := 0, 0
	for _, field := range cmd.Fields {
		match, err := resolve.ResolveFormField(doc, field)
		if err != nil {
			logging.Debug("fill: field %+v not resolved", field)
			failed++
			continue
		}
		if err := e.driver.ApplyValue(ctx, match.Selector, classify(match), field.Value); err != nil {
			logging.Warn("fill: applying value to %s failed: %v", match.Selector, err)
			failed++
			continue
		}
		filled++
	}

	return types.ExecutionResult{
		Success: filled > 0,
		Filled:  filled,
		Failed:  failed,
	}
}

func (e *Executor) click(ctx context.Context, cmd types.ActionCommand) types.ExecutionResult {
	doc, err := e.driver.Snapshot(ctx)
	if err != nil {
		return types.ExecutionResult{Reason: err.Error()}
	}

	match, err := resolve.Resolve(doc, cmd.Target)
	if err != nil {
		return types.ExecutionResult{Reason: ReasonNotFound}
	}

	visible, err := e.driver.IsVisible(ctx, match.Selector)
	if err != nil || !visible {
		return types.ExecutionResult{Reason: ReasonNotVisible, ElementText: match.Text}
	}

	if err := e.driver.ScrollIntoView(ctx, match.Selector); err != nil {
		return types.ExecutionResult{Reason: err.Error(), ElementText: match.Text}
	}
	if err := wait(ctx, e.settleDelay); err != nil {
		return types.ExecutionResult{Reason: err.Error()}
	}
	if err := e.driver.Click(ctx, match.Selector); err != nil {
		return types.ExecutionResult{Reason: err.Error(), ElementText: match.Text}
	}

	if formSel := submitTargetForm(match); formSel != "" {
		if err := wait(ctx, e.submitDelay); err == nil {
			if err := e.driver.SubmitForm(ctx, formSel); err != nil {
				logging.Warn("click: form submit dispatch failed: %v", err)
			}
		}
	}

	return types.ExecutionResult{Success: true, ElementText: match.Text}
}

func (e *Executor) highlight(ctx context.Context, cmd types.ActionCommand) types.ExecutionResult {
	doc, err := e.driver.Snapshot(ctx)
	if err != nil {
		return types.ExecutionResult{Reason: err.Error()}
	}

	match, err := resolve.Resolve(doc, cmd.Target)
	if err != nil {
		return types.ExecutionResult{Reason: ReasonNotFound}
	}

	if err := e.driver.ScrollIntoView(ctx, match.Selector); err != nil {
		return types.ExecutionResult{Reason: err.Error(), ElementText: match.Text}
	}
	if err := e.driver.Highlight(ctx, match.Selector, e.highlightDuration); err != nil {
		return types.ExecutionResult{Reason: err.Error(), ElementText: match.Text}
	}

	return types.ExecutionResult{Success: true, ElementText: match.Text}
}

// classify resolves the capability tag for a matched field element.
func classify(match *resolve.Match) FieldKind {
	switch match.TagName {
	case "select":
		return Selectable
	case "input":
		switch strings.ToLower(match.Selection.AttrOr("type", "text")) {
		case "checkbox", "radio":
			return Checkable
		}
	}
	return TextLike
}

// submitTargetForm reports the enclosing form's selector when the clicked
// element is a submit-type control, else "".
func submitTargetForm(match *resolve.Match) string {
	isSubmit := false
	switch match.TagName {
	case "button":
		t := strings.ToLower(match.Selection.AttrOr("type", "submit"))
		isSubmit = t == "submit"
	case "input":
		isSubmit = strings.ToLower(match.Selection.AttrOr("type", "")) == "submit"
	}
	if !isSubmit {
		return ""
	}

	form := match.Selection.ParentsFiltered("form").First()
	if form.Length() == 0 {
		return ""
	}
	return resolve.SelectorFor(form)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
