package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/sidekick/internal/pending"
	"github.com/ciciliostudio/sidekick/internal/types"
)

// fakeDriver serves a static document and records applied operations.
type fakeDriver struct {
	html string

	applied    []appliedValue
	clicked    []string
	submitted  []string
	scrolled   []string
	highlights []string

	invisible map[string]bool
	failApply map[string]error
}

type appliedValue struct {
	selector string
	kind     FieldKind
	value    string
}

func newFakeDriver(html string) *fakeDriver {
	return &fakeDriver{
		html:      html,
		invisible: map[string]bool{},
		failApply: map[string]error{},
	}
}

func (f *fakeDriver) Snapshot(_ context.Context) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.html))
}

func (f *fakeDriver) ApplyValue(_ context.Context, selector string, kind FieldKind, value string) error {
	if err := f.failApply[selector]; err != nil {
		return err
	}
	f.applied = append(f.applied, appliedValue{selector, kind, value})
	return nil
}

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakeDriver) SubmitForm(_ context.Context, selector string) error {
	f.submitted = append(f.submitted, selector)
	return nil
}

func (f *fakeDriver) IsVisible(_ context.Context, selector string) (bool, error) {
	return !f.invisible[selector], nil
}

func (f *fakeDriver) ScrollIntoView(_ context.Context, selector string) error {
	f.scrolled = append(f.scrolled, selector)
	return nil
}

func (f *fakeDriver) Highlight(_ context.Context, selector string, _ time.Duration) error {
	f.highlights = append(f.highlights, selector)
	return nil
}

func newTestExecutor(driver PageDriver) *Executor {
	e := New(driver, pending.NewStore())
	e.settleDelay = 0
	e.submitDelay = 0
	return e
}

const formPage = `<html><body><form id="signup">
	<label for="email">Email</label>
	<input id="email" type="email">
	<input name="age" type="number">
	<button type="submit">Create account</button>
</form></body></html>`

func TestUnconfirmedCommandIsParked(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{Text: "Create account"}}
	result := e.Execute(context.Background(), cmd, false)

	assert.False(t, result.Success)
	assert.Equal(t, ReasonNeedsConfirm, result.Reason)
	assert.NotEmpty(t, result.PendingID)
	assert.Empty(t, driver.clicked)
	assert.Equal(t, pending.AwaitingConfirmation, e.Pending().StateOf(types.CategoryClick))
}

func TestConfirmRunsParkedCommand(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{Text: "Create account"}}
	parked := e.Execute(context.Background(), cmd, false)

	result, err := e.Confirm(context.Background(), types.CategoryClick, parked.PendingID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Create account", result.ElementText)
	require.Len(t, driver.clicked, 1)
	assert.Equal(t, pending.Idle, e.Pending().StateOf(types.CategoryClick))
}

func TestConfirmStaleIDRejected(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{Text: "Create account"}}
	old := e.Execute(context.Background(), cmd, false)
	e.Execute(context.Background(), cmd, false)

	_, err := e.Confirm(context.Background(), types.CategoryClick, old.PendingID)
	assert.ErrorIs(t, err, pending.ErrSuperseded)
	assert.Empty(t, driver.clicked)
}

func TestFillFormTalliesPartialFailure(t *testing.T) {
	driver := newFakeDriver(formPage)
	driver.failApply[`input[name="age"]`] = errors.New("element detached")
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{
		Kind: types.ActionFillForm,
		Fields: []types.FormFieldValue{
			{ID: "email", Value: "a@b.c"},
			{Name: "age", Value: "30"},
			{Label: "Nonexistent field", Value: "x"},
		},
	}
	result := e.Execute(context.Background(), cmd, true)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Filled)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, driver.applied, 1)
	assert.Equal(t, `[id="email"]`, driver.applied[0].selector)
	assert.Equal(t, TextLike, driver.applied[0].kind)
}

func TestFillFormAllFailed(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{
		Kind:   types.ActionFillForm,
		Fields: []types.FormFieldValue{{Label: "ghost", Value: "x"}},
	}
	result := e.Execute(context.Background(), cmd, true)

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Filled)
	assert.Equal(t, 1, result.Failed)
}

func TestFillFormFieldKinds(t *testing.T) {
	driver := newFakeDriver(`<html><body><form>
		<input id="note" type="text">
		<input id="agree" type="checkbox">
		<select id="color"><option>red</option></select>
	</form></body></html>`)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{
		Kind: types.ActionFillForm,
		Fields: []types.FormFieldValue{
			{ID: "note", Value: "hi"},
			{ID: "agree", Value: "yes"},
			{ID: "color", Value: "red"},
		},
	}
	result := e.Execute(context.Background(), cmd, true)

	assert.Equal(t, 3, result.Filled)
	require.Len(t, driver.applied, 3)
	assert.Equal(t, TextLike, driver.applied[0].kind)
	assert.Equal(t, Checkable, driver.applied[1].kind)
	assert.Equal(t, Selectable, driver.applied[2].kind)
}

func TestClickNotFound(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{Text: "Missing"}}
	result := e.Execute(context.Background(), cmd, true)

	assert.False(t, result.Success)
	assert.Equal(t, ReasonNotFound, result.Reason)
	assert.Empty(t, driver.clicked)
}

func TestClickNotVisible(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	// The resolved selector for an anonymous submit button is positional.
	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{Text: "Create account"}}
	driver.invisible["body > form:nth-of-type(1) > button:nth-of-type(1)"] = true

	result := e.Execute(context.Background(), cmd, true)

	assert.False(t, result.Success)
	assert.Equal(t, ReasonNotVisible, result.Reason)
	assert.Empty(t, driver.clicked)
}

func TestClickSubmitDispatchesFormSubmit(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{Text: "Create account"}}
	result := e.Execute(context.Background(), cmd, true)

	require.True(t, result.Success)
	require.Len(t, driver.submitted, 1)
	assert.Equal(t, `[id="signup"]`, driver.submitted[0])
	require.Len(t, driver.scrolled, 1)
}

func TestClickPlainButtonDoesNotSubmit(t *testing.T) {
	driver := newFakeDriver(`<html><body><form id="f">
		<button id="toggle" type="button">Toggle</button>
	</form></body></html>`)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{ID: "toggle"}}
	result := e.Execute(context.Background(), cmd, true)

	require.True(t, result.Success)
	assert.Empty(t, driver.submitted)
}

func TestHighlight(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionHighlight, Target: types.TargetDescriptor{ID: "email"}}
	result := e.Execute(context.Background(), cmd, true)

	require.True(t, result.Success)
	require.Len(t, driver.highlights, 1)
	assert.Equal(t, `[id="email"]`, driver.highlights[0])
	require.Len(t, driver.scrolled, 1)
}

func TestHighlightNotFound(t *testing.T) {
	driver := newFakeDriver(formPage)
	e := newTestExecutor(driver)

	cmd := types.ActionCommand{Kind: types.ActionHighlight, Target: types.TargetDescriptor{ID: "ghost"}}
	result := e.Execute(context.Background(), cmd, true)

	assert.False(t, result.Success)
	assert.Equal(t, ReasonNotFound, result.Reason)
}
