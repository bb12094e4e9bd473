package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/sidekick/internal/types"
)

func TestResolveFormFieldByID(t *testing.T) {
	d := doc(t, `<html><body><form>
		<input id="email" name="contact" type="email">
	</form></body></html>`)

	m, err := ResolveFormField(d, types.FormFieldValue{ID: "email", Value: "x@y.z"})
	require.NoError(t, err)
	assert.Equal(t, `[id="email"]`, m.Selector)
}

func TestResolveFormFieldByName(t *testing.T) {
	d := doc(t, `<html><body><form>
		<textarea name="bio"></textarea>
	</form></body></html>`)

	m, err := ResolveFormField(d, types.FormFieldValue{Name: "bio", Value: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "textarea", m.TagName)
}

func TestResolveFormFieldByLabel(t *testing.T) {
	d := doc(t, `<html><body><form>
		<label for="fn">First name</label>
		<input id="fn" type="text">
	</form></body></html>`)

	m, err := ResolveFormField(d, types.FormFieldValue{Label: "First name", Value: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "fn", m.Selection.AttrOr("id", ""))
}

const radioGroupHTML = `<html><body><form>
	<label><input type="radio" name="plan" value="basic"> Basic plan</label>
	<label><input type="radio" name="plan" value="pro"> Pro plan</label>
	<label><input type="radio" name="plan" value="team"> Team plan</label>
</form></body></html>`

func TestRadioGroupPickedByValue(t *testing.T) {
	d := doc(t, radioGroupHTML)

	m, err := ResolveFormField(d, types.FormFieldValue{Name: "plan", Value: "pro"})
	require.NoError(t, err)
	assert.Equal(t, "pro", m.Selection.AttrOr("value", ""))
}

func TestRadioGroupPickedByLabelText(t *testing.T) {
	d := doc(t, radioGroupHTML)

	m, err := ResolveFormField(d, types.FormFieldValue{Name: "plan", Value: "Team plan"})
	require.NoError(t, err)
	assert.Equal(t, "team", m.Selection.AttrOr("value", ""))
}

func TestRadioGroupAffirmativePicksFirst(t *testing.T) {
	d := doc(t, radioGroupHTML)

	m, err := ResolveFormField(d, types.FormFieldValue{Name: "plan", Value: "yes"})
	require.NoError(t, err)
	assert.Equal(t, "basic", m.Selection.AttrOr("value", ""))
}

func TestRadioGroupUnmatchableValue(t *testing.T) {
	d := doc(t, radioGroupHTML)

	_, err := ResolveFormField(d, types.FormFieldValue{Name: "plan", Value: "enterprise"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveFormFieldLabelLeadsToRadioGroup(t *testing.T) {
	d := doc(t, `<html><body><form>
		<label for="r1">Newsletter</label>
		<input type="radio" id="r1" name="news" value="weekly">
		<label for="r2">Newsletter daily</label>
		<input type="radio" id="r2" name="news" value="daily">
	</form></body></html>`)

	m, err := ResolveFormField(d, types.FormFieldValue{Label: "Newsletter", Value: "daily"})
	require.NoError(t, err)
	assert.Equal(t, "daily", m.Selection.AttrOr("value", ""))
}

func TestResolveFormFieldNotFound(t *testing.T) {
	d := doc(t, `<html><body></body></html>`)

	_, err := ResolveFormField(d, types.FormFieldValue{ID: "ghost", Value: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
