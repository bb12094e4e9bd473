package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/sidekick/internal/types"
)

func TestParseLocalCommandQuotedText(t *testing.T) {
	cmd, ok := ParseLocalCommand(`highlight "Sign up"`)
	require.True(t, ok)
	assert.Equal(t, types.ActionHighlight, cmd.Kind)
	assert.Equal(t, "Sign up", cmd.Target.Text)
}

func TestParseLocalCommandBareText(t *testing.T) {
	cmd, ok := ParseLocalCommand("highlight Submit")
	require.True(t, ok)
	assert.Equal(t, "Submit", cmd.Target.Text)
}

func TestParseLocalCommandScrollTo(t *testing.T) {
	cmd, ok := ParseLocalCommand(`scroll to "Pricing"`)
	require.True(t, ok)
	assert.Equal(t, types.ActionHighlight, cmd.Kind)
	assert.Equal(t, "Pricing", cmd.Target.Text)

	cmd, ok = ParseLocalCommand("scroll Pricing")
	require.True(t, ok)
	assert.Equal(t, "Pricing", cmd.Target.Text)
}

func TestParseLocalCommandIDAndName(t *testing.T) {
	cmd, ok := ParseLocalCommand("highlight id=email")
	require.True(t, ok)
	assert.Equal(t, "email", cmd.Target.ID)
	assert.Empty(t, cmd.Target.Text)

	cmd, ok = ParseLocalCommand("highlight name=q")
	require.True(t, ok)
	assert.Equal(t, "q", cmd.Target.Name)
}

func TestParseLocalCommandCaseInsensitive(t *testing.T) {
	cmd, ok := ParseLocalCommand("  HIGHLIGHT Checkout  ")
	require.True(t, ok)
	assert.Equal(t, "Checkout", cmd.Target.Text)
}

func TestParseLocalCommandRejectsChat(t *testing.T) {
	for _, input := range []string{
		"what does this page say about pricing?",
		"highlight",
		"can you highlight the pricing section please",
		"tell me about this page",
		"",
	} {
		_, ok := ParseLocalCommand(input)
		assert.False(t, ok, "input %q", input)
	}
}
