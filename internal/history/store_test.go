package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/sidekick/internal/types"
)

func transcript() []types.Message {
	now := time.Now().Truncate(time.Second)
	return []types.Message{
		{Role: types.RoleUser, Content: "what is this page?", Time: now},
		{Role: types.RoleAssistant, Content: "A product landing page.", Time: now},
		{Role: types.RoleUser, Content: "highlight pricing", Time: now},
	}
}

func testStoreRoundtrip(t *testing.T, s Store) {
	t.Helper()

	messages, err := s.Read("site-a")
	require.NoError(t, err)
	assert.Empty(t, messages)

	require.NoError(t, s.Write("site-a", transcript()))

	messages, err = s.Read("site-a")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, types.RoleUser, messages[0].Role)
	assert.Equal(t, "A product landing page.", messages[1].Content)

	// A rewrite replaces the transcript wholesale.
	require.NoError(t, s.Write("site-a", transcript()[:1]))
	messages, err = s.Read("site-a")
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	// Sessions are isolated.
	messages, err = s.Read("site-b")
	require.NoError(t, err)
	assert.Empty(t, messages)

	require.NoError(t, s.Clear("site-a"))
	messages, err = s.Read("site-a")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testStoreRoundtrip(t, s)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Write("k", transcript()))
	first, err := s.Read("k")
	require.NoError(t, err)
	first[0].Content = "mutated"

	second, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, "what is this page?", second[0].Content)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	testStoreRoundtrip(t, s)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Write("site-a", transcript()))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	messages, err := reopened.Read("site-a")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "highlight pricing", messages[2].Content)
}
