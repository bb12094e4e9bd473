package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/sidekick/internal/config"
	"github.com/ciciliostudio/sidekick/internal/history"
	"github.com/ciciliostudio/sidekick/internal/llm"
	"github.com/ciciliostudio/sidekick/internal/router"
	"github.com/ciciliostudio/sidekick/internal/types"
)

// fakeAgent registers agent-side handlers backed by canned responses.
type fakeAgent struct {
	page        *types.PageContext
	extractErr  error
	extractions int
	executed    []types.ActionCommand
}

func (f *fakeAgent) register(bus *router.Router) {
	bus.Handle(router.ContextAgent, "context.extract", func(_ context.Context, _ json.RawMessage) (interface{}, error) {
		f.extractions++
		if f.extractErr != nil {
			return nil, f.extractErr
		}
		return f.page, nil
	})
	bus.Handle(router.ContextAgent, "action.execute", func(_ context.Context, payload json.RawMessage) (interface{}, error) {
		var req struct {
			Command   types.ActionCommand `json:"command"`
			Confirmed bool                `json:"confirmed"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		f.executed = append(f.executed, req.Command)
		if !req.Confirmed {
			return types.ExecutionResult{Reason: "awaiting confirmation", PendingID: "pend-1"}, nil
		}
		return types.ExecutionResult{Success: true, ElementText: req.Command.Target.Text}, nil
	})
}

func testPage() *types.PageContext {
	return &types.PageContext{
		URL:         "https://docs.example/guide",
		Title:       "Guide",
		VisibleText: "getting started with the product",
		WordCount:   5,
		ExtractedAt: time.Now(),
	}
}

func newFixture(t *testing.T) (*Orchestrator, *fakeAgent, *llm.MockClient, history.Store) {
	t.Helper()
	bus := router.New(time.Second)
	t.Cleanup(bus.Close)

	agent := &fakeAgent{page: testPage()}
	agent.register(bus)

	mock := llm.NewMockClient()
	store := history.NewMemoryStore()
	orch := New(bus, mock, config.AIConfig{Provider: "mock", Model: "test"}, store, "docs.example")
	return orch, agent, mock, store
}

func send(t *testing.T, orch *Orchestrator, content string) ChatReply {
	t.Helper()
	raw, err := json.Marshal(ChatRequest{Content: content})
	require.NoError(t, err)
	out, err := orch.handleChat(context.Background(), raw)
	require.NoError(t, err)
	return out.(ChatReply)
}

func TestChatTurnUsesFreshContext(t *testing.T) {
	orch, agent, mock, _ := newFixture(t)

	mock.Queue("The guide covers getting started.")
	reply := send(t, orch, "what is this page about?")

	assert.Equal(t, "The guide covers getting started.", reply.Text)
	assert.False(t, reply.Degraded)
	assert.Equal(t, 1, agent.extractions)
	require.NotNil(t, mock.LastPageContext())
	assert.Equal(t, "Guide", mock.LastPageContext().Title)
}

func TestCachedContextReusedUntilStale(t *testing.T) {
	orch, agent, mock, _ := newFixture(t)

	mock.Queue("first")
	mock.Queue("second")
	send(t, orch, "one")
	send(t, orch, "two")
	assert.Equal(t, 1, agent.extractions, "second turn reuses the cached context")

	// Staleness invalidates the cache; the next turn re-extracts.
	_, err := orch.handleStale(context.Background(), json.RawMessage(`{"cause":"navigation"}`))
	require.NoError(t, err)

	mock.Queue("third")
	send(t, orch, "three")
	assert.Equal(t, 2, agent.extractions)
}

func TestExtractionFailureDegradesTurn(t *testing.T) {
	orch, agent, mock, _ := newFixture(t)
	agent.extractErr = assert.AnError

	mock.Queue("answering blind")
	reply := send(t, orch, "what is on this page?")

	assert.True(t, reply.Degraded)
	assert.Equal(t, "answering blind", reply.Text)
	assert.Nil(t, mock.LastPageContext())
}

func TestReplyMarkersBecomePendingPrompts(t *testing.T) {
	orch, agent, mock, _ := newFixture(t)

	mock.Queue(`I'll highlight it for you.
<!--ACTION:HIGHLIGHT:{"text":"Pricing"}-->`)
	reply := send(t, orch, "where is pricing?")

	assert.NotContains(t, reply.Text, "ACTION")
	require.Len(t, reply.Pending, 1)
	assert.Equal(t, types.CategoryHighlight, reply.Pending[0].Category)
	assert.Equal(t, "pend-1", reply.Pending[0].PendingID)

	// The command reached the agent unconfirmed.
	require.Len(t, agent.executed, 1)
	assert.Equal(t, types.ActionHighlight, agent.executed[0].Kind)
}

func TestLocalCommandBypassesProvider(t *testing.T) {
	orch, agent, mock, _ := newFixture(t)

	raw, _ := json.Marshal(ChatRequest{Content: `highlight "Submit"`})
	out, err := orch.handleChat(context.Background(), raw)
	require.NoError(t, err)
	reply := out.(ChatReply)

	assert.True(t, reply.Local)
	assert.Zero(t, mock.Calls(), "local shorthand must not call the provider")
	require.Len(t, agent.executed, 1)
	assert.Equal(t, "Submit", agent.executed[0].Target.Text)
}

func TestTranscriptExcludesSystemAndMarkers(t *testing.T) {
	orch, _, mock, store := newFixture(t)

	mock.Queue(`Done.
<!--ACTION:CLICK:{"text":"Save"}-->`)
	send(t, orch, "save my work")

	messages, err := store.Read("docs.example")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, types.RoleUser, messages[0].Role)
	assert.Equal(t, "save my work", messages[0].Content)
	assert.Equal(t, types.RoleAssistant, messages[1].Role)
	assert.NotContains(t, messages[1].Content, "ACTION")
	for _, msg := range messages {
		assert.NotEqual(t, types.RoleSystem, msg.Role)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	orch, _, _, _ := newFixture(t)

	raw, _ := json.Marshal(ChatRequest{Content: ""})
	_, err := orch.handleChat(context.Background(), raw)
	assert.Error(t, err)
}

func TestSessionInfo(t *testing.T) {
	orch, _, mock, _ := newFixture(t)

	mock.Queue("hello")
	send(t, orch, "hi")

	out, err := orch.handleInfo(context.Background(), nil)
	require.NoError(t, err)
	info := out.(SessionInfo)

	assert.Equal(t, "docs.example", info.SessionKey)
	assert.Equal(t, "mock", info.Provider)
	assert.Equal(t, 2, info.MessageCount)
	assert.True(t, info.ContextFresh)
}

func TestSessionClear(t *testing.T) {
	orch, _, mock, store := newFixture(t)

	mock.Queue("hello")
	send(t, orch, "hi")

	_, err := orch.handleClear(context.Background(), nil)
	require.NoError(t, err)

	messages, err := store.Read("docs.example")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDeliveryFailureForwardedToSurface(t *testing.T) {
	orch, agent, mock, _ := newFixture(t)

	forwarded := make(chan json.RawMessage, 1)
	orch.bus.Handle(router.ContextSurface, "delivery.failed", func(_ context.Context, payload json.RawMessage) (interface{}, error) {
		forwarded <- payload
		return nil, nil
	})

	mock.Queue("warm the cache")
	send(t, orch, "hello")
	require.Equal(t, 1, agent.extractions)

	payload := json.RawMessage(`{"stage":"page-observer","error":"gone"}`)
	_, err := orch.handleDeliveryFailed(context.Background(), payload)
	require.NoError(t, err)

	select {
	case got := <-forwarded:
		assert.JSONEq(t, string(payload), string(got))
	case <-time.After(time.Second):
		t.Fatal("failure notice never reached the surface")
	}

	// The cached context described a page the agent lost; the next turn
	// re-extracts.
	mock.Queue("fresh look")
	send(t, orch, "again")
	assert.Equal(t, 2, agent.extractions)
}

// blockingClient stands in for a provider whose network call outlives the
// surface's patience.
type blockingClient struct {
	returned chan error
}

func (c *blockingClient) Generate(ctx context.Context, _ []types.Message, _ *types.PageContext) (*llm.Reply, error) {
	<-ctx.Done()
	c.returned <- ctx.Err()
	return nil, ctx.Err()
}

func TestAbandonedTurnNotPersisted(t *testing.T) {
	bus := router.New(time.Second)
	t.Cleanup(bus.Close)

	agent := &fakeAgent{page: testPage()}
	agent.register(bus)

	client := &blockingClient{returned: make(chan error, 1)}
	store := history.NewMemoryStore()
	New(bus, client, config.AIConfig{Provider: "mock", Model: "test"}, store, "docs.example")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := bus.Request(ctx, router.ContextCoordinator, "chat.send", ChatRequest{Content: "hi"}, nil)
	assert.ErrorIs(t, err, router.ErrTimeout)

	select {
	case gerr := <-client.returned:
		assert.ErrorIs(t, gerr, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("provider call never observed the cancellation")
	}

	messages, rerr := store.Read("docs.example")
	require.NoError(t, rerr)
	assert.Empty(t, messages, "a turn the surface gave up on must not reach the transcript")
}

func TestUnsafeReplyEscaped(t *testing.T) {
	orch, _, mock, _ := newFixture(t)

	mock.Queue(`Here: <script>alert(1)</script>`)
	reply := send(t, orch, "show me")

	assert.NotContains(t, reply.Text, "<script>")
}
