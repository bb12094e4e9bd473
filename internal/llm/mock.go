package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ciciliostudio/sidekick/internal/types"
)

// MockClient is a canned-reply client for tests and offline runs. Replies
// can be queued; with no queue it echoes a summary of what it received.
type MockClient struct {
	mu      sync.Mutex
	queue   []Reply
	calls   int
	lastCtx *types.PageContext
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Queue appends a canned reply returned by the next Generate call.
func (m *MockClient) Queue(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, Reply{Content: content})
}

// Calls reports how many times Generate ran.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPageContext returns the snapshot passed to the most recent call.
func (m *MockClient) LastPageContext() *types.PageContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCtx
}

// Generate implements Client.
func (m *MockClient) Generate(_ context.Context, messages []types.Message, page *types.PageContext) (*Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastCtx = page

	if len(m.queue) > 0 {
		reply := m.queue[0]
		m.queue = m.queue[1:]
		return &reply, nil
	}

	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return &Reply{
		Content: fmt.Sprintf("Mock reply to %q (%d messages)", last, len(messages)),
	}, nil
}
