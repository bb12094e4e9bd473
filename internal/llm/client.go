// Package llm provides the reply-generation capability. The core never calls
// a network endpoint itself; it hands an ordered message list plus the
// current page snapshot to a Client and gets text back.
package llm

import (
	"context"
	"fmt"

	"github.com/ciciliostudio/sidekick/internal/config"
	"github.com/ciciliostudio/sidekick/internal/types"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Reply is one generated assistant turn.
type Reply struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Client generates assistant replies. Implementations prepend a system
// message embedding the serialized page context and the action-marker
// grammar; raw page content is never sent without that wrapping.
type Client interface {
	Generate(ctx context.Context, messages []types.Message, page *types.PageContext) (*Reply, error)
}

// NewClient creates a client for the configured provider. Exactly one
// provider is active per exchange; an unknown name fails fast.
func NewClient(cfg config.AIConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
