// Package session is the coordinator execution context. It owns the chat
// turn: freshness of the page context, provider calls, action parsing, and
// the persisted transcript.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ciciliostudio/sidekick/internal/actions"
	"github.com/ciciliostudio/sidekick/internal/config"
	"github.com/ciciliostudio/sidekick/internal/history"
	"github.com/ciciliostudio/sidekick/internal/llm"
	"github.com/ciciliostudio/sidekick/internal/logging"
	"github.com/ciciliostudio/sidekick/internal/router"
	"github.com/ciciliostudio/sidekick/internal/types"
)

// ChatRequest is one user turn sent by the chat surface.
type ChatRequest struct {
	Content string `json:"content"`
}

// PendingPrompt describes a command awaiting the user's confirmation.
type PendingPrompt struct {
	Category  string              `json:"category"`
	PendingID string              `json:"pending_id"`
	Command   types.ActionCommand `json:"command"`
	Summary   string              `json:"summary"`
}

// ChatReply is the coordinator's answer to a chat turn.
type ChatReply struct {
	Text       string          `json:"text"`
	Pending    []PendingPrompt `json:"pending,omitempty"`
	TokensUsed int             `json:"tokens_used,omitempty"`
	// Degraded is set when the page context could not be refreshed and the
	// turn ran without it.
	Degraded bool `json:"degraded,omitempty"`
	// Local is set when the turn was a recognized shorthand executed
	// without a provider call.
	Local bool `json:"local,omitempty"`
}

// SessionInfo is the answer to a session.info query.
type SessionInfo struct {
	SessionKey   string `json:"session_key"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	MessageCount int    `json:"message_count"`
	ContextFresh bool   `json:"context_fresh"`
}

// Orchestrator drives chat turns. All page interaction goes through the
// router; the orchestrator never touches the browser.
type Orchestrator struct {
	bus        *router.Router
	store      history.Store
	sessionKey string

	mu       sync.Mutex
	client   llm.Client
	provider string
	model    string

	ctxMu      sync.Mutex
	cachedPage *types.PageContext
}

// New wires an orchestrator and registers its handlers on the router.
func New(bus *router.Router, client llm.Client, cfg config.AIConfig, store history.Store, sessionKey string) *Orchestrator {
	o := &Orchestrator{
		bus:        bus,
		store:      store,
		sessionKey: sessionKey,
		client:     client,
		provider:   cfg.Provider,
		model:      cfg.Model,
	}

	bus.Handle(router.ContextCoordinator, "chat.send", o.handleChat)
	bus.Handle(router.ContextCoordinator, "context.stale", o.handleStale)
	bus.Handle(router.ContextCoordinator, "delivery.failed", o.handleDeliveryFailed)
	bus.Handle(router.ContextCoordinator, "session.info", o.handleInfo)
	bus.Handle(router.ContextCoordinator, "session.clear", o.handleClear)

	return o
}

// SwapProvider replaces the provider client, typically after a config
// reload. In-flight turns finish on the old client.
func (o *Orchestrator) SwapProvider(cfg config.AIConfig) error {
	client, err := llm.NewClient(cfg)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.client = client
	o.provider = cfg.Provider
	o.model = cfg.Model
	o.mu.Unlock()
	logging.Info("provider swapped to %s (%s)", cfg.Provider, cfg.Model)
	return nil
}

func (o *Orchestrator) handleChat(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("malformed chat request: %w", err)
	}
	if req.Content == "" {
		return nil, errors.New("empty message")
	}

	// Recognized shorthand executes directly. The typed command is itself
	// the confirmation; no provider call is made.
	if cmd, ok := actions.ParseLocalCommand(req.Content); ok {
		return o.runLocal(ctx, req.Content, *cmd)
	}

	page, degraded := o.freshContext(ctx)

	transcript, err := o.store.Read(o.sessionKey)
	if err != nil {
		logging.Warn("reading transcript: %v", err)
		transcript = nil
	}

	userMsg := types.Message{Role: types.RoleUser, Content: req.Content, Time: time.Now()}
	messages := append(append([]types.Message{}, transcript...), userMsg)

	o.mu.Lock()
	client := o.client
	o.mu.Unlock()

	reply, err := client.Generate(ctx, messages, page)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}

	cleaned, commands := actions.Parse(reply.Content)

	var prompts []PendingPrompt
	for _, cmd := range commands {
		prompt, err := o.park(ctx, cmd)
		if err != nil {
			logging.Warn("parking %s command: %v", cmd.Kind, err)
			continue
		}
		prompts = append(prompts, prompt)
	}

	// The transcript holds the user turn and the marker-stripped reply.
	// System prompts are rebuilt per turn and never persisted.
	assistantMsg := types.Message{Role: types.RoleAssistant, Content: cleaned, Time: time.Now()}
	if err := o.store.Write(o.sessionKey, append(messages, assistantMsg)); err != nil {
		logging.Warn("persisting transcript: %v", err)
	}

	return ChatReply{
		Text:       actions.EscapeUnsafe(cleaned),
		Pending:    prompts,
		TokensUsed: reply.TokensUsed,
		Degraded:   degraded,
	}, nil
}

// runLocal executes a typed shorthand command without a provider round trip.
func (o *Orchestrator) runLocal(ctx context.Context, input string, cmd types.ActionCommand) (interface{}, error) {
	var result types.ExecutionResult
	req := map[string]interface{}{"command": cmd, "confirmed": true}
	if err := o.bus.Request(ctx, router.ContextAgent, "action.execute", req, &result); err != nil {
		return nil, err
	}

	text := describeResult(cmd, result)

	transcript, err := o.store.Read(o.sessionKey)
	if err != nil {
		transcript = nil
	}
	now := time.Now()
	transcript = append(transcript,
		types.Message{Role: types.RoleUser, Content: input, Time: now},
		types.Message{Role: types.RoleAssistant, Content: text, Time: now},
	)
	if err := o.store.Write(o.sessionKey, transcript); err != nil {
		logging.Warn("persisting transcript: %v", err)
	}

	return ChatReply{Text: text, Local: true}, nil
}

// park submits an unconfirmed command to the agent and converts the parked
// state into a confirmation prompt for the surface.
func (o *Orchestrator) park(ctx context.Context, cmd types.ActionCommand) (PendingPrompt, error) {
	var result types.ExecutionResult
	req := map[string]interface{}{"command": cmd, "confirmed": false}
	if err := o.bus.Request(ctx, router.ContextAgent, "action.execute", req, &result); err != nil {
		return PendingPrompt{}, err
	}
	if result.PendingID == "" {
		return PendingPrompt{}, errors.New("command was not parked")
	}
	return PendingPrompt{
		Category:  cmd.Category(),
		PendingID: result.PendingID,
		Command:   cmd,
		Summary:   summarize(cmd),
	}, nil
}

// freshContext refreshes the page context when the cache is invalid. A
// timeout or agent failure degrades the turn rather than failing it.
func (o *Orchestrator) freshContext(ctx context.Context) (*types.PageContext, bool) {
	o.ctxMu.Lock()
	cached := o.cachedPage
	o.ctxMu.Unlock()
	if cached != nil {
		return cached, false
	}

	// Extraction keeps its own short window even when the enclosing chat
	// turn carries a provider-scale deadline.
	ectx, cancel := context.WithTimeout(ctx, router.DefaultTimeout)
	defer cancel()

	var page types.PageContext
	if err := o.bus.Request(ectx, router.ContextAgent, "context.extract", nil, &page); err != nil {
		logging.Warn("context extraction failed, continuing degraded: %v", err)
		return nil, true
	}

	o.ctxMu.Lock()
	o.cachedPage = &page
	o.ctxMu.Unlock()
	return &page, false
}

func (o *Orchestrator) handleStale(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	o.ctxMu.Lock()
	o.cachedPage = nil
	o.ctxMu.Unlock()

	// Forward so the surface can show a staleness indicator.
	if err := o.bus.Notify(router.ContextSurface, "context.stale", payload); err != nil {
		logging.Debug("forwarding staleness to surface: %v", err)
	}
	return nil, nil
}

// handleDeliveryFailed relays a terminal page-side failure to the surface.
// The cached context is also dropped; it describes a page the agent can no
// longer watch.
func (o *Orchestrator) handleDeliveryFailed(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	o.ctxMu.Lock()
	o.cachedPage = nil
	o.ctxMu.Unlock()

	if err := o.bus.Notify(router.ContextSurface, "delivery.failed", payload); err != nil {
		logging.Debug("forwarding delivery failure to surface: %v", err)
	}
	return nil, nil
}

func (o *Orchestrator) handleInfo(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	transcript, err := o.store.Read(o.sessionKey)
	if err != nil {
		return nil, err
	}

	o.ctxMu.Lock()
	fresh := o.cachedPage != nil
	o.ctxMu.Unlock()

	o.mu.Lock()
	provider, model := o.provider, o.model
	o.mu.Unlock()

	return SessionInfo{
		SessionKey:   o.sessionKey,
		Provider:     provider,
		Model:        model,
		MessageCount: len(transcript),
		ContextFresh: fresh,
	}, nil
}

func (o *Orchestrator) handleClear(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	if err := o.store.Clear(o.sessionKey); err != nil {
		return nil, err
	}
	return nil, nil
}

// summarize renders a confirmation question for a parked command.
func summarize(cmd types.ActionCommand) string {
	switch cmd.Kind {
	case types.ActionFillForm:
		return fmt.Sprintf("Fill %d form field(s)?", len(cmd.Fields))
	case types.ActionClick:
		return fmt.Sprintf("Click %q?", targetLabel(cmd.Target))
	default:
		return fmt.Sprintf("Highlight %q?", targetLabel(cmd.Target))
	}
}

func describeResult(cmd types.ActionCommand, result types.ExecutionResult) string {
	if !result.Success {
		reason := result.Reason
		if reason == "" {
			reason = "unknown failure"
		}
		return fmt.Sprintf("Could not %s %q: %s.", cmd.Kind, targetLabel(cmd.Target), reason)
	}
	if result.ElementText != "" {
		return fmt.Sprintf("Done. Highlighted %q.", result.ElementText)
	}
	return "Done."
}

func targetLabel(t types.TargetDescriptor) string {
	switch {
	case t.Text != "":
		return t.Text
	case t.ID != "":
		return t.ID
	default:
		return t.Name
	}
}
