// Package ui is the chat surface execution context. It renders the
// conversation and confirmation prompts; everything it knows arrives through
// the router, never from the page or coordinator directly.
package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ciciliostudio/sidekick/internal/logging"
	"github.com/ciciliostudio/sidekick/internal/router"
	"github.com/ciciliostudio/sidekick/internal/session"
	"github.com/ciciliostudio/sidekick/internal/types"
)

// ChatMessage is a single rendered line of the conversation.
type ChatMessage struct {
	Role      string
	Content   string
	Timestamp time.Time
	IsError   bool
}

// Messages delivered by background commands.
type (
	chatReplyMsg struct {
		reply session.ChatReply
		err   error
	}
	execResultMsg struct {
		prompt session.PendingPrompt
		result types.ExecutionResult
		err    error
	}
	staleMsg struct {
		cause string
	}
	deliveryFailedMsg struct {
		stage  string
		reason string
	}
	surfaceOpenedMsg struct {
		alreadyOpen bool
		err         error
	}
	sessionInfoMsg struct {
		info session.SessionInfo
		err  error
	}
	sessionClearedMsg struct {
		err error
	}
)

// Event channel capacity; notifications beyond this are dropped.
const eventBuffer = 8

// chatTimeout bounds a full chat turn, which includes a provider network
// call. Everything else the surface requests keeps the router default.
const chatTimeout = 2 * time.Minute

// Model is the chat surface.
type Model struct {
	bus *router.Router

	messages []ChatMessage
	viewport viewport.Model
	textarea textarea.Model

	// pending confirmation prompts, oldest first; the head is the one the
	// y/n keys answer.
	pending []session.PendingPrompt

	events chan tea.Msg

	width        int
	height       int
	isProcessing bool
	stale        bool

	styles *Styles
}

// NewModel creates the chat surface and registers its router endpoint.
func NewModel(bus *router.Router) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about this page, or type: highlight \"Submit\""
	ta.CharLimit = 500
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.Focus()

	vp := viewport.New(80, 20)

	m := &Model{
		bus:      bus,
		messages: []ChatMessage{},
		viewport: vp,
		textarea: ta,
		events:   make(chan tea.Msg, eventBuffer),
		width:    80,
		height:   25,
		styles:   NewStyles(),
	}

	bus.Handle(router.ContextSurface, "context.stale", m.handleStaleNotice)
	bus.Handle(router.ContextSurface, "delivery.failed", m.handleDeliveryFailure)

	m.addMessage("system", "Sidekick is watching this page. Ask anything, or use highlight/scroll commands.", false)

	return m
}

// handleStaleNotice runs on the router's dispatch goroutine; it forwards the
// notice into the bubbletea event loop.
func (m *Model) handleStaleNotice(_ context.Context, payload json.RawMessage) (interface{}, error) {
	var notice struct {
		Cause string `json:"cause"`
	}
	if err := json.Unmarshal(payload, &notice); err != nil {
		return nil, err
	}
	select {
	case m.events <- staleMsg{cause: notice.Cause}:
	default:
	}
	return nil, nil
}

// handleDeliveryFailure forwards a terminal page-side failure into the
// bubbletea event loop.
func (m *Model) handleDeliveryFailure(_ context.Context, payload json.RawMessage) (interface{}, error) {
	var failure struct {
		Stage string `json:"stage"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &failure); err != nil {
		return nil, err
	}
	select {
	case m.events <- deliveryFailedMsg{stage: failure.Stage, reason: failure.Error}:
	default:
	}
	return nil, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.openSurface(),
		m.awaitEvent(),
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 10
		m.textarea.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.closeSurface()
			return m, tea.Quit
		case tea.KeyCtrlS:
			if !m.isProcessing {
				return m, m.submit()
			}
		case tea.KeyCtrlG:
			return m, m.requestInfo()
		case tea.KeyCtrlL:
			return m, m.clearSession()
		case tea.KeyEnter:
			if len(m.pending) > 0 {
				break
			}
			if !m.isProcessing {
				return m, m.submit()
			}
		}

		// A pending confirmation captures y/n before the textarea does.
		if len(m.pending) > 0 {
			switch msg.String() {
			case "y", "Y":
				return m, m.answerPending(true)
			case "n", "N":
				return m, m.answerPending(false)
			}
		}

	case surfaceOpenedMsg:
		if msg.err != nil {
			m.addMessage("system", fmt.Sprintf("Could not register surface: %v", msg.err), true)
		} else if msg.alreadyOpen {
			m.addMessage("system", "Another chat surface was already open; reusing it.", false)
		}

	case chatReplyMsg:
		m.isProcessing = false
		if msg.err != nil {
			m.addMessage("assistant", fmt.Sprintf("Error: %v", msg.err), true)
			break
		}
		m.stale = false
		if msg.reply.Degraded {
			m.addMessage("system", "Page context unavailable; answering without it.", false)
		}
		if msg.reply.Text != "" {
			m.addMessage("assistant", msg.reply.Text, false)
		}
		m.pending = append(m.pending, msg.reply.Pending...)
		if len(m.pending) > 0 {
			m.addMessage("system", m.pending[0].Summary+" [y/n]", false)
		}

	case execResultMsg:
		if msg.err != nil {
			m.addMessage("system", fmt.Sprintf("Action failed: %v", msg.err), true)
		} else {
			m.addMessage("system", renderResult(msg.prompt, msg.result), !msg.result.Success)
		}
		if len(m.pending) > 0 {
			m.addMessage("system", m.pending[0].Summary+" [y/n]", false)
		}

	case sessionInfoMsg:
		if msg.err != nil {
			m.addMessage("system", fmt.Sprintf("Session info unavailable: %v", msg.err), true)
			break
		}
		m.addMessage("system", fmt.Sprintf("Session %s | %s/%s | %d message(s)",
			msg.info.SessionKey, msg.info.Provider, msg.info.Model, msg.info.MessageCount), false)

	case sessionClearedMsg:
		if msg.err != nil {
			m.addMessage("system", fmt.Sprintf("Could not clear history: %v", msg.err), true)
			break
		}
		m.messages = nil
		m.addMessage("system", "Conversation history cleared.", false)

	case staleMsg:
		m.stale = true
		cmds = append(cmds, m.awaitEvent())

	case deliveryFailedMsg:
		m.stale = true
		m.addMessage("system", fmt.Sprintf(
			"Lost contact with the page (%s): %s. Page-change tracking is unavailable until the next successful question.",
			msg.stage, msg.reason), true)
		cmds = append(cmds, m.awaitEvent())
	}

	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, taCmd, vpCmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m *Model) View() string {
	title := m.styles.Title.Render("Sidekick")
	if m.stale {
		title += "  " + m.styles.Stale.Render("(page changed)")
	}

	var footer string
	switch {
	case len(m.pending) > 0:
		footer = m.styles.Confirm.Render("Confirm pending action: [y] run  [n] cancel")
	case m.isProcessing:
		footer = m.styles.Footer.Render("Thinking...")
	default:
		footer = m.styles.Footer.Render("[Enter Send] [^G Info] [^L Clear] [Esc Quit]")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		m.styles.Border.Render(m.viewport.View()),
		m.textarea.View(),
		footer,
	)
}

func (m *Model) submit() tea.Cmd {
	content := strings.TrimSpace(m.textarea.Value())
	if content == "" {
		return nil
	}
	m.textarea.Reset()
	m.addMessage("user", content, false)
	m.isProcessing = true

	bus := m.bus
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
		defer cancel()
		var reply session.ChatReply
		err := bus.Request(ctx, router.ContextCoordinator, "chat.send",
			session.ChatRequest{Content: content}, &reply)
		return chatReplyMsg{reply: reply, err: err}
	}
}

// answerPending confirms or cancels the head prompt.
func (m *Model) answerPending(confirm bool) tea.Cmd {
	prompt := m.pending[0]
	m.pending = m.pending[1:]

	bus := m.bus
	if !confirm {
		m.addMessage("system", "Cancelled.", false)
		return func() tea.Msg {
			err := bus.Request(context.Background(), router.ContextAgent, "action.cancel",
				map[string]string{"category": prompt.Category, "pending_id": prompt.PendingID}, nil)
			if err != nil {
				logging.Debug("cancel request failed: %v", err)
			}
			return execResultMsg{prompt: prompt, result: types.ExecutionResult{Success: true, Reason: "cancelled"}}
		}
	}

	return func() tea.Msg {
		var result types.ExecutionResult
		err := bus.Request(context.Background(), router.ContextAgent, "action.confirm",
			map[string]string{"category": prompt.Category, "pending_id": prompt.PendingID}, &result)
		return execResultMsg{prompt: prompt, result: result, err: err}
	}
}

func (m *Model) requestInfo() tea.Cmd {
	bus := m.bus
	return func() tea.Msg {
		var info session.SessionInfo
		err := bus.Request(context.Background(), router.ContextCoordinator, "session.info", nil, &info)
		return sessionInfoMsg{info: info, err: err}
	}
}

func (m *Model) clearSession() tea.Cmd {
	bus := m.bus
	return func() tea.Msg {
		err := bus.Request(context.Background(), router.ContextCoordinator, "session.clear", nil, nil)
		return sessionClearedMsg{err: err}
	}
}

func (m *Model) openSurface() tea.Cmd {
	bus := m.bus
	return func() tea.Msg {
		var state struct {
			AlreadyOpen bool `json:"already_open"`
		}
		err := bus.Request(context.Background(), router.ContextAgent, "surface.open", nil, &state)
		return surfaceOpenedMsg{alreadyOpen: state.AlreadyOpen, err: err}
	}
}

func (m *Model) closeSurface() {
	if err := m.bus.Request(context.Background(), router.ContextAgent, "surface.close", nil, nil); err != nil {
		logging.Debug("surface close failed: %v", err)
	}
}

// awaitEvent blocks on the notification channel and re-arms after each event.
func (m *Model) awaitEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m *Model) addMessage(role, content string, isErr bool) {
	m.messages = append(m.messages, ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		IsError:   isErr,
	})
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m *Model) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.messages {
		var line string
		switch {
		case msg.IsError:
			line = m.styles.Error.Render(msg.Content)
		case msg.Role == "user":
			line = m.styles.User.Render("You: ") + msg.Content
		case msg.Role == "assistant":
			line = m.styles.Assistant.Render(msg.Content)
		default:
			line = m.styles.System.Render(msg.Content)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func renderResult(prompt session.PendingPrompt, result types.ExecutionResult) string {
	if result.Reason == "cancelled" {
		return "Action cancelled."
	}
	switch prompt.Command.Kind {
	case types.ActionFillForm:
		return fmt.Sprintf("Filled %d field(s), %d failed.", result.Filled, result.Failed)
	default:
		if !result.Success {
			return fmt.Sprintf("Could not complete the action: %s.", result.Reason)
		}
		if result.ElementText != "" {
			return fmt.Sprintf("Done: %s.", result.ElementText)
		}
		return "Done."
	}
}
