// Package agent is the page-side execution context. It owns page access:
// context extraction, action execution, and staleness forwarding all happen
// here, and other contexts reach it only through the router.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ciciliostudio/sidekick/internal/detect"
	"github.com/ciciliostudio/sidekick/internal/executor"
	"github.com/ciciliostudio/sidekick/internal/extract"
	"github.com/ciciliostudio/sidekick/internal/logging"
	"github.com/ciciliostudio/sidekick/internal/pending"
	"github.com/ciciliostudio/sidekick/internal/router"
	"github.com/ciciliostudio/sidekick/internal/types"
)

// PageSource is the slice of the browser manager the agent needs. Tests
// substitute a fake serving canned HTML.
type PageSource interface {
	PageHTML() (string, error)
	PageInfo() (url, title string, err error)
	SelectedText() (string, error)
	BodyTextLength() (int, error)
}

// StaleNotice is the payload forwarded to the coordinator when the page
// context goes stale.
type StaleNotice struct {
	Cause string `json:"cause"`
	URL   string `json:"url,omitempty"`
	Delta int    `json:"delta,omitempty"`
}

// ExecuteRequest asks the agent to run or park a command.
type ExecuteRequest struct {
	Command   types.ActionCommand `json:"command"`
	Confirmed bool                `json:"confirmed"`
}

// ConfirmRequest confirms a parked command by category and instance id.
type ConfirmRequest struct {
	Category  string `json:"category"`
	PendingID string `json:"pending_id"`
}

// CancelRequest drops a parked command by category and instance id.
type CancelRequest struct {
	Category  string `json:"category"`
	PendingID string `json:"pending_id"`
}

// SurfaceState reports whether the chat surface was already open.
type SurfaceState struct {
	AlreadyOpen bool `json:"already_open"`
}

// DeliveryFailure tells the coordinator a bounded retry budget ran out and
// the named capability is down until the next successful extraction.
type DeliveryFailure struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

const (
	reinjectRetries = 3
	reinjectBackoff = 200 * time.Millisecond
)

// Agent services page-side requests.
type Agent struct {
	source   PageSource
	exec     *executor.Executor
	detector *detect.Detector
	bus      *router.Router

	// reinject re-verifies page access after a navigation. Optional; nil
	// when no live browser backs the agent.
	reinject func() error
	backoff  time.Duration

	mu          sync.Mutex
	surfaceOpen bool
}

// New wires an agent and registers its handlers on the router.
func New(bus *router.Router, source PageSource, exec *executor.Executor, detector *detect.Detector) *Agent {
	a := &Agent{
		source:   source,
		exec:     exec,
		detector: detector,
		bus:      bus,
		backoff:  reinjectBackoff,
	}

	bus.Handle(router.ContextAgent, "context.extract", a.handleExtract)
	bus.Handle(router.ContextAgent, "action.execute", a.handleExecute)
	bus.Handle(router.ContextAgent, "action.confirm", a.handleConfirm)
	bus.Handle(router.ContextAgent, "action.cancel", a.handleCancel)
	bus.Handle(router.ContextAgent, "surface.open", a.handleSurfaceOpen)
	bus.Handle(router.ContextAgent, "surface.close", a.handleSurfaceClose)

	return a
}

// SetReinjector installs the callback run after navigation signals to restore
// page access, retried a bounded number of times.
func (a *Agent) SetReinjector(fn func() error) {
	a.reinject = fn
}

// Run forwards detector signals to the coordinator until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case sig, ok := <-a.detector.Signals():
			if !ok {
				return
			}
			notice := StaleNotice{Cause: string(sig.Cause), URL: sig.URL, Delta: sig.Delta}
			if err := a.bus.Notify(router.ContextCoordinator, "context.stale", notice); err != nil {
				logging.Warn("forwarding staleness signal: %v", err)
			}
			if sig.Cause == detect.CauseNavigation {
				a.ensureInjected()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) handleExtract(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	html, err := a.source.PageHTML()
	if err != nil {
		return nil, fmt.Errorf("page unreachable: %w", err)
	}
	url, title, err := a.source.PageInfo()
	if err != nil {
		return nil, fmt.Errorf("page info unavailable: %w", err)
	}
	selection, err := a.source.SelectedText()
	if err != nil {
		logging.Debug("reading selection failed: %v", err)
		selection = ""
	}

	page, err := extract.Extract(html, url, title, selection)
	if err != nil {
		return nil, err
	}

	if length, err := a.source.BodyTextLength(); err == nil {
		a.detector.SetBaseline(length)
	} else {
		logging.Debug("baseline measurement failed: %v", err)
	}

	return page, nil
}

func (a *Agent) handleExecute(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req ExecuteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("malformed execute request: %w", err)
	}
	result := a.exec.Execute(ctx, req.Command, req.Confirmed)
	return result, nil
}

func (a *Agent) handleConfirm(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req ConfirmRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("malformed confirm request: %w", err)
	}
	result, err := a.exec.Confirm(ctx, req.Category, req.PendingID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *Agent) handleCancel(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req CancelRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("malformed cancel request: %w", err)
	}
	if err := a.exec.Pending().Cancel(req.Category, req.PendingID); err != nil {
		if err == pending.ErrNoPending || err == pending.ErrSuperseded {
			// Nothing to drop, or the prompt was already replaced by a
			// newer command that stays parked.
			return SurfaceState{}, nil
		}
		return nil, err
	}
	return SurfaceState{}, nil
}

// handleSurfaceOpen enforces the surface singleton. A second open request is
// a no-op that reports the surface was already up.
func (a *Agent) handleSurfaceOpen(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := SurfaceState{AlreadyOpen: a.surfaceOpen}
	a.surfaceOpen = true
	return state, nil
}

func (a *Agent) handleSurfaceClose(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.surfaceOpen = false
	return SurfaceState{}, nil
}

// ensureInjected retries page-access restoration after a navigation. When
// the retry budget runs out, the failure is reported through the router so
// the user learns page-change tracking is down, not just the log.
func (a *Agent) ensureInjected() {
	if a.reinject == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= reinjectRetries; attempt++ {
		if err = a.reinject(); err == nil {
			return
		}
		logging.Debug("re-injection attempt %d failed: %v", attempt, err)
		time.Sleep(a.backoff * time.Duration(attempt))
	}
	logging.Warn("page access not restored after %d attempts: %v", reinjectRetries, err)

	failure := DeliveryFailure{Stage: "page-observer", Error: err.Error()}
	if nerr := a.bus.Notify(router.ContextCoordinator, "delivery.failed", failure); nerr != nil {
		logging.Warn("reporting delivery failure: %v", nerr)
	}
}
