// Package router carries typed, correlated envelopes between the three
// execution contexts (coordinator, page agent, chat surface). Contexts share
// no memory; every cross-context interaction is a message delivered here.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ciciliostudio/sidekick/internal/logging"
)

// The three execution contexts. Every context registers under exactly one of
// these names.
const (
	ContextCoordinator = "coordinator"
	ContextAgent       = "agent"
	ContextSurface     = "surface"
)

// DefaultTimeout bounds a request whose caller imposed no deadline of its
// own. Context extraction uses this window; a caller that hears nothing
// proceeds degraded. Callers whose handlers make provider-scale network
// calls pass their own, larger deadline instead.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout means the reply never arrived inside the bounded window.
	ErrTimeout = errors.New("request timed out")

	// ErrUnknownContext means no execution context registered that name.
	ErrUnknownContext = errors.New("unknown execution context")
)

// Envelope is the wire shape exchanged between contexts. Requests carry a
// correlation id generated by the sender and echoed by the responder.
type Envelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// HandlerFunc services one message type. Returned values are marshaled into
// the reply payload, and errors become structured {error} replies so handlers
// never leak panics or raw errors across the context boundary.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// delivery pairs an envelope with the sender's context so handlers observe
// cancellation when the caller gives up on the request.
type delivery struct {
	env Envelope
	ctx context.Context
}

type endpoint struct {
	name     string
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	inbox    chan delivery
}

// Router connects named execution contexts.
type Router struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint

	pendingMu sync.Mutex
	pending   map[string]chan Envelope

	timeout time.Duration
	done    chan struct{}
}

// New creates a router. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Router{
		endpoints: make(map[string]*endpoint),
		pending:   make(map[string]chan Envelope),
		timeout:   timeout,
		done:      make(chan struct{}),
	}
}

// Handle registers a handler for a message type on the named context. The
// context's dispatch loop starts on its first registration.
func (r *Router) Handle(contextName, msgType string, handler HandlerFunc) {
	r.mu.Lock()
	ep, ok := r.endpoints[contextName]
	if !ok {
		ep = &endpoint{
			name:     contextName,
			handlers: make(map[string]HandlerFunc),
			inbox:    make(chan delivery, 16),
		}
		r.endpoints[contextName] = ep
		go r.dispatch(ep)
	}
	r.mu.Unlock()

	ep.mu.Lock()
	ep.handlers[msgType] = handler
	ep.mu.Unlock()
}

// Request delivers a typed envelope to the named context and waits for the
// correlated reply, unmarshaling its payload into out (which may be nil).
// The caller's ctx deadline bounds the wait; a ctx without a deadline gets
// the router's default timeout. The handler runs under the same ctx, so an
// abandoned request cancels the work instead of letting it finish invisibly.
func (r *Router) Request(ctx context.Context, to, msgType string, payload, out interface{}) error {
	ep, err := r.endpoint(to)
	if err != nil {
		return err
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	if _, bounded := ctx.Deadline(); !bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	corrID := uuid.NewString()
	reply := make(chan Envelope, 1)
	r.pendingMu.Lock()
	r.pending[corrID] = reply
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, corrID)
		r.pendingMu.Unlock()
	}()

	env := Envelope{Type: msgType, CorrelationID: corrID, Payload: raw}
	select {
	case ep.inbox <- delivery{env: env, ctx: ctx}:
	case <-ctx.Done():
		return requestErr(ctx, msgType, to)
	case <-r.done:
		return ErrUnknownContext
	}

	select {
	case resp := <-reply:
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		if out != nil && len(resp.Payload) > 0 {
			return json.Unmarshal(resp.Payload, out)
		}
		return nil
	case <-ctx.Done():
		return requestErr(ctx, msgType, to)
	}
}

// requestErr maps a deadline expiry to ErrTimeout; explicit cancellation
// passes through unchanged.
func requestErr(ctx context.Context, msgType, to string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logging.Warn("request %s to %s timed out", msgType, to)
		return ErrTimeout
	}
	return ctx.Err()
}

// Notify delivers a fire-and-forget envelope; no reply is expected.
func (r *Router) Notify(to, msgType string, payload interface{}) error {
	ep, err := r.endpoint(to)
	if err != nil {
		return err
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	select {
	case ep.inbox <- delivery{env: Envelope{Type: msgType, Payload: raw}}:
		return nil
	case <-r.done:
		return ErrUnknownContext
	}
}

// Close stops all dispatch loops.
func (r *Router) Close() {
	close(r.done)
}

func (r *Router) endpoint(name string) (*endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContext, name)
	}
	return ep, nil
}

func (r *Router) dispatch(ep *endpoint) {
	for {
		select {
		case del := <-ep.inbox:
			r.serve(ep, del)
		case <-r.done:
			return
		}
	}
}

func (r *Router) serve(ep *endpoint, del delivery) {
	env := del.env
	ctx := del.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	ep.mu.RLock()
	handler, ok := ep.handlers[env.Type]
	ep.mu.RUnlock()

	var result interface{}
	var err error
	if !ok {
		err = fmt.Errorf("context %s has no handler for %s", ep.name, env.Type)
	} else {
		result, err = invoke(ctx, handler, env.Payload)
	}

	if env.CorrelationID == "" {
		if err != nil {
			logging.Warn("notification %s to %s failed: %v", env.Type, ep.name, err)
		}
		return
	}

	resp := Envelope{Type: env.Type + ".result", CorrelationID: env.CorrelationID}
	if err != nil {
		resp.Error = err.Error()
	} else if result != nil {
		if raw, merr := json.Marshal(result); merr != nil {
			resp.Error = merr.Error()
		} else {
			resp.Payload = raw
		}
	}

	r.pendingMu.Lock()
	reply, waiting := r.pending[env.CorrelationID]
	r.pendingMu.Unlock()
	if !waiting {
		// The caller gave up; a late reply is discarded.
		return
	}
	select {
	case reply <- resp:
	default:
	}
}

// invoke runs a handler, converting panics into errors so no failure
// crosses the context boundary raw.
func invoke(ctx context.Context, handler HandlerFunc, payload json.RawMessage) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(ctx, payload)
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return raw, nil
}
