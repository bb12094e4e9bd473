// Package pending holds at most one in-flight command per action category
// while it awaits user confirmation. Confirmation is never cached: every
// command needs its own fresh confirm.
package pending

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ciciliostudio/sidekick/internal/types"
)

// State is the per-category lifecycle. Resolved is terminal for an instance
// and clears straight back to Idle.
type State int

const (
	Idle State = iota
	AwaitingConfirmation
	Executing
)

var (
	// ErrNoPending means the category has nothing awaiting confirmation.
	ErrNoPending = errors.New("no pending action for category")

	// ErrSuperseded means the confirmed instance was replaced by a newer
	// command before the confirmation arrived.
	ErrSuperseded = errors.New("pending action was superseded")
)

type entry struct {
	id      string
	command types.ActionCommand
	state   State
}

// Store tracks pending commands keyed by category.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Put stores a command awaiting confirmation, replacing wholesale any
// earlier command of the same category (last-writer-wins, no queueing).
// It returns the instance id the confirmation must echo.
func (s *Store) Put(cmd types.ActionCommand) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.entries[cmd.Category()] = &entry{
		id:      id,
		command: cmd,
		state:   AwaitingConfirmation,
	}
	return id
}

// Confirm transitions the category's pending command to Executing and
// returns it. A stale instance id is rejected.
func (s *Store) Confirm(category, id string) (types.ActionCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[category]
	if !ok || e.state != AwaitingConfirmation {
		return types.ActionCommand{}, ErrNoPending
	}
	if e.id != id {
		return types.ActionCommand{}, ErrSuperseded
	}
	e.state = Executing
	return e.command, nil
}

// Cancel drops an awaiting command without executing it. A stale instance
// id is rejected so cancelling an old prompt never discards the command
// that replaced it.
func (s *Store) Cancel(category, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[category]
	if !ok || e.state != AwaitingConfirmation {
		return ErrNoPending
	}
	if e.id != id {
		return ErrSuperseded
	}
	delete(s.entries, category)
	return nil
}

// Resolve marks the executing instance finished and clears the category.
func (s *Store) Resolve(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, category)
}

// StateOf reports the category's current state.
func (s *Store) StateOf(category string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[category]; ok {
		return e.state
	}
	return Idle
}

// Peek returns the command awaiting confirmation for the category, if any.
func (s *Store) Peek(category string) (types.ActionCommand, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[category]
	if !ok || e.state != AwaitingConfirmation {
		return types.ActionCommand{}, "", false
	}
	return e.command, e.id, true
}
