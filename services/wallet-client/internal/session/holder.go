package session

import (
	"context"
	"sync"

	"parkease/services/wallet-client/internal/models"
)

// State is the SessionSync state.
type State string

const (
	StateSignedOut     State = "signed_out"
	StateVerifying     State = "verifying"
	StateAuthenticated State = "authenticated"
)

// Source is the read-only view of the current session handed to every other component.
type Source interface {
	Current() (models.Session, bool)
}

// Holder owns the single live Session. Writes are unexported: only Sync changes it.
type Holder struct {
	mu      sync.RWMutex
	state   State
	session *models.Session
	version uint64
	changed chan struct{}
}

// NewHolder returns a signed-out holder.
func NewHolder() *Holder {
	return &Holder{state: StateSignedOut, changed: make(chan struct{})}
}

// Current returns a copy of the session when one is authenticated.
func (h *Holder) Current() (models.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != StateAuthenticated || h.session == nil {
		return models.Session{}, false
	}
	return *h.session, true
}

// State returns the current state.
func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Version increments on every transition.
func (h *Holder) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// AwaitAfter blocks until a transition newer than since lands in a state accepted by done.
func (h *Holder) AwaitAfter(ctx context.Context, since uint64, done func(State) bool) (State, error) {
	for {
		h.mu.RLock()
		state, version, ch := h.state, h.version, h.changed
		h.mu.RUnlock()

		if version > since && done(state) {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ch:
		}
	}
}

type snapshot struct {
	state   State
	session *models.Session
}

func (h *Holder) snapshot() snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot{state: h.state, session: h.session}
}

func (h *Holder) set(state State, session *models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	h.session = session
	h.version++
	close(h.changed)
	h.changed = make(chan struct{})
}
