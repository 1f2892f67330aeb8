// Package completion correlates asynchronous send completion signals with the
// call that is waiting for them.
//
// Every send registers a one-shot Listener under a fresh token. The listener
// is removed from the registry before its signal is handed over, so a token
// can fire at most once and a late or duplicate signal is rejected with
// ErrUnknownToken.
package completion

import (
	"context"
	"errors"
	"sync"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"

	"github.com/google/uuid"
)

var ErrUnknownToken = errors.New("unknown or already completed token")

// Listener is a single registered completion slot.
type Listener struct {
	Token string

	reg *Registry
	ch  chan domain.Completion
}

// Done yields the completion once it arrives.
func (l *Listener) Done() <-chan domain.Completion { return l.ch }

// Cancel deregisters the listener. It reports whether the listener was still
// registered; after a delivery it is a no-op.
func (l *Listener) Cancel() bool {
	return l.reg.remove(l.Token) != nil
}

// Registry holds the listeners of all in-flight sends.
type Registry struct {
	mu        sync.Mutex
	listeners map[string]*Listener
	newToken  func() string
}

func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string]*Listener),
		newToken:  func() string { return uuid.NewString() },
	}
}

// Register creates a listener under a token no other in-flight send holds.
func (r *Registry) Register() *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := r.newToken()
	for r.listeners[token] != nil {
		token = r.newToken()
	}
	l := &Listener{Token: token, reg: r, ch: make(chan domain.Completion, 1)}
	r.listeners[token] = l
	return l
}

// Deliver hands a completion to the listener registered under its token.
func (r *Registry) Deliver(_ context.Context, c domain.Completion) error {
	l := r.remove(c.Token)
	if l == nil {
		return ErrUnknownToken
	}
	// Buffered and removed above: this send never blocks and happens once.
	l.ch <- c
	return nil
}

// Pending is the number of listeners still waiting.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func (r *Registry) remove(token string) *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listeners[token]
	if !ok {
		return nil
	}
	delete(r.listeners, token)
	return l
}

var _ ports.CompletionSink = (*Registry)(nil)
