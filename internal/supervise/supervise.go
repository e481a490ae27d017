// SPDX-License-Identifier: MIT

// Package supervise adapts Capturist's worker lifecycles onto
// thejerf/suture/v4 service trees: one Tree per process, holding the
// long-lived background services that should be restarted on an
// unexpected panic/error rather than bringing the whole host process
// down. cmd/capturist-host registers one: the runtime-state poller.
//
// This is a from-scratch adapter: the teacher repo requires
// thejerf/suture/v4 in its go.mod but its own internal/supervisor
// package hand-rolls an equivalent goroutine-plus-WaitGroup restart
// loop instead of using it. Here the adapter is real: Tree wraps an
// actual suture.Supervisor, translating the teacher's
// Run(ctx)/Name()-shaped Service interface into suture's
// Serve(ctx)-shaped one.
package supervise

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
)

// Service is one supervised unit of work: it blocks until ctx is
// cancelled or it hits an unrecoverable error, matching the shape the
// teacher's hand-rolled supervisor used.
type Service interface {
	Run(ctx context.Context) error
	Name() string
}

// sutureService adapts Service to suture.Service (which requires
// Serve(ctx) error and a Stringer for its event-hook logging).
type sutureService struct{ svc Service }

func (s sutureService) Serve(ctx context.Context) error { return s.svc.Run(ctx) }
func (s sutureService) String() string                  { return s.svc.Name() }

// Tree is one supervision tree. Zero value is not usable; use New.
type Tree struct {
	sup *suture.Supervisor

	mu     sync.Mutex
	tokens map[string]suture.ServiceToken
	cancel context.CancelFunc
	done   <-chan error
}

// New builds a Tree identified by name, used in suture's event-hook
// log lines. Failure backoff mirrors the teacher's hand-rolled
// supervisor's "brief delay before restart" comment: a fixed 1s
// backoff, decaying after 30s of healthy running.
func New(name string) *Tree {
	spec := suture.Spec{
		FailureDecay:     30,
		FailureThreshold: 5,
		FailureBackoff:   time.Second,
	}
	return &Tree{
		sup:    suture.New(name, spec),
		tokens: make(map[string]suture.ServiceToken),
	}
}

// Add registers svc with the tree. If called after Start, the service
// is started immediately (suture's own Add behavior).
func (t *Tree) Add(svc Service) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[svc.Name()] = t.sup.Add(sutureService{svc: svc})
}

// Remove stops and unregisters the named service.
func (t *Tree) Remove(name string) error {
	t.mu.Lock()
	token, ok := t.tokens[name]
	delete(t.tokens, name)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("supervise: service %q not registered", name)
	}
	return t.sup.Remove(token)
}

// Start begins serving every registered service in the background,
// deriving a child context from ctx so Stop can cancel it.
func (t *Tree) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.done = t.sup.ServeBackground(runCtx)
	t.mu.Unlock()
}

// Stop cancels the tree's context and waits up to timeout for every
// service to finish; a non-nil error means the timeout elapsed first.
func (t *Tree) Stop(timeout time.Duration) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("supervise: shutdown timeout exceeded after %s", timeout)
	}
}
