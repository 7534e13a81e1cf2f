// Package cleanup provides a scope-exit action list.
//
// A Guard is created at the top of a scope and released with defer. Actions run in
// reverse registration order. When the scope is already failing, an action's own
// failure is only logged so it never masks the error in flight.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/kernel/crate/lib/logger"
)

type action struct {
	name string
	fn   func() error
}

// Guard runs registered actions when its owning scope ends
type Guard struct {
	actions []action
}

// New creates an empty Guard
func New() *Guard {
	return &Guard{}
}

// Add registers fn under name
func (g *Guard) Add(name string, fn func() error) {
	g.actions = append(g.actions, action{name: name, fn: fn})
}

// Len returns the number of pending actions
func (g *Guard) Len() int {
	return len(g.actions)
}

// Dismiss drops every pending action without running it
func (g *Guard) Dismiss() {
	g.actions = nil
}

// DoNow runs the pending actions immediately and lets their errors propagate.
// The list is cleared either way, so a later Release is a no-op.
func (g *Guard) DoNow() error {
	pending := g.take()
	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pending[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// Release runs the pending actions at scope exit. Failures are logged as warnings and
// never replace *errp.
func (g *Guard) Release(ctx context.Context, errp *error) {
	pending := g.take()
	if len(pending) == 0 {
		return
	}
	log := logger.FromContext(ctx)
	inFlight := errp != nil && *errp != nil

	for i := len(pending) - 1; i >= 0; i-- {
		if err := runRecovered(pending[i].fn); err != nil {
			if inFlight {
				log.WarnContext(ctx, "cleanup failed while another error is in progress",
					"action", pending[i].name, "error", err, "in_flight", *errp)
			} else {
				log.WarnContext(ctx, "cleanup failed", "action", pending[i].name, "error", err)
			}
		}
	}
}

func (g *Guard) take() []action {
	pending := g.actions
	g.actions = nil
	return pending
}

func runRecovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
