// Package trigger provides the named-trigger bus regions bind their
// invalidation to. Subscriptions are owned handles: a callback stays
// registered until its Subscription is closed, never collected behind
// the caller's back.
package trigger

// Handler is a zero-argument callback attached to a named trigger.
type Handler func()

// Subscription is the owned handle for one attached handler.
type Subscription interface {
	// Close detaches the handler. Safe to call more than once.
	Close() error
}

// Bus attaches handlers to named triggers. Firing a trigger invokes all
// handlers attached under that name.
type Bus interface {
	Subscribe(name string, fn Handler) (Subscription, error)
}
