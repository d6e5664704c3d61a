package health

import "context"

// Checker probes one component.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a probe function, e.g. a store's Ping, to Checker.
type CheckFunc func(ctx context.Context) error

// Check calls f.
func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }
