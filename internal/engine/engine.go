package engine

import (
	"context"
	"time"
)

// Engine evaluates due schedules and issues start/stop commands against the
// owning users' cloud accounts.
type Engine interface {
	// Start begins the evaluation loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the engine, waiting for an in-flight
	// tick to finish.
	Stop() error

	// Tick runs a single evaluation at the given timestamp. Used for
	// testing; a tick already in flight makes it a no-op.
	Tick(ctx context.Context, now time.Time) error
}
