// Package orchestrator implements the DisplayOrchestrator: the thin
// top-level controller that starts the packager and the renderer together,
// and tears them down together in the reverse order.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/home-river/OAK-sub001/internal/errs"
	"github.com/home-river/OAK-sub001/internal/interfaces"
	"github.com/home-river/OAK-sub001/internal/logging"
	"github.com/home-river/OAK-sub001/internal/packager"
)

// Stats is a snapshot of orchestrated component state for logging at
// shutdown.
type Stats struct {
	PackagerStats packager.Stats
	PendingPairs  int
}

// Orchestrator wires a Packager to a Renderer and manages their combined
// lifecycle. Go has no re-entrant mutex, so Start's failure path never
// re-enters the public Stop method, which would deadlock on a second Lock
// from the same goroutine: it stops the packager and cancels its context
// directly while still holding the lock. Stop does its teardown in the
// stopLocked helper, which assumes the lock is held.
type Orchestrator struct {
	pkg      *packager.Packager
	renderer interfaces.Renderer
	log      *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New constructs an Orchestrator over an already-configured Packager and
// Renderer. Neither is started until Start is called.
func New(pkg *packager.Packager, renderer interfaces.Renderer) *Orchestrator {
	return &Orchestrator{
		pkg:      pkg,
		renderer: renderer,
		log:      logging.Default().With("orchestrator"),
	}
}

// Start brings up the packager and then the renderer. If the renderer
// fails to start, the packager is stopped again so the orchestrator never
// leaves one half running without the other; the returned error wraps
// whichever stage failed.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.pkg.Start(loopCtx)

	if err := o.renderer.Start(); err != nil {
		o.pkg.Stop(5 * time.Second)
		cancel()
		return errs.Wrap("Orchestrator.Start", errs.CodeProvider, err)
	}

	o.cancel = cancel
	o.running = true
	o.log.Info("orchestrator started")
	return nil
}

// Stop tears down the renderer and then the packager, in that order, and
// logs final stats regardless of either stage's outcome. It returns the
// first error encountered, if any.
func (o *Orchestrator) Stop(timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return nil
	}
	return o.stopLocked(timeout)
}

func (o *Orchestrator) stopLocked(timeout time.Duration) error {
	var firstErr error

	if err := o.renderer.Stop(timeout); err != nil {
		firstErr = errs.Wrap("Orchestrator.Stop", errs.CodeProvider, err)
	}
	if err := o.pkg.Stop(timeout); err != nil && firstErr == nil {
		firstErr = err
	}
	if o.cancel != nil {
		o.cancel()
	}

	stats := o.Stats()
	o.log.Info("orchestrator stopped", "render_packets", stats.PackagerStats.RenderPackets, "drops", stats.PackagerStats.Drops, "purges", stats.PackagerStats.Purges, "pending_pairs", stats.PendingPairs)

	o.running = false
	return firstErr
}

// Stats returns a snapshot of the underlying packager's counters for
// diagnostics and shutdown logging.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		PackagerStats: o.pkg.Stats(),
		PendingPairs:  o.pkg.PendingPairs(),
	}
}

// Running reports whether the orchestrator currently considers itself
// started.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
