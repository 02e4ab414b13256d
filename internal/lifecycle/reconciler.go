package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/scrap-tracking/internal/models"
)

// DefaultPollInterval matches the detail view's 5s refresh cadence.
const DefaultPollInterval = 5 * time.Second

// OrderFetcher reads the authoritative order record, typically the
// upstream order API.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, id string) (*models.Assignment, error)
}

// Reconciler owns the polling subscription for one open detail view:
// a fixed ticker plus a wake channel for visibility/focus events. It is
// started with the view's context and everything stops when that
// context is cancelled, so no timer outlives its view.
type Reconciler struct {
	machine  *Machine
	fetch    OrderFetcher
	interval time.Duration
	logger   *slog.Logger
	wake     chan struct{}
}

func NewReconciler(machine *Machine, fetch OrderFetcher, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		machine:  machine,
		fetch:    fetch,
		interval: interval,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Wake forces an immediate refresh, e.g. when the view regains focus.
func (r *Reconciler) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Watch polls the authoritative order until ctx is cancelled. Fetch
// failures are logged and skipped; the next tick retries. There is no
// backoff here on purpose: the cadence is the contract.
func (r *Reconciler) Watch(ctx context.Context, assignmentID string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.refresh(ctx, assignmentID)
	}
}

func (r *Reconciler) refresh(ctx context.Context, assignmentID string) {
	authoritative, err := r.fetch.FetchOrder(ctx, assignmentID)
	if err != nil {
		r.logger.Warn("authoritative fetch failed", "assignment_id", assignmentID, "error", err)
		return
	}
	if authoritative == nil {
		return
	}
	if _, err := r.machine.Reconcile(ctx, authoritative); err != nil {
		r.logger.Warn("reconcile failed", "assignment_id", assignmentID, "error", err)
	}
}
