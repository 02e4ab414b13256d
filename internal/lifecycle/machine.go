package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/scrap-tracking/internal/models"
	"github.com/example/scrap-tracking/internal/observability"
	"github.com/example/scrap-tracking/internal/storage"
)

// MilestoneKeyFirstPickup is evaluated once per scrapper, on their
// first-ever completed pickup.
const MilestoneKeyFirstPickup = "first_pickup_completed"

const RoleScrapper = "scrapper"

// ErrInvalidAmount rejects non-positive or non-finite payment amounts.
var ErrInvalidAmount = errors.New("payment amount must be a positive number")

// InvalidTransitionError is returned when a trigger arrives out of
// order. The assignment is left untouched.
type InvalidTransitionError struct {
	From    models.Status
	Trigger string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from status %q", e.Trigger, e.From)
}

// MilestoneEvaluator is the external bonus/reward collaborator. The
// at-most-once guard lives here in the machine, not in the evaluator.
type MilestoneEvaluator interface {
	CheckAndProcess(ctx context.Context, actorID, role, key string) error
}

// Machine drives the pickup lifecycle:
//
//	accepted -> picked_up -> payment_pending -> payment_completed -> completed
//
// Transitions are monotonic and persist through the authoritative store
// before any caller-visible state changes; a failed write means no
// advance. Reconcile adopts a more-advanced authoritative record
// wholesale and never regresses.
type Machine struct {
	store      storage.AssignmentStore
	milestones MilestoneEvaluator
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*assignmentLock // only in-flight assignments; entries pruned on release
}

// assignmentLock serializes operations on one assignment. refs counts
// holders plus waiters so the entry can be dropped once idle.
type assignmentLock struct {
	mu   sync.Mutex
	refs int
}

func NewMachine(store storage.AssignmentStore, milestones MilestoneEvaluator, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:      store,
		milestones: milestones,
		logger:     logger,
		locks:      make(map[string]*assignmentLock),
	}
}

// Accept creates the assignment record for a scrapper claiming an
// order. Emitted by the accept flow; the machine owns it from here on.
func (m *Machine) Accept(ctx context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = models.StatusAccepted
	a.PaymentStatus = models.PaymentPending
	a.AcceptedAt = time.Now()
	a.Version = 1
	if err := m.store.Save(a); err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	observability.TransitionsTotal.WithLabelValues("accept").Inc()
	return nil
}

// ConfirmPickup moves accepted -> picked_up and stamps PickedUpAt.
func (m *Machine) ConfirmPickup(ctx context.Context, id string) (*models.Assignment, error) {
	unlock := m.lock(id)
	defer unlock()

	a, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.StatusAccepted {
		return a, &InvalidTransitionError{From: a.Status, Trigger: "confirm_pickup"}
	}
	now := time.Now()
	a.Status = models.StatusPickedUp
	a.PickedUpAt = &now
	a.PaymentStatus = models.PaymentPending
	a.Version++
	if err := m.store.Update(a); err != nil {
		return nil, fmt.Errorf("persist pickup: %w", err)
	}
	observability.TransitionsTotal.WithLabelValues("confirm_pickup").Inc()
	return a, nil
}

// RecordPayment moves picked_up/payment_pending -> payment_completed
// once a valid positive amount is entered.
func (m *Machine) RecordPayment(ctx context.Context, id string, amount float64) (*models.Assignment, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}

	unlock := m.lock(id)
	defer unlock()

	a, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.StatusPickedUp && a.Status != models.StatusPaymentPending {
		return a, &InvalidTransitionError{From: a.Status, Trigger: "record_payment"}
	}
	a.Status = models.StatusPaymentCompleted
	a.PaymentStatus = models.PaymentPaid
	a.PaidAmount = amount
	a.Version++
	if err := m.store.Update(a); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	observability.TransitionsTotal.WithLabelValues("record_payment").Inc()
	return a, nil
}

// CompleteOrder closes out a paid assignment and evaluates the
// first-pickup milestone for the scrapper.
func (m *Machine) CompleteOrder(ctx context.Context, id string) (*models.Assignment, error) {
	unlock := m.lock(id)
	defer unlock()

	a, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.StatusPaymentCompleted {
		return a, &InvalidTransitionError{From: a.Status, Trigger: "complete_order"}
	}
	now := time.Now()
	a.Status = models.StatusCompleted
	a.CompletedAt = &now
	a.Version++
	if err := m.store.Update(a); err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}
	observability.TransitionsTotal.WithLabelValues("complete_order").Inc()
	m.archive(a.ID)
	m.evaluateMilestoneLocked(ctx, a)
	return a, nil
}

// Reconcile adopts the authoritative record when it is at least as
// advanced as the local one. The replace is wholesale so stale
// sub-fields can never resurrect; local optimistic state never wins
// over a more-advanced server state.
func (m *Machine) Reconcile(ctx context.Context, authoritative *models.Assignment) (*models.Assignment, error) {
	unlock := m.lock(authoritative.ID)
	defer unlock()

	local, err := m.store.Get(authoritative.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if local != nil {
		ar, lr := authoritative.Status.Rank(), local.Status.Rank()
		if ar < lr || (ar == lr && authoritative.Version < local.Version) {
			// stale fetch; keep local
			return local, nil
		}
	}

	adopted := *authoritative
	wasCompleted := local != nil && local.Status == models.StatusCompleted
	if adopted.Status == models.StatusCompleted && adopted.CompletedAt == nil {
		now := time.Now()
		adopted.CompletedAt = &now
	}
	if err := m.store.Save(&adopted); err != nil {
		return nil, fmt.Errorf("persist reconciled assignment: %w", err)
	}
	observability.ReconciliationsTotal.Inc()

	if adopted.Status == models.StatusCompleted && !wasCompleted {
		m.archive(adopted.ID)
		m.evaluateMilestoneLocked(ctx, &adopted)
	}
	return &adopted, nil
}

// evaluateMilestoneLocked fires the first-pickup milestone, and only
// when this completion is the scrapper's first. Callers hold the
// per-assignment lock and invoke it exactly on the not-completed ->
// completed edge, which status monotonicity makes a one-way door, so
// no evaluation can run twice for the same assignment.
func (m *Machine) evaluateMilestoneLocked(ctx context.Context, a *models.Assignment) {
	n, err := m.store.CountCompletedByScrapper(a.ScrapperID)
	if err != nil {
		m.logger.Warn("milestone count failed", "assignment_id", a.ID, "error", err)
		return
	}
	if n != 1 {
		return
	}
	if m.milestones == nil {
		return
	}
	if err := m.milestones.CheckAndProcess(ctx, a.ScrapperID, RoleScrapper, MilestoneKeyFirstPickup); err != nil {
		// reward delivery is best-effort; completion already stands
		m.logger.Warn("milestone evaluation failed", "scrapper_id", a.ScrapperID, "error", err)
		return
	}
	observability.MilestonesTotal.Inc()
}

// archive stamps a terminal assignment in the store. Best effort; the
// completion itself already persisted.
func (m *Machine) archive(id string) {
	if err := m.store.Archive(id); err != nil {
		m.logger.Warn("archive assignment failed", "assignment_id", id, "error", err)
	}
}

// lock serializes work on one assignment and returns the release func.
// The map entry is registered before blocking and removed by the last
// releaser, so the table never outgrows the set of in-flight IDs.
func (m *Machine) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &assignmentLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}
