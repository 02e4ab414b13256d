package lifecycle

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/example/scrap-tracking/internal/models"
	"github.com/example/scrap-tracking/internal/storage"
)

type fakeEvaluator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEvaluator) CheckAndProcess(ctx context.Context, actorID, role, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, actorID+"/"+role+"/"+key)
	return nil
}

func (f *fakeEvaluator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type failingStore struct {
	storage.AssignmentStore
	failUpdate bool
}

func (f *failingStore) Update(a *models.Assignment) error {
	if f.failUpdate {
		return errors.New("backend unavailable")
	}
	return f.AssignmentStore.Update(a)
}

func newTestMachine() (*Machine, *storage.MemoryStore, *fakeEvaluator) {
	store := storage.NewMemoryStore()
	eval := &fakeEvaluator{}
	return NewMachine(store, eval, nil), store, eval
}

func accept(t *testing.T, m *Machine, scrapperID string) *models.Assignment {
	t.Helper()
	a := &models.Assignment{OrderID: "ord-1", ScrapperID: scrapperID, UserID: "u1"}
	if err := m.Accept(context.Background(), a); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return a
}

func TestHappyPath(t *testing.T) {
	m, store, eval := newTestMachine()
	ctx := context.Background()
	a := accept(t, m, "s1")

	got, err := m.ConfirmPickup(ctx, a.ID)
	if err != nil {
		t.Fatalf("confirm pickup: %v", err)
	}
	if got.Status != models.StatusPickedUp || got.PickedUpAt == nil {
		t.Fatalf("after pickup: %+v", got)
	}
	if got.PaymentStatus != models.PaymentPending {
		t.Fatalf("payment status should initialize pending, got %s", got.PaymentStatus)
	}

	got, err = m.RecordPayment(ctx, a.ID, 150.50)
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if got.Status != models.StatusPaymentCompleted || got.PaymentStatus != models.PaymentPaid {
		t.Fatalf("after payment: %+v", got)
	}
	if got.PaidAmount != 150.50 {
		t.Fatalf("paid amount %v, want 150.50", got.PaidAmount)
	}

	got, err = m.CompleteOrder(ctx, a.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != models.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("after completion: %+v", got)
	}
	if eval.count() != 1 {
		t.Fatalf("first completed pickup must evaluate milestone once, got %d", eval.count())
	}

	stored, _ := store.Get(a.ID)
	if stored.Status != models.StatusCompleted {
		t.Fatalf("store not updated: %s", stored.Status)
	}
}

func TestOutOfOrderTriggersAreNoOps(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx := context.Background()
	a := accept(t, m, "s1")

	var invalid *InvalidTransitionError

	if _, err := m.RecordPayment(ctx, a.ID, 100); !errors.As(err, &invalid) {
		t.Fatalf("recordPayment from accepted: %v", err)
	}
	stored, _ := store.Get(a.ID)
	if stored.PaymentStatus != models.PaymentPending || stored.PaidAmount != 0 {
		t.Fatalf("rejected trigger mutated state: %+v", stored)
	}

	if _, err := m.CompleteOrder(ctx, a.ID); !errors.As(err, &invalid) {
		t.Fatalf("completeOrder from accepted: %v", err)
	}

	if _, err := m.ConfirmPickup(ctx, a.ID); err != nil {
		t.Fatalf("confirm pickup: %v", err)
	}
	if _, err := m.ConfirmPickup(ctx, a.ID); !errors.As(err, &invalid) {
		t.Fatalf("double pickup must be rejected, got %v", err)
	}
	if _, err := m.CompleteOrder(ctx, a.ID); !errors.As(err, &invalid) {
		t.Fatalf("completeOrder before payment: %v", err)
	}
}

func TestPaymentAmountValidation(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx := context.Background()
	a := accept(t, m, "s1")
	if _, err := m.ConfirmPickup(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if _, err := m.RecordPayment(ctx, a.ID, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %v: want ErrInvalidAmount, got %v", amount, err)
		}
	}
	stored, _ := store.Get(a.ID)
	if stored.Status != models.StatusPickedUp || stored.PaidAmount != 0 {
		t.Fatalf("invalid amounts mutated state: %+v", stored)
	}

	got, err := m.RecordPayment(ctx, a.ID, 150.50)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaidAmount != 150.50 {
		t.Fatalf("paid amount %v", got.PaidAmount)
	}
}

func TestPersistFailureDoesNotAdvance(t *testing.T) {
	store := storage.NewMemoryStore()
	failing := &failingStore{AssignmentStore: store}
	m := NewMachine(failing, &fakeEvaluator{}, nil)
	ctx := context.Background()
	a := accept(t, m, "s1")

	failing.failUpdate = true
	if _, err := m.ConfirmPickup(ctx, a.ID); err == nil {
		t.Fatal("expected persistence error")
	}
	stored, _ := store.Get(a.ID)
	if stored.Status != models.StatusAccepted {
		t.Fatalf("state advanced despite failed write: %s", stored.Status)
	}

	failing.failUpdate = false
	if _, err := m.ConfirmPickup(ctx, a.ID); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
}

func TestReconcileAdoptsAdvancedStateOnce(t *testing.T) {
	m, store, eval := newTestMachine()
	ctx := context.Background()
	a := accept(t, m, "s1")

	auth := *a
	auth.Status = models.StatusCompleted
	auth.PaymentStatus = models.PaymentPaid
	auth.PaidAmount = 200
	auth.Version = a.Version + 3

	// two overlapping polls deliver the same completed record
	for i := 0; i < 2; i++ {
		got, err := m.Reconcile(ctx, &auth)
		if err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
		if got.Status != models.StatusCompleted || got.CompletedAt == nil {
			t.Fatalf("reconcile %d result: %+v", i, got)
		}
	}
	if eval.count() != 1 {
		t.Fatalf("milestone must fire at most once, got %d", eval.count())
	}

	stored, _ := store.Get(a.ID)
	if stored.PaidAmount != 200 {
		t.Fatalf("authoritative fields not adopted wholesale: %+v", stored)
	}
}

func TestReconcileNeverRegresses(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	a := accept(t, m, "s1")
	if _, err := m.ConfirmPickup(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordPayment(ctx, a.ID, 80); err != nil {
		t.Fatal(err)
	}

	stale := *a
	stale.Status = models.StatusAccepted
	stale.Version = 1
	got, err := m.Reconcile(ctx, &stale)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPaymentCompleted || got.PaidAmount != 80 {
		t.Fatalf("stale fetch overwrote newer local state: %+v", got)
	}
}

func TestMilestoneOnlyForFirstCompletedPickup(t *testing.T) {
	m, store, eval := newTestMachine()
	ctx := context.Background()

	prior := &models.Assignment{ID: "old", ScrapperID: "s1", Status: models.StatusCompleted}
	if err := store.Save(prior); err != nil {
		t.Fatal(err)
	}

	a := accept(t, m, "s1")
	if _, err := m.ConfirmPickup(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordPayment(ctx, a.ID, 50); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CompleteOrder(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if eval.count() != 0 {
		t.Fatalf("second completed pickup must not re-evaluate milestone, got %d", eval.count())
	}
}

func TestCompletionArchivesAssignment(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx := context.Background()
	a := accept(t, m, "s1")
	if _, err := m.ConfirmPickup(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordPayment(ctx, a.ID, 90); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CompleteOrder(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	stored, _ := store.Get(a.ID)
	if stored.ArchivedAt == nil {
		t.Fatal("completed assignment was not archived")
	}

	b := accept(t, m, "s2")
	auth := *b
	auth.Status = models.StatusCompleted
	auth.Version = b.Version + 2
	if _, err := m.Reconcile(ctx, &auth); err != nil {
		t.Fatal(err)
	}
	stored, _ = store.Get(b.ID)
	if stored.ArchivedAt == nil {
		t.Fatal("reconciled completion was not archived")
	}
}

func TestLockTableIsPrunedAfterUse(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := accept(t, m, "s1")
		if _, err := m.ConfirmPickup(ctx, a.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := m.RecordPayment(ctx, a.ID, 25); err != nil {
			t.Fatal(err)
		}
		if _, err := m.CompleteOrder(ctx, a.ID); err != nil {
			t.Fatal(err)
		}
	}

	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("lock table holds %d entries after all work finished", n)
	}
}

type fakeFetcher struct {
	mu     sync.Mutex
	record *models.Assignment
	err    error
}

func (f *fakeFetcher) FetchOrder(ctx context.Context, id string) (*models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.record
	return &cp, nil
}

func TestReconcilerWakeTriggersImmediateRefresh(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := accept(t, m, "s1")

	auth := *a
	auth.Status = models.StatusPickedUp
	auth.Version = a.Version + 1
	fetcher := &fakeFetcher{record: &auth}

	// long interval: only Wake can plausibly trigger the refresh
	r := NewReconciler(m, fetcher, time.Hour, nil)
	done := make(chan struct{})
	go func() {
		r.Watch(ctx, a.ID)
		close(done)
	}()

	r.Wake()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := store.Get(a.ID); got != nil && got.Status == models.StatusPickedUp {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	got, _ := store.Get(a.ID)
	if got.Status != models.StatusPickedUp {
		t.Fatalf("wake did not reconcile, status %s", got.Status)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on context cancel")
	}
}
