package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/scrap-tracking/internal/lifecycle"
)

// watchRegistry owns one reconciliation subscription per open detail
// view. A watch is started when the view mounts and cancelled when it
// unmounts or the server shuts down, so no poll timer outlives its view.
type watchRegistry struct {
	machine  *lifecycle.Machine
	fetch    lifecycle.OrderFetcher
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	cancel context.CancelFunc
	rec    *lifecycle.Reconciler
}

func newWatchRegistry(machine *lifecycle.Machine, fetch lifecycle.OrderFetcher, interval time.Duration, logger *slog.Logger) *watchRegistry {
	return &watchRegistry{
		machine:  machine,
		fetch:    fetch,
		interval: interval,
		logger:   logger,
		watches:  make(map[string]*watch),
	}
}

// start is idempotent; a second mount of the same view reuses the watch.
func (r *watchRegistry) start(assignmentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watches[assignmentID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rec := lifecycle.NewReconciler(r.machine, r.fetch, r.interval, r.logger)
	r.watches[assignmentID] = &watch{cancel: cancel, rec: rec}
	go func() {
		rec.Watch(ctx, assignmentID)
		r.mu.Lock()
		if w, ok := r.watches[assignmentID]; ok && w.rec == rec {
			delete(r.watches, assignmentID)
		}
		r.mu.Unlock()
	}()
}

func (r *watchRegistry) stop(assignmentID string) {
	r.mu.Lock()
	w, ok := r.watches[assignmentID]
	delete(r.watches, assignmentID)
	r.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// wake nudges an existing watch; reports whether one was running.
func (r *watchRegistry) wake(assignmentID string) bool {
	r.mu.Lock()
	w, ok := r.watches[assignmentID]
	r.mu.Unlock()
	if ok {
		w.rec.Wake()
	}
	return ok
}

// refreshOnce serves a focus event for a view without a live watch.
func (r *watchRegistry) refreshOnce(ctx context.Context, assignmentID string) error {
	authoritative, err := r.fetch.FetchOrder(ctx, assignmentID)
	if err != nil {
		return err
	}
	_, err = r.machine.Reconcile(ctx, authoritative)
	return err
}

func (r *watchRegistry) closeAll() {
	r.mu.Lock()
	watches := r.watches
	r.watches = make(map[string]*watch)
	r.mu.Unlock()
	for _, w := range watches {
		w.cancel()
	}
}

func (s *Server) handleStartWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.watches.start(id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStopWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.watches.stop(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh maps a visibility/focus regain onto an immediate
// reconciliation pass.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.watches.wake(id) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.watches.refreshOnce(r.Context(), id); err != nil {
		s.logger.Warn("refresh failed", "assignment_id", id, "error", err)
		http.Error(w, "refresh failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
