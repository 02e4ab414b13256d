package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/scrap-tracking/internal/broadcast"
	"github.com/example/scrap-tracking/internal/cache"
	"github.com/example/scrap-tracking/internal/config"
	"github.com/example/scrap-tracking/internal/geo"
	"github.com/example/scrap-tracking/internal/lifecycle"
	"github.com/example/scrap-tracking/internal/milestone"
	"github.com/example/scrap-tracking/internal/models"
	"github.com/example/scrap-tracking/internal/observability"
	"github.com/example/scrap-tracking/internal/orderapi"
	"github.com/example/scrap-tracking/internal/route"
	"github.com/example/scrap-tracking/internal/schedule"
	"github.com/example/scrap-tracking/internal/storage"
	"github.com/example/scrap-tracking/internal/track"
)

// assignmentMirror is the non-authoritative read-through cache consulted
// when the store is unreachable. Redis backs it in production.
type assignmentMirror interface {
	Put(ctx context.Context, a *models.Assignment)
	Get(ctx context.Context, id string) (*models.Assignment, bool)
}

type Server struct {
	logger    *slog.Logger
	cfg       config.ServerConfig
	machine   *lifecycle.Machine
	store     storage.AssignmentStore
	mirror    assignmentMirror
	tracker   *track.Tracker
	positions geo.Positions
	wsreg     *broadcast.WSRegistry
	kafka     *broadcast.KafkaBroadcaster
	routes    route.Provider
	watches   *watchRegistry
	mux       *mux.Router
}

func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var positions geo.Positions
	if cfg.RedisAddr != "" {
		positions = geo.NewRedisPositions(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		positions = geo.NewIndex()
	}

	var store storage.AssignmentStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Warn("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var mirror assignmentMirror
	if cfg.RedisAddr != "" {
		mirror = cache.NewMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.MirrorTTL, logger)
	}

	wsreg := broadcast.NewWSRegistry()
	sinks := broadcast.Fanout{wsreg}
	var kafka *broadcast.KafkaBroadcaster
	if len(cfg.KafkaBrokers) > 0 {
		kafka = broadcast.NewKafkaBroadcaster(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kafka)
	}

	var evaluator lifecycle.MilestoneEvaluator = milestone.Noop{}
	if cfg.MilestoneEndpoint != "" {
		evaluator = milestone.NewHTTPEvaluator(cfg.MilestoneEndpoint, cfg.MilestoneKey)
	}

	var routes route.Provider
	if cfg.RouteEndpoint != "" {
		routes = route.NewOSRMClient(cfg.RouteEndpoint)
	}

	machine := lifecycle.NewMachine(store, evaluator, logger)

	var fetcher lifecycle.OrderFetcher
	if cfg.OrderAPIEndpoint != "" {
		fetcher = orderapi.New(cfg.OrderAPIEndpoint)
	} else {
		fetcher = &storeFetcher{store: store}
	}

	s := &Server{
		logger:    logger,
		cfg:       cfg,
		machine:   machine,
		store:     store,
		mirror:    mirror,
		tracker:   track.NewTracker(cfg.AnimSteps, cfg.FrameInterval, cfg.TrailCapacity, sinks),
		positions: positions,
		wsreg:     wsreg,
		kafka:     kafka,
		routes:    routes,
		watches:   newWatchRegistry(machine, fetcher, cfg.PollInterval, logger),
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routesSetup()
	return s
}

func (s *Server) routesSetup() {
	s.mux.HandleFunc("/internal/scrapper/locations", s.handleScrapperLocation).Methods("POST")

	s.mux.HandleFunc("/api/v1/assignments", s.handleCreateAssignment).Methods("POST")
	s.mux.HandleFunc("/api/v1/assignments/conflict-check", s.handleConflictCheck).Methods("POST")
	s.mux.HandleFunc("/api/v1/assignments/{id}", s.handleGetAssignment).Methods("GET")
	s.mux.HandleFunc("/api/v1/assignments/{id}/pickup", s.handleConfirmPickup).Methods("POST")
	s.mux.HandleFunc("/api/v1/assignments/{id}/payment", s.handleRecordPayment).Methods("POST")
	s.mux.HandleFunc("/api/v1/assignments/{id}/complete", s.handleCompleteOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/assignments/{id}/watch", s.handleStartWatch).Methods("POST")
	s.mux.HandleFunc("/api/v1/assignments/{id}/watch", s.handleStopWatch).Methods("DELETE")
	s.mux.HandleFunc("/api/v1/assignments/{id}/refresh", s.handleRefresh).Methods("POST")

	s.mux.HandleFunc("/api/v1/orders/{order_id}/trail", s.handleTrail).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{order_id}/route", s.handleRoute).Methods("GET")
	s.mux.HandleFunc("/api/v1/scrappers/{scrapper_id}/position", s.handleScrapperPosition).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/orders/{order_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Close tears down every per-order resource: animators, watches, the
// kafka writer.
func (s *Server) Close() {
	s.watches.closeAll()
	s.tracker.Close()
	if s.kafka != nil {
		_ = s.kafka.Close()
	}
}

func (s *Server) handleScrapperLocation(w http.ResponseWriter, r *http.Request) {
	var u models.LocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if u.OrderID == "" || u.ScrapperID == "" {
		http.Error(w, "order_id and scrapper_id are required", http.StatusBadRequest)
		return
	}
	s.positions.Upsert(u)
	// smoothing fans the throttled samples out to ws/kafka observers
	s.tracker.Update(u.OrderID, u.Position)
	observability.LocationUpdatesTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

type createAssignmentRequest struct {
	OrderID       string             `json:"order_id"`
	ScrapperID    string             `json:"scrapper_id"`
	UserID        string             `json:"user_id"`
	PickupSlot    *models.PickupSlot `json:"pickup_slot,omitempty"`
	PreferredTime string             `json:"preferred_time,omitempty"`
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.OrderID == "" || req.ScrapperID == "" {
		http.Error(w, "order_id and scrapper_id are required", http.StatusBadRequest)
		return
	}

	// advisory only: an overlap is reported, never enforced
	conflict := false
	if existing, err := s.store.ListActiveByScrapper(req.ScrapperID); err == nil {
		conflict = schedule.Conflicts(req.PickupSlot, req.PreferredTime, existing)
		if conflict {
			observability.ConflictsTotal.Inc()
		}
	}

	a := &models.Assignment{
		OrderID:       req.OrderID,
		ScrapperID:    req.ScrapperID,
		UserID:        req.UserID,
		PickupSlot:    req.PickupSlot,
		PreferredTime: req.PreferredTime,
	}
	if err := s.machine.Accept(r.Context(), a); err != nil {
		s.logger.Error("accept failed", "order_id", req.OrderID, "error", err)
		http.Error(w, "failed to accept order", http.StatusBadGateway)
		return
	}
	s.mirrorPut(r, a)
	s.writeAssignment(w, http.StatusCreated, a, map[string]any{"slot_conflict": conflict})
}

func (s *Server) handleConflictCheck(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	existing, err := s.store.ListActiveByScrapper(req.ScrapperID)
	if err != nil {
		http.Error(w, "failed to load assignments", http.StatusBadGateway)
		return
	}
	conflict := schedule.Conflicts(req.PickupSlot, req.PreferredTime, existing)
	if conflict {
		observability.ConflictsTotal.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflict": conflict})
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.store.Get(id)
	if err == nil {
		s.mirrorPut(r, a)
		s.writeAssignment(w, http.StatusOK, a, map[string]any{"authoritative": true})
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "assignment not found", http.StatusNotFound)
		return
	}
	// authoritative read failed; fall back to the mirror, clearly flagged
	if s.mirror != nil {
		if cached, ok := s.mirror.Get(r.Context(), id); ok {
			s.writeAssignment(w, http.StatusOK, cached, map[string]any{"authoritative": false})
			return
		}
	}
	http.Error(w, "assignment unavailable", http.StatusServiceUnavailable)
}

func (s *Server) handleConfirmPickup(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "confirm pickup", func(id string) (*models.Assignment, error) {
		return s.machine.ConfirmPickup(r.Context(), id)
	})
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.transition(w, r, "record payment", func(id string) (*models.Assignment, error) {
		return s.machine.RecordPayment(r.Context(), id, req.Amount)
	})
}

func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "complete order", func(id string) (*models.Assignment, error) {
		a, err := s.machine.CompleteOrder(r.Context(), id)
		if err == nil {
			// completed orders stop tracking
			s.tracker.StopOrder(a.OrderID)
			s.watches.stop(a.ID)
		}
		return a, err
	})
}

// transition runs a lifecycle trigger and maps its error taxonomy onto
// status codes. Failures surface to the caller; nothing is retried here.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, name string, fn func(id string) (*models.Assignment, error)) {
	id := mux.Vars(r)["id"]
	a, err := fn(id)
	if err != nil {
		var invalid *lifecycle.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusConflict, map[string]any{"error": invalid.Error(), "status": invalid.From})
		case errors.Is(err, lifecycle.ErrInvalidAmount):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "assignment not found", http.StatusNotFound)
		default:
			s.logger.Error("transition failed", "action", name, "assignment_id", id, "error", err)
			http.Error(w, "failed to "+name, http.StatusBadGateway)
		}
		return
	}
	s.mirrorPut(r, a)
	s.writeAssignment(w, http.StatusOK, a, nil)
}

func (s *Server) handleTrail(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "trail": s.tracker.Trail(orderID)})
}

// handleScrapperPosition serves the last fix ingested for a scrapper,
// whether it arrived through this process or the kafka consumer.
func (s *Server) handleScrapperPosition(w http.ResponseWriter, r *http.Request) {
	scrapperID := mux.Vars(r)["scrapper_id"]
	u, ok := s.positions.Last(scrapperID)
	if !ok {
		http.Error(w, "no known position for scrapper", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]
	dest, err := parsePosition(r.URL.Query().Get("dest_lat"), r.URL.Query().Get("dest_lng"))
	if err != nil {
		http.Error(w, "dest_lat and dest_lng are required", http.StatusBadRequest)
		return
	}
	pos, _, ok := s.tracker.Position(orderID)
	if !ok {
		// no animator in this process; try the shared last-fix index
		if u, found := s.positions.Last(r.URL.Query().Get("scrapper_id")); found && u.OrderID == orderID {
			pos, ok = u.Position, true
		}
	}
	if !ok {
		http.Error(w, "no live position for order", http.StatusNotFound)
		return
	}
	var stats models.RouteStats
	if s.routes != nil {
		stats, err = s.routes.Stats(pos, dest)
		if err != nil {
			// route lookup failure only drops the overlay
			s.logger.Warn("route lookup failed", "order_id", orderID, "error", err)
		}
	}
	if stats.DurationSeconds == 0 && stats.DistanceText == "" {
		stats = route.Estimate(pos, dest, s.cfg.DefaultSpeedMps)
	}
	writeJSON(w, http.StatusOK, stats)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	sess := s.wsreg.Add(orderID, conn)
	// observers never send; the read loop only notices the close
	go func() {
		defer s.wsreg.Remove(orderID, sess)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) mirrorPut(r *http.Request, a *models.Assignment) {
	if s.mirror != nil {
		s.mirror.Put(r.Context(), a)
	}
}

// writeAssignment renders the record plus the coarse two-field status
// the legacy clients expect; extra carries endpoint-specific fields.
func (s *Server) writeAssignment(w http.ResponseWriter, code int, a *models.Assignment, extra map[string]any) {
	backendStatus, paymentStatus := a.BackendStatus()
	payload := map[string]any{
		"assignment":     a,
		"status":         backendStatus,
		"payment_status": paymentStatus,
	}
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, code, payload)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// storeFetcher treats the local store as the authority when no upstream
// order API is configured; reconciliation then simply re-reads it.
type storeFetcher struct {
	store storage.AssignmentStore
}

func (f *storeFetcher) FetchOrder(ctx context.Context, id string) (*models.Assignment, error) {
	return f.store.Get(id)
}

func parsePosition(latStr, lngStr string) (models.GeoPosition, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.GeoPosition{}, err
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return models.GeoPosition{}, err
	}
	return models.GeoPosition{Lat: lat, Lng: lng}, nil
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
