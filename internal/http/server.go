package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joloLG/joloRide/internal/auth"
	"github.com/joloLG/joloRide/internal/dispatch"
	"github.com/joloLG/joloRide/internal/location"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/orders"
	"github.com/joloLG/joloRide/internal/storage"
	"github.com/joloLG/joloRide/internal/tracking"
)

// LocationLog receives every accepted location sample, e.g. a Kafka topic.
type LocationLog interface {
	PublishLocation(ctx context.Context, s models.Sample) error
}

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Deps is everything the API needs. LocationLog and Checks are optional.
type Deps struct {
	Engine      *orders.Engine
	Board       *dispatch.Board
	Tracking    *tracking.Consumer
	Locations   location.Store
	Orders      storage.OrderStore
	Profiles    storage.ProfileStore
	LocationLog LocationLog
	Auth        *auth.Authenticator
	Checks      []Check

	// HistoryArchived means a consumer of LocationLog appends trail points
	// to the same history Locations serves, so the handler must not.
	HistoryArchived bool
}

type Server struct {
	Deps
	logger   *slog.Logger
	mux      *mux.Router
	validate *validator.Validate
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewServer(d Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Deps:     d,
		logger:   logger,
		mux:      mux.NewRouter(),
		validate: validator.New(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/readyz", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.NewRoute().Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/riders/location", s.handlePostLocation).Methods("POST")
	api.HandleFunc("/riders/location", s.handleGetLocation).Methods("GET")
	api.HandleFunc("/riders/nearby", s.handleNearby).Methods("GET")
	api.HandleFunc("/riders/{id}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/riders/{id}/active", s.handleSetActive).Methods("PUT")

	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/tracking", s.handleTracking).Methods("GET")

	api.HandleFunc("/dispatch", s.handleBoard).Methods("GET")
	api.HandleFunc("/dispatch/available", s.handleAvailable).Methods("GET")
	api.HandleFunc("/dispatch/mine", s.handleMine).Methods("GET")
	api.HandleFunc("/dispatch/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/dispatch/orders/{id}/claim", s.handleClaim).Methods("POST")
	api.HandleFunc("/dispatch/orders/{id}/pass", s.handlePass).Methods("POST")
	api.HandleFunc("/dispatch/orders/{id}/cancel", s.handleBoardCancel).Methods("POST")
	api.HandleFunc("/dispatch/orders/{id}/advance", s.handleAdvance).Methods("POST")

	api.HandleFunc("/ws/dispatch", s.handleDispatchWS).Methods("GET")
	api.HandleFunc("/ws/orders/{id}/tracking", s.handleTrackingWS).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for _, c := range s.Checks {
		if err := c.Fn(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return validationError{err}
	}
	return nil
}

func (s *Server) validateBody(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return validationError{err}
	}
	return nil
}
