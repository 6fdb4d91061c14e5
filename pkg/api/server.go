package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/nodes"
	"github.com/corralhq/corral/pkg/runtime"
	"github.com/corralhq/corral/pkg/scheduler"
	"github.com/corralhq/corral/pkg/store"
)

// Server is the HTTP API boundary. It validates requests, forwards them to
// the store and node lifecycle manager, and wakes the scheduler on any
// mutation that could unblock a Pending workload. No scheduling or lifecycle
// decisions live here.
type Server struct {
	store   store.Store
	manager *nodes.Manager
	sched   *scheduler.Scheduler
	broker  *events.Broker
	logger  zerolog.Logger
	http    *http.Server
}

// NewServer creates the API server listening on addr.
func NewServer(addr string, s store.Store, mgr *nodes.Manager, sched *scheduler.Scheduler, broker *events.Broker) *Server {
	srv := &Server{
		store:   s,
		manager: mgr,
		sched:   sched,
		broker:  broker,
		logger:  log.WithComponent("api"),
	}
	srv.http = &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Router builds the root router. Exposed for httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", metrics.HealthHandler())
	r.Get("/readyz", metrics.ReadyHandler())
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.listNodes)
			r.Post("/", s.createNode)
			r.Get("/{id}", s.getNode)
			r.Delete("/{id}", s.deleteNode)
			r.Post("/{id}/heartbeat", s.heartbeat)
		})
		v1.Route("/workloads", func(r chi.Router) {
			r.Get("/", s.listWorkloads)
			r.Post("/", s.createWorkload)
			r.Get("/{id}", s.getWorkload)
			r.Delete("/{id}", s.deleteWorkload)
			r.Post("/{id}/resubmit", s.resubmitWorkload)
		})
		v1.Get("/status", s.clusterStatus)
		v1.Get("/events", s.streamEvents)
	})

	return r
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("api server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// instrument records request counts and latency per method.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps the store and runtime error kinds onto HTTP statuses.
// NotFound, Conflict, and validation failures surface immediately; nothing
// here retries.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	var kind string
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, store.ErrAlreadyExists):
		status, kind = http.StatusConflict, "already_exists"
	case errors.Is(err, runtime.ErrRuntime):
		status, kind = http.StatusBadGateway, "runtime_error"
	default:
		status, kind = http.StatusInternalServerError, "internal"
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: kind, Message: err.Error()})
}

func (s *Server) writeValidationError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// expectedRevision parses the optional If-Match header carrying the caller's
// expected object revision. Zero means unconditional.
func expectedRevision(r *http.Request) (uint64, error) {
	raw := r.Header.Get("If-Match")
	if raw == "" {
		return 0, nil
	}
	rev, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("If-Match must be a decimal revision")
	}
	return rev, nil
}
