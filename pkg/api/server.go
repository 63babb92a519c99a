package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/vjranagit/sensorquery/pkg/query"
	"github.com/vjranagit/sensorquery/pkg/types"
	"go.uber.org/zap"
)

const (
	opMeasurements = "measurements"
	opAvgByDate    = "avgbydate"
)

// Resolver answers the two query operations
type Resolver interface {
	ListMeasurements(ctx context.Context, params types.ListParams) ([]types.Measurement, error)
	AverageByDate(ctx context.Context, params types.AverageParams) (*types.Aggregate, error)
}

// Pinger reports backend reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server implements the HTTP API server
type Server struct {
	resolver Resolver
	backend  Pinger
	metrics  *Metrics
	logger   *zap.Logger
	addr     string
	timeout  time.Duration
	router   *mux.Router
	server   *http.Server
}

// NewServer creates a new API server
func NewServer(addr string, timeout time.Duration, resolver Resolver, backend Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		resolver: resolver,
		backend:  backend,
		metrics:  NewMetrics(),
		logger:   logger,
		addr:     addr,
		timeout:  timeout,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/measurements", s.handleMeasurements).Methods(http.MethodGet)
	api.HandleFunc("/avgbydate", s.handleAvgByDate).Methods(http.MethodGet)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleMeasurements lists measurements.
// Query params: sensor_name, amount, sensor_type, from_date, to_date
func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	params := types.ListParams{
		SensorName: optional(q, "sensor_name"),
		SensorType: optional(q, "sensor_type"),
		FromDate:   optional(q, "from_date"),
		ToDate:     optional(q, "to_date"),
	}

	if raw := optional(q, "amount"); raw != nil {
		amount, err := strconv.Atoi(*raw)
		if err != nil {
			s.metrics.Observe(opMeasurements, outcomeInvalid, time.Since(start))
			writeError(w, http.StatusBadRequest, "amount must be an integer")
			return
		}
		params.Amount = &amount
	}

	measurements, err := s.resolver.ListMeasurements(r.Context(), params)
	if err != nil {
		s.fail(w, opMeasurements, start, err)
		return
	}

	s.metrics.Observe(opMeasurements, outcomeOK, time.Since(start))
	writeJSON(w, http.StatusOK, measurements)
}

// handleAvgByDate averages one sensor type.
// Query params: sensor_type, from_date, to_date
func (s *Server) handleAvgByDate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	params := types.AverageParams{
		SensorType: optional(q, "sensor_type"),
		FromDate:   optional(q, "from_date"),
		ToDate:     optional(q, "to_date"),
	}

	agg, err := s.resolver.AverageByDate(r.Context(), params)
	if err != nil {
		s.fail(w, opAvgByDate, start, err)
		return
	}

	s.metrics.Observe(opAvgByDate, outcomeOK, time.Since(start))
	writeJSON(w, http.StatusOK, agg)
}

// fail maps a resolver error to a status code and records it
func (s *Server) fail(w http.ResponseWriter, operation string, start time.Time, err error) {
	status := http.StatusInternalServerError
	outcome := outcomeError
	msg := fmt.Sprintf("Query failed: %v", err)

	switch {
	case errors.Is(err, query.ErrInvalidDateFormat):
		status, outcome, msg = http.StatusBadRequest, outcomeInvalid, err.Error()
	case errors.Is(err, query.ErrMultipleUnits):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("query failed", zap.String("operation", operation), zap.Error(err))
	}

	s.metrics.Observe(operation, outcome, time.Since(start))
	writeError(w, status, msg)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		s.logger.Warn("backend unreachable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// optional returns the value of key when it is present in the query string
func optional(q url.Values, key string) *string {
	if !q.Has(key) {
		return nil
	}
	v := q.Get(key)
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
