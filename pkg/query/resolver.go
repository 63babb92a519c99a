// Package query resolves measurement listings and averages against a
// search backend.
//
// Every call normalizes its parameters, picks the partitions to read, builds
// one search request, and maps the response back into typed records. A
// Resolver holds no mutable state and may be shared by concurrent callers.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/vjranagit/sensorquery/pkg/search"
	"github.com/vjranagit/sensorquery/pkg/types"
	"go.uber.org/zap"
)

// Resolver answers measurement queries with a single backend round-trip
type Resolver struct {
	backend    search.Backend
	normalizer *Normalizer
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithClock sets the clock used to default omitted dates
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver over a shared backend handle
func NewResolver(backend search.Backend, opts ...Option) *Resolver {
	r := &Resolver{
		backend: backend,
		logger:  zap.NewNop(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.normalizer = NewNormalizer(r.now, r.logger)
	return r
}

// ListMeasurements returns up to amount measurements matching the sensor
// name and type within the window, oldest first
func (r *Resolver) ListMeasurements(ctx context.Context, params types.ListParams) ([]types.Measurement, error) {
	q, err := r.normalizer.List(params)
	if err != nil {
		return nil, err
	}

	req := BuildListRequest(q)
	r.logger.Debug("listing measurements",
		zap.String("index", req.Index),
		zap.String("pattern", req.Wildcards[0].Pattern),
		zap.Int("amount", q.Amount))

	resp, err := r.backend.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search measurements: %w", err)
	}

	return MapMeasurements(resp, q.Amount)
}

// AverageByDate returns the mean value and unit of one sensor type within
// the window
func (r *Resolver) AverageByDate(ctx context.Context, params types.AverageParams) (*types.Aggregate, error) {
	q, err := r.normalizer.Average(params)
	if err != nil {
		return nil, err
	}

	req := BuildAverageRequest(q)
	r.logger.Debug("averaging measurements",
		zap.String("index", req.Index),
		zap.String("sensor_type", q.SensorType))

	resp, err := r.backend.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate measurements: %w", err)
	}

	agg, err := MapAggregate(resp)
	if err != nil {
		r.logger.Error("inconsistent aggregation",
			zap.String("sensor_type", q.SensorType),
			zap.Error(err))
		return nil, err
	}
	return agg, nil
}
