package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjranagit/sensorquery/pkg/search"
	"github.com/vjranagit/sensorquery/pkg/storage"
	"github.com/vjranagit/sensorquery/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recordingBackend returns a canned response and keeps every request
type recordingBackend struct {
	requests []*search.Request
	response *search.Response
	err      error
}

func (b *recordingBackend) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if b.response == nil {
		return &search.Response{}, nil
	}
	return b.response, nil
}

func (b *recordingBackend) Ping(ctx context.Context) error { return nil }
func (b *recordingBackend) Close() error                   { return nil }

func TestListMeasurementsSameDay(t *testing.T) {
	backend := &recordingBackend{response: &search.Response{Hits: []search.Hit{
		{ID: "1", Document: search.Document{Name: strPtr("urn:dev:mac:fcc23d000000050f:temp"), Value: floatPtr(20), Timestamp: "2019-03-28T10:01:00"}},
		{ID: "2", Document: search.Document{Name: strPtr("urn:dev:mac:fcc23d000000050f:temp"), Value: floatPtr(21), Timestamp: "2019-03-28T10:02:00"}},
	}}}
	resolver := NewResolver(backend, WithClock(fixedClock))

	measurements, err := resolver.ListMeasurements(context.Background(), types.ListParams{
		SensorName: strPtr("urn:dev:mac:fcc23d000000050f"),
		Amount:     intPtr(5),
		SensorType: strPtr("temp"),
		FromDate:   strPtr("2019-03-28T10:00:00"),
		ToDate:     strPtr("2019-03-28T10:10:00"),
	})
	require.NoError(t, err)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, "measurements-2019-03-28", req.Index)
	assert.Equal(t, "urn:dev:mac:fcc23d000000050f*temp", req.Wildcards[0].Pattern)
	assert.Equal(t, 5, req.Size)
	assert.False(t, req.Sort[0].Descending)

	require.Len(t, measurements, 2)
	assert.True(t, measurements[0].Timestamp.Before(measurements[1].Timestamp))
}

func TestListMeasurementsDefaults(t *testing.T) {
	backend := &recordingBackend{}
	resolver := NewResolver(backend, WithClock(fixedClock))

	measurements, err := resolver.ListMeasurements(context.Background(), types.ListParams{
		Amount:     intPtr(MaxAmount + 1),
		SensorType: strPtr("bogus"),
	})
	require.NoError(t, err)
	assert.Empty(t, measurements)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	now := fixedNow.Truncate(time.Second)

	assert.Equal(t, search.AllPartitions, req.Index)
	assert.Equal(t, "urn:dev*", req.Wildcards[0].Pattern)
	assert.Equal(t, DefaultAmount, req.Size)
	assert.Equal(t, now.Add(-DefaultWindow), req.Ranges[0].Gte)
	assert.Equal(t, now, req.Ranges[0].Lte)
}

func TestListMeasurementsCapsHits(t *testing.T) {
	hits := make([]search.Hit, 0, 4)
	for i := 0; i < 4; i++ {
		hits = append(hits, search.Hit{Document: search.Document{Value: floatPtr(float64(i))}})
	}
	resolver := NewResolver(&recordingBackend{response: &search.Response{Hits: hits}}, WithClock(fixedClock))

	measurements, err := resolver.ListMeasurements(context.Background(), types.ListParams{Amount: intPtr(2)})
	require.NoError(t, err)
	assert.Len(t, measurements, 2)
}

func TestMalformedDateSkipsBackend(t *testing.T) {
	backend := &recordingBackend{}
	resolver := NewResolver(backend, WithClock(fixedClock))

	_, err := resolver.ListMeasurements(context.Background(), types.ListParams{FromDate: strPtr("2020-13-40")})
	assert.Equal(t, ErrInvalidDateFormat, err)

	_, err = resolver.AverageByDate(context.Background(), types.AverageParams{ToDate: strPtr("2020-13-40T00:00:00")})
	assert.Equal(t, ErrInvalidDateFormat, err)

	assert.Empty(t, backend.requests)
}

func TestBackendErrorsPropagate(t *testing.T) {
	cause := errors.New("connection refused")
	resolver := NewResolver(&recordingBackend{err: cause}, WithClock(fixedClock))

	_, err := resolver.ListMeasurements(context.Background(), types.ListParams{})
	assert.ErrorIs(t, err, cause)

	_, err = resolver.AverageByDate(context.Background(), types.AverageParams{})
	assert.ErrorIs(t, err, cause)
}

func TestAverageByDateRequest(t *testing.T) {
	backend := &recordingBackend{response: unitsResponse(floatPtr(1013.2), "hPa")}
	resolver := NewResolver(backend, WithClock(fixedClock))

	agg, err := resolver.AverageByDate(context.Background(), types.AverageParams{
		SensorType: strPtr("pressure"),
		FromDate:   strPtr("2019-03-28T00:00:00"),
		ToDate:     strPtr("2019-03-28T23:59:59"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1013.2, *agg.Avg)
	assert.Equal(t, "hPa", *agg.Unit)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, "measurements-2019-03-28", req.Index)
	assert.Equal(t, "pressure", req.Wildcards[0].Pattern)
	assert.Zero(t, req.Size)
	assert.NotNil(t, req.Avg)
	assert.NotNil(t, req.Terms)
}

func TestAverageByDateMultipleUnits(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	backend := &recordingBackend{response: unitsResponse(floatPtr(40), "Cel", "F")}
	resolver := NewResolver(backend, WithClock(fixedClock), WithLogger(zap.New(core)))

	agg, err := resolver.AverageByDate(context.Background(), types.AverageParams{SensorType: strPtr("temp")})
	assert.Nil(t, agg)
	assert.ErrorIs(t, err, ErrMultipleUnits)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestAverageByDateFallbackIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	backend := &recordingBackend{}
	resolver := NewResolver(backend, WithClock(fixedClock), WithLogger(zap.New(core)))

	_, err := resolver.AverageByDate(context.Background(), types.AverageParams{SensorType: strPtr("bogus")})
	require.NoError(t, err)

	assert.Equal(t, "temp", backend.requests[0].Wildcards[0].Pattern)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func openStore(t *testing.T, docs ...search.Document) *storage.Store {
	t.Helper()

	store, err := storage.NewStore(&storage.Config{Path: t.TempDir(), CompressionLevel: 3}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Put(context.Background(), docs...))
	return store
}

func reading(name, unit string, value float64, ts string) search.Document {
	return search.Document{Name: strPtr(name), Unit: strPtr(unit), Value: floatPtr(value), Timestamp: ts}
}

func TestScenarioListSameDayWindow(t *testing.T) {
	var docs []search.Document
	for minute := 9; minute >= 0; minute-- {
		ts := time.Date(2019, 3, 28, 10, minute, 0, 0, time.UTC).Format(search.TimestampLayout)
		docs = append(docs, reading("urn:dev:mac:fcc23d000000050f:temp", "Cel", float64(20+minute), ts))
	}
	docs = append(docs,
		reading("urn:dev:mac:fcc23d000000050f:humidity", "%RH", 40, "2019-03-28T10:01:30"),
		reading("urn:dev:mac:aaaa00000000000a:temp", "Cel", 18, "2019-03-28T10:01:30"),
		reading("urn:dev:mac:fcc23d000000050f:temp", "Cel", 30, "2019-03-28T10:10:01"),
	)
	resolver := NewResolver(openStore(t, docs...), WithClock(fixedClock))

	measurements, err := resolver.ListMeasurements(context.Background(), types.ListParams{
		SensorName: strPtr("urn:dev:mac:fcc23d000000050f"),
		Amount:     intPtr(5),
		SensorType: strPtr("temp"),
		FromDate:   strPtr("2019-03-28T10:00:00"),
		ToDate:     strPtr("2019-03-28T10:10:00"),
	})
	require.NoError(t, err)

	require.Len(t, measurements, 5)
	for i, m := range measurements {
		assert.Equal(t, "urn:dev:mac:fcc23d000000050f:temp", *m.SensorName)
		assert.Equal(t, float64(20+i), *m.Value)
		if i > 0 {
			assert.True(t, measurements[i-1].Timestamp.Before(m.Timestamp))
		}
	}
}

func TestScenarioAverageHumidity(t *testing.T) {
	store := openStore(t,
		reading("urn:dev:mac:1:humidity", "%RH", 40, "2019-01-01T10:00:00"),
		reading("urn:dev:mac:2:humidity", "%RH", 45, "2019-01-03T10:00:00"),
		reading("urn:dev:mac:1:humidity", "%RH", 50, "2019-01-06T23:00:00"),
		reading("urn:dev:mac:1:humidity", "%RH", 99, "2019-01-08T10:00:00"),
		reading("urn:dev:mac:1:temp", "Cel", 21, "2019-01-02T10:00:00"),
	)
	resolver := NewResolver(store, WithClock(fixedClock))

	agg, err := resolver.AverageByDate(context.Background(), types.AverageParams{
		SensorType: strPtr("humidity"),
		FromDate:   strPtr("2019-01-01T00:00:00"),
		ToDate:     strPtr("2019-01-07T00:00:00"),
	})
	require.NoError(t, err)

	require.NotNil(t, agg.Avg)
	assert.InDelta(t, 45.0, *agg.Avg, 1e-9)
	require.NotNil(t, agg.Unit)
	assert.Equal(t, "%RH", *agg.Unit)
}

func TestScenarioAverageUnknownTypeUsesTemp(t *testing.T) {
	store := openStore(t,
		reading("urn:dev:mac:1:temp", "Cel", 20, "2019-03-25T10:00:00"),
		reading("urn:dev:mac:2:temp", "Cel", 22, "2019-03-27T10:00:00"),
		reading("urn:dev:mac:1:pressure", "hPa", 1000, "2019-03-26T10:00:00"),
	)
	core, logs := observer.New(zapcore.WarnLevel)
	resolver := NewResolver(store, WithClock(fixedClock), WithLogger(zap.New(core)))

	agg, err := resolver.AverageByDate(context.Background(), types.AverageParams{SensorType: strPtr("bogus")})
	require.NoError(t, err)

	require.NotNil(t, agg.Avg)
	assert.InDelta(t, 21.0, *agg.Avg, 1e-9)
	assert.Equal(t, "Cel", *agg.Unit)
	assert.Equal(t, 1, logs.Len())
}

func TestScenarioAverageNoData(t *testing.T) {
	resolver := NewResolver(openStore(t), WithClock(fixedClock))

	agg, err := resolver.AverageByDate(context.Background(), types.AverageParams{SensorType: strPtr("no2")})
	require.NoError(t, err)
	assert.Nil(t, agg.Avg)
	assert.Nil(t, agg.Unit)
}
