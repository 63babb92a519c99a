package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjranagit/sensorquery/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

var fixedNow = time.Date(2019, 3, 28, 12, 30, 45, 500, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount *int
		want   int
	}{
		{"absent", nil, DefaultAmount},
		{"zero", intPtr(0), 0},
		{"in range", intPtr(5), 5},
		{"upper bound", intPtr(MaxAmount), MaxAmount},
		{"above bound", intPtr(MaxAmount + 1), DefaultAmount},
		{"negative", intPtr(-1), DefaultAmount},
		{"huge", intPtr(1000000), DefaultAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeAmount(tt.amount))
		})
	}
}

func TestNormalizerListDefaults(t *testing.T) {
	n := NewNormalizer(fixedClock, nil)

	q, err := n.List(types.ListParams{})
	require.NoError(t, err)

	now := fixedNow.Truncate(time.Second)
	assert.Equal(t, DefaultSensorName, q.SensorName)
	assert.Equal(t, "", q.SensorType)
	assert.Equal(t, DefaultAmount, q.Amount)
	assert.Equal(t, now, q.To)
	assert.Equal(t, now.Add(-7*24*time.Hour), q.From)
}

func TestNormalizerListEmptyStringsAreAbsent(t *testing.T) {
	n := NewNormalizer(fixedClock, nil)

	q, err := n.List(types.ListParams{
		SensorName: strPtr(""),
		FromDate:   strPtr(""),
		ToDate:     strPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultSensorName, q.SensorName)
	assert.Equal(t, fixedNow.Truncate(time.Second), q.To)
}

func TestNormalizerListDropsDisallowedType(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewNormalizer(fixedClock, zap.New(core))

	q, err := n.List(types.ListParams{SensorType: strPtr("bogus")})
	require.NoError(t, err)
	assert.Equal(t, "", q.SensorType)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestNormalizerListKeepsAllowedTypes(t *testing.T) {
	n := NewNormalizer(fixedClock, nil)

	for _, sensorType := range AllowedSensorTypes {
		q, err := n.List(types.ListParams{SensorType: strPtr(sensorType)})
		require.NoError(t, err)
		assert.Equal(t, sensorType, q.SensorType)
	}
}

func TestNormalizerAverageFallsBackToTemp(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewNormalizer(fixedClock, zap.New(core))

	q, err := n.Average(types.AverageParams{SensorType: strPtr("bogus")})
	require.NoError(t, err)
	assert.Equal(t, "temp", q.SensorType)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "bogus", warnings[0].ContextMap()["sensor_type"])
	assert.Equal(t, "temp", warnings[0].ContextMap()["fallback"])
}

func TestNormalizerAverageMissingType(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewNormalizer(fixedClock, zap.New(core))

	q, err := n.Average(types.AverageParams{})
	require.NoError(t, err)
	assert.Equal(t, "temp", q.SensorType)
	assert.Equal(t, 1, logs.FilterMessage("sensor type not allowed, using fallback").Len())
}

func TestNormalizerExplicitWindow(t *testing.T) {
	n := NewNormalizer(fixedClock, nil)

	q, err := n.Average(types.AverageParams{
		SensorType: strPtr("humidity"),
		FromDate:   strPtr("2019-01-01T00:00:00"),
		ToDate:     strPtr("2019-01-07t00:00:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), q.From)
	assert.Equal(t, time.Date(2019, 1, 7, 0, 0, 0, 0, time.UTC), q.To)
}

func TestNormalizerRejectsMalformedDates(t *testing.T) {
	n := NewNormalizer(fixedClock, nil)

	_, err := n.List(types.ListParams{FromDate: strPtr("2020-13-40T00:00:00")})
	assert.ErrorIs(t, err, ErrInvalidDateFormat)

	_, err = n.Average(types.AverageParams{ToDate: strPtr("2019-01-07")})
	assert.ErrorIs(t, err, ErrInvalidDateFormat)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2019, 3, 28, 10, 0, 0, 0, time.UTC)

	got, err := ParseDate("2019-03-28T10:00:00")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseDate("2019-03-28t10:00:00")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, bad := range []string{
		"",
		"2020-13-40",
		"2020-13-40T00:00:00",
		"2019-03-28 10:00:00",
		"2019-03-28T10:00:00Z",
		"2019-03-28T10:00",
		"28-03-2019T10:00:00",
		"2019-03-28X10:00:00",
	} {
		_, err := ParseDate(bad)
		assert.Equal(t, ErrInvalidDateFormat, err, "%q", bad)
	}
}

func TestInvalidDateMessage(t *testing.T) {
	assert.Equal(t, "Incorrect date format, should be yyyy-MM-dd'T'HH:mm:ss", ErrInvalidDateFormat.Error())
}
