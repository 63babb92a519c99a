package query

import (
	"time"

	"github.com/vjranagit/sensorquery/pkg/search"
	"github.com/vjranagit/sensorquery/pkg/types"
	"go.uber.org/zap"
)

const (
	// MaxAmount is the largest number of measurements a listing returns
	MaxAmount = 100

	// DefaultAmount replaces a missing or out-of-range amount
	DefaultAmount = 10

	// DefaultSensorName matches every device
	DefaultSensorName = "urn:dev"

	// DefaultWindow is the look-back used when a date is omitted
	DefaultWindow = 7 * 24 * time.Hour
)

// AllowedSensorTypes lists the sensor types accepted as a filter
var AllowedSensorTypes = []string{
	"temp",
	"humidity",
	"pressure",
	"pm1",
	"pm2_5",
	"pm10",
	"no2",
	"hostname",
	"uptime",
	"WiFi:ESSID",
}

// TypePolicy decides what an operation does with a sensor type outside the
// allow-list. An empty Fallback drops the type filter.
type TypePolicy struct {
	Fallback string
	Warn     bool
}

var (
	// ListingTypePolicy lists every type when the requested one is unknown
	ListingTypePolicy = TypePolicy{}

	// AggregateTypePolicy averages temperature when the requested type is
	// unknown, and says so in the log
	AggregateTypePolicy = TypePolicy{Fallback: "temp", Warn: true}
)

// Window is an inclusive time range in UTC
type Window struct {
	From time.Time
	To   time.Time
}

// ListQuery holds validated listing parameters
type ListQuery struct {
	SensorName string
	SensorType string
	Amount     int
	Window
}

// AverageQuery holds validated average-by-date parameters
type AverageQuery struct {
	SensorType string
	Window
}

// Normalizer validates and defaults caller-supplied parameters
type Normalizer struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewNormalizer creates a normalizer reading the current time from now
func NewNormalizer(now func() time.Time, logger *zap.Logger) *Normalizer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{now: now, logger: logger}
}

// List normalizes the parameters of a measurements listing
func (n *Normalizer) List(p types.ListParams) (ListQuery, error) {
	window, err := n.window(p.FromDate, p.ToDate)
	if err != nil {
		return ListQuery{}, err
	}

	name := DefaultSensorName
	if p.SensorName != nil && *p.SensorName != "" {
		name = *p.SensorName
	}

	return ListQuery{
		SensorName: name,
		SensorType: n.sensorType(p.SensorType, ListingTypePolicy),
		Amount:     normalizeAmount(p.Amount),
		Window:     window,
	}, nil
}

// Average normalizes the parameters of an average-by-date request
func (n *Normalizer) Average(p types.AverageParams) (AverageQuery, error) {
	window, err := n.window(p.FromDate, p.ToDate)
	if err != nil {
		return AverageQuery{}, err
	}

	return AverageQuery{
		SensorType: n.sensorType(p.SensorType, AggregateTypePolicy),
		Window:     window,
	}, nil
}

func (n *Normalizer) sensorType(sensorType *string, policy TypePolicy) string {
	if sensorType != nil && IsAllowedSensorType(*sensorType) {
		return *sensorType
	}

	if policy.Warn {
		requested := "<none>"
		if sensorType != nil {
			requested = *sensorType
		}
		n.logger.Warn("sensor type not allowed, using fallback",
			zap.String("sensor_type", requested),
			zap.String("fallback", policy.Fallback))
	}
	return policy.Fallback
}

func (n *Normalizer) window(fromDate, toDate *string) (Window, error) {
	now := n.now().UTC().Truncate(time.Second)
	w := Window{From: now.Add(-DefaultWindow), To: now}

	if fromDate != nil && *fromDate != "" {
		from, err := ParseDate(*fromDate)
		if err != nil {
			n.logger.Debug("rejected from_date", zap.String("from_date", *fromDate))
			return Window{}, err
		}
		w.From = from
	}

	if toDate != nil && *toDate != "" {
		to, err := ParseDate(*toDate)
		if err != nil {
			n.logger.Debug("rejected to_date", zap.String("to_date", *toDate))
			return Window{}, err
		}
		w.To = to
	}

	return w, nil
}

// normalizeAmount keeps amounts within [0, MaxAmount] and defaults the rest
func normalizeAmount(amount *int) int {
	if amount == nil || *amount < 0 || *amount > MaxAmount {
		return DefaultAmount
	}
	return *amount
}

// IsAllowedSensorType reports whether t is in AllowedSensorTypes
func IsAllowedSensorType(t string) bool {
	for _, allowed := range AllowedSensorTypes {
		if t == allowed {
			return true
		}
	}
	return false
}

// ParseDate parses yyyy-MM-ddTHH:mm:ss as UTC. The date/time separator may
// be upper or lower case.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(search.TimestampLayout) || (s[10] != 'T' && s[10] != 't') {
		return time.Time{}, ErrInvalidDateFormat
	}

	t, err := time.Parse(search.TimestampLayout, s[:10]+"T"+s[11:])
	if err != nil {
		return time.Time{}, ErrInvalidDateFormat
	}
	return t, nil
}
