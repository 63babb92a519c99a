package types

import "time"

// Measurement represents a single sensor reading
type Measurement struct {
	SensorName  *string   `json:"sensor_name"`
	Unit        *string   `json:"unit"`
	Value       *float64  `json:"value"`
	StringValue *string   `json:"string_value"`
	BoolValue   *bool     `json:"bool_value"`
	UpdateTime  *float64  `json:"update_time"`
	Sum         *float64  `json:"sum"`
	UUID        *string   `json:"uuid"`
	Timestamp   time.Time `json:"timestamp"`
}

// Aggregate summarizes one sensor type over a time window.
// Avg is nil when no document matched.
type Aggregate struct {
	Avg  *float64 `json:"avg"`
	Unit *string  `json:"unit"`
}

// ListParams holds the raw, untrusted arguments of a measurements listing.
// A nil field means the caller did not supply it.
type ListParams struct {
	SensorName *string
	Amount     *int
	SensorType *string
	FromDate   *string
	ToDate     *string
}

// AverageParams holds the raw arguments of an average-by-date request
type AverageParams struct {
	SensorType *string
	FromDate   *string
	ToDate     *string
}
