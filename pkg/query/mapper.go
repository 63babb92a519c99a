package query

import (
	"fmt"

	"github.com/vjranagit/sensorquery/pkg/search"
	"github.com/vjranagit/sensorquery/pkg/types"
)

// MapMeasurements converts hits to measurements, keeping their order and at
// most limit of them
func MapMeasurements(resp *search.Response, limit int) ([]types.Measurement, error) {
	hits := resp.Hits
	if len(hits) > limit {
		hits = hits[:limit]
	}

	measurements := make([]types.Measurement, 0, len(hits))
	for _, hit := range hits {
		m, err := MapMeasurement(hit.Document)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", hit.ID, err)
		}
		measurements = append(measurements, m)
	}

	return measurements, nil
}

// MapMeasurement converts one stored document. Fields missing from the
// document stay nil.
func MapMeasurement(doc search.Document) (types.Measurement, error) {
	m := types.Measurement{
		SensorName:  doc.Name,
		Unit:        doc.Unit,
		Value:       doc.Value,
		StringValue: doc.StringValue,
		BoolValue:   doc.BoolValue,
		UpdateTime:  doc.UpdateTime,
		Sum:         doc.Sum,
		UUID:        doc.UUID,
	}

	if doc.Timestamp != "" {
		ts, err := search.ParseTimestamp(doc.Timestamp)
		if err != nil {
			return types.Measurement{}, fmt.Errorf("invalid timestamp %q: %w", doc.Timestamp, err)
		}
		m.Timestamp = ts
	}

	return m, nil
}

// MapAggregate reads the mean and the single unit of an average request
func MapAggregate(resp *search.Response) (*types.Aggregate, error) {
	agg := &types.Aggregate{
		Avg: resp.Aggregations[AvgAggregationName].Value,
	}

	buckets := resp.Aggregations[UnitsAggregationName].Buckets
	switch len(buckets) {
	case 0:
	case 1:
		unit := buckets[0].Key
		agg.Unit = &unit
	default:
		return nil, ErrMultipleUnits
	}

	return agg, nil
}
