package query

import "github.com/vjranagit/sensorquery/pkg/search"

// Index fields of a stored measurement
const (
	NameField        = "n"
	NameKeywordField = "n" + search.KeywordSuffix
	UnitKeywordField = "u" + search.KeywordSuffix
	ValueField       = "v"
	TimestampField   = "timestamp"
)

const (
	// AvgAggregationName names the mean-of-value aggregation
	AvgAggregationName = "avg"

	// UnitsAggregationName names the distinct-units aggregation
	UnitsAggregationName = "units"

	// unitBuckets is enough to tell one unit from several
	unitBuckets = 2
)

// NamePattern builds the suffix-open wildcard over sensor names
func NamePattern(sensorName, sensorType string) string {
	if sensorType != "" {
		return sensorName + "*" + sensorType
	}
	return sensorName + "*"
}

// BuildListRequest builds the chronological, size-capped listing request
func BuildListRequest(q ListQuery) *search.Request {
	return &search.Request{
		Index: SelectIndex(q.From, q.To),
		Wildcards: []search.Wildcard{
			{Field: NameKeywordField, Pattern: NamePattern(q.SensorName, q.SensorType)},
		},
		Ranges: []search.Range{
			{Field: TimestampField, Gte: q.From, Lte: q.To},
		},
		Sort: []search.SortField{
			{Field: TimestampField},
		},
		Size: q.Amount,
	}
}

// BuildAverageRequest builds the aggregation-only request for the mean value
// and the distinct units of one sensor type
func BuildAverageRequest(q AverageQuery) *search.Request {
	return &search.Request{
		Index: SelectIndex(q.From, q.To),
		Wildcards: []search.Wildcard{
			{Field: NameField, Pattern: q.SensorType},
		},
		Ranges: []search.Range{
			{Field: TimestampField, Gte: q.From, Lte: q.To},
		},
		Size:          0,
		ExcludeSource: true,
		Avg: &search.AvgAggregation{
			Name:  AvgAggregationName,
			Field: ValueField,
		},
		Terms: &search.TermsAggregation{
			Name:  UnitsAggregationName,
			Field: UnitKeywordField,
			Size:  unitBuckets,
		},
	}
}
