// Package search defines the contract between the query layer and the
// document store holding measurement documents, plus the backends that
// implement it.
package search

import (
	"context"
	"strings"
	"time"
)

// TimestampLayout is the wire format of range bounds and stored timestamps
const TimestampLayout = "2006-01-02T15:04:05"

// KeywordSuffix marks the exact-match sub-field of an analyzed text field
const KeywordSuffix = ".keyword"

// Backend executes structured search requests against partitioned documents
type Backend interface {
	// Search runs a single request and returns matched hits and aggregations
	Search(ctx context.Context, req *Request) (*Response, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend connection
	Close() error
}

// Wildcard matches a string field against a pattern where * matches any
// run of characters and ? matches exactly one.
type Wildcard struct {
	Field   string
	Pattern string
}

// Range is an inclusive bound on a date field
type Range struct {
	Field string
	Gte   time.Time
	Lte   time.Time
}

// SortField orders hits by a single field
type SortField struct {
	Field      string
	Descending bool
}

// AvgAggregation computes the arithmetic mean of a numeric field
type AvgAggregation struct {
	Name  string
	Field string
}

// TermsAggregation enumerates up to Size distinct values of a field
type TermsAggregation struct {
	Name  string
	Field string
	Size  int
}

// Request is a bool-filter search over an index or index pattern.
// All wildcards and ranges must match (filter context, no scoring).
type Request struct {
	Index         string
	Wildcards     []Wildcard
	Ranges        []Range
	Sort          []SortField
	Size          int
	ExcludeSource bool
	Avg           *AvgAggregation
	Terms         *TermsAggregation
}

// Source renders the request body in Elasticsearch query DSL
func (r *Request) Source() map[string]any {
	filters := make([]any, 0, len(r.Wildcards)+len(r.Ranges))
	for _, w := range r.Wildcards {
		filters = append(filters, map[string]any{
			"wildcard": map[string]any{w.Field: w.Pattern},
		})
	}
	for _, rg := range r.Ranges {
		filters = append(filters, map[string]any{
			"range": map[string]any{
				rg.Field: map[string]any{
					"gte": rg.Gte.Format(TimestampLayout),
					"lte": rg.Lte.Format(TimestampLayout),
				},
			},
		})
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
		"size": r.Size,
	}

	if len(r.Sort) > 0 {
		sorts := make([]any, 0, len(r.Sort))
		for _, s := range r.Sort {
			order := "asc"
			if s.Descending {
				order = "desc"
			}
			sorts = append(sorts, map[string]any{s.Field: map[string]any{"order": order}})
		}
		body["sort"] = sorts
	}

	if r.ExcludeSource {
		body["_source"] = false
	}

	aggs := map[string]any{}
	if r.Avg != nil {
		aggs[r.Avg.Name] = map[string]any{
			"avg": map[string]any{"field": r.Avg.Field},
		}
	}
	if r.Terms != nil {
		aggs[r.Terms.Name] = map[string]any{
			"terms": map[string]any{"field": r.Terms.Field, "size": r.Terms.Size},
		}
	}
	if len(aggs) > 0 {
		body["aggs"] = aggs
	}

	return body
}

// Document is a stored measurement document. Keys follow SenML naming.
type Document struct {
	Name        *string  `json:"n,omitempty"`
	Unit        *string  `json:"u,omitempty"`
	Value       *float64 `json:"v,omitempty"`
	StringValue *string  `json:"vs,omitempty"`
	BoolValue   *bool    `json:"vb,omitempty"`
	UpdateTime  *float64 `json:"ut,omitempty"`
	Sum         *float64 `json:"s,omitempty"`
	UUID        *string  `json:"uuid,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// StringField returns the value of a string field addressed by its stored
// key. The keyword sub-field resolves to the same value.
func (d *Document) StringField(field string) (string, bool) {
	var v *string
	switch strings.TrimSuffix(field, KeywordSuffix) {
	case "n":
		v = d.Name
	case "u":
		v = d.Unit
	case "vs":
		v = d.StringValue
	case "uuid":
		v = d.UUID
	case "timestamp":
		if d.Timestamp == "" {
			return "", false
		}
		return d.Timestamp, true
	}
	if v == nil {
		return "", false
	}
	return *v, true
}

// NumberField returns the value of a numeric field addressed by its stored key
func (d *Document) NumberField(field string) (float64, bool) {
	var v *float64
	switch field {
	case "v":
		v = d.Value
	case "ut":
		v = d.UpdateTime
	case "s":
		v = d.Sum
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Hit is a single matched document
type Hit struct {
	ID       string
	Document Document
}

// Bucket is one distinct value reported by a terms aggregation
type Bucket struct {
	Key      string
	DocCount int64
}

// AggregationResult holds a metric value or the buckets of a terms aggregation
type AggregationResult struct {
	Value   *float64
	Buckets []Bucket
}

// Response is the outcome of a Request
type Response struct {
	Hits         []Hit
	Aggregations map[string]AggregationResult
}

// ParseTimestamp parses a stored timestamp. Stored documents carry either
// RFC 3339 timestamps or the zone-less TimestampLayout, read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, TimestampLayout, "2006-01-02T15:04:05.999999999"}
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
