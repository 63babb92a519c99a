package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// ElasticConfig holds the connection settings of an Elasticsearch cluster
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
}

// ElasticBackend implements Backend on top of Elasticsearch.
// The underlying client pools connections and is safe for concurrent use.
type ElasticBackend struct {
	client *elasticsearch.Client
	logger *zap.Logger
}

// NewElasticBackend creates a backend connected to the configured cluster
func NewElasticBackend(cfg ElasticConfig, logger *zap.Logger) (*ElasticBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticBackend{
		client: client,
		logger: logger,
	}, nil
}

// Search implements Backend.Search
func (b *ElasticBackend) Search(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req.Source())
	if err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	b.logger.Debug("elasticsearch search",
		zap.String("index", req.Index),
		zap.ByteString("body", body))

	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(req.Index),
		b.client.Search.WithBody(bytes.NewReader(body)),
		// A day without data has no partition; treat it as empty
		b.client.Search.WithIgnoreUnavailable(true),
		b.client.Search.WithAllowNoIndices(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("elasticsearch returned %s: %s", res.Status(), bytes.TrimSpace(msg))
	}

	var esResp elasticSearchResponse
	if decodeErr := json.NewDecoder(res.Body).Decode(&esResp); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", decodeErr)
	}

	return esResp.toResponse()
}

// Ping implements Backend.Ping
func (b *ElasticBackend) Ping(ctx context.Context) error {
	res, err := b.client.Ping(b.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping elasticsearch: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}

// Close implements Backend.Close. The HTTP transport has nothing to release.
func (b *ElasticBackend) Close() error {
	return nil
}

// elasticSearchResponse is the subset of the search response the layer reads
type elasticSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// elasticAggregation covers both metric (value) and bucket aggregations
type elasticAggregation struct {
	Value   *float64 `json:"value"`
	Buckets []struct {
		Key      any   `json:"key"`
		DocCount int64 `json:"doc_count"`
	} `json:"buckets"`
}

func (r *elasticSearchResponse) toResponse() (*Response, error) {
	resp := &Response{
		Hits:         make([]Hit, 0, len(r.Hits.Hits)),
		Aggregations: make(map[string]AggregationResult, len(r.Aggregations)),
	}

	for _, h := range r.Hits.Hits {
		resp.Hits = append(resp.Hits, Hit{ID: h.ID, Document: h.Source})
	}

	for name, raw := range r.Aggregations {
		var agg elasticAggregation
		if err := json.Unmarshal(raw, &agg); err != nil {
			return nil, fmt.Errorf("failed to decode aggregation %q: %w", name, err)
		}

		result := AggregationResult{Value: agg.Value}
		for _, b := range agg.Buckets {
			result.Buckets = append(result.Buckets, Bucket{
				Key:      fmt.Sprint(b.Key),
				DocCount: b.DocCount,
			})
		}
		resp.Aggregations[name] = result
	}

	return resp, nil
}
