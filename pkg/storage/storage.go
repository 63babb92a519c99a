// Package storage implements an embedded search backend: measurement
// documents kept in BadgerDB, one key range per daily partition.
package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vjranagit/sensorquery/pkg/search"
	"go.uber.org/zap"
)

const (
	documentPrefix  = "d/"
	partitionPrefix = "p/"
	timestampField  = "timestamp"
)

// Config holds storage configuration
type Config struct {
	Path             string
	CompressionLevel int
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		CompressionLevel: 3,
	}
}

// Store is a search.Backend backed by BadgerDB
type Store struct {
	cfg    *Config
	db     *badger.DB
	index  *PartitionIndex
	codec  *DocumentCodec
	logger *zap.Logger
	mu     sync.RWMutex
}

var _ search.Backend = (*Store)(nil)

// NewStore opens the store at cfg.Path and loads its partition index
func NewStore(cfg *Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Initialize BadgerDB
	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	codec, err := NewDocumentCodec(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create document codec: %w", err)
	}

	s := &Store{
		cfg:    cfg,
		db:     db,
		index:  NewPartitionIndex(),
		codec:  codec,
		logger: logger,
	}

	if err := s.loadIndex(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load partition index: %w", err)
	}

	logger.Info("embedded store opened",
		zap.String("path", cfg.Path),
		zap.Int("partitions", s.index.PartitionCount()))

	return s, nil
}

// loadIndex rebuilds the partition index from persisted metadata
func (s *Store) loadIndex() error {
	s.index.Clear()
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(partitionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var meta partitionMetadata
				if err := json.Unmarshal(val, &meta); err != nil {
					return err
				}
				s.index.Restore(meta)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Put stores documents in the partition of their timestamp. Documents
// without a uuid get a generated one.
func (s *Store) Put(ctx context.Context, docs ...search.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Partition metadata is published only once the transaction commits
	pending := make(map[string]partitionMetadata)

	err := s.db.Update(func(txn *badger.Txn) error {
		for i := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}

			doc := docs[i]
			ts, err := search.ParseTimestamp(doc.Timestamp)
			if err != nil {
				return fmt.Errorf("invalid timestamp %q: %w", doc.Timestamp, err)
			}
			if doc.UUID == nil {
				id := uuid.NewString()
				doc.UUID = &id
			}

			value, err := s.codec.Encode(doc)
			if err != nil {
				return err
			}

			partition := search.PartitionName(ts)
			key := generateKey(partition, ts, *doc.UUID)
			if err := txn.Set(key, value); err != nil {
				return fmt.Errorf("failed to write document: %w", err)
			}

			meta, ok := pending[partition]
			if !ok {
				meta, ok = s.index.Get(partition)
			}
			if !ok {
				meta = partitionMetadata{Name: partition, MinTime: ts, MaxTime: ts}
			}
			meta.add(ts)
			pending[partition] = meta
		}

		for partition, meta := range pending {
			metaBytes, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("failed to marshal partition metadata: %w", err)
			}
			if err := txn.Set([]byte(partitionPrefix+partition), metaBytes); err != nil {
				return fmt.Errorf("failed to write partition metadata: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, meta := range pending {
		s.index.Restore(meta)
	}

	s.logger.Debug("documents stored",
		zap.Int("documents", len(docs)),
		zap.Int("partitions", len(pending)))
	return nil
}

// matchedDocument is a document that passed every filter
type matchedDocument struct {
	hit search.Hit
	ts  time.Time
}

// Search implements search.Backend.Search
func (s *Store) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sf := range req.Sort {
		if sf.Field != timestampField {
			return nil, fmt.Errorf("unsupported sort field %q", sf.Field)
		}
	}

	partitions := s.index.Match(req.Index, req.Ranges)

	var matched []matchedDocument
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		docs, err := s.scanPartition(partition, req)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", partition, err)
		}
		matched = append(matched, docs...)
	}

	for i := len(req.Sort) - 1; i >= 0; i-- {
		desc := req.Sort[i].Descending
		sort.SliceStable(matched, func(a, b int) bool {
			if desc {
				return matched[a].ts.After(matched[b].ts)
			}
			return matched[a].ts.Before(matched[b].ts)
		})
	}

	resp := &search.Response{
		Hits:         make([]search.Hit, 0),
		Aggregations: make(map[string]search.AggregationResult),
	}

	for i := 0; i < len(matched) && i < req.Size; i++ {
		resp.Hits = append(resp.Hits, matched[i].hit)
	}

	if req.Avg != nil {
		resp.Aggregations[req.Avg.Name] = average(matched, req.Avg.Field)
	}
	if req.Terms != nil {
		resp.Aggregations[req.Terms.Name] = terms(matched, req.Terms.Field, req.Terms.Size)
	}

	return resp, nil
}

// scanPartition reads every document of a partition and keeps the ones
// matching the request filters
func (s *Store) scanPartition(partition string, req *search.Request) ([]matchedDocument, error) {
	var result []matchedDocument

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(documentPrefix + partition + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var doc search.Document
			err := item.Value(func(val []byte) error {
				decoded, err := s.codec.Decode(val)
				if err != nil {
					return fmt.Errorf("document %s: %w", item.Key(), err)
				}
				doc = decoded
				return nil
			})
			if err != nil {
				return err
			}

			ok, ts, err := matches(&doc, req)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			id := ""
			if doc.UUID != nil {
				id = *doc.UUID
			}
			result = append(result, matchedDocument{
				hit: search.Hit{ID: id, Document: doc},
				ts:  ts,
			})
		}
		return nil
	})

	return result, err
}

// matches applies the wildcard and range filters to a document
func matches(doc *search.Document, req *search.Request) (bool, time.Time, error) {
	ts, err := search.ParseTimestamp(doc.Timestamp)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("stored document has invalid timestamp %q: %w", doc.Timestamp, err)
	}

	for _, w := range req.Wildcards {
		value, ok := doc.StringField(w.Field)
		if !ok || !search.MatchField(w.Field, w.Pattern, value) {
			return false, ts, nil
		}
	}

	for _, rg := range req.Ranges {
		if rg.Field != timestampField {
			return false, ts, fmt.Errorf("unsupported range field %q", rg.Field)
		}
		if ts.Before(rg.Gte) || ts.After(rg.Lte) {
			return false, ts, nil
		}
	}

	return true, ts, nil
}

func average(docs []matchedDocument, field string) search.AggregationResult {
	var sum float64
	var count int
	for _, d := range docs {
		if v, ok := d.hit.Document.NumberField(field); ok {
			sum += v
			count++
		}
	}

	if count == 0 {
		return search.AggregationResult{}
	}
	avg := sum / float64(count)
	return search.AggregationResult{Value: &avg}
}

func terms(docs []matchedDocument, field string, size int) search.AggregationResult {
	counts := make(map[string]int64)
	for _, d := range docs {
		if v, ok := d.hit.Document.StringField(field); ok {
			counts[v]++
		}
	}

	buckets := make([]search.Bucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, search.Bucket{Key: key, DocCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].DocCount != buckets[j].DocCount {
			return buckets[i].DocCount > buckets[j].DocCount
		}
		return buckets[i].Key < buckets[j].Key
	})

	if len(buckets) > size {
		buckets = buckets[:size]
	}
	return search.AggregationResult{Buckets: buckets}
}

// Ping implements search.Backend.Ping
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("embedded store is closed")
	}
	return nil
}

// Close implements search.Backend.Close
func (s *Store) Close() error {
	if s.codec != nil {
		s.codec.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateKey generates a storage key ordered by partition, then time
func generateKey(partition string, ts time.Time, id string) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString(documentPrefix)
	buf.WriteString(partition)
	buf.WriteByte('/')

	// Documents inside a partition share a date, so nanoseconds since the
	// epoch sort chronologically
	binary.Write(buf, binary.BigEndian, uint64(ts.UnixNano()))

	buf.WriteString(strings.ReplaceAll(id, "/", "_"))

	return buf.Bytes()
}
