package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/vjranagit/sensorquery/pkg/search"
)

// PartitionIndex tracks the daily partitions held by the store
type PartitionIndex struct {
	mu         sync.RWMutex
	partitions map[string]*partitionMetadata
}

// partitionMetadata holds metadata about a single daily partition
type partitionMetadata struct {
	Name      string    `json:"name"`
	Documents int64     `json:"documents"`
	MinTime   time.Time `json:"min_time"`
	MaxTime   time.Time `json:"max_time"`
}

// NewPartitionIndex creates a new partition index
func NewPartitionIndex() *PartitionIndex {
	return &PartitionIndex{
		partitions: make(map[string]*partitionMetadata),
	}
}

// Add records a document stamped at ts in partition name
func (idx *PartitionIndex) Add(name string, ts time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	meta, ok := idx.partitions[name]
	if !ok {
		meta = &partitionMetadata{Name: name, MinTime: ts, MaxTime: ts}
		idx.partitions[name] = meta
	}
	meta.add(ts)
}

// add counts one more document and widens the time span to cover ts
func (m *partitionMetadata) add(ts time.Time) {
	m.Documents++
	if ts.Before(m.MinTime) {
		m.MinTime = ts
	}
	if ts.After(m.MaxTime) {
		m.MaxTime = ts
	}
}

// Restore loads persisted metadata for a partition
func (idx *PartitionIndex) Restore(meta partitionMetadata) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	m := meta
	idx.partitions[meta.Name] = &m
}

// Get retrieves partition metadata by name
func (idx *PartitionIndex) Get(name string) (partitionMetadata, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	meta, ok := idx.partitions[name]
	if !ok {
		return partitionMetadata{}, false
	}
	return *meta, true
}

// Match returns the partitions addressed by an index name or pattern,
// oldest first. Partitions whose time span lies outside every given window
// are skipped.
func (idx *PartitionIndex) Match(index string, windows []search.Range) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := make([]string, 0)
	for name, meta := range idx.partitions {
		if !search.MatchWildcard(index, name) {
			continue
		}
		if !overlaps(meta, windows) {
			continue
		}
		result = append(result, name)
	}

	// Names embed the date, so lexical order is chronological
	sort.Strings(result)
	return result
}

// PartitionCount returns the number of indexed partitions
func (idx *PartitionIndex) PartitionCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.partitions)
}

// Clear clears the index
func (idx *PartitionIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.partitions = make(map[string]*partitionMetadata)
}

func overlaps(meta *partitionMetadata, windows []search.Range) bool {
	for _, w := range windows {
		if w.Field != timestampField {
			continue
		}
		if meta.MaxTime.Before(w.Gte) || meta.MinTime.After(w.Lte) {
			return false
		}
	}
	return true
}
