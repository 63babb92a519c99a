package search

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PartitionPrefix prefixes every daily measurement index
	PartitionPrefix = "measurements-"

	// PartitionLayout is the date part of a daily index name
	PartitionLayout = "2006-01-02"

	// AllPartitions matches every daily measurement index
	AllPartitions = PartitionPrefix + "*"
)

// PartitionName returns the daily index holding documents stamped at t
func PartitionName(t time.Time) string {
	return PartitionPrefix + t.UTC().Format(PartitionLayout)
}

// ParsePartition returns the UTC day covered by a daily index name
func ParsePartition(name string) (time.Time, error) {
	if !strings.HasPrefix(name, PartitionPrefix) {
		return time.Time{}, fmt.Errorf("index %q is not a measurement partition", name)
	}
	day, err := time.Parse(PartitionLayout, strings.TrimPrefix(name, PartitionPrefix))
	if err != nil {
		return time.Time{}, fmt.Errorf("index %q has no valid date: %w", name, err)
	}
	return day, nil
}

// IsPattern reports whether an index name addresses several partitions
func IsPattern(index string) bool {
	return strings.ContainsAny(index, "*?")
}
