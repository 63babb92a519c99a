package query

import (
	"time"

	"github.com/vjranagit/sensorquery/pkg/search"
)

// SelectIndex picks the daily partition when from and to share a UTC
// calendar day, and the all-partitions pattern otherwise.
func SelectIndex(from, to time.Time) string {
	if sameDay(from.UTC(), to.UTC()) {
		return search.PartitionName(from)
	}
	return search.AllPartitions
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
