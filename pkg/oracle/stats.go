package oracle

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Stats are the processor's running ingest counters, reported periodically
// and exposed on the stats endpoint.
type Stats struct {
	Messages   atomic.Int64 // batches fully processed
	Rejected   atomic.Int64 // batches rejected or undecodable
	Duplicates atomic.Int64 // batches skipped by the dedup guard
	DataPoints atomic.Int64 // blob entries processed
	Merges     atomic.Int64 // rollup merges performed
}

// Snapshot is a point-in-time copy of Stats, JSON-friendly.
type Snapshot struct {
	Messages   int64 `json:"messages"`
	Rejected   int64 `json:"rejected"`
	Duplicates int64 `json:"duplicates"`
	DataPoints int64 `json:"dataPoints"`
	Merges     int64 `json:"merges"`
}

// Snapshot returns a consistent-enough copy for reporting.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Messages:   s.Messages.Load(),
		Rejected:   s.Rejected.Load(),
		Duplicates: s.Duplicates.Load(),
		DataPoints: s.DataPoints.Load(),
		Merges:     s.Merges.Load(),
	}
}

// Report logs the current counters.
func (s *Stats) Report(log *zap.Logger) {
	snap := s.Snapshot()
	log.Info("ingest stats",
		zap.Int64("messages", snap.Messages),
		zap.Int64("rejected", snap.Rejected),
		zap.Int64("duplicates", snap.Duplicates),
		zap.Int64("dataPoints", snap.DataPoints),
		zap.Int64("merges", snap.Merges))
}
