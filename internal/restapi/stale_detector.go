package restapi

import (
	"time"

	"tempo.transitdata.org/internal/transit"
)

// StaleDetector flags realtime feed snapshots older than a threshold.
type StaleDetector struct {
	threshold time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{
		threshold: 15 * time.Minute,
	}
}

func (d *StaleDetector) WithThreshold(threshold time.Duration) *StaleDetector {
	d.threshold = threshold
	return d
}

// Check reports whether the snapshot is missing or too old to trust.
func (d *StaleDetector) Check(feed *transit.FeedSnapshot, currentTime time.Time) bool {
	if feed == nil {
		return true
	}
	return currentTime.Sub(feed.FetchedAt) > d.threshold
}

// Age returns the age of the snapshot, or past-threshold when there is
// none.
func (d *StaleDetector) Age(feed *transit.FeedSnapshot, currentTime time.Time) time.Duration {
	if feed == nil {
		return d.threshold + 1
	}
	return currentTime.Sub(feed.FetchedAt)
}
