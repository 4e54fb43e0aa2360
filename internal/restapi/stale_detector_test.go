package restapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tempo.transitdata.org/internal/transit"
)

func TestStaleDetectorNilFeed(t *testing.T) {
	d := NewStaleDetector()
	assert.True(t, d.Check(nil, time.Now()))
}

func TestStaleDetectorThreshold(t *testing.T) {
	now := time.Date(2018, 12, 15, 13, 22, 0, 0, time.UTC)
	d := NewStaleDetector()

	fresh := &transit.FeedSnapshot{FetchedAt: now.Add(-5 * time.Minute)}
	assert.False(t, d.Check(fresh, now))

	stale := &transit.FeedSnapshot{FetchedAt: now.Add(-16 * time.Minute)}
	assert.True(t, d.Check(stale, now))
}

func TestStaleDetectorCustomThreshold(t *testing.T) {
	now := time.Date(2018, 12, 15, 13, 22, 0, 0, time.UTC)
	d := NewStaleDetector().WithThreshold(time.Minute)

	feed := &transit.FeedSnapshot{FetchedAt: now.Add(-2 * time.Minute)}
	assert.True(t, d.Check(feed, now))
	assert.Equal(t, 2*time.Minute, d.Age(feed, now))
}
