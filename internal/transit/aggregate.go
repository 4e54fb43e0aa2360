package transit

import (
	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// AggregateFeeds merges several decoded GTFS-RT feeds into a single
// one: the header comes from the first feed, entities are concatenated
// in input order. Returns nil when there is nothing to merge.
func AggregateFeeds(feeds []*gtfsrt.FeedMessage) *gtfsrt.FeedMessage {
	if len(feeds) == 0 {
		return nil
	}
	merged := &gtfsrt.FeedMessage{Header: feeds[0].GetHeader()}
	for _, feed := range feeds {
		merged.Entity = append(merged.Entity, feed.GetEntity()...)
	}
	return merged
}
