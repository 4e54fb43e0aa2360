package transit

import (
	"time"
)

// Dataset is one fully loaded base schedule: the indexed model plus the
// timetable generated from it. Datasets are immutable, a reload builds
// a new one and swaps the pointer.
type Dataset struct {
	ID     string
	Name   string
	Source string

	Model     *Model
	Timetable *Timetable
	Period    Period
	LoadedAt  time.Time
}

// ScheduleRelationship qualifies a realtime connection, mirroring the
// GTFS-RT stop time update relationships the proxy understands.
type ScheduleRelationship int

const (
	ScheduledRelationship ScheduleRelationship = iota
	SkippedRelationship
	NoDataRelationship
)

// RealTimeConnection carries the updated times for one base connection.
// Nil times mean the feed did not provide the corresponding event.
type RealTimeConnection struct {
	DepTime              *time.Time
	ArrTime              *time.Time
	ScheduleRelationship ScheduleRelationship
	UpdateTime           time.Time
}

// UpdatedTimetable is the realtime overlay: updated connections keyed
// by the position of their base connection in Timetable.Connections.
// The base timetable is never modified.
type UpdatedTimetable struct {
	Connections map[int]RealTimeConnection
}

func NewUpdatedTimetable() UpdatedTimetable {
	return UpdatedTimetable{Connections: make(map[int]RealTimeConnection)}
}

// FeedSnapshot is the aggregated GTFS-RT feed as last fetched,
// re-encoded as a single protobuf message.
type FeedSnapshot struct {
	FetchedAt time.Time
	Raw       []byte
}

// RealTimeDataset is the realtime state computed against one base
// dataset. It keeps its own pointer to the base so that a query always
// sees a coherent schedule/overlay pair even across reloads. When the
// last schedule build failed, Base is nil and BaseErr holds the build
// error.
type RealTimeDataset struct {
	Base       *Dataset
	BaseErr    error
	SourceURLs []string

	// Feed is nil until the first successful fetch.
	Feed    *FeedSnapshot
	Updated UpdatedTimetable
}

func NewRealTimeDataset(base *Dataset, urls []string) *RealTimeDataset {
	return &RealTimeDataset{
		Base:       base,
		SourceURLs: urls,
		Updated:    NewUpdatedTimetable(),
	}
}

// NewRealTimeDatasetError is the realtime state of a dataset whose
// schedule build failed. The overlay stays empty until a build
// succeeds again.
func NewRealTimeDatasetError(err error, urls []string) *RealTimeDataset {
	return &RealTimeDataset{
		BaseErr:    err,
		SourceURLs: urls,
		Updated:    NewUpdatedTimetable(),
	}
}
