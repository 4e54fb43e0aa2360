package transit

import (
	"fmt"
	"log/slog"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// StopTimeUpdate is the resolved update for one stop event. StopPoint
// is nil when the feed entry carried no stop_id.
type StopTimeUpdate struct {
	StopPoint *StopPointIdx
	Arrival   *time.Time
	Departure *time.Time
}

// TripUpdate groups the stop time updates of one dated vehicle journey,
// keyed by stop_sequence.
type TripUpdate struct {
	StopTimeUpdates map[uint32]StopTimeUpdate
	UpdateTime      time.Time
}

// ModelUpdate is a decoded GTFS-RT feed resolved against the schedule.
// When a feed carries several entities for the same dated journey, the
// last one wins.
type ModelUpdate struct {
	Trips map[DatedVehicleJourney]*TripUpdate
}

// BuildModelUpdate resolves every trip update of the feed against the
// model. Entities that cannot be matched to the schedule are skipped
// with a warning, one bad entity never poisons the rest of the feed.
func BuildModelUpdate(m *Model, feed *gtfsrt.FeedMessage, now time.Time, logger *slog.Logger) *ModelUpdate {
	update := &ModelUpdate{Trips: make(map[DatedVehicleJourney]*TripUpdate)}
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		dvj, err := m.ResolveTripDescriptor(tu.GetTrip(), now)
		if err != nil {
			logger.Warn("impossible to handle trip update",
				slog.String("entity_id", entity.GetId()),
				slog.String("trip_id", tu.GetTrip().GetTripId()),
				slog.Any("error", err))
			continue
		}
		update.Trips[dvj] = &TripUpdate{
			StopTimeUpdates: m.buildStopTimeUpdates(tu, logger),
			UpdateTime:      time.Unix(int64(tu.GetTimestamp()), 0).UTC(),
		}
	}
	return update
}

func (m *Model) buildStopTimeUpdates(tu *gtfsrt.TripUpdate, logger *slog.Logger) map[uint32]StopTimeUpdate {
	updates := make(map[uint32]StopTimeUpdate, len(tu.GetStopTimeUpdate()))
	for _, stu := range tu.GetStopTimeUpdate() {
		if stu.StopSequence == nil {
			logger.Warn("stop time update without stop_sequence, skipping it",
				slog.String("trip_id", tu.GetTrip().GetTripId()))
			continue
		}
		var spIdx *StopPointIdx
		if stopID := stu.GetStopId(); stopID != "" {
			idx, ok := m.StopPointByID(stopID)
			if !ok {
				logger.Warn("stop time update references an unknown stop, skipping it",
					slog.String("trip_id", tu.GetTrip().GetTripId()),
					slog.String("stop_id", stopID))
				continue
			}
			spIdx = &idx
		}
		updates[stu.GetStopSequence()] = StopTimeUpdate{
			StopPoint: spIdx,
			Arrival:   m.eventTime(stu.GetArrival()),
			Departure: m.eventTime(stu.GetDeparture()),
		}
	}
	return updates
}

// eventTime converts a GTFS-RT event (Unix UTC seconds) into a local
// time in the dataset timezone.
func (m *Model) eventTime(ev *gtfsrt.TripUpdate_StopTimeEvent) *time.Time {
	if ev == nil || ev.Time == nil {
		return nil
	}
	t := time.Unix(ev.GetTime(), 0).In(m.Timezone)
	return &t
}

// ResolveTripDescriptor matches a GTFS-RT trip descriptor to a dated
// vehicle journey. The trip_id is tried first; when it is absent or
// unknown the descriptor is matched against the schedule by route key,
// start date and first-stop departure time, and exactly one candidate
// is required.
func (m *Model) ResolveTripDescriptor(trip *gtfsrt.TripDescriptor, now time.Time) (DatedVehicleJourney, error) {
	date, err := m.tripStartDate(trip, now)
	if err != nil {
		return DatedVehicleJourney{}, err
	}
	dateStr := date.Format("2006-01-02")

	if id := trip.GetTripId(); id != "" {
		if idx, ok := m.VehicleJourneyByID(id); ok {
			return DatedVehicleJourney{VJ: idx, Date: dateStr}, nil
		}
	}

	idx, err := m.matchAlternativeTrip(trip, date)
	if err != nil {
		return DatedVehicleJourney{}, err
	}
	return DatedVehicleJourney{VJ: idx, Date: dateStr}, nil
}

func (m *Model) tripStartDate(trip *gtfsrt.TripDescriptor, now time.Time) (time.Time, error) {
	sd := trip.GetStartDate()
	if sd == "" {
		// default to the current day in the dataset timezone
		return now.In(m.Timezone), nil
	}
	date, err := time.ParseInLocation("20060102", sd, m.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_date %q: %w", sd, err)
	}
	return date, nil
}

func (m *Model) matchAlternativeTrip(trip *gtfsrt.TripDescriptor, date time.Time) (VehicleJourneyIdx, error) {
	routeID := trip.GetRouteId()
	if routeID == "" {
		return 0, fmt.Errorf("no trip_id nor route_id, impossible to match the trip")
	}
	key, err := RouteKey(routeID, trip.GetDirectionId())
	if err != nil {
		return 0, err
	}
	startSeconds, err := parseGTFSTime(trip.GetStartTime())
	if err != nil {
		return 0, fmt.Errorf("invalid start_time: %w", err)
	}

	var candidates []VehicleJourneyIdx
	for _, vjIdx := range m.VehicleJourneysForRouteKey(key) {
		if !m.IsActiveOn(vjIdx, date) {
			continue
		}
		if m.VehicleJourneys[vjIdx].StopTimes[0].Departure == startSeconds {
			candidates = append(candidates, vjIdx)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return 0, fmt.Errorf("impossible to find a matching trip")
	default:
		return 0, fmt.Errorf("%d matching trips, we can't choose one", len(candidates))
	}
}
