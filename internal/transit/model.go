// Package transit holds the schedule side of the proxy: an index-based
// model built from a parsed GTFS feed, the flat timetable generated from
// it, and the realtime overlay types joined onto that timetable.
package transit

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"
)

// Dense indices into the Model slices. Identifiers from the feed are
// resolved once at load time, everything downstream works on indices.
type (
	StopPointIdx      int
	RouteIdx          int
	VehicleJourneyIdx int
)

type StopPoint struct {
	ID   string
	Name string
	Lon  float64
	Lat  float64
}

type Route struct {
	ID       string
	AgencyID string
	Name     string
}

// StopTime times are seconds after midnight of the service day and may
// exceed 24h for journeys running past midnight.
type StopTime struct {
	StopPoint StopPointIdx
	Arrival   int
	Departure int
	Sequence  uint32
}

type VehicleJourney struct {
	ID        string
	Route     RouteIdx
	ServiceID string
	StopTimes []StopTime
}

type Agency struct {
	ID       string
	Name     string
	Timezone string
}

// Model is an immutable snapshot of a GTFS feed, indexed for the
// timetable builder and the realtime resolver. It is shared between
// goroutines and must not be mutated after construction.
type Model struct {
	StopPoints      []StopPoint
	Routes          []Route
	VehicleJourneys []VehicleJourney
	Agencies        []Agency

	// Timezone of the dataset, taken from its first agency.
	Timezone *time.Location

	stopPointsByID map[string]StopPointIdx
	routesByID     map[string]RouteIdx
	vjsByID        map[string]VehicleJourneyIdx
	vjsByRouteKey  map[string][]VehicleJourneyIdx
	routesOfStop   map[StopPointIdx][]RouteIdx
	services       map[string]*gtfs.Service
	stops          *stopIndex
}

// NewModel builds the indexed model from a parsed static feed.
func NewModel(static *gtfs.Static, logger *slog.Logger) (*Model, error) {
	if len(static.Agencies) == 0 {
		return nil, fmt.Errorf("feed has no agency")
	}

	m := &Model{
		Timezone:       loadTimezone(static.Agencies[0].Timezone, logger),
		stopPointsByID: make(map[string]StopPointIdx, len(static.Stops)),
		routesByID:     make(map[string]RouteIdx, len(static.Routes)),
		vjsByID:        make(map[string]VehicleJourneyIdx, len(static.Trips)),
		vjsByRouteKey:  make(map[string][]VehicleJourneyIdx),
		routesOfStop:   make(map[StopPointIdx][]RouteIdx),
		services:       make(map[string]*gtfs.Service, len(static.Services)),
	}

	for _, a := range static.Agencies {
		m.Agencies = append(m.Agencies, Agency{ID: a.Id, Name: a.Name, Timezone: a.Timezone})
	}

	for _, s := range static.Stops {
		idx := StopPointIdx(len(m.StopPoints))
		sp := StopPoint{ID: s.Id, Name: s.Name}
		if s.Longitude != nil {
			sp.Lon = *s.Longitude
		}
		if s.Latitude != nil {
			sp.Lat = *s.Latitude
		}
		m.StopPoints = append(m.StopPoints, sp)
		m.stopPointsByID[s.Id] = idx
	}

	for _, r := range static.Routes {
		idx := RouteIdx(len(m.Routes))
		route := Route{ID: r.Id, Name: r.ShortName}
		if route.Name == "" {
			route.Name = r.LongName
		}
		if r.Agency != nil {
			route.AgencyID = r.Agency.Id
		}
		m.Routes = append(m.Routes, route)
		m.routesByID[r.Id] = idx
	}

	for i := range static.Services {
		svc := &static.Services[i]
		m.services[svc.Id] = svc
	}

	for i := range static.Trips {
		trip := &static.Trips[i]
		if trip.Route == nil {
			logger.Warn("trip without route skipped", slog.String("trip_id", trip.ID))
			continue
		}
		routeIdx, ok := m.routesByID[trip.Route.Id]
		if !ok {
			logger.Warn("trip references unknown route, skipped",
				slog.String("trip_id", trip.ID), slog.String("route_id", trip.Route.Id))
			continue
		}

		vj := VehicleJourney{ID: trip.ID, Route: routeIdx}
		if trip.Service != nil {
			vj.ServiceID = trip.Service.Id
		}
		for _, st := range trip.StopTimes {
			if st.Stop == nil {
				continue
			}
			spIdx, ok := m.stopPointsByID[st.Stop.Id]
			if !ok {
				logger.Warn("stop time references unknown stop, skipped",
					slog.String("trip_id", trip.ID), slog.String("stop_id", st.Stop.Id))
				continue
			}
			vj.StopTimes = append(vj.StopTimes, StopTime{
				StopPoint: spIdx,
				Arrival:   int(st.ArrivalTime / time.Second),
				Departure: int(st.DepartureTime / time.Second),
				Sequence:  uint32(st.StopSequence),
			})
			if !containsRoute(m.routesOfStop[spIdx], routeIdx) {
				m.routesOfStop[spIdx] = append(m.routesOfStop[spIdx], routeIdx)
			}
		}
		if len(vj.StopTimes) == 0 {
			continue
		}

		vjIdx := VehicleJourneyIdx(len(m.VehicleJourneys))
		m.VehicleJourneys = append(m.VehicleJourneys, vj)
		m.vjsByID[trip.ID] = vjIdx

		key := trip.Route.Id
		if trip.DirectionId == gtfs.DirectionID_True {
			key += reverseDirectionSuffix
		}
		m.vjsByRouteKey[key] = append(m.vjsByRouteKey[key], vjIdx)
	}

	m.stops = newStopIndex(m.StopPoints)
	return m, nil
}

// reverseDirectionSuffix marks the journeys of a route running in
// direction 1, so that both directions get distinct matching keys.
const reverseDirectionSuffix = "_R"

// RouteKey returns the schedule matching key for a route and a GTFS-RT
// direction_id. Directions other than 0 and 1 are invalid.
func RouteKey(routeID string, directionID uint32) (string, error) {
	switch directionID {
	case 0:
		return routeID, nil
	case 1:
		return routeID + reverseDirectionSuffix, nil
	default:
		return "", fmt.Errorf("invalid direction %d for route %q", directionID, routeID)
	}
}

func (m *Model) StopPointByID(id string) (StopPointIdx, bool) {
	idx, ok := m.stopPointsByID[id]
	return idx, ok
}

func (m *Model) RouteByID(id string) (RouteIdx, bool) {
	idx, ok := m.routesByID[id]
	return idx, ok
}

func (m *Model) VehicleJourneyByID(id string) (VehicleJourneyIdx, bool) {
	idx, ok := m.vjsByID[id]
	return idx, ok
}

// VehicleJourneysForRouteKey returns the journeys grouped under a
// matching key produced by RouteKey.
func (m *Model) VehicleJourneysForRouteKey(key string) []VehicleJourneyIdx {
	return m.vjsByRouteKey[key]
}

// RoutesServing returns the routes with at least one journey calling at
// the stop.
func (m *Model) RoutesServing(sp StopPointIdx) []RouteIdx {
	return m.routesOfStop[sp]
}

// HasCalendar reports whether the journey's service is present in the
// feed calendars.
func (m *Model) HasCalendar(vjIdx VehicleJourneyIdx) bool {
	_, ok := m.services[m.VehicleJourneys[vjIdx].ServiceID]
	return ok
}

// IsActiveOn reports whether the journey runs on the given service day.
func (m *Model) IsActiveOn(vjIdx VehicleJourneyIdx, date time.Time) bool {
	svc, ok := m.services[m.VehicleJourneys[vjIdx].ServiceID]
	if !ok {
		return false
	}
	return serviceActiveOn(svc, date)
}

func serviceActiveOn(svc *gtfs.Service, date time.Time) bool {
	for _, removed := range svc.RemovedDates {
		if sameDay(removed, date) {
			return false
		}
	}
	for _, added := range svc.AddedDates {
		if sameDay(added, date) {
			return true
		}
	}
	if dayKey(date) < dayKey(svc.StartDate) || dayKey(date) > dayKey(svc.EndDate) {
		return false
	}
	switch date.Weekday() {
	case time.Monday:
		return svc.Monday
	case time.Tuesday:
		return svc.Tuesday
	case time.Wednesday:
		return svc.Wednesday
	case time.Thursday:
		return svc.Thursday
	case time.Friday:
		return svc.Friday
	case time.Saturday:
		return svc.Saturday
	default:
		return svc.Sunday
	}
}

func sameDay(a, b time.Time) bool {
	return dayKey(a) == dayKey(b)
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func containsRoute(routes []RouteIdx, r RouteIdx) bool {
	for _, existing := range routes {
		if existing == r {
			return true
		}
	}
	return false
}

func loadTimezone(name string, logger *slog.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("invalid agency timezone, falling back to UTC",
			slog.String("timezone", name), slog.Any("error", err))
		return time.UTC
	}
	return loc
}

// parseGTFSTime parses a GTFS "HH:MM:SS" time into seconds after
// midnight. Hours may exceed 23 for times past midnight.
func parseGTFSTime(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil || min > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*3600 + min*60 + sec, nil
}
