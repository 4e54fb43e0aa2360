package transit

import (
	"log/slog"
	"sort"
	"time"
)

// DatedVehicleJourney identifies one run of a vehicle journey on a
// specific service day ("2006-01-02").
type DatedVehicleJourney struct {
	VJ   VehicleJourneyIdx
	Date string
}

// Connection is one stop event of a dated vehicle journey. Times are
// concrete local times in the dataset timezone; stop times past 24:00
// spill over into the next calendar day.
type Connection struct {
	DatedVJ   DatedVehicleJourney
	StopPoint StopPointIdx
	DepTime   time.Time
	ArrTime   time.Time
	Sequence  uint32
}

// Period is the generation window of a timetable: Days service days
// starting at Begin.
type Period struct {
	Begin time.Time
	Days  int
}

func (p Period) days(tz *time.Location) []time.Time {
	y, m, d := p.Begin.Date()
	days := make([]time.Time, 0, p.Days)
	for i := 0; i < p.Days; i++ {
		days = append(days, time.Date(y, m, d+i, 0, 0, 0, 0, tz))
	}
	return days
}

// Timetable is the flat list of all connections over a generation
// period, sorted by departure time. Connection positions in the slice
// are the keys of the realtime overlay.
type Timetable struct {
	Connections []Connection
}

// BuildTimetable expands every vehicle journey active during the period
// into connections. Journeys whose calendar cannot be resolved are
// skipped with a warning.
func BuildTimetable(m *Model, period Period, logger *slog.Logger) *Timetable {
	var connections []Connection
	for _, day := range period.days(m.Timezone) {
		date := day.Format("2006-01-02")
		y, mo, d := day.Date()
		for idx := range m.VehicleJourneys {
			vjIdx := VehicleJourneyIdx(idx)
			vj := &m.VehicleJourneys[idx]
			if !m.HasCalendar(vjIdx) {
				logger.Warn("no calendar for vehicle journey, skipping it",
					slog.String("trip_id", vj.ID), slog.String("service_id", vj.ServiceID))
				continue
			}
			if !m.IsActiveOn(vjIdx, day) {
				continue
			}
			for _, st := range vj.StopTimes {
				connections = append(connections, Connection{
					DatedVJ:   DatedVehicleJourney{VJ: vjIdx, Date: date},
					StopPoint: st.StopPoint,
					DepTime:   time.Date(y, mo, d, 0, 0, st.Departure, 0, m.Timezone),
					ArrTime:   time.Date(y, mo, d, 0, 0, st.Arrival, 0, m.Timezone),
					Sequence:  st.Sequence,
				})
			}
		}
	}

	sort.SliceStable(connections, func(i, j int) bool {
		return connections[i].DepTime.Before(connections[j].DepTime)
	})
	return &Timetable{Connections: connections}
}

// FirstDepartureNotBefore returns the index of the first connection
// departing at or after t.
func (t *Timetable) FirstDepartureNotBefore(at time.Time) int {
	return sort.Search(len(t.Connections), func(i int) bool {
		return !t.Connections[i].DepTime.Before(at)
	})
}
