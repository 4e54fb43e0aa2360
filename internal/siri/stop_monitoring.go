package siri

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sosodev/duration"

	"tempo.transitdata.org/internal/transit"
)

// DataFreshness controls whether the realtime overlay is applied to a
// stop-monitoring response.
type DataFreshness string

const (
	RealTimeFreshness  DataFreshness = "RealTime"
	ScheduledFreshness DataFreshness = "Scheduled"
)

const (
	defaultMaximumStopVisits = 2
	maxMaximumStopVisits     = 20
)

// StopNotFoundError reports a MonitoringRef absent from the schedule.
type StopNotFoundError struct {
	Ref string
}

func (e StopNotFoundError) Error() string {
	return fmt.Sprintf("impossible to find stop: '%s'", e.Ref)
}

// StopMonitoringParams are the query parameters of a stop-monitoring
// request, using the PascalCase keys of the SIRI profile.
type StopMonitoringParams struct {
	MonitoringRef     string
	LineRef           string
	StartTime         *DateTime
	PreviewInterval   *time.Duration
	MaximumStopVisits int
	DataFreshness     DataFreshness
}

// ParseStopMonitoringParams validates a stop-monitoring query string.
func ParseStopMonitoringParams(values url.Values) (StopMonitoringParams, error) {
	params := StopMonitoringParams{
		MonitoringRef:     values.Get("MonitoringRef"),
		LineRef:           values.Get("LineRef"),
		MaximumStopVisits: defaultMaximumStopVisits,
		DataFreshness:     RealTimeFreshness,
	}
	if params.MonitoringRef == "" {
		return params, fmt.Errorf("MonitoringRef is required")
	}

	if s := values.Get("StartTime"); s != "" {
		start, err := ParseDateTime(s)
		if err != nil {
			return params, fmt.Errorf("invalid StartTime: %w", err)
		}
		params.StartTime = &start
	}

	if s := values.Get("PreviewInterval"); s != "" {
		iso, err := duration.Parse(s)
		if err != nil {
			return params, fmt.Errorf("invalid PreviewInterval: %w", err)
		}
		interval := iso.ToTimeDuration()
		if interval <= 0 {
			return params, fmt.Errorf("invalid PreviewInterval: must be positive")
		}
		params.PreviewInterval = &interval
	}

	if s := values.Get("MaximumStopVisits"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return params, fmt.Errorf("invalid MaximumStopVisits: %q", s)
		}
		if n > maxMaximumStopVisits {
			n = maxMaximumStopVisits
		}
		params.MaximumStopVisits = n
	}

	if s := values.Get("DataFreshness"); s != "" {
		switch DataFreshness(s) {
		case RealTimeFreshness, ScheduledFreshness:
			params.DataFreshness = DataFreshness(s)
		default:
			return params, fmt.Errorf("invalid DataFreshness: %q", s)
		}
	}

	return params, nil
}

// StopMonitoring answers the next departures at a stop, with realtime
// estimates when the overlay has them and the query asks for them.
func StopMonitoring(rt *transit.RealTimeDataset, params StopMonitoringParams, now time.Time) (*SiriResponse, error) {
	base := rt.Base
	model := base.Model

	stopIdx, ok := model.StopPointByID(params.MonitoringRef)
	if !ok {
		return nil, StopNotFoundError{Ref: params.MonitoringRef}
	}

	localNow := now.In(model.Timezone)
	start := localNow
	if params.StartTime != nil {
		start = inLocation(params.StartTime.Time, model.Timezone)
	}
	var end time.Time
	if params.PreviewInterval != nil {
		end = start.Add(*params.PreviewInterval)
	}

	visits := make([]MonitoredStopVisit, 0, params.MaximumStopVisits)
	connections := base.Timetable.Connections
	for i := base.Timetable.FirstDepartureNotBefore(start); i < len(connections); i++ {
		c := &connections[i]
		// the scan ends at the first connection entirely past the
		// preview window; a departure past the bound with its arrival
		// still inside stays in
		if !end.IsZero() && c.DepTime.After(end) && c.ArrTime.After(end) {
			break
		}
		if c.StopPoint != stopIdx {
			continue
		}
		if params.LineRef != "" && model.Routes[model.VehicleJourneys[c.DatedVJ.VJ].Route].ID != params.LineRef {
			continue
		}

		var updated *transit.RealTimeConnection
		if params.DataFreshness == RealTimeFreshness {
			if u, ok := rt.Updated.Connections[i]; ok {
				updated = &u
			}
		}
		visits = append(visits, newMonitoredStopVisit(base, c, updated))
		if len(visits) == params.MaximumStopVisits {
			break
		}
	}

	return &SiriResponse{
		Siri: Siri{
			ServiceDelivery: &ServiceDelivery{
				ResponseTimeStamp: NewDateTime(localNow).String(),
				StopMonitoringDelivery: []StopMonitoringDelivery{
					{
						CommonDelivery:      NewCommonDelivery(localNow),
						MonitoredStopVisits: visits,
					},
				},
			},
		},
	}, nil
}

func newMonitoredStopVisit(base *transit.Dataset, c *transit.Connection, updated *transit.RealTimeConnection) MonitoredStopVisit {
	model := base.Model
	stop := model.StopPoints[c.StopPoint]
	vj := model.VehicleJourneys[c.DatedVJ.VJ]
	route := model.Routes[vj.Route]

	// without realtime data the best update time we have is the base
	// schedule loading time
	recordedAt := base.LoadedAt
	if updated != nil {
		recordedAt = updated.UpdateTime
	}

	call := MonitoredCall{
		Order:              c.Sequence,
		StopPointName:      stop.Name,
		AimedArrivalTime:   dateTimePtr(c.ArrTime),
		AimedDepartureTime: dateTimePtr(c.DepTime),
	}
	if updated != nil {
		if updated.ArrTime != nil {
			call.ExpectedArrivalTime = dateTimePtr(*updated.ArrTime)
		}
		if updated.DepTime != nil {
			call.ExpectedDepartureTime = dateTimePtr(*updated.DepTime)
		}
	}

	var operatorRef *string
	if route.AgencyID != "" {
		operatorRef = &route.AgencyID
	}

	return MonitoredStopVisit{
		MonitoringRef:  stop.ID,
		RecordedAtTime: recordedAt.UTC(),
		ItemIdentifier: fmt.Sprintf("%s:%s", stop.ID, vj.ID),
		MonitoringVehicleJourney: MonitoredVehicleJourney{
			LineRef:       route.ID,
			OperatorRef:   operatorRef,
			MonitoredCall: &call,
		},
	}
}

func dateTimePtr(t time.Time) *DateTime {
	d := NewDateTime(t)
	return &d
}

// inLocation reinterprets the wall-clock values of a naive datetime in
// the given timezone.
func inLocation(t time.Time, tz *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tz)
}
