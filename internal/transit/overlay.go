package transit

import (
	"log/slog"
)

// ApplyTripUpdates joins a resolved feed onto the base timetable of the
// realtime dataset. For every base connection with an update for its
// sequence, a RealTimeConnection is stored under the connection index.
// An update naming a different stop than the base connection is
// incoherent and skipped; the number of skipped updates is returned.
func ApplyTripUpdates(rt *RealTimeDataset, update *ModelUpdate, logger *slog.Logger) int {
	incoherent := 0
	for i := range rt.Base.Timetable.Connections {
		c := &rt.Base.Timetable.Connections[i]
		tu, ok := update.Trips[c.DatedVJ]
		if !ok {
			continue
		}
		stu, ok := tu.StopTimeUpdates[c.Sequence]
		if !ok {
			continue
		}
		if stu.StopPoint != nil && *stu.StopPoint != c.StopPoint {
			incoherent++
			logger.Warn("stop time update does not match the connection stop, skipping it",
				slog.String("trip_id", rt.Base.Model.VehicleJourneys[c.DatedVJ.VJ].ID),
				slog.Uint64("sequence", uint64(c.Sequence)),
				slog.String("connection_stop", rt.Base.Model.StopPoints[c.StopPoint].ID),
				slog.String("update_stop", rt.Base.Model.StopPoints[*stu.StopPoint].ID))
			continue
		}
		rt.Updated.Connections[i] = RealTimeConnection{
			DepTime:              stu.Departure,
			ArrTime:              stu.Arrival,
			ScheduleRelationship: ScheduledRelationship,
			UpdateTime:           tu.UpdateTime,
		}
	}
	return incoherent
}
