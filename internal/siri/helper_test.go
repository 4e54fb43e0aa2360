package siri

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"github.com/stretchr/testify/require"

	"tempo.transitdata.org/internal/transit"
)

var testLoadedAt = time.Date(2018, 12, 15, 5, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDataset loads the demo feed with a one day timetable starting
// on Saturday 2018-12-15.
func newTestDataset(t *testing.T) *transit.Dataset {
	t.Helper()
	raw, err := os.ReadFile("../../testdata/gtfs.zip")
	require.NoError(t, err)
	static, err := gtfs.ParseStatic(raw, gtfs.ParseStaticOptions{})
	require.NoError(t, err)
	model, err := transit.NewModel(static, discardLogger())
	require.NoError(t, err)

	period := transit.Period{
		Begin: time.Date(2018, 12, 15, 0, 0, 0, 0, model.Timezone),
		Days:  1,
	}
	return &transit.Dataset{
		ID:        "default",
		Name:      "default",
		Model:     model,
		Timetable: transit.BuildTimetable(model, period, discardLogger()),
		Period:    period,
		LoadedAt:  testLoadedAt,
	}
}

func newTestRealTimeDataset(t *testing.T) *transit.RealTimeDataset {
	t.Helper()
	return transit.NewRealTimeDataset(newTestDataset(t), nil)
}

// localTime builds a wall-clock time in the dataset timezone.
func localTime(ds *transit.Dataset, hour, min, sec int) time.Time {
	return time.Date(2018, 12, 15, hour, min, sec, 0, ds.Model.Timezone)
}
