package restapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"tempo.transitdata.org/internal/app"
	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/datasets"
	"tempo.transitdata.org/internal/metrics"
	"tempo.transitdata.org/internal/models"
)

const testGTFSPath = "../../testdata/gtfs.zip"

// newTestClock returns a Saturday morning in the Demo Transit
// Authority timezone (05:22 Pacific).
func newTestClock() *clock.MockClock {
	return clock.NewMockClock(time.Date(2018, 12, 15, 13, 22, 0, 0, time.UTC))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestApi builds a RestAPI around the demo GTFS dataset. When
// rtURLs is non-empty the manager performs its initial realtime fetch
// against them.
func createTestApi(t *testing.T, rtURLs []string) (*RestAPI, *clock.MockClock) {
	t.Helper()
	return createTestApiWithGTFS(t, testGTFSPath, rtURLs)
}

// createBrokenTestApi builds a RestAPI whose single dataset failed its
// schedule build.
func createBrokenTestApi(t *testing.T, rtURLs []string) (*RestAPI, *clock.MockClock) {
	t.Helper()
	return createTestApiWithGTFS(t, "does-not-exist.zip", rtURLs)
}

func createTestApiWithGTFS(t *testing.T, gtfsPath string, rtURLs []string) (*RestAPI, *clock.MockClock) {
	t.Helper()

	clk := newTestClock()
	cfg := appconf.Config{
		Env:         appconf.Test,
		PeriodBegin: "2018-12-15",
		HorizonDays: 2,
	}

	appMetrics := metrics.New()
	manager := datasets.NewManager(context.Background(),
		models.DatasetsConfig{Datasets: []models.DatasetConfig{
			models.NewDatasetConfig("default", "demo", gtfsPath, rtURLs),
		}},
		cfg, clk, appMetrics, testLogger())

	api := NewRestAPI(&app.Application{
		Config:  cfg,
		Logger:  testLogger(),
		Manager: manager,
		Clock:   clk,
		Metrics: appMetrics,
	})
	t.Cleanup(api.Shutdown)
	return api, clk
}

// serveAppRequest sends a request through the complete middleware
// chain and routes.
func serveAppRequest(t *testing.T, api *RestAPI, target string) *httptest.ResponseRecorder {
	t.Helper()
	handler := api.SetupCompleteRoutes()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// serveFeed exposes raw protobuf bytes over a local HTTP server.
func serveFeed(t *testing.T, raw []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(server.Close)
	return server
}

// cityDelayFeed delays CITY1 at its last stop by thirty seconds.
func cityDelayFeed(t *testing.T) []byte {
	t.Helper()
	feed := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("delay-city1"),
				TripUpdate: &gtfsrt.TripUpdate{
					Trip: &gtfsrt.TripDescriptor{
						TripId:    proto.String("CITY1"),
						StartDate: proto.String("20181215"),
					},
					Timestamp: proto.Uint64(uint64(time.Date(2018, 12, 15, 13, 22, 0, 0, time.UTC).Unix())),
					StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(5),
							StopId:       proto.String("EMSI"),
							Arrival: &gtfsrt.TripUpdate_StopTimeEvent{
								// 06:26:30 Pacific on 2018-12-15
								Time: proto.Int64(time.Date(2018, 12, 15, 14, 26, 30, 0, time.UTC).Unix()),
							},
						},
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(feed)
	require.NoError(t, err)
	return raw
}

// tripDelayFeed builds a feed with one entity delaying the departure of
// a trip at one stop.
func tripDelayFeed(t *testing.T, entityID, tripID string, seq uint32, stopID string, departure time.Time) []byte {
	t.Helper()
	feed := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String(entityID),
				TripUpdate: &gtfsrt.TripUpdate{
					Trip: &gtfsrt.TripDescriptor{
						TripId:    proto.String(tripID),
						StartDate: proto.String("20181215"),
					},
					Timestamp: proto.Uint64(uint64(time.Date(2018, 12, 15, 13, 22, 0, 0, time.UTC).Unix())),
					StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(seq),
							StopId:       proto.String(stopID),
							Departure: &gtfsrt.TripUpdate_StopTimeEvent{
								Time: proto.Int64(departure.Unix()),
							},
						},
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(feed)
	require.NoError(t, err)
	return raw
}

// disruptionFeed carries a single service alert on route AB.
func disruptionFeed(t *testing.T) []byte {
	t.Helper()
	feed := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("alert-ab"),
				Alert: &gtfsrt.Alert{
					InformedEntity: []*gtfsrt.EntitySelector{
						{RouteId: proto.String("AB")},
					},
					HeaderText: &gtfsrt.TranslatedString{
						Translation: []*gtfsrt.TranslatedString_Translation{
							{Text: proto.String("Airport shuttle disrupted")},
						},
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(feed)
	require.NoError(t, err)
	return raw
}
