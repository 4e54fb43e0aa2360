package datasets

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/metrics"
	"tempo.transitdata.org/internal/models"
)

const testGTFSPath = "../../testdata/gtfs.zip"

func testClock() *clock.MockClock {
	// a Saturday morning in the Demo Transit Authority timezone
	return clock.NewMockClock(time.Date(2018, 12, 15, 13, 22, 0, 0, time.UTC))
}

func testAppConfig() appconf.Config {
	return appconf.Config{
		Env:         appconf.Test,
		PeriodBegin: "2018-12-15",
		HorizonDays: 2,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg models.DatasetConfig) *Manager {
	t.Helper()
	return NewManager(context.Background(),
		models.DatasetsConfig{Datasets: []models.DatasetConfig{cfg}},
		testAppConfig(), testClock(), metrics.New(), discardLogger())
}

// tripUpdateFeed builds a protobuf-encoded feed delaying CITY1 at its
// last stop.
func tripUpdateFeed(t *testing.T, timestamp uint64) []byte {
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
					Timestamp: proto.Uint64(timestamp),
					StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(5),
							StopId:       proto.String("EMSI"),
							Arrival: &gtfsrt.TripUpdate_StopTimeEvent{
								// 06:33 Pacific on 2018-12-15
								Time: proto.Int64(time.Date(2018, 12, 15, 14, 33, 0, 0, time.UTC).Unix()),
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

func TestLoadDataset(t *testing.T) {
	cfg := models.NewDatasetConfig("default", "demo", testGTFSPath, nil)
	ds, err := LoadDataset(context.Background(), cfg, testAppConfig(), testClock(), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "default", ds.ID)
	assert.Equal(t, "demo", ds.Name)
	assert.Equal(t, 2, ds.Period.Days)
	assert.NotEmpty(t, ds.Timetable.Connections)
	assert.Equal(t, "America/Los_Angeles", ds.Model.Timezone.String())
}

func TestLoadDatasetDefaultsPeriodToToday(t *testing.T) {
	cfg := models.NewDatasetConfig("default", "", testGTFSPath, nil)
	appCfg := testAppConfig()
	appCfg.PeriodBegin = ""
	appCfg.HorizonDays = 0

	ds, err := LoadDataset(context.Background(), cfg, appCfg, testClock(), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, defaultHorizonDays, ds.Period.Days)
	// 13:22 UTC is still 2018-12-15 in Los Angeles
	y, m, d := ds.Period.Begin.Date()
	assert.Equal(t, 2018, y)
	assert.Equal(t, time.December, m)
	assert.Equal(t, 15, d)
}

func TestLoadDatasetMissingFile(t *testing.T) {
	cfg := models.NewDatasetConfig("default", "", "does-not-exist.zip", nil)
	_, err := LoadDataset(context.Background(), cfg, testAppConfig(), testClock(), discardLogger())
	require.Error(t, err)
}

func TestLoadDatasetBadPeriodBegin(t *testing.T) {
	cfg := models.NewDatasetConfig("default", "", testGTFSPath, nil)
	appCfg := testAppConfig()
	appCfg.PeriodBegin = "15/12/2018"

	_, err := LoadDataset(context.Background(), cfg, appCfg, testClock(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid generation period begin")
}

func TestManagerServesLoadedDataset(t *testing.T) {
	manager := newTestManager(t, models.NewDatasetConfig("default", "", testGTFSPath, nil))

	assert.Equal(t, []string{"default"}, manager.IDs())

	ds, err := manager.Dataset("default")
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Timetable.Connections)

	rt, ok := manager.RealTime("default")
	require.True(t, ok)
	assert.Same(t, ds, rt.Base)
	assert.Nil(t, rt.Feed)

	_, err = manager.Dataset("unknown")
	require.ErrorIs(t, err, ErrUnknownDataset)
}

func TestManagerPublishesBrokenDataset(t *testing.T) {
	manager := newTestManager(t, models.NewDatasetConfig("broken", "", "does-not-exist.zip", nil))

	_, err := manager.Dataset("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `loading dataset "broken"`)

	rt, ok := manager.RealTime("broken")
	require.True(t, ok)
	assert.Nil(t, rt.Base)
	require.Error(t, rt.BaseErr)
	assert.Empty(t, rt.Updated.Connections)
}

func TestManagerInitialRealtimeTick(t *testing.T) {
	raw := tripUpdateFeed(t, uint64(testClock().Now().Unix()))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	manager := newTestManager(t, models.NewDatasetConfig("default", "", testGTFSPath, []string{server.URL}))

	rt, ok := manager.RealTime("default")
	require.True(t, ok)
	require.NotNil(t, rt.Feed)
	assert.Equal(t, raw, rt.Feed.Raw)
	assert.Len(t, rt.Updated.Connections, 1)
}

func TestManagerRealtimeMergesSeveralFeeds(t *testing.T) {
	first := tripUpdateFeed(t, 100)
	empty := &gtfsrt.FeedMessage{Header: &gtfsrt.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")}}
	second, err := proto.Marshal(empty)
	require.NoError(t, err)

	serve := func(raw []byte) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(raw)
		}))
	}
	firstServer := serve(first)
	defer firstServer.Close()
	secondServer := serve(second)
	defer secondServer.Close()

	manager := newTestManager(t, models.NewDatasetConfig("default", "", testGTFSPath,
		[]string{firstServer.URL, secondServer.URL}))

	rt, ok := manager.RealTime("default")
	require.True(t, ok)
	require.NotNil(t, rt.Feed)

	merged := &gtfsrt.FeedMessage{}
	require.NoError(t, proto.Unmarshal(rt.Feed.Raw, merged))
	assert.Len(t, merged.GetEntity(), 1)
	assert.Len(t, rt.Updated.Connections, 1)
}

func TestManagerKeepsPreviousFeedWhenAllFetchesFail(t *testing.T) {
	var failing atomic.Bool
	raw := tripUpdateFeed(t, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	manager := newTestManager(t, models.NewDatasetConfig("default", "", testGTFSPath, []string{server.URL}))

	before, ok := manager.RealTime("default")
	require.True(t, ok)
	require.NotNil(t, before.Feed)

	failing.Store(true)
	manager.updateRealtime(context.Background(), manager.states["default"])

	after, ok := manager.RealTime("default")
	require.True(t, ok)
	assert.Same(t, before, after)
}

func TestManagerReloadKeepsFeedAndResetsOverlay(t *testing.T) {
	raw := tripUpdateFeed(t, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	manager := newTestManager(t, models.NewDatasetConfig("default", "", testGTFSPath, []string{server.URL}))

	oldDS, _ := manager.Dataset("default")
	oldRT, _ := manager.RealTime("default")
	require.NotNil(t, oldRT.Feed)

	require.NoError(t, manager.reloadDataset(context.Background(), manager.states["default"]))

	newDS, err := manager.Dataset("default")
	require.NoError(t, err)
	newRT, _ := manager.RealTime("default")
	assert.NotSame(t, oldDS, newDS)
	assert.Same(t, newDS, newRT.Base)
	assert.Equal(t, oldRT.Feed, newRT.Feed)
	assert.Empty(t, newRT.Updated.Connections)
}

func TestManagerReloadPublishesError(t *testing.T) {
	raw := tripUpdateFeed(t, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	manager := newTestManager(t, models.NewDatasetConfig("default", "", testGTFSPath, []string{server.URL}))

	state := manager.states["default"]
	state.cfg.GTFS = "does-not-exist.zip"
	require.Error(t, manager.reloadDataset(context.Background(), state))

	_, err := manager.Dataset("default")
	require.Error(t, err)

	rt, ok := manager.RealTime("default")
	require.True(t, ok)
	assert.Nil(t, rt.Base)
	require.Error(t, rt.BaseErr)
	// the raw feed endpoints keep serving the last snapshot
	require.NotNil(t, rt.Feed)
	assert.Equal(t, raw, rt.Feed.Raw)
	assert.Empty(t, rt.Updated.Connections)
}

func TestManagerRecoversAfterFailedReload(t *testing.T) {
	manager := newTestManager(t, models.NewDatasetConfig("default", "", "does-not-exist.zip", nil))

	_, err := manager.Dataset("default")
	require.Error(t, err)

	state := manager.states["default"]
	state.cfg.GTFS = testGTFSPath
	require.NoError(t, manager.reloadDataset(context.Background(), state))

	ds, err := manager.Dataset("default")
	require.NoError(t, err)
	rt, _ := manager.RealTime("default")
	assert.Same(t, ds, rt.Base)
	assert.NoError(t, rt.BaseErr)
}

func TestManagerRealtimeTickWithBrokenBase(t *testing.T) {
	raw := tripUpdateFeed(t, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	manager := newTestManager(t, models.NewDatasetConfig("broken", "", "does-not-exist.zip", []string{server.URL}))

	// the initial tick ran against the erroring base: the feed is
	// published, the overlay stays empty
	rt, ok := manager.RealTime("broken")
	require.True(t, ok)
	require.Error(t, rt.BaseErr)
	require.NotNil(t, rt.Feed)
	assert.Equal(t, raw, rt.Feed.Raw)
	assert.Empty(t, rt.Updated.Connections)
}

func TestManagerCountsCoherenceWarnings(t *testing.T) {
	// CITY1 sequence 5 calls at EMSI, the update names NADAV
	feed := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("incoherent-city1"),
				TripUpdate: &gtfsrt.TripUpdate{
					Trip: &gtfsrt.TripDescriptor{
						TripId:    proto.String("CITY1"),
						StartDate: proto.String("20181215"),
					},
					StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(5),
							StopId:       proto.String("NADAV"),
							Arrival: &gtfsrt.TripUpdate_StopTimeEvent{
								Time: proto.Int64(time.Date(2018, 12, 15, 14, 33, 0, 0, time.UTC).Unix()),
							},
						},
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(feed)
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	m := metrics.New()
	manager := NewManager(context.Background(),
		models.DatasetsConfig{Datasets: []models.DatasetConfig{
			models.NewDatasetConfig("default", "", testGTFSPath, []string{server.URL}),
		}},
		testAppConfig(), testClock(), m, discardLogger())

	rt, _ := manager.RealTime("default")
	assert.Empty(t, rt.Updated.Connections)
	count := testutil.ToFloat64(m.RealtimeCoherenceWarnings.WithLabelValues("default"))
	assert.Equal(t, 1.0, count)
}

func TestManagerShutdownStopsLoops(t *testing.T) {
	manager := newTestManager(t, models.NewDatasetConfig("default", "", testGTFSPath, nil))
	manager.Start()

	done := make(chan struct{})
	go func() {
		manager.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not shut down")
	}
}
