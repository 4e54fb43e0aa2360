package restapi

import (
	"net/http"
	"testing"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestGtfsRTHandlerWithoutRealtimeData(t *testing.T) {
	api, _ := createTestApi(t, nil)
	rec := serveAppRequest(t, api, "/default/gtfs-rt")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no realtime data available")
}

func TestGtfsRTHandlerServesFeedWhileBaseIsBroken(t *testing.T) {
	raw := cityDelayFeed(t)
	server := serveFeed(t, raw)
	api, _ := createBrokenTestApi(t, []string{server.URL})

	rec := serveAppRequest(t, api, "/default/gtfs-rt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, rec.Body.Bytes())
}

func TestGtfsRTHandlerServesRawFeed(t *testing.T) {
	raw := cityDelayFeed(t)
	server := serveFeed(t, raw)
	api, _ := createTestApi(t, []string{server.URL})

	rec := serveAppRequest(t, api, "/default/gtfs-rt")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-protobuf", rec.Header().Get("Content-Type"))
	assert.Equal(t, raw, rec.Body.Bytes())
}

func TestGtfsRTHandlerUnknownDataset(t *testing.T) {
	api, _ := createTestApi(t, nil)
	rec := serveAppRequest(t, api, "/nope/gtfs-rt")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "impossible to find dataset: 'nope'")
}

func TestGtfsRTJSONHandler(t *testing.T) {
	server := serveFeed(t, cityDelayFeed(t))
	api, _ := createTestApi(t, []string{server.URL})

	rec := serveAppRequest(t, api, "/default/gtfs-rt.json")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"delay-city1"`)
	assert.Contains(t, rec.Body.String(), `"CITY1"`)
}

// Feeds from two sources come back as one merged message on the wire.
func TestGtfsRTJSONHandlerMergesSources(t *testing.T) {
	first := serveFeed(t, cityDelayFeed(t))
	second := serveFeed(t, disruptionFeed(t))
	api, _ := createTestApi(t, []string{first.URL, second.URL})

	rec := serveAppRequest(t, api, "/default/gtfs-rt")
	require.Equal(t, http.StatusOK, rec.Code)

	merged := &gtfsrt.FeedMessage{}
	require.NoError(t, proto.Unmarshal(rec.Body.Bytes(), merged))
	require.Len(t, merged.GetEntity(), 2)

	ids := []string{merged.GetEntity()[0].GetId(), merged.GetEntity()[1].GetId()}
	assert.ElementsMatch(t, []string{"delay-city1", "alert-ab"}, ids)
}
