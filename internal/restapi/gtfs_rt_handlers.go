package restapi

import (
	"net/http"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// gtfsRTHandler serves the aggregated realtime feed as raw protobuf,
// exactly as it would come from a single upstream.
func (api *RestAPI) gtfsRTHandler(w http.ResponseWriter, r *http.Request) {
	rt, ok := api.Manager.RealTime(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r, "impossible to find dataset: '"+r.PathValue("id")+"'")
		return
	}
	if rt.Feed == nil {
		api.sendNotFound(w, r, "no realtime data available")
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	if _, err := w.Write(rt.Feed.Raw); err != nil {
		api.Logger.Warn("failed to write gtfs-rt response", "error", err)
	}
}

// gtfsRTJSONHandler serves the aggregated realtime feed decoded to
// JSON, mostly for debugging.
func (api *RestAPI) gtfsRTJSONHandler(w http.ResponseWriter, r *http.Request) {
	rt, ok := api.Manager.RealTime(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r, "impossible to find dataset: '"+r.PathValue("id")+"'")
		return
	}
	if rt.Feed == nil {
		api.sendNotFound(w, r, "no realtime data available")
		return
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(rt.Feed.Raw, feed); err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	body, err := protojson.Marshal(feed)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	setJSONResponseType(&w)
	if _, err := w.Write(body); err != nil {
		api.Logger.Warn("failed to write gtfs-rt.json response", "error", err)
	}
}
