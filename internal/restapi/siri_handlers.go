package restapi

import (
	"errors"
	"net/http"

	"tempo.transitdata.org/internal/datasets"
	"tempo.transitdata.org/internal/models"
	"tempo.transitdata.org/internal/siri"
)

// siriIndexHandler lists the SIRI-Lite endpoints of a dataset.
func (api *RestAPI) siriIndexHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := api.Manager.Config(id); !ok {
		api.sendNotFound(w, r, "impossible to find dataset: '"+id+"'")
		return
	}
	base := "/" + id + "/siri/2.0"
	api.sendJSON(w, r, struct {
		Links map[string]models.Link `json:"_links"`
	}{
		Links: map[string]models.Link{
			"stop-monitoring":      {Href: base + "/stop-monitoring.json"},
			"stoppoints-discovery": {Href: base + "/stoppoints-discovery.json"},
			"general-message":      {Href: base + "/general-message.json"},
		},
	})
}

func (api *RestAPI) stopMonitoringHandler(w http.ResponseWriter, r *http.Request) {
	rt, ok := api.Manager.RealTime(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r, "impossible to find dataset: '"+r.PathValue("id")+"'")
		return
	}
	if rt.BaseErr != nil {
		api.unavailableDatasetResponse(w, r, rt.BaseErr)
		return
	}

	params, err := siri.ParseStopMonitoringParams(r.URL.Query())
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := siri.StopMonitoring(rt, params, api.Clock.Now())
	if err != nil {
		var notFound siri.StopNotFoundError
		if errors.As(err, &notFound) {
			api.sendNotFound(w, r, err.Error())
			return
		}
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, resp)
}

func (api *RestAPI) stopPointsDiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	ds, err := api.Manager.Dataset(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, datasets.ErrUnknownDataset) {
			api.sendNotFound(w, r, "impossible to find dataset: '"+r.PathValue("id")+"'")
			return
		}
		api.unavailableDatasetResponse(w, r, err)
		return
	}

	params, err := siri.ParseStopPointsDiscoveryParams(r.URL.Query())
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	api.sendJSON(w, r, siri.StopPointsDiscovery(ds, params, api.Clock.Now()))
}

func (api *RestAPI) generalMessageHandler(w http.ResponseWriter, r *http.Request) {
	rt, ok := api.Manager.RealTime(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r, "impossible to find dataset: '"+r.PathValue("id")+"'")
		return
	}
	if rt.BaseErr != nil {
		api.unavailableDatasetResponse(w, r, rt.BaseErr)
		return
	}

	resp, err := siri.GeneralMessage(rt, api.Clock.Now())
	if err != nil {
		if errors.Is(err, siri.ErrNoRealtimeData) {
			api.sendNotFound(w, r, err.Error())
			return
		}
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, resp)
}
