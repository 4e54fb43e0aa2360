package restapi

import (
	"encoding/json"
	"net/http"

	"tempo.transitdata.org/internal/models"
)

// entryPointHandler lists the hosted datasets with their navigation
// links.
func (api *RestAPI) entryPointHandler(w http.ResponseWriter, r *http.Request) {
	entry := models.ApiEntryPoint{
		Datasets: []models.ExposedDataset{},
		Links: map[string]models.Link{
			"documentation": {Href: "https://github.com/transitdata/tempo"},
			"dataset":       {Href: "/{id}/", Templated: true},
		},
	}
	for _, id := range api.Manager.IDs() {
		cfg, _ := api.Manager.Config(id)
		entry.Datasets = append(entry.Datasets, models.NewExposedDataset(cfg))
	}
	api.sendJSON(w, r, entry)
}

// datasetHandler exposes the public view of one dataset.
func (api *RestAPI) datasetHandler(w http.ResponseWriter, r *http.Request) {
	cfg, ok := api.Manager.Config(r.PathValue("id"))
	if !ok {
		api.sendNotFound(w, r, "impossible to find dataset: '"+r.PathValue("id")+"'")
		return
	}
	api.sendJSON(w, r, models.NewExposedDataset(cfg))
}

// statusHandler reports the freshness of a dataset: schedule loading
// time, realtime feed staleness and feed age.
func (api *RestAPI) statusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, ok := api.Manager.Config(id)
	if !ok {
		api.sendNotFound(w, r, "impossible to find dataset: '"+id+"'")
		return
	}
	ds, err := api.Manager.Dataset(id)
	if err != nil {
		api.unavailableDatasetResponse(w, r, err)
		return
	}
	rt, _ := api.Manager.RealTime(id)

	detector := NewStaleDetector()
	now := api.Clock.Now()
	status := struct {
		models.Status
		RealtimeStale      bool     `json:"realtime_stale"`
		RealtimeAgeSeconds *float64 `json:"realtime_age_seconds,omitempty"`
	}{
		Status: models.Status{
			Feed:     models.NewExposedDataset(cfg),
			LoadedAt: ds.LoadedAt,
		},
		RealtimeStale: detector.Check(rt.Feed, now),
	}
	if rt.Feed != nil {
		age := detector.Age(rt.Feed, now).Seconds()
		status.RealtimeAgeSeconds = &age
	}
	api.sendJSON(w, r, status)
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// healthHandler is the liveness and readiness probe. Datasets are
// loaded before the server starts, so a serving process is ready.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	setJSONResponseType(&w)
	if api.Application == nil || api.Manager == nil || len(api.Manager.IDs()) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "datasets not loaded",
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}
