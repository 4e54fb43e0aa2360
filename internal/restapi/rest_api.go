// Package restapi exposes the HTTP surface of the proxy: the dataset
// entry points, the raw and JSON GTFS-RT feeds and the SIRI-Lite
// queries, together with the middleware stack they run behind.
package restapi

import (
	"net/http"
	"time"

	"tempo.transitdata.org/internal/app"
)

// RestAPI holds the application dependencies used by the handlers.
type RestAPI struct {
	*app.Application

	rateLimiter *RateLimitMiddleware
}

func NewRestAPI(application *app.Application) *RestAPI {
	return &RestAPI{Application: application}
}

// Shutdown stops background middleware goroutines.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}

// SetupCompleteRoutes builds the full handler: the routes wrapped in
// the middleware chain (panic recovery, request id, request logging,
// metrics, rate limit).
func (api *RestAPI) SetupCompleteRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", api.entryPointHandler)
	mux.HandleFunc("GET /health", api.healthHandler)
	mux.Handle("GET /metrics", api.Metrics.Handler())

	mux.HandleFunc("GET /{id}/{$}", api.datasetHandler)
	mux.HandleFunc("GET /{id}/status", api.statusHandler)
	mux.HandleFunc("GET /{id}/gtfs-rt", api.gtfsRTHandler)
	mux.HandleFunc("GET /{id}/gtfs-rt.json", api.gtfsRTJSONHandler)
	mux.HandleFunc("GET /{id}/siri/2.0/{$}", api.siriIndexHandler)
	mux.HandleFunc("GET /{id}/siri/2.0/stop-monitoring.json", api.stopMonitoringHandler)
	mux.Handle("GET /{id}/siri/2.0/stoppoints-discovery.json",
		CacheControlMiddleware(60, http.HandlerFunc(api.stopPointsDiscoveryHandler)))
	mux.HandleFunc("GET /{id}/siri/2.0/general-message.json", api.generalMessageHandler)

	var handler http.Handler = mux
	if api.Config.RateLimit > 0 {
		api.rateLimiter = NewRateLimitMiddleware(api.Config.RateLimit, time.Second, nil, api.Clock)
		handler = api.rateLimiter.Handler()(handler)
	}
	handler = MetricsHandler(api.Metrics)(handler)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(api.Logger, api.Clock)(handler)
	return handler
}
