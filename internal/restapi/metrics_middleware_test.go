package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo.transitdata.org/internal/metrics"
)

func TestMetricsHandlerRecordsRequests(t *testing.T) {
	m := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{id}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := MetricsHandler(m)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/default/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "GET /{id}/status", "200"))
	assert.Equal(t, 1.0, count)
}

func TestMetricsHandlerUnmatchedRoute(t *testing.T) {
	m := metrics.New()
	handler := MetricsHandler(m)(http.NewServeMux())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing-here", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	assert.Equal(t, 1.0, count)
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	api, _ := createTestApi(t, nil)

	serveAppRequest(t, api, "/default/status")
	rec := serveAppRequest(t, api, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tempo_http_requests_total")
	assert.Contains(t, rec.Body.String(), "tempo_timetable_connections")
}

func TestMetricsHandlerNilMetrics(t *testing.T) {
	handler := MetricsHandler(nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
