package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/models"
)

func testDataPath() string {
	return filepath.Join("..", "..", "testdata", "gtfs.zip")
}

func testAppConfig() appconf.Config {
	return appconf.Config{
		Port:        4000,
		Env:         appconf.Test,
		PeriodBegin: "2018-12-15",
		HorizonDays: 2,
	}
}

func testDatasetsConfig() models.DatasetsConfig {
	return models.DatasetsConfig{
		Datasets: []models.DatasetConfig{
			models.NewDatasetConfig("default", "demo", testDataPath(), nil),
		},
	}
}

func TestResolveDatasetsConfig(t *testing.T) {
	cfg, err := resolveDatasetsConfig("", "sf", "San Francisco", "gtfs.zip",
		[]string{"http://example.com/rt.pb"})
	require.NoError(t, err)
	require.Len(t, cfg.Datasets, 1)
	assert.Equal(t, "sf", cfg.Datasets[0].ID)
	assert.Equal(t, "San Francisco", cfg.Datasets[0].Name)
	assert.Equal(t, []string{"http://example.com/rt.pb"}, cfg.Datasets[0].GTFSRTURLs)
}

func TestResolveDatasetsConfigRequiresASource(t *testing.T) {
	_, err := resolveDatasetsConfig("", "default", "", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --config or --gtfs is required")
}

func TestBuildApplication(t *testing.T) {
	cfg := testAppConfig()
	coreApp, err := BuildApplication(cfg, testDatasetsConfig())

	require.NoError(t, err)
	require.NotNil(t, coreApp)
	assert.NotNil(t, coreApp.Logger)
	assert.NotNil(t, coreApp.Metrics)
	assert.Equal(t, cfg, coreApp.Config)
	assert.Equal(t, []string{"default"}, coreApp.Manager.IDs())
}

func TestBuildApplicationPublishesBrokenDataset(t *testing.T) {
	broken := models.DatasetsConfig{
		Datasets: []models.DatasetConfig{
			models.NewDatasetConfig("broken", "", "/nonexistent/gtfs.zip", nil),
		},
	}
	coreApp, err := BuildApplication(testAppConfig(), broken)
	require.NoError(t, err)

	// the process starts, the dataset serves its build error
	_, dsErr := coreApp.Manager.Dataset("broken")
	require.Error(t, dsErr)
	assert.Contains(t, dsErr.Error(), `loading dataset "broken"`)
}

func TestCreateServer(t *testing.T) {
	cfg := testAppConfig()
	cfg.Bind = "127.0.0.1"
	cfg.Port = 8080
	cfg.RateLimit = 100

	coreApp, err := BuildApplication(cfg, testDatasetsConfig())
	require.NoError(t, err)

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	assert.Equal(t, "127.0.0.1:8080", srv.Addr)
	assert.NotNil(t, srv.Handler)
	assert.Equal(t, time.Minute, srv.IdleTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.WriteTimeout)
}

func TestCreateServerHandlerResponds(t *testing.T) {
	cfg := testAppConfig()
	coreApp, err := BuildApplication(cfg, testDatasetsConfig())
	require.NoError(t, err)

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/default/", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"default"`)
}

func TestServerShutsDownCleanly(t *testing.T) {
	cfg := testAppConfig()
	cfg.Port = 0

	coreApp, err := BuildApplication(cfg, testDatasetsConfig())
	require.NoError(t, err)

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))

	coreApp.Manager.Shutdown()
}
