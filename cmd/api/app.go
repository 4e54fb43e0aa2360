package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"tempo.transitdata.org/internal/app"
	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/datasets"
	"tempo.transitdata.org/internal/logging"
	"tempo.transitdata.org/internal/metrics"
	"tempo.transitdata.org/internal/models"
	"tempo.transitdata.org/internal/restapi"
)

// startupTimeout bounds the initial schedule downloads and parsing.
const startupTimeout = 10 * time.Minute

// BuildApplication loads every configured dataset and wires the shared
// dependencies. A dataset failing its initial build still starts, its
// queries answer gateway errors until a reload succeeds.
func BuildApplication(cfg appconf.Config, datasetsCfg models.DatasetsConfig) (*app.Application, error) {
	logger := logging.NewDefaultLogger(cfg.Verbose)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env.String(),
		})
		if err != nil {
			return nil, fmt.Errorf("initializing sentry: %w", err)
		}
	}

	clk := clock.RealClock{}
	appMetrics := metrics.New()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	manager := datasets.NewManager(ctx, datasetsCfg, cfg, clk, appMetrics, logger)

	return &app.Application{
		Config:  cfg,
		Logger:  logger,
		Manager: manager,
		Clock:   clk,
		Metrics: appMetrics,
	}, nil
}

// CreateServer builds the HTTP server around the complete route set.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler:      api.SetupCompleteRoutes(),
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv, api
}

// Run starts the background refresh loops and the HTTP server, then
// blocks until SIGINT or SIGTERM and drains everything.
func Run(coreApp *app.Application, cfg appconf.Config) error {
	coreApp.Manager.Start()

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logging.LogOperation(coreApp.Logger, "server listening",
			slog.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(coreApp.Logger, "http server shutdown failed", err)
	}
	coreApp.Manager.Shutdown()

	if cfg.SentryDSN != "" {
		sentry.Flush(2 * time.Second)
	}

	logging.LogOperation(coreApp.Logger, "server stopped")
	return nil
}
