// Package app wires the process-wide dependencies together.
package app

import (
	"log/slog"

	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/datasets"
	"tempo.transitdata.org/internal/metrics"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Manager *datasets.Manager
	Clock   clock.Clock
	Metrics *metrics.Metrics
}
