package datasets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/logging"
	"tempo.transitdata.org/internal/metrics"
	"tempo.transitdata.org/internal/models"
	"tempo.transitdata.org/internal/transit"
)

const (
	scheduleReloadInterval  = 24 * time.Hour
	scheduleRetryInterval   = 5 * time.Minute
	realtimeRefreshInterval = 60 * time.Second
)

// ErrUnknownDataset reports a dataset id absent from the
// configuration.
var ErrUnknownDataset = errors.New("unknown dataset")

// datasetState is the mutable slot of one configured dataset. The
// dataset and realtime pointers are swapped whole under the mutex;
// everything they point to is immutable. Exactly one of dataset and
// loadErr is set: a failed schedule build is published as the error,
// not papered over with the previous dataset.
type datasetState struct {
	cfg models.DatasetConfig

	mu      sync.RWMutex
	dataset *transit.Dataset
	loadErr error
	rt      *transit.RealTimeDataset
}

// Manager loads every configured dataset and keeps it fresh: base
// schedules are reloaded daily, realtime feeds every minute. Handlers
// read consistent snapshots through Dataset and RealTime.
type Manager struct {
	appCfg  appconf.Config
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	states map[string]*datasetState
	order  []string

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewManager loads all configured datasets synchronously and performs a
// first realtime refresh, so that the HTTP API never serves before the
// data is ready. A dataset failing its initial build is published with
// the error as its base; its schedule queries answer a gateway error
// until a retry succeeds.
func NewManager(ctx context.Context, cfgs models.DatasetsConfig, appCfg appconf.Config, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Manager {
	manager := &Manager{
		appCfg:       appCfg,
		clock:        clk,
		metrics:      m,
		logger:       logger,
		states:       make(map[string]*datasetState, len(cfgs.Datasets)),
		shutdownChan: make(chan struct{}),
	}

	for _, cfg := range cfgs.Datasets {
		state := &datasetState{cfg: cfg}

		ds, err := LoadDataset(ctx, cfg, appCfg, clk, logger)
		if err != nil {
			err = fmt.Errorf("loading dataset %q: %w", cfg.ID, err)
			m.ScheduleReloadsTotal.WithLabelValues(cfg.ID, "error").Inc()
			logging.LogError(logger, "Error loading GTFS data", err,
				slog.String("dataset", cfg.ID),
				slog.String("source", cfg.GTFS))
			sentry.CaptureException(err)

			state.loadErr = err
			state.rt = transit.NewRealTimeDatasetError(err, cfg.GTFSRTURLs)
		} else {
			m.ScheduleReloadsTotal.WithLabelValues(cfg.ID, "success").Inc()
			m.DatasetLoadedAtSeconds.WithLabelValues(cfg.ID).Set(float64(ds.LoadedAt.Unix()))
			m.TimetableConnections.WithLabelValues(cfg.ID).Set(float64(len(ds.Timetable.Connections)))

			state.dataset = ds
			state.rt = transit.NewRealTimeDataset(ds, cfg.GTFSRTURLs)

			logging.LogOperation(logger, "dataset_loaded",
				slog.String("dataset", cfg.ID),
				slog.Int("connections", len(ds.Timetable.Connections)))
		}

		manager.states[cfg.ID] = state
		manager.order = append(manager.order, cfg.ID)

		if len(cfg.GTFSRTURLs) > 0 {
			manager.updateRealtime(ctx, state)
		}
	}

	return manager
}

// Start launches the background refresh loops. Call Shutdown to stop
// them.
func (m *Manager) Start() {
	for _, id := range m.order {
		state := m.states[id]
		m.wg.Add(1)
		go m.scheduleReloadLoop(state)
		if len(state.cfg.GTFSRTURLs) > 0 {
			m.wg.Add(1)
			go m.realtimeLoop(state)
		}
	}
}

// Shutdown stops the refresh loops and waits for them to exit.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shutdownChan)
	})
	m.wg.Wait()
}

// IDs returns the dataset identifiers in configuration order.
func (m *Manager) IDs() []string {
	return m.order
}

// Config returns the configuration of a dataset.
func (m *Manager) Config(id string) (models.DatasetConfig, bool) {
	state, ok := m.states[id]
	if !ok {
		return models.DatasetConfig{}, false
	}
	return state.cfg, true
}

// Dataset returns the current base schedule snapshot of a dataset, or
// the error of its last failed build. Unknown ids answer
// ErrUnknownDataset.
func (m *Manager) Dataset(id string) (*transit.Dataset, error) {
	state, ok := m.states[id]
	if !ok {
		return nil, ErrUnknownDataset
	}
	state.mu.RLock()
	defer state.mu.RUnlock()
	if state.loadErr != nil {
		return nil, state.loadErr
	}
	return state.dataset, nil
}

// RealTime returns the current realtime snapshot of a dataset. The
// snapshot carries its own base pointer, so schedule and overlay stay
// coherent even when a reload swaps the base concurrently.
func (m *Manager) RealTime(id string) (*transit.RealTimeDataset, bool) {
	state, ok := m.states[id]
	if !ok {
		return nil, false
	}
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.rt, true
}

// reloadDataset builds a fresh base schedule and swaps it in. A failed
// build is published as the dataset's error, it is not hidden behind
// the previous schedule. The realtime overlay is rebuilt empty against
// the new base; the next refresh tick repopulates it. The previous
// feed snapshot is kept either way so the raw feed endpoints stay
// available across the swap.
func (m *Manager) reloadDataset(ctx context.Context, state *datasetState) error {
	ds, err := LoadDataset(ctx, state.cfg, m.appCfg, m.clock, m.logger)
	if err != nil {
		m.metrics.ScheduleReloadsTotal.WithLabelValues(state.cfg.ID, "error").Inc()

		rt := transit.NewRealTimeDatasetError(err, state.cfg.GTFSRTURLs)
		state.mu.Lock()
		if state.rt != nil {
			rt.Feed = state.rt.Feed
		}
		state.dataset = nil
		state.loadErr = err
		state.rt = rt
		state.mu.Unlock()
		return err
	}

	rt := transit.NewRealTimeDataset(ds, state.cfg.GTFSRTURLs)

	state.mu.Lock()
	if state.rt != nil {
		rt.Feed = state.rt.Feed
	}
	state.dataset = ds
	state.loadErr = nil
	state.rt = rt
	state.mu.Unlock()

	m.metrics.ScheduleReloadsTotal.WithLabelValues(state.cfg.ID, "success").Inc()
	m.metrics.DatasetLoadedAtSeconds.WithLabelValues(state.cfg.ID).Set(float64(ds.LoadedAt.Unix()))
	m.metrics.TimetableConnections.WithLabelValues(state.cfg.ID).Set(float64(len(ds.Timetable.Connections)))
	return nil
}

func (m *Manager) scheduleReloadLoop(state *datasetState) {
	defer m.wg.Done()

	logger := m.logger.With(
		slog.String("component", "gtfs_static_updater"),
		slog.String("dataset", state.cfg.ID))

	// a dataset that failed its initial build retries early instead of
	// waiting for the daily tick
	interval := scheduleReloadInterval
	state.mu.RLock()
	if state.loadErr != nil {
		interval = scheduleRetryInterval
	}
	state.mu.RUnlock()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			err := m.reloadDataset(ctx, state)
			cancel()

			if err != nil {
				logging.LogError(logger, "Error updating GTFS data", err,
					slog.String("source", state.cfg.GTFS))
				sentry.CaptureException(err)
				interval = scheduleRetryInterval
			} else {
				logging.LogOperation(logger, "gtfs_static_data_updated",
					slog.String("source", state.cfg.GTFS))
				interval = scheduleReloadInterval
			}
			timer.Reset(interval)
		case <-m.shutdownChan:
			logging.LogOperation(logger, "shutting_down_static_gtfs_updates")
			return
		}
	}
}
