package datasets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/getsentry/sentry-go"
	"google.golang.org/protobuf/proto"

	"tempo.transitdata.org/internal/logging"
	"tempo.transitdata.org/internal/transit"
)

// realtimeHTTPClient is a dedicated HTTP client for GTFS-RT feed
// fetching, configured with explicit timeouts and transport limits to
// avoid the pitfalls of http.DefaultClient (no timeout, shared global
// state). The transport is cloned from http.DefaultTransport to
// preserve important defaults (ProxyFromEnvironment, DialContext,
// HTTP/2, keepalives).
var realtimeHTTPClient = newRealtimeHTTPClient()

func newRealtimeHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{
		// Timeout acts as an absolute safety net per request. The
		// refresh loop also sets a 15s context timeout; the stricter of
		// the two wins.
		Timeout:   10 * time.Second,
		Transport: transport,
	}
}

func fetchFeed(ctx context.Context, url string, logger *slog.Logger) (*gtfsrt.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := realtimeHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute GTFS-RT request: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		logger.With(slog.String("component", "gtfs_realtime_downloader")),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtfs-rt fetch failed: %s returned %s", url, resp.Status)
	}

	const maxBodySize = 25 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxBodySize {
		return nil, fmt.Errorf("GTFS-RT response exceeds size limit of %d bytes", maxBodySize)
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to decode GTFS-RT feed: %w", err)
	}
	return feed, nil
}

// updateRealtime fetches every configured feed of the dataset, joins
// the merged result onto the current base schedule and publishes a new
// realtime snapshot. A partial fetch failure degrades to the feeds
// that answered; when none answer the previous snapshot is kept. When
// the base is currently an error the fetched feed is still published,
// with an empty overlay.
func (m *Manager) updateRealtime(ctx context.Context, state *datasetState) {
	logger := m.logger.With(
		slog.String("component", "gtfs_realtime"),
		slog.String("dataset", state.cfg.ID))

	state.mu.RLock()
	base := state.dataset
	loadErr := state.loadErr
	state.mu.RUnlock()

	urls := state.cfg.GTFSRTURLs
	feeds := make([]*gtfsrt.FeedMessage, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			feed, err := fetchFeed(ctx, url, logger)
			if err != nil {
				m.metrics.RealtimeFetchesTotal.WithLabelValues(state.cfg.ID, "error").Inc()
				logging.LogError(logger, "Error loading GTFS-RT trip updates data", err,
					slog.String("url", url))
				return
			}
			m.metrics.RealtimeFetchesTotal.WithLabelValues(state.cfg.ID, "success").Inc()
			feeds[i] = feed
		}(i, url)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	fetched := feeds[:0:len(feeds)]
	for _, feed := range feeds {
		if feed != nil {
			fetched = append(fetched, feed)
		}
	}
	if len(fetched) == 0 {
		logger.Warn("no realtime feed answered, keeping the previous data")
		return
	}

	merged := transit.AggregateFeeds(fetched)
	raw, err := proto.Marshal(merged)
	if err != nil {
		logging.LogError(logger, "Error re-encoding merged GTFS-RT feed", err)
		return
	}

	now := m.clock.Now()
	var rt *transit.RealTimeDataset
	if base != nil {
		update := transit.BuildModelUpdate(base.Model, merged, now, logger)
		rt = transit.NewRealTimeDataset(base, urls)
		if incoherent := transit.ApplyTripUpdates(rt, update, logger); incoherent > 0 {
			m.metrics.RealtimeCoherenceWarnings.WithLabelValues(state.cfg.ID).Add(float64(incoherent))
			sentry.CaptureMessage(fmt.Sprintf(
				"dataset %s: %d incoherent stop time updates skipped", state.cfg.ID, incoherent))
		}
	} else {
		rt = transit.NewRealTimeDatasetError(loadErr, urls)
	}
	rt.Feed = &transit.FeedSnapshot{FetchedAt: now.UTC(), Raw: raw}

	state.mu.Lock()
	state.rt = rt
	state.mu.Unlock()

	m.metrics.RealtimeLastSuccessTime.WithLabelValues(state.cfg.ID).Set(float64(now.Unix()))
	logger.Debug("realtime data updated",
		slog.Int("feeds", len(fetched)),
		slog.Int("updated_connections", len(rt.Updated.Connections)))
}

func (m *Manager) realtimeLoop(state *datasetState) {
	defer m.wg.Done()

	logger := m.logger.With(
		slog.String("component", "gtfs_realtime_updater"),
		slog.String("dataset", state.cfg.ID))

	ticker := time.NewTicker(realtimeRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			logging.LogOperation(logger, "updating_gtfs_realtime_data")
			m.updateRealtime(ctx, state)
			cancel()
		case <-m.shutdownChan:
			logging.LogOperation(logger, "shutting_down_realtime_updates")
			return
		}
	}
}
