// Package datasets owns the lifecycle of the loaded transit data: it
// loads base schedules, refreshes realtime feeds and hands out
// immutable snapshots to the HTTP handlers.
package datasets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/logging"
	"tempo.transitdata.org/internal/models"
	"tempo.transitdata.org/internal/transit"
)

const defaultHorizonDays = 3

func isLocalFile(source string) bool {
	return !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://")
}

func rawScheduleData(ctx context.Context, source string, logger *slog.Logger) ([]byte, error) {
	if isLocalFile(source) {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", source, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GTFS request: %w", err)
	}

	client := &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		logger.With(slog.String("component", "gtfs_downloader")),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download GTFS data: received HTTP status %s", resp.Status)
	}

	const maxStaticSize = 200 * 1024 * 1024
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxStaticSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	if int64(len(b)) > maxStaticSize {
		return nil, fmt.Errorf("static GTFS response exceeds size limit of %d bytes", maxStaticSize)
	}
	return b, nil
}

// LoadDataset fetches and indexes the base schedule of one configured
// dataset, generating its timetable over the configured period.
func LoadDataset(ctx context.Context, cfg models.DatasetConfig, appCfg appconf.Config, clk clock.Clock, logger *slog.Logger) (*transit.Dataset, error) {
	b, err := rawScheduleData(ctx, cfg.GTFS, logger)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}

	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}

	model, err := transit.NewModel(static, logger)
	if err != nil {
		return nil, fmt.Errorf("error indexing GTFS data: %w", err)
	}

	period, err := generationPeriod(appCfg, model, clk)
	if err != nil {
		return nil, err
	}

	return &transit.Dataset{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Source:    cfg.GTFS,
		Model:     model,
		Timetable: transit.BuildTimetable(model, period, logger),
		Period:    period,
		LoadedAt:  clk.Now().UTC(),
	}, nil
}

// generationPeriod resolves the timetable window. The begin day is the
// configured date or, when unset, the current day in the dataset
// timezone.
func generationPeriod(appCfg appconf.Config, model *transit.Model, clk clock.Clock) (transit.Period, error) {
	days := appCfg.HorizonDays
	if days <= 0 {
		days = defaultHorizonDays
	}

	if appCfg.PeriodBegin == "" {
		return transit.Period{Begin: clk.Now().In(model.Timezone), Days: days}, nil
	}
	begin, err := time.ParseInLocation("2006-01-02", appCfg.PeriodBegin, model.Timezone)
	if err != nil {
		return transit.Period{}, fmt.Errorf("invalid generation period begin %q: %w", appCfg.PeriodBegin, err)
	}
	return transit.Period{Begin: begin, Days: days}, nil
}
