package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tempo.transitdata.org/internal/appconf"
	"tempo.transitdata.org/internal/models"
)

// envString returns the TEMPO_* environment value or the fallback.
func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// resolveDatasetsConfig picks between the YAML configuration file and
// the single-dataset CLI flags.
func resolveDatasetsConfig(configPath, id, name, gtfs string, rtURLs []string) (*models.DatasetsConfig, error) {
	if configPath != "" {
		return models.LoadDatasetsConfig(configPath)
	}
	if gtfs == "" {
		return nil, fmt.Errorf("either --config or --gtfs is required")
	}
	cfg := &models.DatasetsConfig{
		Datasets: []models.DatasetConfig{models.NewDatasetConfig(id, name, gtfs, rtURLs)},
	}
	return cfg, cfg.Validate()
}

func main() {
	var cfg appconf.Config
	var (
		configPath  string
		gtfsPath    string
		datasetID   string
		datasetName string
		rtURLs      []string
	)

	flag.StringVar(&configPath, "config", envString("TEMPO_CONFIG", ""),
		"Path to a YAML file describing the hosted datasets")
	flag.StringVar(&gtfsPath, "gtfs", envString("TEMPO_GTFS", ""),
		"Path or URL of the GTFS zip (single dataset mode)")
	flag.StringVar(&datasetID, "id", envString("TEMPO_DATASET_ID", "default"),
		"Identifier of the dataset in the API routes (single dataset mode)")
	flag.StringVar(&datasetName, "name", envString("TEMPO_DATASET_NAME", ""),
		"Display name of the dataset (single dataset mode)")
	flag.Func("url", "GTFS-RT feed URL, repeat the flag for several feeds (single dataset mode)",
		func(s string) error {
			rtURLs = append(rtURLs, s)
			return nil
		})

	flag.StringVar(&cfg.Bind, "bind", envString("TEMPO_BIND", "0.0.0.0"), "Address to bind")
	flag.IntVar(&cfg.Port, "port", envInt("TEMPO_PORT", 8080), "Port to listen on")
	flag.IntVar(&cfg.RateLimit, "rate-limit", envInt("TEMPO_RATE_LIMIT", 0),
		"Maximum requests per second per client IP, 0 disables rate limiting")
	flag.StringVar(&cfg.PeriodBegin, "period-begin", envString("TEMPO_PERIOD_BEGIN", ""),
		"First day of the generated timetable as YYYY-MM-DD, defaults to today")
	flag.IntVar(&cfg.HorizonDays, "horizon-days", envInt("TEMPO_HORIZON_DAYS", 0),
		"Number of days covered by the generated timetable")
	flag.StringVar(&cfg.SentryDSN, "sentry", envString("TEMPO_SENTRY_DSN", ""),
		"Sentry DSN for error reporting")
	envName := flag.String("env", envString("TEMPO_ENV", "development"),
		"Environment (development|test|production)")
	flag.BoolVar(&cfg.Verbose, "verbose", envBool("TEMPO_VERBOSE", false), "Enable debug logging")
	flag.Parse()

	cfg.Env = appconf.EnvFlagToEnvironment(*envName)

	if len(rtURLs) == 0 {
		if urls := envString("TEMPO_GTFS_RT_URLS", ""); urls != "" {
			for _, u := range strings.Split(urls, ",") {
				if u = strings.TrimSpace(u); u != "" {
					rtURLs = append(rtURLs, u)
				}
			}
		}
	}

	datasetsCfg, err := resolveDatasetsConfig(configPath, datasetID, datasetName, gtfsPath, rtURLs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	coreApp, err := BuildApplication(cfg, *datasetsCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := Run(coreApp, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
