// Package appconf holds process-level configuration shared by the
// command layer and the HTTP server.
package appconf

import "strings"

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment maps a CLI/environment string to an Environment.
// Unknown values fall back to Development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

// Config is the process configuration, assembled from flags and
// TEMPO_* environment variables in cmd/api.
type Config struct {
	Env       Environment
	Bind      string
	Port      int
	RateLimit int
	Verbose   bool
	SentryDSN string

	// Generation period for the base schedule timetables.
	// PeriodBegin is "YYYY-MM-DD"; empty means today in each
	// dataset's timezone. HorizonDays is the number of days
	// covered from PeriodBegin.
	PeriodBegin string
	HorizonDays int
}
