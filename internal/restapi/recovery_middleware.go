package restapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"

	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/logging"
	"tempo.transitdata.org/internal/models"
)

// RecoveryMiddleware turns handler panics into 500 responses and
// reports them to Sentry when it is configured.
func RecoveryMiddleware(logger *slog.Logger, clk clock.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				logging.LogError(logger, "panic recovered", fmt.Errorf("%v", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				sentry.CurrentHub().Recover(rec)

				// The connection may be in an unknown state.
				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(models.ResponseModel{
					Code:        http.StatusInternalServerError,
					CurrentTime: models.ResponseCurrentTime(clk),
					Text:        "internal server error",
					Version:     2,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
