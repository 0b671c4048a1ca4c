package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/blogging-api/internal/envelope"
)

// Pinger is implemented by both database backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth reports whether the database answers.
//
// HTTP: GET /healthz → 200 {"status":"success"} or 503
func HandleHealth(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			logger.Error("health check failed", slog.String("error", err.Error()))
			envelope.JSON(w, logger, http.StatusServiceUnavailable, envelope.Message{
				Status:  envelope.Failed,
				Message: "database unavailable",
			})
			return
		}
		envelope.JSON(w, logger, http.StatusOK, map[string]string{"status": envelope.Success})
	}
}
