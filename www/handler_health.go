package www

import (
	"log/slog"
	"net/http"
)

type healthJSON struct {
	Status string `json:"status"`
	Prices int64  `json:"prices"`
}

func NewHealthHandler(logger *slog.Logger, counter Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := counter.Count(r.Context())
		if err != nil {
			logger.Warn("health check failed", slog.Any("error", err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		writeJSON(w, logger, healthJSON{Status: "ok", Prices: n})
	}
}
