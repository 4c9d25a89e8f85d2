package www

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/angas/elprice/logging"
)

type logEntryJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Attrs     string    `json:"attrs,omitempty"`
}

// NewLogHandler lists persisted log entries, newest first. Query
// parameters: page, pageSize and level (minimum level, default DEBUG).
func NewLogHandler(logger *slog.Logger, logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := intOrDefault(r.URL, "page", 1)
		pageSize := min(intOrDefault(r.URL, "pageSize", 25), 500)

		minLvl := slog.LevelDebug
		if lvl := r.URL.Query().Get("level"); lvl != "" {
			minLvl = logging.LevelFromString(&lvl)
		}

		entries, err := logs.GetLogEntries(r.Context(), minLvl, page, pageSize)
		if err != nil {
			logger.Error("handling log request", slog.Any("error", err))
			http.Error(w, "failed to read log", http.StatusInternalServerError)
			return
		}

		out := make([]logEntryJSON, len(entries))
		for i, e := range entries {
			out[i] = logEntryJSON{
				Timestamp: e.Timestamp,
				Level:     slog.Level(e.Level).String(),
				Message:   e.Message,
				Attrs:     e.Attrs,
			}
		}
		writeJSON(w, logger, out)
	}
}
