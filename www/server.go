package www

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/database"
	"github.com/angas/elprice/types"
)

type PriceReader interface {
	GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error)
}

type LogReader interface {
	GetLogEntries(ctx context.Context, minLvl slog.Level, page, pageSize int) ([]database.LogEntryRow, error)
}

type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Deps are the services behind the routes. Timeline answers /prices with
// gaps filled, Store answers /prices/raw.
type Deps struct {
	Timeline PriceReader
	Store    PriceReader
	Counter  Counter
	Logs     LogReader
}

type Server struct {
	logger *slog.Logger
	config config.AppConfigApi
	hub    *Hub
	mux    *http.ServeMux
}

func NewServer(logger *slog.Logger, cnfg config.AppConfigApi, hub *Hub, deps Deps) *Server {
	logger = logger.With(slog.String("module", "www"))
	s := &Server{
		logger: logger,
		config: cnfg,
		hub:    hub,
		mux:    http.NewServeMux(),
	}

	logReqMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("remoteAddr", r.RemoteAddr))
			next.ServeHTTP(w, r)
		})
	}

	s.mux.Handle("GET /prices", logReqMW(NewPricesHandler(
		logger.With(slog.String("handler", "prices")),
		deps.Timeline)))

	s.mux.Handle("GET /prices/raw", logReqMW(NewPricesHandler(
		logger.With(slog.String("handler", "prices_raw")),
		deps.Store)))

	s.mux.Handle("GET /log", logReqMW(NewLogHandler(
		logger.With(slog.String("handler", "log")),
		deps.Logs)))

	s.mux.Handle("GET /health", NewHealthHandler(
		logger.With(slog.String("handler", "health")),
		deps.Counter))

	s.mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get("User-Agent")
		client, err := NewClient(s.hub, w, r, name)
		if err != nil {
			s.logger.Error("new websocket client failed", slog.Any("error", err))
			return
		}
		if !s.hub.register(client) {
			client.conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.GetPort())
	s.logger.Info("starting server...", slog.String("addr", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErrors := make(chan error, 1)
	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	}
}
