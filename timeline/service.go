package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/angas/elprice/types"
)

type Reader interface {
	GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error)
}

// Service reads stored prices and completes them into a gap free timeline.
type Service struct {
	logger *slog.Logger
	reader Reader
	opts   []Option
}

func NewService(logger *slog.Logger, reader Reader, opts ...Option) *Service {
	return &Service{
		logger: logger.With(slog.String("module", "timeline")),
		reader: reader,
		opts:   opts,
	}
}

func (s *Service) GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error) {
	records, err := s.reader.GetPricesForPeriod(ctx, start, end)
	if err != nil {
		s.logger.Error("reading prices failed",
			slog.Time("start", start),
			slog.Time("end", end),
			slog.Any("error", err))
		return nil, err
	}

	completed := Complete(records, start, end, s.opts...)
	s.logger.Debug("timeline completed",
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Int("stored", len(records)),
		slog.Int("filled", len(completed)-len(records)))
	return completed, nil
}
