package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/telemetry"
	"github.com/angas/elprice/types"
)

type PriceReader interface {
	GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error)
}

// Backfill reads the whole history once after startup. It checks that
// storage answers and warms the range cache, nothing is written.
type Backfill struct {
	logger *slog.Logger
	reader PriceReader
	events telemetry.Publisher
	delay  time.Duration
	years  int
	now    func() time.Time
}

func NewBackfill(logger *slog.Logger, reader PriceReader, events telemetry.Publisher, cnfg config.AppConfigBackfill) *Backfill {
	return &Backfill{
		logger: logger,
		reader: reader,
		events: events,
		delay:  cnfg.GetDelay(),
		years:  cnfg.GetYears(),
		now:    time.Now,
	}
}

// Run waits for the startup delay and then reads the history window. It
// returns early when ctx is cancelled.
func (b *Backfill) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("backfill panic", slog.Any("panic", r))
		}
	}()

	if b.delay > 0 {
		b.logger.Debug("backfill scheduled", slog.Duration("delay", b.delay))
		timer := time.NewTimer(b.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			b.logger.Debug("backfill cancelled before start")
			return
		case <-timer.C:
		}
	}

	today := hours.StartOfDay(b.now())
	from, to := today.AddDate(-b.years, 0, 0), today.AddDate(0, 0, 1)
	event := telemetry.Event{Kind: telemetry.KindBackfill, From: from, To: to}

	start := time.Now()
	records, err := b.reader.GetPricesForPeriod(ctx, from, to)
	event.At = b.now()
	if err != nil {
		if ctx.Err() != nil {
			b.logger.Debug("backfill cancelled", slog.Any("error", err))
			return
		}
		b.logger.Error("backfill failed", slog.Any("error", err))
		event.Outcome, event.Error = "failed", err.Error()
		b.events.Publish(ctx, event)
		return
	}

	event.Count, event.Outcome = len(records), "ok"
	b.logger.Info("backfill done",
		slog.Time("from", from),
		slog.Time("to", to),
		slog.Int("count", len(records)),
		slog.Duration("took", time.Since(start)))
	b.events.Publish(ctx, event)
}
