package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/slice"
	"github.com/angas/elprice/store"
	"github.com/angas/elprice/telemetry"
	"github.com/angas/elprice/types"
)

var errNoPrices = errors.New("no energy price provider succeeded")

type energyPriceTask struct {
	logger    *slog.Logger
	store     PriceStore
	providers []types.EnergyPriceProvider
	events    telemetry.Publisher
	cnfg      config.AppConfigEnergyPrice
	now       func() time.Time
}

// NewEnergyPriceTask fetches prices that aren't stored yet, from the first
// provider that answers, and adds them to the store.
func NewEnergyPriceTask(
	logger *slog.Logger,
	st PriceStore,
	providers []types.EnergyPriceProvider,
	events telemetry.Publisher,
	cnfg config.AppConfigEnergyPrice,
) func() {
	if len(providers) == 0 {
		panic("no energy price providers")
	}
	t := &energyPriceTask{
		logger:    logger,
		store:     st,
		providers: providers,
		events:    events,
		cnfg:      cnfg,
		now:       time.Now,
	}
	return t.run
}

func (t *energyPriceTask) run() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("energy price task panic", slog.Any("panic", r))
		}
	}()

	t.logger.Debug("running energy price task...")

	ctx, cancel := context.WithTimeout(context.Background(), t.cnfg.GetTimeout())
	defer cancel()

	now := t.now()
	event := telemetry.Event{Kind: telemetry.KindIngest, At: now}
	defer func() { t.events.Publish(context.WithoutCancel(ctx), event) }()

	latest, ok, err := t.store.LatestHour(ctx)
	if err != nil {
		t.logger.Error("energy price task error, reading latest hour", slog.Any("error", err))
		event.Outcome, event.Error = store.AddFailed.String(), err.Error()
		return
	}

	from, to := ingestWindow(now, latest, ok, t.cnfg.GetLookbackHours())
	event.From, event.To = from.Time(), to.Time()
	if !from.Before(to) {
		t.logger.Debug("energy prices are up to date", slog.String("latest", latest.String()))
		event.Outcome = store.AddEmpty.String()
		return
	}

	name, prices, err := t.fetch(ctx, from, to)
	if err != nil {
		t.logger.Error("energy price task error, fetching energy prices",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.Any("error", err))
		event.Outcome, event.Error = store.AddFailed.String(), err.Error()
		return
	}
	event.Provider, event.Fetched = name, len(prices)

	fresh := slice.Filter(prices, func(r types.PriceRecord) bool {
		return !t.store.IsDuplicate(ctx, r.Start(), r.End())
	})
	skipped := len(prices) - len(fresh)

	res := t.store.AddRange(ctx, fresh)
	event.Ingested, event.Skipped, event.Outcome = res.Inserted, skipped, res.Status.String()
	if res.Err != nil {
		event.Error = res.Err.Error()
		t.logger.Error("energy price task error, storing energy prices", slog.Any("error", res.Err))
		return
	}

	t.logger.Info("energy price task done",
		slog.String("provider", name),
		slog.Int("fetched", len(prices)),
		slog.Int64("ingested", res.Inserted),
		slog.Int("skipped", skipped),
		slog.String("outcome", res.Status.String()))
}

// fetch asks the providers in order and returns the first successful answer.
func (t *energyPriceTask) fetch(ctx context.Context, from, to hours.DateHour) (string, []types.PriceRecord, error) {
	var errs []error
	for _, p := range t.providers {
		prices, err := p.GetEnergyPrices(ctx, from, to)
		if err != nil {
			t.logger.Warn("energy price provider failed", slog.String("provider", p.Name()), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return p.Name(), prices, nil
	}
	return "", nil, fmt.Errorf("%w: %w", errNoPrices, errors.Join(errs...))
}

// ingestWindow runs from the hour after the newest stored one to the end of
// tomorrow, but never further back than lookback hours.
func ingestWindow(now time.Time, latest hours.DateHour, ok bool, lookback int) (hours.DateHour, hours.DateHour) {
	to := hours.FromTime(hours.StartOfDay(now).AddDate(0, 0, 2))
	from := hours.FromTime(now).Sub(lookback)
	if ok && from.Before(latest.Add(1)) {
		from = latest.Add(1)
	}
	return from, to
}

func needImmediateEnergyPriceUpdate(ctx context.Context, st PriceStore, now time.Time) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	latest, ok, err := st.LatestHour(ctx)
	if err != nil || !ok {
		return true
	}
	return latest.Before(hours.FromTime(now).Add(1))
}
