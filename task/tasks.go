package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/store"
	"github.com/angas/elprice/telemetry"
	"github.com/angas/elprice/types"
	"github.com/robfig/cron/v3"
)

const maintenanceSpec = "30 2 * * *"

// PriceStore is the part of the price store the ingestion task needs.
type PriceStore interface {
	IsDuplicate(ctx context.Context, start, end time.Time) bool
	AddRange(ctx context.Context, records []types.PriceRecord) store.AddResult
	LatestHour(ctx context.Context) (hours.DateHour, bool, error)
	GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error)
}

type Tasks struct {
	cron            *cron.Cron
	logger          *slog.Logger
	cnfg            *config.AppConfig
	store           PriceStore
	EnergyPriceTask cron.Job
	MaintenanceTask func()
	Backfill        *Backfill

	// jobs started outside the cron scheduler
	running sync.WaitGroup
}

func NewTasks(
	logger *slog.Logger,
	st PriceStore,
	maint Maintainer,
	providers []types.EnergyPriceProvider,
	events telemetry.Publisher,
	cnfg *config.AppConfig,
) *Tasks {
	logger = logger.With(slog.String("module", "tasks"))
	cl := cronLogger{logger: logger}

	energyPrice := NewEnergyPriceTask(logger.With(slog.String("task", "energy_price")), st, providers, events, cnfg.EnergyPrice)

	return &Tasks{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger: logger,
		cnfg:   cnfg,
		store:  st,
		// The same wrapped job serves cron and the startup run so they never overlap.
		EnergyPriceTask: cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(energyPrice)),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), maint, cnfg),
		Backfill:        NewBackfill(logger.With(slog.String("task", "backfill")), st, events, cnfg.Backfill),
	}
}

// Run schedules the jobs and starts the backfill. The backfill is abandoned
// when ctx is cancelled.
func (t *Tasks) Run(ctx context.Context) error {
	if _, err := t.cron.AddJob(t.cnfg.EnergyPrice.GetRunAt(), t.EnergyPriceTask); err != nil {
		return fmt.Errorf("schedule energy price task: %w", err)
	}
	if _, err := t.cron.AddFunc(maintenanceSpec, t.MaintenanceTask); err != nil {
		return fmt.Errorf("schedule maintenance task: %w", err)
	}
	t.cron.Start()

	if needImmediateEnergyPriceUpdate(ctx, t.store, time.Now()) {
		t.logger.Info("need an immediate update of energy prices")
		t.running.Add(1)
		go func() {
			defer t.running.Done()
			t.EnergyPriceTask.Run()
		}()
	} else {
		t.logger.Debug("no need for immediate update of energy prices")
	}

	if t.cnfg.Backfill.IsEnabled() {
		t.running.Add(1)
		go func() {
			defer t.running.Done()
			t.Backfill.Run(ctx)
		}()
	}
	return nil
}

// Stop stops scheduling, the returned context is done when running jobs
// have finished, including the startup update and the backfill.
func (t *Tasks) Stop() context.Context {
	cronDone := t.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		t.running.Wait()
		cancel()
	}()
	return ctx
}

// cronLogger lets the cron scheduler log through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
