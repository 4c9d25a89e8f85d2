package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/store"
	"github.com/angas/elprice/telemetry"
	"github.com/angas/elprice/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type fakeStore struct {
	mu        sync.Mutex
	stored    map[hours.DateHour]bool
	latest    hours.DateHour
	hasPrice  bool
	latestErr error
	readErr   error
	added     [][]types.PriceRecord
	reads     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{stored: make(map[hours.DateHour]bool)}
}

func (f *fakeStore) IsDuplicate(_ context.Context, start, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[hours.FromTime(start)]
}

func (f *fakeStore) AddRange(_ context.Context, records []types.PriceRecord) store.AddResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, records)
	if len(records) == 0 {
		return store.AddResult{Status: store.AddEmpty}
	}
	for _, r := range records {
		f.stored[r.When] = true
	}
	return store.AddResult{Status: store.AddInserted, Inserted: int64(len(records))}
}

func (f *fakeStore) LatestHour(context.Context) (hours.DateHour, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.hasPrice, f.latestErr
}

func (f *fakeStore) GetPricesForPeriod(context.Context, time.Time, time.Time) ([]types.PriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return make([]types.PriceRecord, 3), nil
}

type fakeProvider struct {
	name     string
	err      error
	prices   []types.PriceRecord
	panics   bool
	calls    atomic.Int32
	from, to hours.DateHour
	block    chan struct{}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) GetEnergyPrices(_ context.Context, from, to hours.DateHour) ([]types.PriceRecord, error) {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	p.from, p.to = from, to
	if p.panics {
		panic("provider exploded")
	}
	return p.prices, p.err
}

type eventLog struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (e *eventLog) Publish(_ context.Context, ev telemetry.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) last() telemetry.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

var now = time.Date(2024, 3, 10, 13, 20, 0, 0, time.UTC)

func hourAt(h int) hours.DateHour {
	return hours.FromTime(now).Add(h)
}

func prices(from, count int) []types.PriceRecord {
	out := make([]types.PriceRecord, count)
	for i := range out {
		out[i] = types.NewPriceRecord(hourAt(from+i), decimal.NewFromInt(int64(i)))
	}
	return out
}

func newTask(st PriceStore, events telemetry.Publisher, providers ...types.EnergyPriceProvider) *energyPriceTask {
	return &energyPriceTask{
		logger:    discard,
		store:     st,
		providers: providers,
		events:    events,
		now:       func() time.Time { return now },
	}
}

func TestIngestWindow(t *testing.T) {
	endOfTomorrow := hours.DateHour{Date: "2024-03-12", Hour: 0}

	tests := []struct {
		name     string
		latest   hours.DateHour
		ok       bool
		wantFrom hours.DateHour
	}{
		{"empty store", hours.DateHour{}, false, hourAt(-48)},
		{"recent watermark", hourAt(2), true, hourAt(3)},
		{"stale watermark", hourAt(-100), true, hourAt(-48)},
		{"complete", hours.DateHour{Date: "2024-03-11", Hour: 23}, true, endOfTomorrow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := ingestWindow(now, tt.latest, tt.ok, 48)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, endOfTomorrow, to)
		})
	}
}

func TestEnergyPriceTaskIngestsNewPrices(t *testing.T) {
	st := newFakeStore()
	st.stored[hourAt(0)] = true
	events := &eventLog{}
	p := &fakeProvider{name: "primary", prices: prices(0, 4)}

	newTask(st, events, p).run()

	require.Len(t, st.added, 1)
	assert.Len(t, st.added[0], 3)
	assert.Equal(t, hourAt(-48), p.from)

	ev := events.last()
	assert.Equal(t, telemetry.KindIngest, ev.Kind)
	assert.Equal(t, "primary", ev.Provider)
	assert.Equal(t, 4, ev.Fetched)
	assert.Equal(t, int64(3), ev.Ingested)
	assert.Equal(t, 1, ev.Skipped)
	assert.Equal(t, "inserted", ev.Outcome)
}

func TestEnergyPriceTaskFallsBack(t *testing.T) {
	st := newFakeStore()
	events := &eventLog{}
	primary := &fakeProvider{name: "primary", err: errors.New("503")}
	secondary := &fakeProvider{name: "secondary", prices: prices(0, 2)}
	unused := &fakeProvider{name: "unused"}

	newTask(st, events, primary, secondary, unused).run()

	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), secondary.calls.Load())
	assert.Zero(t, unused.calls.Load())
	assert.Equal(t, "secondary", events.last().Provider)
}

func TestEnergyPriceTaskAllProvidersFail(t *testing.T) {
	st := newFakeStore()
	events := &eventLog{}

	newTask(st, events,
		&fakeProvider{name: "a", err: errors.New("timeout")},
		&fakeProvider{name: "b", err: errors.New("404")},
	).run()

	assert.Empty(t, st.added)
	ev := events.last()
	assert.Equal(t, "failed", ev.Outcome)
	assert.Contains(t, ev.Error, "timeout")
	assert.Contains(t, ev.Error, "404")
}

func TestEnergyPriceTaskUpToDate(t *testing.T) {
	st := newFakeStore()
	st.latest, st.hasPrice = hours.DateHour{Date: "2024-03-11", Hour: 23}, true
	p := &fakeProvider{name: "primary"}

	newTask(st, &eventLog{}, p).run()
	assert.Zero(t, p.calls.Load())
}

func TestEnergyPriceTaskSurvivesFailures(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		st := newFakeStore()
		st.latestErr = errors.New("db down")
		events := &eventLog{}
		p := &fakeProvider{name: "primary"}

		assert.NotPanics(t, newTask(st, events, p).run)
		assert.Zero(t, p.calls.Load())
		assert.Equal(t, "db down", events.last().Error)
	})

	t.Run("panicking provider", func(t *testing.T) {
		assert.NotPanics(t, newTask(newFakeStore(), &eventLog{}, &fakeProvider{panics: true}).run)
	})
}

func TestNewEnergyPriceTaskNeedsProviders(t *testing.T) {
	assert.Panics(t, func() {
		NewEnergyPriceTask(discard, newFakeStore(), nil, telemetry.Nop{}, config.AppConfigEnergyPrice{})
	})
}

func TestNeedImmediateEnergyPriceUpdate(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	assert.True(t, needImmediateEnergyPriceUpdate(ctx, st, now))

	st.latest, st.hasPrice = hourAt(0), true
	assert.True(t, needImmediateEnergyPriceUpdate(ctx, st, now))

	st.latest = hourAt(1)
	assert.False(t, needImmediateEnergyPriceUpdate(ctx, st, now))

	st.latestErr = errors.New("locked")
	assert.True(t, needImmediateEnergyPriceUpdate(ctx, st, now))
}

func newBackfill(reader PriceReader, events telemetry.Publisher, delay time.Duration) *Backfill {
	return &Backfill{
		logger: discard,
		reader: reader,
		events: events,
		delay:  delay,
		years:  10,
		now:    func() time.Time { return now },
	}
}

func TestBackfill(t *testing.T) {
	t.Run("reads history", func(t *testing.T) {
		st := newFakeStore()
		events := &eventLog{}

		newBackfill(st, events, 0).Run(context.Background())

		assert.Equal(t, 1, st.reads)
		ev := events.last()
		assert.Equal(t, telemetry.KindBackfill, ev.Kind)
		assert.Equal(t, 3, ev.Count)
		assert.Equal(t, time.Date(2014, 3, 10, 0, 0, 0, 0, time.UTC), ev.From)
		assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), ev.To)
		assert.Empty(t, st.added)
	})

	t.Run("read error is logged", func(t *testing.T) {
		st := newFakeStore()
		st.readErr = errors.New("timeout")
		events := &eventLog{}

		assert.NotPanics(t, func() { newBackfill(st, events, 0).Run(context.Background()) })
		assert.Equal(t, "timeout", events.last().Error)
	})

	t.Run("cancelled during delay", func(t *testing.T) {
		st := newFakeStore()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		go func() {
			newBackfill(st, &eventLog{}, time.Hour).Run(ctx)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("backfill did not return after cancel")
		}
		assert.Zero(t, st.reads)
	})
}

type fakeMaintainer struct {
	backups, purges, logPurges int
	retention, maxEntries      int
	backupErr                  error
}

func (m *fakeMaintainer) Backup(context.Context) (string, error) {
	m.backups++
	return "backup.zip", m.backupErr
}

func (m *fakeMaintainer) PurgeBackups(_ context.Context, days int) (int, error) {
	m.purges++
	m.retention = days
	return 0, nil
}

func (m *fakeMaintainer) PurgeLog(_ context.Context, n int) error {
	m.logPurges++
	m.maxEntries = n
	return nil
}

func TestMaintenanceTask(t *testing.T) {
	m := &fakeMaintainer{backupErr: errors.New("disk full")}
	days, entries := 7, 500
	cnfg := &config.AppConfig{
		Database: config.AppConfigDatabase{BackupRetentionDays: &days},
		Logging:  config.AppConfigLogging{DbMaxEntries: &entries},
	}

	NewMaintenanceTask(discard, m, cnfg)()

	assert.Equal(t, 1, m.backups)
	assert.Equal(t, 1, m.purges, "a failed backup doesn't stop the purge")
	assert.Equal(t, 7, m.retention)
	assert.Equal(t, 500, m.maxEntries)
}

func TestTasksRunStartsImmediateUpdate(t *testing.T) {
	st := newFakeStore()
	p := &fakeProvider{name: "primary", prices: prices(1, 2)}
	disabled := false
	cnfg := &config.AppConfig{Backfill: config.AppConfigBackfill{Enabled: &disabled}}

	tasks := NewTasks(discard, st, &fakeMaintainer{}, []types.EnergyPriceProvider{p}, telemetry.Nop{}, cnfg)
	require.NoError(t, tasks.Run(context.Background()))
	t.Cleanup(func() { <-tasks.Stop().Done() })

	assert.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestTasksStopWaitsForImmediateUpdate(t *testing.T) {
	st := newFakeStore()
	p := &fakeProvider{name: "primary", prices: prices(1, 2), block: make(chan struct{})}
	disabled := false
	cnfg := &config.AppConfig{Backfill: config.AppConfigBackfill{Enabled: &disabled}}

	tasks := NewTasks(discard, st, &fakeMaintainer{}, []types.EnergyPriceProvider{p}, telemetry.Nop{}, cnfg)
	require.NoError(t, tasks.Run(context.Background()))
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := tasks.Stop()
	select {
	case <-stopped.Done():
		t.Fatal("stop finished while the startup update was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(p.block)
	select {
	case <-stopped.Done():
	case <-time.After(time.Second):
		t.Fatal("stop never finished")
	}
}

func TestTasksRunRejectsBadSchedule(t *testing.T) {
	spec := "every now and then"
	cnfg := &config.AppConfig{EnergyPrice: config.AppConfigEnergyPrice{RunAt: &spec}}

	tasks := NewTasks(discard, newFakeStore(), &fakeMaintainer{}, []types.EnergyPriceProvider{&fakeProvider{}}, telemetry.Nop{}, cnfg)
	assert.Error(t, tasks.Run(context.Background()))
}
