package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/types"
	"github.com/shopspring/decimal"
)

// Backend is the persistence a Store reads and writes through.
type Backend interface {
	IsDuplicate(ctx context.Context, start, end time.Time) (bool, error)
	// InsertPrices stores records in one transaction, skipping slots that
	// already exist, and returns how many rows were added.
	InsertPrices(ctx context.Context, records []types.PriceRecord) (int64, error)
	GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error)
	LatestPriceHour(ctx context.Context) (hours.DateHour, bool, error)
	UpdatePrice(ctx context.Context, when hours.DateHour, price decimal.Decimal) (bool, error)
	CountPrices(ctx context.Context) (int64, error)
}

type Store struct {
	logger  *slog.Logger
	backend Backend
	cache   *RangeCache
}

// New creates a store. A nil cache reads straight from the backend.
func New(logger *slog.Logger, backend Backend, cache *RangeCache) *Store {
	return &Store{
		logger:  logger.With(slog.String("module", "store")),
		backend: backend,
		cache:   cache,
	}
}

// IsDuplicate reports whether the exact (start, end) slot is stored. A
// failing lookup is logged and reported as not stored, the unique slot
// constraint still rejects the row on insert.
func (s *Store) IsDuplicate(ctx context.Context, start, end time.Time) bool {
	dup, err := s.backend.IsDuplicate(ctx, start, end)
	if err != nil {
		s.logger.Error("duplicate check failed",
			slog.Time("start", start),
			slog.Time("end", end),
			slog.Any("error", err))
		return false
	}
	return dup
}

// AddRange inserts all records as a single unit of work.
func (s *Store) AddRange(ctx context.Context, records []types.PriceRecord) (res AddResult) {
	if len(records) == 0 {
		s.logger.Debug("nothing to add")
		return AddResult{Status: AddEmpty}
	}

	defer func() {
		if r := recover(); r != nil {
			res = AddResult{Status: AddFailed, Err: fmt.Errorf("panic while adding prices: %v", r)}
			s.logger.Error("adding prices failed", slog.Any("error", res.Err))
		}
	}()

	inserted, err := s.backend.InsertPrices(ctx, records)
	if err != nil {
		s.logger.Error("adding prices failed",
			slog.Int("records", len(records)),
			slog.Any("error", err))
		return AddResult{Status: AddFailed, Err: err}
	}

	if inserted == 0 {
		s.logger.Info("all prices already stored", slog.Int("records", len(records)))
		return AddResult{Status: AddDuplicate}
	}

	from, to := span(records)
	s.cache.Invalidate(from, to)

	s.logger.Info("prices added",
		slog.Int64("inserted", inserted),
		slog.Int("records", len(records)))
	return AddResult{Status: AddInserted, Inserted: inserted}
}

// GetPricesForPeriod returns stored records with a start in [start, end),
// ordered by start. An empty window never reaches storage.
func (s *Store) GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error) {
	if !start.Before(end) {
		return []types.PriceRecord{}, nil
	}

	records, err := s.cache.Load(ctx, start, end, s.backend.GetPricesForPeriod)
	if err != nil {
		return nil, fmt.Errorf("get prices for period: %w", err)
	}
	return records, nil
}

// LatestHour is the newest stored slot, false when nothing is stored.
func (s *Store) LatestHour(ctx context.Context) (hours.DateHour, bool, error) {
	dh, ok, err := s.backend.LatestPriceHour(ctx)
	if err != nil {
		return hours.DateHour{}, false, fmt.Errorf("latest stored hour: %w", err)
	}
	return dh, ok, nil
}

// UpdatePrice corrects the price of an already stored slot.
func (s *Store) UpdatePrice(ctx context.Context, when hours.DateHour, price decimal.Decimal) (bool, error) {
	updated, err := s.backend.UpdatePrice(ctx, when, price)
	if err != nil {
		return false, fmt.Errorf("update price: %w", err)
	}
	if updated {
		s.cache.Invalidate(when.Time(), when.Add(1).Time())
		s.logger.Info("price updated", slog.String("hour", when.String()), slog.String("price", price.StringFixed(2)))
	}
	return updated, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.backend.CountPrices(ctx)
	if err != nil {
		return 0, fmt.Errorf("count prices: %w", err)
	}
	return n, nil
}

func span(records []types.PriceRecord) (time.Time, time.Time) {
	from, to := records[0].Start(), records[0].End()
	for _, r := range records[1:] {
		if r.Start().Before(from) {
			from = r.Start()
		}
		if r.End().After(to) {
			to = r.End()
		}
	}
	return from, to
}
