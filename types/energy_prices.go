package types

import (
	"context"
	"time"

	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/types/maybe"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceRecord is the price of a single hour slot. The end of the slot is
// always one hour after its start and can't be set on its own.
type PriceRecord struct {
	ID        uuid.UUID // uuid.Nil for records that were never persisted
	When      hours.DateHour
	Price     decimal.Decimal // Price per MWh, two decimals
	CreatedAt time.Time
	UpdatedAt maybe.Maybe[time.Time]
}

func NewPriceRecord(when hours.DateHour, price decimal.Decimal) PriceRecord {
	return PriceRecord{When: when, Price: price}
}

func (r PriceRecord) Start() time.Time {
	return r.When.Time()
}

func (r PriceRecord) End() time.Time {
	return r.When.Time().Add(time.Hour)
}

// IsPlaceholder reports whether the record was synthesized to fill a gap.
func (r PriceRecord) IsPlaceholder() bool {
	return r.ID == uuid.Nil
}

// EnergyPriceProvider fetches hourly prices for slots in [from, to).
type EnergyPriceProvider interface {
	Name() string
	GetEnergyPrices(ctx context.Context, from, to hours.DateHour) ([]PriceRecord, error)
}
