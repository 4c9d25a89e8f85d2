package timeline

import (
	"slices"
	"time"

	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/types"
	"github.com/shopspring/decimal"
)

type options struct {
	includeEndDate bool
}

type Option func(*options)

// IncludeEndDate also fills the hours of end's own calendar day. Without it
// the walk stops at midnight of end's date.
func IncludeEndDate() Option {
	return func(o *options) {
		o.includeEndDate = true
	}
}

// Complete returns one record per hour for every calendar day from start's
// date up to end's date, ordered by slot. Days are UTC calendar dates, the
// same naive wall clock the slots are stored in, so a request given in another
// zone is walked on its UTC date. Hours missing from records are filled with
// zero priced placeholders that have no ID. Records for the same slot are only
// kept once, records outside the walked days are dropped.
func Complete(records []types.PriceRecord, start, end time.Time, opts ...Option) []types.PriceRecord {
	if !start.Before(end) {
		return []types.PriceRecord{}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	days := hours.DaysBetween(start, end)
	if o.includeEndDate {
		days++
	}

	first := hours.StartOfDay(start)
	last := first.AddDate(0, 0, days)

	existing := make(map[hours.DateHour]struct{}, len(records))
	result := make([]types.PriceRecord, 0, days*24)
	for _, r := range records {
		if r.Start().Before(first) || !r.Start().Before(last) {
			continue
		}
		if _, ok := existing[r.When]; ok {
			continue
		}
		existing[r.When] = struct{}{}
		result = append(result, r)
	}

	for d := 0; d < days; d++ {
		midnight := first.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			slot := hours.FromTime(midnight.Add(time.Duration(h) * time.Hour))
			if _, ok := existing[slot]; ok {
				continue
			}
			result = append(result, types.NewPriceRecord(slot, decimal.Zero))
		}
	}

	slices.SortStableFunc(result, func(a, b types.PriceRecord) int {
		return a.When.Compare(b.When)
	})
	return result
}
