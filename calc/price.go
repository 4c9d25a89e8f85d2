package calc

import (
	"slices"
	"time"

	"github.com/angas/elprice/convert"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/types"
	"github.com/shopspring/decimal"
)

// A Sample is one upstream price point, which may cover less than an hour.
type Sample struct {
	At    time.Time
	Price decimal.Decimal
}

// HourlyAverage groups samples by hour slot and averages each group.
// The result is ordered by slot.
func HourlyAverage(samples []Sample) []types.PriceRecord {
	type acc struct {
		sum   decimal.Decimal
		count int64
	}

	order := make([]hours.DateHour, 0, len(samples)/4+1)
	groups := make(map[hours.DateHour]*acc)
	for _, s := range samples {
		dh := hours.FromTime(s.At)
		a, ok := groups[dh]
		if !ok {
			a = &acc{}
			groups[dh] = a
			order = append(order, dh)
		}
		a.sum = a.sum.Add(s.Price)
		a.count++
	}

	result := make([]types.PriceRecord, 0, len(order))
	for _, dh := range order {
		a := groups[dh]
		avg := a.sum.Div(decimal.NewFromInt(a.count))
		result = append(result, types.NewPriceRecord(dh, convert.RoundPrice(avg)))
	}

	slices.SortFunc(result, func(a, b types.PriceRecord) int {
		return a.When.Compare(b.When)
	})
	return result
}
