package tibber

import (
	"context"
	"fmt"
	"time"

	"github.com/angas/elprice/calc"
	"github.com/angas/elprice/convert"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/slice"
	"github.com/angas/elprice/types"
	"github.com/shopspring/decimal"
)

type priceInfo struct {
	StartsAt string  `json:"startsAt"`
	Energy   float64 `json:"energy"`
	Tax      float64 `json:"tax"`
}

type priceInfoResponse struct {
	CurrentSubscription struct {
		PriceInfo struct {
			Today    []priceInfo `json:"today"`
			Tomorrow []priceInfo `json:"tomorrow"`
		} `json:"priceInfo"`
	} `json:"currentSubscription"`
}

func (t *Tibber) Name() string {
	return "tibber"
}

// GetEnergyPrices only knows about today and tomorrow, anything else in
// [from, to) is left out. The energy part of the price is used, per MWh.
func (t *Tibber) GetEnergyPrices(ctx context.Context, from, to hours.DateHour) ([]types.PriceRecord, error) {
	if !from.Before(to) {
		return []types.PriceRecord{}, nil
	}

	query := `
		currentSubscription {
			priceInfo {
				today { startsAt energy tax }
				tomorrow { startsAt energy tax }
			}
		}`

	body, err := doQuery[priceInfoResponse](ctx, t, query)
	if err != nil {
		return nil, fmt.Errorf("tibber price query: %w", err)
	}

	info := body.Data.Viewer.Home.CurrentSubscription.PriceInfo
	todayAndTomorrow := append(info.Today, info.Tomorrow...)

	samples := make([]calc.Sample, 0, len(todayAndTomorrow))
	for _, price := range todayAndTomorrow {
		startsAt, err := time.Parse(time.RFC3339, price.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("parsing startsAt %q: %w", price.StartsAt, err)
		}
		samples = append(samples, calc.Sample{
			At:    startsAt,
			Price: decimal.NewFromFloat(convert.KWh2MWh(price.Energy)),
		})
	}

	return slice.Filter(calc.HourlyAverage(samples), func(r types.PriceRecord) bool {
		return !r.When.Before(from) && r.When.Before(to)
	}), nil
}
