package elprisetjustnu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/angas/elprice/calc"
	"github.com/angas/elprice/convert"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/httputil"
	"github.com/angas/elprice/slice"
	"github.com/angas/elprice/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const defaultBaseURL = "https://www.elprisetjustnu.se"

type rawPrice struct {
	SEKPerKWh float64   `json:"SEK_per_kWh"`
	EURPerKWh float64   `json:"EUR_per_kWh"`
	EXR       float64   `json:"EXR"`
	TimeStart time.Time `json:"time_start"`
	TimeEnd   time.Time `json:"time_end"`
}

type ElPrisetJustNu struct {
	area    string
	baseURL string
	client  *http.Client
	retry   httputil.RetryConfig
	workers int
}

type Option func(*ElPrisetJustNu)

func WithBaseURL(url string) Option {
	return func(e *ElPrisetJustNu) { e.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *ElPrisetJustNu) { e.client = c }
}

func WithRetry(cfg httputil.RetryConfig) Option {
	return func(e *ElPrisetJustNu) { e.retry = cfg }
}

// WithWorkers limits how many days are fetched at the same time.
func WithWorkers(n int) Option {
	return func(e *ElPrisetJustNu) { e.workers = n }
}

func New(area string, opts ...Option) ElPrisetJustNu {
	e := ElPrisetJustNu{
		area:    area,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   httputil.DefaultRetry,
		workers: 4,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e ElPrisetJustNu) Name() string {
	return "elprisetjustnu"
}

// GetEnergyPrices returns hourly prices per MWh for the slots in [from, to).
// Days that aren't published yet are left out.
func (e ElPrisetJustNu) GetEnergyPrices(ctx context.Context, from, to hours.DateHour) ([]types.PriceRecord, error) {
	if !from.Before(to) {
		return []types.PriceRecord{}, nil
	}

	days := hours.CalendarDays(from.Time(), to.Time())
	perDay := make([][]calc.Sample, len(days))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.workers, 1))
	for i, day := range days {
		g.Go(func() error {
			samples, err := e.getEnergyPrices(ctx, day)
			if err != nil {
				return fmt.Errorf("failed to fetch prices for %s: %w", day.Format("2006-01-02"), err)
			}
			perDay[i] = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var samples []calc.Sample
	for _, s := range perDay {
		samples = append(samples, s...)
	}

	return slice.Filter(calc.HourlyAverage(samples), func(r types.PriceRecord) bool {
		return !r.When.Before(from) && r.When.Before(to)
	}), nil
}

func (e ElPrisetJustNu) getEnergyPrices(ctx context.Context, day time.Time) ([]calc.Sample, error) {
	url := fmt.Sprintf("%s/api/v1/prices/%d/%02d-%02d_%s.json",
		e.baseURL, day.Year(), int(day.Month()), day.Day(), e.area)

	var rawPrices []rawPrice
	err := httputil.GetJSON(ctx, e.client, e.retry, url, nil, &rawPrices)
	if errors.Is(err, httputil.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return slice.Map(rawPrices, func(raw rawPrice) calc.Sample {
		return calc.Sample{
			At:    raw.TimeStart,
			Price: decimal.NewFromFloat(convert.KWh2MWh(raw.SEKPerKWh)),
		}
	}), nil
}
