package nordpool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/angas/elprice/calc"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/httputil"
	"github.com/angas/elprice/slice"
	"github.com/angas/elprice/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const defaultBaseURL = "https://dataportal-api.nordpoolgroup.com"

type Nordpool struct {
	area     string
	currency string
	baseURL  string
	client   *http.Client
	retry    httputil.RetryConfig
	workers  int
}

type Option func(*Nordpool)

func WithBaseURL(url string) Option {
	return func(n *Nordpool) { n.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Nordpool) { n.client = c }
}

func WithRetry(cfg httputil.RetryConfig) Option {
	return func(n *Nordpool) { n.retry = cfg }
}

func WithWorkers(workers int) Option {
	return func(n *Nordpool) { n.workers = workers }
}

func WithCurrency(currency string) Option {
	return func(n *Nordpool) { n.currency = currency }
}

func New(area string, opts ...Option) Nordpool {
	n := Nordpool{
		area:     area,
		currency: "SEK",
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		retry:    httputil.DefaultRetry,
		workers:  4,
	}
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

func (n Nordpool) Name() string {
	return "nordpool"
}

func (n Nordpool) GetEnergyPrices(ctx context.Context, from, to hours.DateHour) ([]types.PriceRecord, error) {
	if !from.Before(to) {
		return []types.PriceRecord{}, nil
	}

	days := hours.CalendarDays(from.Time(), to.Time())
	perDay := make([][]calc.Sample, len(days))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(n.workers, 1))
	for i, day := range days {
		g.Go(func() error {
			samples, err := n.getEnergyPrices(ctx, day)
			if err != nil {
				return fmt.Errorf("failed to fetch prices from nordpool for %s: %w", day.Format("2006-01-02"), err)
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

func (n Nordpool) getEnergyPrices(ctx context.Context, date time.Time) ([]calc.Sample, error) {
	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	q.Set("market", "DayAhead")
	q.Set("deliveryArea", n.area)
	q.Set("currency", n.currency)
	u := n.baseURL + "/api/DayAheadPrices?" + q.Encode()

	var data dayAheadPrices
	err := httputil.GetJSON(ctx, n.client, n.retry, u, nil, &data)
	if errors.Is(err, httputil.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	samples := make([]calc.Sample, 0, len(data.MultiAreaEntries))
	for _, entry := range data.MultiAreaEntries {
		price, ok := entry.EntryPerArea[n.area]
		if !ok {
			continue
		}
		samples = append(samples, calc.Sample{
			At:    entry.DeliveryStart,
			Price: decimal.NewFromFloat(price),
		})
	}
	return samples, nil
}
