package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotFound is returned by GetJSON for 404 responses. Upstream price APIs
// answer 404 for days that aren't published yet.
var ErrNotFound = errors.New("not found")

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetry = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// Do sends the request built by buildReq, retrying with exponential backoff
// on transport errors and 5xx answers. buildReq is called once per attempt.
func Do(ctx context.Context, client *http.Client, cfg RetryConfig, buildReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetry.MaxAttempts
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetry.MaxDelay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1)), ctx)

	var (
		resp     *http.Response
		attempts int
		url      string
	)
	err := backoff.RetryNotify(
		func() error {
			attempts++
			req, err := buildReq(ctx)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("build request: %w", err))
			}
			url = req.URL.Redacted()

			r, err := client.Do(req)
			if err != nil {
				return err
			}
			if r.StatusCode >= 500 {
				body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
				r.Body.Close()
				return fmt.Errorf("HTTP %d: %s", r.StatusCode, string(body))
			}
			resp = r
			return nil
		},
		policy,
		func(err error, d time.Duration) {
			slog.Debug("request failed, retrying",
				slog.String("module", "httputil"),
				slog.String("url", url),
				slog.Int("attempt", attempts),
				slog.Duration("delay", d),
				slog.Any("error", err))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("all %d attempts failed, last error: %w", attempts, err)
	}
	return resp, nil
}

// GetJSON fetches url with Do and decodes the body into v.
func GetJSON(ctx context.Context, client *http.Client, cfg RetryConfig, url string, header http.Header, v any) error {
	resp, err := Do(ctx, client, cfg, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, vals := range header {
			for _, val := range vals {
				req.Header.Add(k, val)
			}
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, v)
}

func decode(resp *http.Response, v any) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// DecodeJSON checks the status of resp and decodes its body into v.
// The body is closed.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return decode(resp, v)
}
