package www

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/database"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/telemetry"
	"github.com/angas/elprice/timeline"
	"github.com/angas/elprice/types"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type fakePrices struct {
	records    []types.PriceRecord
	err        error
	start, end time.Time
}

func (f *fakePrices) GetPricesForPeriod(_ context.Context, start, end time.Time) ([]types.PriceRecord, error) {
	f.start, f.end = start, end
	return f.records, f.err
}

type fakeLogs struct {
	minLvl         slog.Level
	page, pageSize int
}

func (f *fakeLogs) GetLogEntries(_ context.Context, minLvl slog.Level, page, pageSize int) ([]database.LogEntryRow, error) {
	f.minLvl, f.page, f.pageSize = minLvl, page, pageSize
	return []database.LogEntryRow{{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Level:     int(slog.LevelWarn),
		Message:   "careful",
		Attrs:     `[{"module":"store"}]`,
	}}, nil
}

type fakeCounter struct {
	n   int64
	err error
}

func (f fakeCounter) Count(context.Context) (int64, error) {
	return f.n, f.err
}

func newTestServer(t *testing.T, deps Deps) (*httptest.Server, *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(discard)
	go hub.Run(ctx)

	s := NewServer(discard, config.AppConfigApi{}, hub, deps)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, hub
}

func stored(date string, hour uint8, price string) types.PriceRecord {
	r := types.NewPriceRecord(hours.DateHour{Date: date, Hour: hour}, decimal.RequireFromString(price))
	r.ID = uuid.New()
	return r
}

func TestPricesHandler(t *testing.T) {
	store := &fakePrices{records: []types.PriceRecord{stored("2023-01-01", 5, "10")}}
	srv, _ := newTestServer(t, Deps{
		Timeline: timeline.NewService(discard, store),
		Store:    store,
	})

	resp, err := http.Get(srv.URL + "/prices?start=2023-01-01&end=2023-01-03")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 48)
	assert.Equal(t, 10.0, body[5]["price"])
	assert.NotEmpty(t, body[5]["id"])
	assert.Equal(t, "2023-01-01T05:00:00Z", body[5]["start"])
	assert.Equal(t, "2023-01-01T06:00:00Z", body[5]["end"])
	assert.Equal(t, true, body[0]["placeholder"])
	assert.Equal(t, 0.0, body[0]["price"])

	assert.Equal(t, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), store.end)
}

func TestPricesRawHandler(t *testing.T) {
	store := &fakePrices{records: []types.PriceRecord{stored("2023-01-01", 5, "10.5")}}
	srv, _ := newTestServer(t, Deps{Store: store})

	resp, err := http.Get(srv.URL + "/prices/raw?start=2023-01-01T00:00:00%2B01:00&end=2023-01-02T00:00:00Z")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := new(strings.Builder)
	_, err = io.Copy(raw, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), `"price":10.50`)
	assert.Equal(t, time.Date(2022, 12, 31, 23, 0, 0, 0, time.UTC), store.start.UTC())
}

func TestPricesHandlerErrors(t *testing.T) {
	store := &fakePrices{err: errors.New("database is locked")}
	srv, _ := newTestServer(t, Deps{Timeline: store, Store: store})

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing end", "/prices?start=2023-01-01", http.StatusBadRequest},
		{"bad start", "/prices?start=yesterday&end=2023-01-01", http.StatusBadRequest},
		{"store failure", "/prices?start=2023-01-01&end=2023-01-02", http.StatusInternalServerError},
		{"wrong method", "/prices", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			var err error
			if tt.name == "wrong method" {
				resp, err = http.Post(srv.URL+tt.query, "application/json", nil)
			} else {
				resp, err = http.Get(srv.URL + tt.query)
			}
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestLogHandler(t *testing.T) {
	logs := &fakeLogs{}
	srv, _ := newTestServer(t, Deps{Logs: logs})

	resp, err := http.Get(srv.URL + "/log?page=2&pageSize=10&level=warn")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body []logEntryJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "WARN", body[0].Level)
	assert.Equal(t, 2, logs.page)
	assert.Equal(t, 10, logs.pageSize)
	assert.Equal(t, slog.LevelWarn, logs.minLvl)
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Counter: fakeCounter{n: 7}})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, healthJSON{Status: "ok", Prices: 7}, body)

	srv, _ = newTestServer(t, Deps{Counter: fakeCounter{err: errors.New("down")}})
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocketReceivesEvents(t *testing.T) {
	srv, hub := newTestServer(t, Deps{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), telemetry.Event{Kind: telemetry.KindIngest, Ingested: 24})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e telemetry.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, telemetry.KindIngest, e.Kind)
	assert.Equal(t, int64(24), e.Ingested)
}

func TestHubPublishAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(discard)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.NotPanics(t, func() {
		hub.Publish(context.Background(), telemetry.Event{Kind: telemetry.KindBackfill})
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2023-01-02", time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"2023-01-02T05:00:00Z", time.Date(2023, 1, 2, 5, 0, 0, 0, time.UTC), false},
		{"2023-01-02T05:00:00+01:00", time.Date(2023, 1, 2, 4, 0, 0, 0, time.UTC), false},
		{"02/01/2023", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
