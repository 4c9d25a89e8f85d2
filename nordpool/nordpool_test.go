package nordpool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angas/elprice/hours"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dayAhead = `{
	"deliveryDateCET": "2024-03-10",
	"version": 3,
	"updatedAt": "2024-03-09T12:04:11.4529347Z",
	"deliveryAreas": ["SE4"],
	"market": "DayAhead",
	"currency": "SEK",
	"multiAreaEntries": [
		{"deliveryStart": "2024-03-09T23:00:00Z", "deliveryEnd": "2024-03-09T23:15:00Z", "entryPerArea": {"SE4": 410.5}},
		{"deliveryStart": "2024-03-09T23:15:00Z", "deliveryEnd": "2024-03-09T23:30:00Z", "entryPerArea": {"SE4": 420.5}},
		{"deliveryStart": "2024-03-09T23:30:00Z", "deliveryEnd": "2024-03-09T23:45:00Z", "entryPerArea": {"SE4": 430.5}},
		{"deliveryStart": "2024-03-09T23:45:00Z", "deliveryEnd": "2024-03-10T00:00:00Z", "entryPerArea": {"SE4": 440.5}},
		{"deliveryStart": "2024-03-10T00:00:00Z", "deliveryEnd": "2024-03-10T01:00:00Z", "entryPerArea": {"SE4": -3.17}},
		{"deliveryStart": "2024-03-10T01:00:00Z", "deliveryEnd": "2024-03-10T02:00:00Z", "entryPerArea": {"SE3": 1}}
	]
}`

func TestGetEnergyPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/DayAheadPrices", r.URL.Path)
		assert.Equal(t, "SE4", r.URL.Query().Get("deliveryArea"))
		assert.Equal(t, "SEK", r.URL.Query().Get("currency"))
		if r.URL.Query().Get("date") != "2024-03-10" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(dayAhead))
	}))
	defer srv.Close()

	n := New("SE4", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	from := hours.DateHour{Date: "2024-03-09", Hour: 12}
	to := hours.DateHour{Date: "2024-03-11", Hour: 0}

	prices, err := n.GetEnergyPrices(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.Equal(t, hours.DateHour{Date: "2024-03-09", Hour: 23}, prices[0].When)
	assert.Equal(t, "425.50", prices[0].Price.StringFixed(2))
	assert.Equal(t, "-3.17", prices[1].Price.StringFixed(2))
}

func TestGetEnergyPricesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	n := New("SE4", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	from := hours.DateHour{Date: "2024-03-09", Hour: 0}

	prices, err := n.GetEnergyPrices(context.Background(), from, from.Add(24))
	require.NoError(t, err)
	assert.Empty(t, prices)
}
