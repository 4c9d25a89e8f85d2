package nordpool

import "time"

// dayAheadPrices is the answer of the Nord Pool data portal DayAheadPrices
// endpoint. Prices are per MWh.
type dayAheadPrices struct {
	DeliveryDateCET  string      `json:"deliveryDateCET"`
	Version          int         `json:"version"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	DeliveryAreas    []string    `json:"deliveryAreas"`
	Market           string      `json:"market"`
	Currency         string      `json:"currency"`
	MultiAreaEntries []areaEntry `json:"multiAreaEntries"`
}

type areaEntry struct {
	DeliveryStart time.Time          `json:"deliveryStart"`
	DeliveryEnd   time.Time          `json:"deliveryEnd"`
	EntryPerArea  map[string]float64 `json:"entryPerArea"`
}
