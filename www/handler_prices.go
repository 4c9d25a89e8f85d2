package www

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/angas/elprice/convert"
	"github.com/angas/elprice/types"
)

type priceJSON struct {
	ID          string      `json:"id,omitempty"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Price       json.Number `json:"price"`
	Placeholder bool        `json:"placeholder,omitempty"`
}

func toPriceJSON(r types.PriceRecord) priceJSON {
	p := priceJSON{
		Start:       r.Start(),
		End:         r.End(),
		Price:       json.Number(r.Price.StringFixed(convert.PriceDecimals)),
		Placeholder: r.IsPlaceholder(),
	}
	if !r.IsPlaceholder() {
		p.ID = r.ID.String()
	}
	return p
}

// NewPricesHandler answers GET ?start=&end= with the prices of that window.
func NewPricesHandler(logger *slog.Logger, prices PriceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := parseWindow(r.URL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		records, err := prices.GetPricesForPeriod(r.Context(), start, end)
		if err != nil {
			logger.Error("handling prices request", slog.Any("error", err))
			http.Error(w, "failed to read prices", http.StatusInternalServerError)
			return
		}

		out := make([]priceJSON, len(records))
		for i, rec := range records {
			out[i] = toPriceJSON(rec)
		}
		writeJSON(w, logger, out)
	}
}
