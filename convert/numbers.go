package convert

import (
	"math"

	"github.com/shopspring/decimal"
)

// Number of fractional digits a stored price carries.
const PriceDecimals = 2

func TwoDecimals(number float64) float64 {
	return RoundFloat64(number, 2)
}

func RoundFloat64(number float64, decimals int) float64 {
	return math.Round(number*math.Pow10(int(decimals))) / math.Pow10(int(decimals))
}

// Price turns an upstream float into a fixed point price.
func Price(number float64) decimal.Decimal {
	return decimal.NewFromFloat(number).Round(PriceDecimals)
}

// RoundPrice normalises a decimal to the stored precision.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PriceDecimals)
}

func KWh2MWh(perKWh float64) float64 {
	return perKWh * 1e3
}
