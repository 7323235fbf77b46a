package index

import (
	"github.com/shopspring/decimal"

	"github.com/jurisflow/calc-engine/generic"
)

// FallbackVersion identifies the fallback rates below. Bump it whenever a band
// changes so stored results remain traceable.
const FallbackVersion = "2024.1"

var (
	fallbackUpTo2023 = decimal.RequireFromString("1.08")
	fallback2024     = decimal.RequireFromString("0.92")
	fallbackLater    = decimal.RequireFromString("0.90")
)

// FallbackRate returns the flat monthly rate (percent) used for a year when the
// official series is unavailable.
func FallbackRate(year int) decimal.Decimal {
	switch {
	case year <= 2023:
		return fallbackUpTo2023
	case year == 2024:
		return fallback2024
	default:
		return fallbackLater
	}
}

// FallbackRates covers every month of the period with its year's flat rate.
func FallbackRates(p generic.Period) map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal)
	for _, month := range p.Months() {
		rates[month.MonthLabel()] = FallbackRate(month.Year())
	}
	return rates
}
