/*
Package reference holds the official historical values the calculators depend on.

PURPOSE:
  Minimum wage and the INSS benefit ceiling change by decree, sometimes more
  than once a year. Each is stored as a piecewise table keyed by
  (year, effective month). A lookup picks the last breakpoint of the date's year
  whose effective month is not after the date's month.

KEY RULES:
  - Years after the latest known year forward-fill the latest year's final
    breakpoint (a decree that has not been loaded yet keeps the last value).
  - Years before the earliest known year, or gaps, fail with a LookupError
    listing the available years.
  - Append is an administrative operation. It takes the writer lock, so it never
    interleaves with lookups, and it keeps each year sorted by effective month.

SEE ALSO:
  - defaults.go: Official history shipped with the binary
  - loader.go: YAML table files
  - arrears/detector.go: Swallows LookupError during detection
*/
package reference

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jurisflow/calc-engine/generic"
)

// Kind names one of the reference series.
type Kind string

const (
	KindMinimumWage    Kind = "minimum_wage"
	KindBenefitCeiling Kind = "benefit_ceiling"
)

// Label is the human-readable series name used in errors and messages.
func (k Kind) Label() string {
	switch k {
	case KindMinimumWage:
		return "minimum wage"
	case KindBenefitCeiling:
		return "INSS benefit ceiling"
	default:
		return string(k)
	}
}

// ParseKind validates a series name coming from an API or CLI.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMinimumWage, KindBenefitCeiling:
		return Kind(s), nil
	}
	return "", generic.NewInputError("kind", "unknown reference series %q (use %s or %s)",
		s, KindMinimumWage, KindBenefitCeiling)
}

// Breakpoint is a value that takes effect from Month onward within its year.
type Breakpoint struct {
	Month  time.Month      `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Table is the injected reference-data store. The zero value is not usable;
// build one with NewTable or DefaultTable.
type Table struct {
	mu      sync.RWMutex
	series  map[Kind]map[int][]Breakpoint
	version string
}

// NewTable creates an empty table.
func NewTable(version string) *Table {
	return &Table{
		series: map[Kind]map[int][]Breakpoint{
			KindMinimumWage:    {},
			KindBenefitCeiling: {},
		},
		version: version,
	}
}

// Version identifies the data set the table was built from.
func (t *Table) Version() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// =============================================================================
// LOOKUPS
// =============================================================================

// MinimumWage returns the national minimum wage in force at the given date.
func (t *Table) MinimumWage(at generic.TimePoint) (decimal.Decimal, error) {
	return t.Lookup(KindMinimumWage, at)
}

// BenefitCeiling returns the INSS benefit ceiling in force at the given date.
func (t *Table) BenefitCeiling(at generic.TimePoint) (decimal.Decimal, error) {
	return t.Lookup(KindBenefitCeiling, at)
}

// Lookup resolves a value of the given series at a date.
func (t *Table) Lookup(kind Kind, at generic.TimePoint) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookupLocked(kind, at)
}

func (t *Table) lookupLocked(kind Kind, at generic.TimePoint) (decimal.Decimal, error) {
	years, ok := t.series[kind]
	if !ok {
		return decimal.Zero, fmt.Errorf("reference: unknown series %q", kind)
	}

	breakpoints, ok := years[at.Year()]
	if !ok || len(breakpoints) == 0 {
		known := sortedYears(years)
		if len(known) > 0 && at.Year() > known[len(known)-1] {
			latest := years[known[len(known)-1]]
			return latest[len(latest)-1].Amount, nil
		}
		return decimal.Zero, &generic.LookupError{Table: kind.Label(), Year: at.Year(), Available: known}
	}

	// Before the first breakpoint of the year the first value still applies.
	value := breakpoints[0].Amount
	for _, bp := range breakpoints {
		if bp.Month > at.Month() {
			break
		}
		value = bp.Amount
	}
	return value, nil
}

// MinimumWageRange returns the minimum wage for every month of [start, end],
// keyed by "MM/YYYY".
func (t *Table) MinimumWageRange(start, end generic.TimePoint) (map[string]decimal.Decimal, error) {
	return t.Range(KindMinimumWage, start, end)
}

// BenefitCeilingRange returns the benefit ceiling for every month of [start, end].
func (t *Table) BenefitCeilingRange(start, end generic.TimePoint) (map[string]decimal.Decimal, error) {
	return t.Range(KindBenefitCeiling, start, end)
}

// Range resolves every month of [start, end] under a single read lock.
func (t *Table) Range(kind Kind, start, end generic.TimePoint) (map[string]decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]decimal.Decimal)
	for _, month := range (generic.Period{Start: start, End: end}).Months() {
		value, err := t.lookupLocked(kind, month)
		if err != nil {
			return nil, err
		}
		out[month.MonthLabel()] = value
	}
	return out, nil
}

// Years lists the years with explicit breakpoints, ascending.
func (t *Table) Years(kind Kind) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedYears(t.series[kind])
}

// Breakpoints returns a copy of one year's breakpoints.
func (t *Table) Breakpoints(kind Kind, year int) []Breakpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src := t.series[kind][year]
	out := make([]Breakpoint, len(src))
	copy(out, src)
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount the way Brazilian documents do, e.g. R$ 1.412,00.
func FormatBRL(amount decimal.Decimal) string {
	f, _ := generic.Round2(amount).Float64()
	return brl.Sprintf("R$ %.2f", f)
}

// Validate checks an amount against the floor (minimum wage) and, unless
// allowAboveCeiling is set, the ceiling in force at the date. The returned
// message explains a failed check.
func (t *Table) Validate(amount decimal.Decimal, at generic.TimePoint, allowAboveCeiling bool) (bool, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	floor, err := t.lookupLocked(KindMinimumWage, at)
	if err != nil {
		return false, "", err
	}
	ceiling, err := t.lookupLocked(KindBenefitCeiling, at)
	if err != nil {
		return false, "", err
	}

	if amount.LessThan(floor) {
		return false, fmt.Sprintf("benefit amount (%s) is below the minimum wage in force (%s)",
			FormatBRL(amount), FormatBRL(floor)), nil
	}
	if !allowAboveCeiling && amount.GreaterThan(ceiling) {
		return false, fmt.Sprintf("benefit amount (%s) is above the INSS benefit ceiling (%s)",
			FormatBRL(amount), FormatBRL(ceiling)), nil
	}
	return true, "benefit amount is valid", nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Append adds or replaces the breakpoint of (year, month) for a series.
func (t *Table) Append(kind Kind, year int, month time.Month, amount decimal.Decimal) error {
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	if month < time.January || month > time.December {
		return generic.NewInputError("month", "effective month must be between 1 and 12, got %d", month)
	}
	if year < 1900 {
		return generic.NewInputError("year", "year %d is out of range", year)
	}
	if !amount.IsPositive() {
		return generic.NewInputError("amount", "amount must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	years := t.series[kind]
	list := years[year]
	replaced := false
	for i := range list {
		if list[i].Month == month {
			list[i].Amount = amount
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, Breakpoint{Month: month, Amount: amount})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Month < list[j].Month })
	years[year] = list
	return nil
}

func sortedYears(years map[int][]Breakpoint) []int {
	out := make([]int, 0, len(years))
	for y, list := range years {
		if len(list) > 0 {
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out
}
