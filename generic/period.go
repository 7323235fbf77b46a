package generic

import "github.com/shopspring/decimal"

// =============================================================================
// PERIOD - Inclusive date range walked month by month
// =============================================================================

// Period is an inclusive date range [Start, End].
//
// Examples:
//   - Employment contract: admission date - termination date
//   - Benefit arrears: DIB - DIP
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Months returns the first day of every calendar month from Start's month
// through End's month, inclusive. A period whose end precedes its start
// yields nothing.
func (p Period) Months() []TimePoint {
	var months []TimePoint
	current := p.Start.MonthStart()
	for current.BeforeOrEqual(p.End) {
		months = append(months, current)
		current = current.AddMonths(1)
	}
	return months
}

// Years returns every civil year the period touches, in ascending order.
func (p Period) Years() []int {
	var years []int
	for y := p.Start.Year(); y <= p.End.Year(); y++ {
		years = append(years, y)
	}
	return years
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// CALENDAR SPAN - Years/months/days between two dates
// =============================================================================

// CalendarSpan is a calendar-aware difference between two dates. Months are
// whole calendar months (not 30-day blocks); Days is whatever remains after
// stepping the whole months forward from the earlier date.
type CalendarSpan struct {
	Years  int `json:"years"`
	Months int `json:"months"`
	Days   int `json:"days"`
}

// CalendarDiff computes the span from `from` to `to`. Month steps clamp to
// the end of shorter months, so 2024-01-31 -> 2024-02-29 is exactly one month.
// A `to` before `from` produces a negative span.
func CalendarDiff(from, to TimePoint) CalendarSpan {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	anchor := from.AddMonths(months)
	if to.Before(from) {
		for to.After(anchor) {
			months++
			anchor = from.AddMonths(months)
		}
	} else {
		for to.Before(anchor) {
			months--
			anchor = from.AddMonths(months)
		}
	}
	return CalendarSpan{
		Years:  months / 12,
		Months: months % 12,
		Days:   DaysBetween(anchor, to),
	}
}

// WholeMonths returns years*12 + months.
func (s CalendarSpan) WholeMonths() int {
	return s.Years*12 + s.Months
}

// TotalMonths converts the span to fractional months: leftover days count as
// days/30 of a month. Negative leftover days are ignored.
func (s CalendarSpan) TotalMonths() decimal.Decimal {
	total := decimal.NewFromInt(int64(s.WholeMonths()))
	if s.Days > 0 {
		total = total.Add(decimal.NewFromInt(int64(s.Days)).Div(Thirty))
	}
	return total
}
