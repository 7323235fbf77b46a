package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date used by every calculation (day granularity)
// =============================================================================

// TimePoint is a calendar date in UTC. Calculations never look at the clock
// time, only at year, month and day.
type TimePoint struct {
	Time time.Time
}

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "01/2006"
)

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// ParseDate accepts ISO dates (2024-01-31), ISO timestamps (only the date part
// is kept) and the Brazilian dd/mm/yyyy form that shows up in extracted text.
func ParseDate(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimePoint{}, fmt.Errorf("empty date")
	}
	if len(s) > len(DateLayout) && s[4] == '-' {
		s = s[:len(DateLayout)]
	}
	for _, layout := range []string{DateLayout, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), nil
		}
	}
	return TimePoint{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// SameMonth reports whether both dates fall in the same calendar month.
func (tp TimePoint) SameMonth(other TimePoint) bool {
	return tp.Year() == other.Year() && tp.Month() == other.Month()
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// AddMonths moves n calendar months, clamping the day to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29). time.AddDate would overflow into
// the following month instead.
func (tp TimePoint) AddMonths(n int) TimePoint {
	total := int(tp.Month()) - 1 + n
	year := tp.Year() + floorDiv(total, 12)
	month := time.Month(total-floorDiv(total, 12)*12 + 1)
	day := tp.Day()
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return NewTimePoint(year, month, day)
}

func (tp TimePoint) AddYears(n int) TimePoint { return tp.AddMonths(12 * n) }

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

// MonthStart truncates the date to the first day of its month.
func (tp TimePoint) MonthStart() TimePoint { return StartOfMonth(tp.Year(), tp.Month()) }

// MonthLabel returns the competence label used as the key of monthly tables, e.g. "03/2024".
func (tp TimePoint) MonthLabel() string { return tp.Time.Format(MonthLayout) }

func (tp TimePoint) String() string { return tp.Time.Format(DateLayout) }

// MarshalJSON renders the date as "YYYY-MM-DD".
func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + tp.String() + `"`), nil
}

// UnmarshalJSON accepts any form ParseDate accepts; null and "" leave the zero value.
func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// CLOCK - Injectable "today" for calculations that default an end date
// =============================================================================

// Clock supplies the current date.
type Clock interface {
	Today() TimePoint
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Today() TimePoint { return Today() }

// FixedClock always returns the same date. Used by tests and replays.
type FixedClock TimePoint

func (c FixedClock) Today() TimePoint { return TimePoint(c) }

// =============================================================================
// TIME UTILITIES
// =============================================================================
// Note: Period and calendar differences are defined in period.go

func DaysBetween(from, to TimePoint) int { return int(to.Time.Sub(from.Time).Hours() / 24) }
func StartOfYear(year int) TimePoint     { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint       { return NewTimePoint(year, time.December, 31) }
func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }
func EndOfMonth(year int, month time.Month) TimePoint {
	return NewTimePoint(year, month, DaysInMonth(year, month))
}

// DaysInMonth returns the number of days of the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseMonthLabel parses a "MM/YYYY" label back to the first day of that month.
func ParseMonthLabel(label string) (TimePoint, error) {
	t, err := time.Parse(MonthLayout, label)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid month label %q: expected MM/YYYY", label)
	}
	return FromTime(t), nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
