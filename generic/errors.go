/*
errors.go - Centralized error types for the calculation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these so callers can classify failures with
  errors.Is / errors.As regardless of which component raised them.

ERROR CATEGORIES:
  1. Input errors - required facts missing or out of range. The only class
     that aborts a calculation; calculators turn it into status=error.
  2. Lookup errors - a reference table has no data for the requested year.
     Surfaced to table callers; heuristics absorb it.
  3. Data-source errors - the official index series could not be fetched.
     Never leaves the index provider; it falls back deterministically.

USAGE:
    if generic.IsInputError(err) {
        return errorResult(err)
    }

SEE ALSO:
  - reference/table.go: Returns LookupError
  - index/sgs.go: Returns DataSourceError
  - severance, arrears: Return InputError as error-status results
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInput is returned when case facts are missing or out of range.
	ErrInput = errors.New("invalid input")

	// ErrLookup is returned when a reference table cannot resolve a date.
	ErrLookup = errors.New("reference lookup failed")

	// ErrDataSource is returned when an external series cannot be fetched.
	ErrDataSource = errors.New("data source unavailable")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputError names the offending field and a human-readable reason.
type InputError struct {
	Field  string
	Reason string
}

func NewInputError(field, format string, args ...any) *InputError {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *InputError) Error() string {
	return e.Reason
}

func (e *InputError) Unwrap() error {
	return ErrInput
}

// LookupError lists the years a reference table actually knows.
type LookupError struct {
	Table     string
	Year      int
	Available []int
}

func (e *LookupError) Error() string {
	years := make([]string, len(e.Available))
	for i, y := range e.Available {
		years[i] = fmt.Sprint(y)
	}
	return fmt.Sprintf("no %s data for year %d; available years: [%s]",
		e.Table, e.Year, strings.Join(years, ", "))
}

func (e *LookupError) Unwrap() error {
	return ErrLookup
}

// DataSourceError wraps the transport or decoding failure of a series fetch.
type DataSourceError struct {
	Source string
	Series string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s series %s: %v", e.Source, e.Series, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *DataSourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDataSource}
	}
	return []error{ErrDataSource, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInputError returns true if the error is due to invalid case facts.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInput)
}

// IsLookupError returns true if a reference table could not resolve a date.
func IsLookupError(err error) bool {
	return errors.Is(err, ErrLookup)
}

// IsDataSourceError returns true if an external series fetch failed.
func IsDataSourceError(err error) bool {
	return errors.Is(err, ErrDataSource)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
