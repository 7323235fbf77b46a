/*
Package generic provides the domain-agnostic primitives of the calculation engine.

PURPOSE:
  Severance and arrears calculations share the same building blocks: calendar
  dates walked month by month, decimal money rounded only when emitted, an
  audit trace of line items and a list of observations explaining every
  substitution or warning. These live here so the domain packages only carry
  legal rules.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal constants and emission rounding
  - Status: success / error discriminator on every result
  - LineItem: one traced computation (description, formula, rounded value)
  - Observation: a note attached to a result for the report renderer

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Round on emission: internal sums keep full precision; Round2 is applied
     only when a value leaves a calculator
  3. Auditability: every emitted figure has a LineItem with its formula

SEE ALSO:
  - time.go: TimePoint and month arithmetic
  - period.go: Period and calendar-aware spans
  - errors.go: Input / lookup / data-source error taxonomy
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal helpers
// =============================================================================

var (
	Twelve  = decimal.NewFromInt(12)
	Thirty  = decimal.NewFromInt(30)
	Hundred = decimal.NewFromInt(100)
)

// Round2 is the rounding applied to every monetary value at emission.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Round6 is the rounding applied to correction factors at emission.
func Round6(d decimal.Decimal) decimal.Decimal { return d.Round(6) }

// RateFactor converts a percentage rate (1.16 meaning 1.16%) into its
// multiplicative factor 1.0116.
func RateFactor(percent decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(percent.Div(Hundred))
}

// MustDecimal parses a literal. It panics on malformed input and is meant
// for package-level tables only.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DecimalPtr returns a pointer to d, for optional fields.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

// =============================================================================
// RESULT TRACE
// =============================================================================

// Status discriminates a successful result from an input error.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// LineItem is one audited computation step.
type LineItem struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Formula     string          `json:"formula"`
	Value       decimal.Decimal `json:"value"`
}

// Level classifies an observation for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Observation is a human-readable note attached to a result.
type Observation struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Observations is the ordered list of notes collected during a calculation.
type Observations []Observation

// Add appends a formatted observation.
func (o *Observations) Add(level Level, code, format string, args ...any) {
	*o = append(*o, Observation{Level: level, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Has reports whether an observation with the given code was recorded.
func (o Observations) Has(code string) bool {
	return o.Find(code) != nil
}

// Find returns the first observation with the given code, or nil.
func (o Observations) Find(code string) *Observation {
	for i := range o {
		if o[i].Code == code {
			return &o[i]
		}
	}
	return nil
}
