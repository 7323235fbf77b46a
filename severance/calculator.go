/*
Package severance computes labor-termination amounts (verbas rescisórias).

PURPOSE:
  Turns LaborFacts into an auditable estimate of what the employer owes:
  severance fund deposits (FGTS) and its 40% penalty, indemnified notice,
  proportional vacation with the constitutional third, proportional thirteenth
  salary, and the CLT Art. 477 / Art. 467 penalties.

KEY RULES:
  - Service time is calendar-aware (whole months stepped on the calendar);
    leftover days count as days/30 of a month.
  - Every item uses the base salary. Only the Art. 477 penalty uses the full
    remuneration (salary + allowances).
  - The 40% penalty is always derived from 8% × salary × months, whether or not
    the fund itself was requested.
  - Values are rounded to cents when emitted. The grand total is the sum of the
    rounded subtotal and the rounded penalties it documents.

ERRORS:
  Missing dates and a missing or non-positive salary are the only input
  errors. They produce Status=error with zero totals.

SEE ALSO:
  - facts/facts.go: LaborFacts and the requested-item vocabulary
  - generic/period.go: CalendarDiff
*/
package severance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jurisflow/calc-engine/facts"
	"github.com/jurisflow/calc-engine/generic"
)

// Line item codes. Items reuse the requested-item vocabulary.
const (
	CodeLatePaymentPenalty = "multa_477"
	CodeUncontestedPenalty = "multa_467"
)

// Observation codes.
const (
	ObsLatePaymentPenalty = "late_payment_penalty"
	ObsUncontestedPenalty = "uncontested_penalty"
	ObsShortService       = "short_service"
	ObsAllowances         = "allowances_included"
	ObsForCause           = "for_cause_termination"
	ObsNotCalculated      = "items_not_calculated"
)

var (
	fgtsRate         = decimal.RequireFromString("0.08")
	fgtsPenaltyRate  = decimal.RequireFromString("0.40")
	uncontestedRate  = decimal.RequireFromString("0.50")
	vacationBonusNum = decimal.NewFromInt(4)
	vacationBonusDen = decimal.NewFromInt(3)
)

// ServiceTime is the employment length.
type ServiceTime struct {
	generic.CalendarSpan
	TotalMonths decimal.Decimal `json:"total_months"`
}

// Result is the immutable outcome of a severance calculation.
type Result struct {
	Status             generic.Status       `json:"status"`
	Error              string               `json:"error,omitempty"`
	ServiceTime        *ServiceTime         `json:"service_time,omitempty"`
	BaseSalary         decimal.Decimal      `json:"base_salary"`
	RemunerationBase   decimal.Decimal      `json:"remuneration_base"`
	Items              []generic.LineItem   `json:"items"`
	Penalties          []generic.LineItem   `json:"penalties"`
	Subtotal           decimal.Decimal      `json:"subtotal"`
	LatePaymentPenalty decimal.Decimal      `json:"late_payment_penalty"`
	UncontestedPenalty decimal.Decimal      `json:"uncontested_penalty"`
	GrandTotal         decimal.Decimal      `json:"grand_total"`
	Observations       generic.Observations `json:"observations"`
	RequestedItems     []string             `json:"requested_items"`
	NotCalculated      []string             `json:"not_calculated,omitempty"`
	CalculatedOn       generic.TimePoint    `json:"calculated_on"`
}

// Item returns the line item with the given code, or nil.
func (r Result) Item(code string) *generic.LineItem {
	for i := range r.Items {
		if r.Items[i].Code == code {
			return &r.Items[i]
		}
	}
	return nil
}

// Calculator computes severance. It is stateless apart from its clock.
type Calculator struct {
	clock generic.Clock
}

// NewCalculator creates a calculator. A nil clock reads the wall clock.
func NewCalculator(clock generic.Clock) *Calculator {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Calculator{clock: clock}
}

// Compute runs a calculation with the wall clock.
func Compute(f facts.LaborFacts) Result {
	return NewCalculator(nil).Compute(f)
}

// Compute runs the calculation. It never panics on documented failures.
func (c *Calculator) Compute(f facts.LaborFacts) Result {
	if err := validate(f); err != nil {
		return errorResult(f, err, c.clock.Today())
	}

	salary := *f.BaseSalary
	remuneration := salary.Add(f.Allowances.Total())

	span := generic.CalendarDiff(*f.AdmissionDate, *f.TerminationDate)
	months := span.TotalMonths()
	// Months of the current (last) year: months mod 12, never above 12.
	yearMonths := months.Mod(generic.Twelve)
	if yearMonths.GreaterThan(generic.Twelve) {
		yearMonths = generic.Twelve
	}

	res := Result{
		Status:           generic.StatusSuccess,
		ServiceTime:      &ServiceTime{CalendarSpan: span, TotalMonths: generic.Round2(months)},
		BaseSalary:       generic.Round2(salary),
		RemunerationBase: generic.Round2(remuneration),
		Items:            []generic.LineItem{},
		Penalties:        []generic.LineItem{},
		RequestedItems:   requestedOrEmpty(f.RequestedItems),
		CalculatedOn:     c.clock.Today(),
	}

	subtotal := decimal.Zero
	add := func(code, description, formula string, value decimal.Decimal) {
		subtotal = subtotal.Add(value)
		res.Items = append(res.Items, generic.LineItem{
			Code:        code,
			Description: description,
			Formula:     formula,
			Value:       generic.Round2(value),
		})
	}

	fund := salary.Mul(fgtsRate).Mul(months)
	if f.Requests(facts.ItemFGTS) {
		add(facts.ItemFGTS, "Estimated FGTS deposits (8% × salary × months)",
			fmt.Sprintf("%s × 0.08 × %s", money(salary), months.StringFixed(2)), fund)
	}
	if f.Requests(facts.ItemFGTSPenalty) {
		add(facts.ItemFGTSPenalty, "40% penalty on FGTS (dismissal without cause)",
			fmt.Sprintf("(%s × 0.08 × %s) × 0.40 = %s × 0.40", money(salary), months.StringFixed(2), money(fund)),
			fund.Mul(fgtsPenaltyRate))
	}
	if f.Requests(facts.ItemNoticePeriod) {
		add(facts.ItemNoticePeriod, "Indemnified notice period (one base salary)",
			money(salary), salary)
	}
	if f.Requests(facts.ItemProportionalVacation) {
		add(facts.ItemProportionalVacation, "Proportional vacation plus constitutional one-third",
			fmt.Sprintf("(%s / 12 × %s) × 4/3", money(salary), yearMonths.StringFixed(2)),
			salary.Mul(yearMonths).Mul(vacationBonusNum).Div(generic.Twelve.Mul(vacationBonusDen)))
	}
	if f.Requests(facts.ItemThirteenthSalary) {
		add(facts.ItemThirteenthSalary, "Proportional thirteenth salary",
			fmt.Sprintf("%s / 12 × %s", money(salary), yearMonths.StringFixed(2)),
			salary.Mul(yearMonths).Div(generic.Twelve))
	}
	res.Subtotal = generic.Round2(subtotal)

	if f.LatePaymentPenalty {
		res.LatePaymentPenalty = generic.Round2(remuneration)
		res.Penalties = append(res.Penalties, generic.LineItem{
			Code:        CodeLatePaymentPenalty,
			Description: "CLT Art. 477 penalty for late payment (one month of remuneration)",
			Formula: fmt.Sprintf("base salary %s + allowances %s = %s",
				money(salary), money(f.Allowances.Total()), money(remuneration)),
			Value: res.LatePaymentPenalty,
		})
		res.Observations.Add(generic.LevelInfo, ObsLatePaymentPenalty,
			"CLT Art. 477 penalty applied: severance paid late")
	}

	if f.UncontestedPenalty {
		base := decimal.Zero
		for _, code := range []string{facts.ItemNoticePeriod, facts.ItemProportionalVacation, facts.ItemThirteenthSalary} {
			if item := res.Item(code); item != nil {
				base = base.Add(item.Value)
			}
		}
		res.UncontestedPenalty = generic.Round2(base.Mul(uncontestedRate))
		res.Penalties = append(res.Penalties, generic.LineItem{
			Code:        CodeUncontestedPenalty,
			Description: "CLT Art. 467 penalty (50% of uncontested amounts)",
			Formula:     fmt.Sprintf("(notice + vacation + thirteenth) × 0.50 = %s × 0.50", money(base)),
			Value:       res.UncontestedPenalty,
		})
		res.Observations.Add(generic.LevelInfo, ObsUncontestedPenalty,
			"CLT Art. 467 penalty applied: 50%% of the uncontested amounts left unpaid")
	}

	res.GrandTotal = res.Subtotal.Add(res.LatePaymentPenalty).Add(res.UncontestedPenalty)

	if months.LessThan(decimal.NewFromInt(1)) {
		res.Observations.Add(generic.LevelWarning, ObsShortService,
			"service time under one month; amounts are proportional approximations")
	}
	if f.Allowances.Any() {
		res.Observations.Add(generic.LevelInfo, ObsAllowances,
			"total remuneration considered (salary + allowances): %s", money(remuneration))
	}
	if isForCause(f.TerminationReason) {
		res.Observations.Add(generic.LevelWarning, ObsForCause,
			"termination for cause: several severance items are not owed in this scenario")
	}
	if missing := notCalculated(f.RequestedItems); len(missing) > 0 {
		res.NotCalculated = missing
		res.Observations.Add(generic.LevelInfo, ObsNotCalculated,
			"requested items not automatically calculated: %s", strings.Join(missing, ", "))
	}

	return res
}

// =============================================================================
// HELPERS
// =============================================================================

func validate(f facts.LaborFacts) error {
	if f.AdmissionDate == nil || f.TerminationDate == nil ||
		f.AdmissionDate.IsZero() || f.TerminationDate.IsZero() {
		return generic.NewInputError("dates", "admission and termination dates are required for the calculation")
	}
	if f.BaseSalary == nil || !f.BaseSalary.IsPositive() {
		return generic.NewInputError("base_salary", "base salary is missing or not positive")
	}
	return nil
}

func errorResult(f facts.LaborFacts, err error, today generic.TimePoint) Result {
	return Result{
		Status:             generic.StatusError,
		Error:              err.Error(),
		Items:              []generic.LineItem{},
		Penalties:          []generic.LineItem{},
		Subtotal:           decimal.Zero,
		LatePaymentPenalty: decimal.Zero,
		UncontestedPenalty: decimal.Zero,
		GrandTotal:         decimal.Zero,
		RequestedItems:     requestedOrEmpty(f.RequestedItems),
		CalculatedOn:       today,
	}
}

var computedItems = map[string]bool{
	facts.ItemFGTS:                 true,
	facts.ItemFGTSPenalty:          true,
	facts.ItemNoticePeriod:         true,
	facts.ItemProportionalVacation: true,
	facts.ItemThirteenthSalary:     true,
}

// notCalculated lists requested items without an automatic line item,
// including the recognised salary balance.
func notCalculated(requested []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range requested {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" || computedItems[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// isForCause matches "justa causa" / "for cause" but not their negated forms
// ("sem justa causa", "without cause"), which describe the opposite situation.
func isForCause(reason string) bool {
	r := strings.ToLower(reason)
	if strings.Contains(r, "justa causa") && !strings.Contains(r, "sem justa causa") {
		return true
	}
	return strings.Contains(r, "for cause") && !strings.Contains(r, "without cause")
}

func requestedOrEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
