/*
Package arrears computes social-security benefit arrears with monetary correction.

PURPOSE:
  Given a monthly benefit and the period during which it went unpaid, builds
  the installment schedule (one ordinary installment per month plus one
  proportional thirteenth per civil year) and corrects every installment by
  compounding the monthly index rates "in reverse".

REVERSED COMPOUNDING:
  An installment due in month M is multiplied by the product of (1 + rate/100)
  for every month from M through the final month of the range, inclusive:

    range 01/2023..03/2023, rates r1 r2 r3
    01/2023 -> (1+r1)(1+r2)(1+r3)
    02/2023 ->       (1+r2)(1+r3)
    03/2023 ->             (1+r3)

  Older installments therefore always carry a factor at least as large as
  newer ones. Months missing from the rate table contribute a factor of 1.

BASE MODES:
  - Fixed: every installment uses the benefit amount (× 1.25 with the uplift).
  - Dynamic: the benefit tracks the minimum wage; each installment uses the
    minimum wage in force in its own month (× 1.25 with the uplift).

SEE ALSO:
  - detector.go: decides whether a benefit is minimum-wage indexed
  - facts.go: end-to-end calculation from extracted BenefitFacts
  - index/provider.go: where the monthly rates come from
*/
package arrears

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/index"
	"github.com/jurisflow/calc-engine/reference"
)

// Kind distinguishes monthly installments from year-end thirteenths.
type Kind string

const (
	KindOrdinary   Kind = "ordinary"
	KindThirteenth Kind = "thirteenth"
)

// Observation codes.
const (
	ObsUplift          = "uplift_25"
	ObsDynamicBase     = "dynamic_base"
	ObsIndexInUse      = "index_in_use"
	ObsThirteenths     = "thirteenth_installments"
	ObsReversed        = "reversed_compounding"
	ObsSeriesCode      = "series_code"
	ObsDetection       = "base_detection"
	ObsBenefitValidity = "benefit_validation"
)

var upliftFactor = decimal.RequireFromString("1.25")

// Installment is one amount owed. Ordinary installments are numbered 1..n;
// thirteenths are numbered "13/<year>".
type Installment struct {
	Number             string            `json:"number"`
	Month              string            `json:"month"`
	Kind               Kind              `json:"kind"`
	Description        string            `json:"description"`
	Year               int               `json:"year"`
	ProportionalMonths int               `json:"proportional_months,omitempty"`
	DueDate            generic.TimePoint `json:"due_date"`
	Original           decimal.Decimal   `json:"original"`
}

// CorrectedInstallment is an installment with its correction applied.
type CorrectedInstallment struct {
	Installment
	Factor    decimal.Decimal `json:"factor"`
	Corrected decimal.Decimal `json:"corrected"`
}

// Input is an explicit arrears request.
type Input struct {
	BenefitAmount decimal.Decimal   `json:"benefit_amount"`
	Start         generic.TimePoint `json:"start"`
	End           generic.TimePoint `json:"end"`
	Index         string            `json:"index"`
	Uplift25      bool              `json:"uplift_25"`
	DynamicBase   bool              `json:"dynamic_base"`
}

// Result is the immutable outcome of an arrears calculation.
type Result struct {
	Status                generic.Status         `json:"status"`
	Error                 string                 `json:"error,omitempty"`
	BaseAmount            decimal.Decimal        `json:"base_amount"`
	BaseWithUplift        *decimal.Decimal       `json:"base_with_uplift,omitempty"`
	Uplift25              bool                   `json:"uplift_25"`
	DynamicBase           bool                   `json:"dynamic_base"`
	OrdinaryMonths        int                    `json:"ordinary_months"`
	TotalBeforeCorrection decimal.Decimal        `json:"total_before_correction"`
	TotalCorrected        decimal.Decimal        `json:"total_corrected"`
	CorrectionDifference  decimal.Decimal        `json:"correction_difference"`
	RequestedIndex        string                 `json:"requested_index,omitempty"`
	AppliedIndex          string                 `json:"applied_index,omitempty"`
	RateSource            index.Source           `json:"rate_source,omitempty"`
	Start                 generic.TimePoint      `json:"start"`
	End                   generic.TimePoint      `json:"end"`
	Installments          []CorrectedInstallment `json:"installments"`
	Observations          generic.Observations   `json:"observations"`
	Detection             *Detection             `json:"detection,omitempty"`
	CalculatedOn          generic.TimePoint      `json:"calculated_on"`
}

// Thirteenths returns the thirteenth-salary installments of the trace.
func (r Result) Thirteenths() []CorrectedInstallment {
	var out []CorrectedInstallment
	for _, in := range r.Installments {
		if in.Kind == KindThirteenth {
			out = append(out, in)
		}
	}
	return out
}

// RateSource supplies the monthly rate table for a range. *index.Provider
// implements it.
type RateSource interface {
	MonthlyRates(ctx context.Context, indexName string, start, end generic.TimePoint) *index.RateTable
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes arrears against an injected reference table and rate
// source.
type Calculator struct {
	table    *reference.Table
	rates    RateSource
	detector *Detector
	clock    generic.Clock
	logger   *zap.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithClock sets the clock used for CalculatedOn and a missing DIP.
func WithClock(c generic.Clock) Option {
	return func(calc *Calculator) { calc.clock = c }
}

// WithLogger overrides the global zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(calc *Calculator) { calc.logger = l }
}

// NewCalculator creates a calculator.
func NewCalculator(table *reference.Table, rates RateSource, opts ...Option) *Calculator {
	c := &Calculator{
		table:  table,
		rates:  rates,
		clock:  generic.SystemClock{},
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.detector = NewDetector(table, c.logger)
	return c
}

// Detector returns the detector used by CalculateFromFacts.
func (c *Calculator) Detector() *Detector { return c.detector }

// Calculate runs an arrears calculation. Input problems produce an
// error-status result; nothing else fails.
func (c *Calculator) Calculate(ctx context.Context, in Input) Result {
	today := c.clock.Today()

	requested, err := validate(in)
	if err != nil {
		return errorResult(in, err, today)
	}

	effective := in.BenefitAmount
	if in.Uplift25 {
		effective = effective.Mul(upliftFactor)
	}

	schedule, err := c.schedule(in, effective)
	if err != nil {
		return errorResult(in, err, today)
	}

	rates := c.rates.MonthlyRates(ctx, string(requested), in.Start, in.End)
	factors := correctionFactors(rates, generic.Period{Start: in.Start, End: in.End})

	res := Result{
		Status:         generic.StatusSuccess,
		BaseAmount:     generic.Round2(in.BenefitAmount),
		Uplift25:       in.Uplift25,
		DynamicBase:    in.DynamicBase,
		RequestedIndex: string(requested),
		AppliedIndex:   string(rates.Applied),
		RateSource:     rates.Source,
		Start:          in.Start,
		End:            in.End,
		Installments:   make([]CorrectedInstallment, 0, len(schedule)),
		CalculatedOn:   today,
	}
	if in.Uplift25 && !in.DynamicBase {
		res.BaseWithUplift = generic.DecimalPtr(generic.Round2(effective))
	}

	before, corrected := decimal.Zero, decimal.Zero
	thirteenths := 0
	for _, inst := range schedule {
		factor, ok := factors[inst.Month]
		if !ok {
			factor = decimal.NewFromInt(1)
		}
		amount := inst.Original.Mul(factor)
		before = before.Add(inst.Original)
		corrected = corrected.Add(amount)

		switch inst.Kind {
		case KindOrdinary:
			res.OrdinaryMonths++
		case KindThirteenth:
			thirteenths++
		}

		emitted := inst
		emitted.Original = generic.Round2(inst.Original)
		res.Installments = append(res.Installments, CorrectedInstallment{
			Installment: emitted,
			Factor:      generic.Round6(factor),
			Corrected:   generic.Round2(amount),
		})
	}

	res.TotalBeforeCorrection = generic.Round2(before)
	res.TotalCorrected = generic.Round2(corrected)
	res.CorrectionDifference = generic.Round2(corrected.Sub(before))

	c.observe(&res, in, effective, rates, thirteenths)

	c.logger.Debug("arrears calculated",
		zap.String("index", string(requested)),
		zap.String("applied", string(rates.Applied)),
		zap.String("source", string(rates.Source)),
		zap.Int("installments", len(res.Installments)))
	return res
}

// schedule materialises every installment of the range at full precision:
// ordinary months first, then one thirteenth per civil year touched.
func (c *Calculator) schedule(in Input, effective decimal.Decimal) ([]Installment, error) {
	period := generic.Period{Start: in.Start, End: in.End}

	base := func(month generic.TimePoint) (decimal.Decimal, error) {
		if !in.DynamicBase {
			return effective, nil
		}
		wage, err := c.table.MinimumWage(month)
		if err != nil {
			return decimal.Zero, generic.NewInputError("start",
				"no minimum wage data for %s: %v", month.MonthLabel(), err)
		}
		if in.Uplift25 {
			wage = wage.Mul(upliftFactor)
		}
		return wage, nil
	}

	var out []Installment
	monthsPerYear := make(map[int]int)
	for i, month := range period.Months() {
		amount, err := base(month)
		if err != nil {
			return nil, err
		}
		monthsPerYear[month.Year()]++
		out = append(out, Installment{
			Number:      strconv.Itoa(i + 1),
			Month:       month.MonthLabel(),
			Kind:        KindOrdinary,
			Description: "Monthly benefit",
			Year:        month.Year(),
			DueDate:     month,
			Original:    amount,
		})
	}

	years := make([]int, 0, len(monthsPerYear))
	for y := range monthsPerYear {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		count := monthsPerYear[year]
		due := generic.StartOfMonth(year, 12)
		if year == in.End.Year() {
			due = in.End.MonthStart()
		}
		amount, err := base(due)
		if err != nil {
			return nil, err
		}
		out = append(out, Installment{
			Number:             fmt.Sprintf("13/%d", year),
			Month:              due.MonthLabel(),
			Kind:               KindThirteenth,
			Description:        fmt.Sprintf("Thirteenth salary %d (proportional to %d months)", year, count),
			Year:               year,
			ProportionalMonths: count,
			DueDate:            due,
			Original:           amount.Div(generic.Twelve).Mul(decimal.NewFromInt(int64(count))),
		})
	}
	return out, nil
}

// correctionFactors returns, for every month label of the period, the product
// of (1 + rate/100) from that month through the last month of the period.
func correctionFactors(rates *index.RateTable, period generic.Period) map[string]decimal.Decimal {
	months := period.Months()
	factors := make(map[string]decimal.Decimal, len(months))
	running := decimal.NewFromInt(1)
	for i := len(months) - 1; i >= 0; i-- {
		running = running.Mul(generic.RateFactor(rates.Rate(months[i])))
		factors[months[i].MonthLabel()] = running
	}
	return factors
}

func (c *Calculator) observe(res *Result, in Input, effective decimal.Decimal, rates *index.RateTable, thirteenths int) {
	if in.Uplift25 {
		if in.DynamicBase {
			res.Observations.Add(generic.LevelInfo, ObsUplift,
				"25%% uplift applied (permanent disability) on top of each month's minimum wage")
		} else {
			res.Observations.Add(generic.LevelInfo, ObsUplift,
				"25%% uplift applied (permanent disability): base %s, effective %s",
				in.BenefitAmount.StringFixed(2), effective.StringFixed(2))
		}
	}
	if in.DynamicBase {
		res.Observations.Add(generic.LevelInfo, ObsDynamicBase,
			"benefit indexed to the minimum wage: each installment uses the minimum wage in force in its month")
	}

	res.Observations.Add(generic.LevelInfo, ObsIndexInUse,
		"correction index: %s (as determined by the court)", res.RequestedIndex)
	res.Observations = append(res.Observations, rates.Observations...)

	if thirteenths > 0 {
		res.Observations.Add(generic.LevelInfo, ObsThirteenths,
			"thirteenth salary computed for %d year(s), proportional to the months counted in each civil year", thirteenths)
	}
	res.Observations.Add(generic.LevelInfo, ObsReversed,
		"compound correction applied in reverse: each installment accrues every monthly rate from its due month "+
			"through the final month, so older installments accrue more correction than recent ones")

	if rates.Source == index.SourceLive {
		res.Observations.Add(generic.LevelInfo, ObsSeriesCode,
			"official series used: SGS %d (%s, monthly %%)", rates.SeriesCode, rates.Applied)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func validate(in Input) (index.Name, error) {
	if !in.DynamicBase && !in.BenefitAmount.IsPositive() {
		return "", generic.NewInputError("benefit_amount", "benefit amount must be greater than zero")
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return "", generic.NewInputError("start", "start and end dates are required")
	}
	if !in.Start.Before(in.End) {
		return "", generic.NewInputError("start", "start date must be before the end date")
	}
	name, ok := index.Normalize(in.Index)
	if !ok {
		return "", generic.NewInputError("index",
			"correction index %q is not supported; use SELIC, INPC or IPCA-E", in.Index)
	}
	return name, nil
}

func errorResult(in Input, err error, today generic.TimePoint) Result {
	return Result{
		Status:                generic.StatusError,
		Error:                 err.Error(),
		BaseAmount:            generic.Round2(in.BenefitAmount),
		Uplift25:              in.Uplift25,
		DynamicBase:           in.DynamicBase,
		TotalBeforeCorrection: decimal.Zero,
		TotalCorrected:        decimal.Zero,
		CorrectionDifference:  decimal.Zero,
		Start:                 in.Start,
		End:                   in.End,
		Installments:          []CorrectedInstallment{},
		CalculatedOn:          today,
	}
}
