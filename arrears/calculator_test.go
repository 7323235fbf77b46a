package arrears_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurisflow/calc-engine/arrears"
	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/index"
	"github.com/jurisflow/calc-engine/reference"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// staticRates serves a fixed live table, so tests control every monthly rate.
type staticRates struct {
	rates map[string]string
	calls int
}

func (s *staticRates) MonthlyRates(_ context.Context, name string, start, end generic.TimePoint) *index.RateTable {
	s.calls++
	n, _ := index.Normalize(name)
	rates := make(map[string]decimal.Decimal, len(s.rates))
	for k, v := range s.rates {
		rates[k] = decimal.RequireFromString(v)
	}
	return &index.RateTable{
		Requested:  n,
		Applied:    n,
		Source:     index.SourceLive,
		SeriesCode: 4390,
		Start:      start,
		End:        end,
		Rates:      rates,
	}
}

var clock = generic.FixedClock(generic.NewTimePoint(2024, time.March, 10))

func newCalculator(rates arrears.RateSource) *arrears.Calculator {
	return arrears.NewCalculator(reference.DefaultTable(), rates, arrears.WithClock(clock))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, day int) generic.TimePoint { return generic.NewTimePoint(y, m, day) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "want %s, got %s", want, got.String())
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestCalculate_ScenarioB(t *testing.T) {
	// GIVEN: 1500.00 unpaid from January 2023 through January 2024, positive rates
	rates := &staticRates{rates: map[string]string{"01/2023": "1.12", "06/2023": "1.07", "01/2024": "0.97"}}
	calc := newCalculator(rates)

	// WHEN: Calculating with SELIC
	res := calc.Calculate(context.Background(), arrears.Input{
		BenefitAmount: d("1500.00"),
		Start:         date(2023, time.January, 1),
		End:           date(2024, time.January, 1),
		Index:         "SELIC",
	})

	// THEN: 13 monthly installments and one thirteenth per civil year
	require.Equal(t, generic.StatusSuccess, res.Status, res.Error)
	assert.Equal(t, 13, res.OrdinaryMonths)

	thirteenths := res.Thirteenths()
	require.Len(t, thirteenths, 2)
	assert.Equal(t, "13/2023", thirteenths[0].Number)
	assert.Equal(t, "12/2023", thirteenths[0].Month)
	assert.Equal(t, 12, thirteenths[0].ProportionalMonths)
	assertMoney(t, "1500.00", thirteenths[0].Original)
	assert.Equal(t, "01/2024", thirteenths[1].Month)
	assert.Equal(t, 1, thirteenths[1].ProportionalMonths)
	assertMoney(t, "125.00", thirteenths[1].Original)

	// AND: 1500 × 13 + 1500 + 125
	assertMoney(t, "21125.00", res.TotalBeforeCorrection)
	assert.True(t, res.TotalCorrected.GreaterThan(res.TotalBeforeCorrection))
	assert.True(t, res.CorrectionDifference.Equal(res.TotalCorrected.Sub(res.TotalBeforeCorrection)))
	assert.Equal(t, "SELIC", res.AppliedIndex)
	assert.Equal(t, index.SourceLive, res.RateSource)
	assert.Nil(t, res.BaseWithUplift)
	assert.Equal(t, 1, rates.calls)

	assert.True(t, res.Observations.Has(arrears.ObsIndexInUse))
	assert.True(t, res.Observations.Has(arrears.ObsThirteenths))
	assert.True(t, res.Observations.Has(arrears.ObsReversed))
	assert.Contains(t, res.Observations.Find(arrears.ObsSeriesCode).Message, "4390")
}

func TestCalculate_ZeroRatesLeaveAmountsUncorrected(t *testing.T) {
	res := newCalculator(&staticRates{}).Calculate(context.Background(), arrears.Input{
		BenefitAmount: d("1320.00"),
		Start:         date(2023, time.January, 1),
		End:           date(2023, time.December, 1),
		Index:         "SELIC",
	})

	require.Equal(t, generic.StatusSuccess, res.Status)
	assert.Equal(t, 12, res.OrdinaryMonths)
	for _, inst := range res.Installments {
		assert.Equal(t, "1", inst.Factor.String(), inst.Month)
	}
	assert.True(t, res.TotalCorrected.Equal(res.TotalBeforeCorrection))
	assert.True(t, res.CorrectionDifference.IsZero())
	assertMoney(t, "17160.00", res.TotalBeforeCorrection) // 1320 × 13
}

func TestCalculate_ReversedCompounding(t *testing.T) {
	// GIVEN: Two months with rates 1.00% and 0.50%
	rates := &staticRates{rates: map[string]string{"01/2023": "1.00", "02/2023": "0.50"}}

	res := newCalculator(rates).Calculate(context.Background(), arrears.Input{
		BenefitAmount: d("1200.00"),
		Start:         date(2023, time.January, 1),
		End:           date(2023, time.February, 1),
		Index:         "selic",
	})
	require.Equal(t, generic.StatusSuccess, res.Status)
	require.Len(t, res.Installments, 3)

	// THEN: January accrues both months, February only its own
	jan, feb, thirteenth := res.Installments[0], res.Installments[1], res.Installments[2]
	assert.Equal(t, "01/2023", jan.Month)
	assertMoney(t, "1.01505", jan.Factor)
	assertMoney(t, "1218.06", jan.Corrected)
	assert.Equal(t, "02/2023", feb.Month)
	assertMoney(t, "1.005", feb.Factor)
	assertMoney(t, "1206.00", feb.Corrected)
	assert.True(t, jan.Factor.GreaterThanOrEqual(feb.Factor))

	// AND: The final-year thirteenth is due in the last month of the range
	assert.Equal(t, arrears.KindThirteenth, thirteenth.Kind)
	assert.Equal(t, "02/2023", thirteenth.Month)
	assertMoney(t, "200.00", thirteenth.Original)
	assertMoney(t, "201.00", thirteenth.Corrected)

	assertMoney(t, "2600.00", res.TotalBeforeCorrection)
	assertMoney(t, "2625.06", res.TotalCorrected)
	assertMoney(t, "25.06", res.CorrectionDifference)
}

func TestCalculate_MissingMonthContributesFactorOne(t *testing.T) {
	rates := &staticRates{rates: map[string]string{"01/2023": "2.00"}}

	res := newCalculator(rates).Calculate(context.Background(), arrears.Input{
		BenefitAmount: d("100"),
		Start:         date(2023, time.January, 1),
		End:           date(2023, time.March, 1),
		Index:         "SELIC",
	})

	require.Equal(t, generic.StatusSuccess, res.Status)
	assertMoney(t, "1.02", res.Installments[0].Factor)
	assertMoney(t, "1", res.Installments[1].Factor)
	assertMoney(t, "1", res.Installments[2].Factor)
}

func TestCalculate_OneThirteenthPerCivilYear(t *testing.T) {
	tests := []struct {
		name       string
		start, end generic.TimePoint
		want       []string // thirteenth due months
	}{
		{"fourteen months over two years", date(2023, time.March, 1), date(2024, time.April, 1), []string{"12/2023", "04/2024"}},
		{"single year ending in december", date(2023, time.January, 1), date(2023, time.December, 20), []string{"12/2023"}},
		{"three years", date(2021, time.November, 1), date(2023, time.February, 1), []string{"12/2021", "12/2022", "02/2023"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newCalculator(&staticRates{}).Calculate(context.Background(), arrears.Input{
				BenefitAmount: d("1000"),
				Start:         tt.start,
				End:           tt.end,
				Index:         "SELIC",
			})
			require.Equal(t, generic.StatusSuccess, res.Status)

			var got []string
			for _, th := range res.Thirteenths() {
				got = append(got, th.Month)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_RangeEndingInMarchStillEmitsFinalThirteenth(t *testing.T) {
	// GIVEN: A range whose last year stops in March
	res := newCalculator(&staticRates{}).Calculate(context.Background(), arrears.Input{
		BenefitAmount: d("1200.00"),
		Start:         date(2023, time.June, 1),
		End:           date(2024, time.March, 15),
		Index:         "SELIC",
	})
	require.Equal(t, generic.StatusSuccess, res.Status)

	// THEN: 2024's thirteenth is dated March and covers Jan-Mar
	thirteenths := res.Thirteenths()
	require.Len(t, thirteenths, 2)
	assert.Equal(t, "12/2023", thirteenths[0].Month)
	assert.Equal(t, 7, thirteenths[0].ProportionalMonths)
	assertMoney(t, "700.00", thirteenths[0].Original)

	assert.Equal(t, "03/2024", thirteenths[1].Month)
	assert.Equal(t, date(2024, time.March, 1), thirteenths[1].DueDate)
	assert.Equal(t, 3, thirteenths[1].ProportionalMonths)
	assertMoney(t, "300.00", thirteenths[1].Original)
}

// =============================================================================
// BASE MODES
// =============================================================================

func TestCalculate_FixedUplift(t *testing.T) {
	res := newCalculator(&staticRates{}).Calculate(context.Background(), arrears.Input{
		BenefitAmount: d("1000.00"),
		Start:         date(2023, time.January, 1),
		End:           date(2023, time.February, 1),
		Index:         "SELIC",
		Uplift25:      true,
	})

	require.Equal(t, generic.StatusSuccess, res.Status)
	assertMoney(t, "1000.00", res.BaseAmount)
	require.NotNil(t, res.BaseWithUplift)
	assertMoney(t, "1250.00", *res.BaseWithUplift)
	assertMoney(t, "1250.00", res.Installments[0].Original)
	assert.Contains(t, res.Observations.Find(arrears.ObsUplift).Message, "1250.00")
}

func TestCalculate_DynamicBaseTracksMinimumWage(t *testing.T) {
	// GIVEN: March-June 2023, where the minimum wage moved from 1302 to 1320 in May
	in := arrears.Input{
		Start:       date(2023, time.March, 1),
		End:         date(2023, time.June, 1),
		Index:       "SELIC",
		DynamicBase: true,
	}

	res := newCalculator(&staticRates{}).Calculate(context.Background(), in)

	// THEN: Each month uses its own minimum wage; the benefit amount is ignored
	require.Equal(t, generic.StatusSuccess, res.Status, res.Error)
	want := []string{"1302.00", "1302.00", "1320.00", "1320.00"}
	for i, w := range want {
		assertMoney(t, w, res.Installments[i].Original)
	}
	// Thirteenth uses the minimum wage at its due month: 1320 / 12 × 4
	assertMoney(t, "440.00", res.Thirteenths()[0].Original)
	assertMoney(t, "5684.00", res.TotalBeforeCorrection)
	assert.True(t, res.Observations.Has(arrears.ObsDynamicBase))

	// AND: The uplift multiplies each month's minimum wage
	in.Uplift25 = true
	res = newCalculator(&staticRates{}).Calculate(context.Background(), in)
	require.Equal(t, generic.StatusSuccess, res.Status)
	assertMoney(t, "1627.50", res.Installments[0].Original)
	assertMoney(t, "1650.00", res.Installments[3].Original)
	assertMoney(t, "550.00", res.Thirteenths()[0].Original)
	assertMoney(t, "7105.00", res.TotalBeforeCorrection)
	assert.Nil(t, res.BaseWithUplift)
}

func TestCalculate_DynamicBaseWithoutReferenceDataIsAnInputError(t *testing.T) {
	rates := &staticRates{}
	res := newCalculator(rates).Calculate(context.Background(), arrears.Input{
		Start:       date(2019, time.January, 1),
		End:         date(2019, time.June, 1),
		Index:       "SELIC",
		DynamicBase: true,
	})

	assert.Equal(t, generic.StatusError, res.Status)
	assert.Contains(t, res.Error, "01/2019")
	assert.True(t, res.TotalCorrected.IsZero())
	assert.Equal(t, 0, rates.calls, "no rate fetch for a rejected input")
}

// =============================================================================
// INDEX SUBSTITUTION
// =============================================================================

func TestCalculate_SubstitutedIndexIsReported(t *testing.T) {
	// GIVEN: A provider without a live source; INPC has no monthly series
	calc := newCalculator(index.NewProvider(nil))

	res := calc.Calculate(context.Background(), arrears.Input{
		BenefitAmount: d("1000"),
		Start:         date(2023, time.January, 1),
		End:           date(2023, time.March, 1),
		Index:         "inpc",
	})

	require.Equal(t, generic.StatusSuccess, res.Status)
	assert.Equal(t, "INPC", res.RequestedIndex)
	assert.Equal(t, "SELIC", res.AppliedIndex)
	assert.Equal(t, index.SourceFallback, res.RateSource)
	assert.True(t, res.Observations.Has(index.ObsIndexSubstituted))
	assert.True(t, res.Observations.Has(index.ObsIndexFallback))
	assert.False(t, res.Observations.Has(arrears.ObsSeriesCode))

	// Fallback 2023 rate is 1.08% every month
	assertMoney(t, "1.032751", res.Installments[0].Factor)
}

// =============================================================================
// INPUT ERRORS
// =============================================================================

func TestCalculate_InputErrors(t *testing.T) {
	valid := arrears.Input{
		BenefitAmount: d("1500"),
		Start:         date(2023, time.January, 1),
		End:           date(2023, time.June, 1),
		Index:         "SELIC",
	}

	tests := []struct {
		name   string
		mutate func(*arrears.Input)
		want   string
	}{
		{"zero amount", func(in *arrears.Input) { in.BenefitAmount = decimal.Zero }, "greater than zero"},
		{"negative amount", func(in *arrears.Input) { in.BenefitAmount = d("-1") }, "greater than zero"},
		{"start equals end", func(in *arrears.Input) { in.End = in.Start }, "before the end"},
		{"start after end", func(in *arrears.Input) { in.Start = date(2024, time.January, 1) }, "before the end"},
		{"missing end", func(in *arrears.Input) { in.End = generic.TimePoint{} }, "required"},
		{"unknown index", func(in *arrears.Input) { in.Index = "TR" }, "TR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			res := newCalculator(&staticRates{}).Calculate(context.Background(), in)

			assert.Equal(t, generic.StatusError, res.Status)
			assert.Contains(t, res.Error, tt.want)
			assert.True(t, res.TotalBeforeCorrection.IsZero())
			assert.True(t, res.TotalCorrected.IsZero())
			assert.Empty(t, res.Installments)
		})
	}
}

func TestCalculate_DynamicBaseIgnoresAmount(t *testing.T) {
	res := newCalculator(&staticRates{}).Calculate(context.Background(), arrears.Input{
		BenefitAmount: decimal.Zero,
		Start:         date(2024, time.January, 1),
		End:           date(2024, time.February, 1),
		Index:         "IPCA-E",
		DynamicBase:   true,
	})
	assert.Equal(t, generic.StatusSuccess, res.Status)
	assertMoney(t, "1412.00", res.Installments[0].Original)
}
