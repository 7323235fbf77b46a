package arrears

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jurisflow/calc-engine/facts"
	"github.com/jurisflow/calc-engine/generic"
)

// CalculateFromFacts runs the detector and the calculation for extracted
// benefit facts. The DIB is required; a missing DIP means "today".
func (c *Calculator) CalculateFromFacts(ctx context.Context, f facts.BenefitFacts) Result {
	today := c.clock.Today()

	amount := decimal.Zero
	if f.InitialBenefit != nil {
		amount = *f.InitialBenefit
	}
	end := today
	if f.PaymentStart != nil && !f.PaymentStart.IsZero() {
		end = *f.PaymentStart
	}

	if f.BenefitStart == nil || f.BenefitStart.IsZero() {
		err := generic.NewInputError("benefit_start", "benefit start date (DIB) is required to calculate arrears")
		return errorResult(Input{BenefitAmount: amount, End: end, Index: f.Index(), Uplift25: f.Uplift25}, err, today)
	}

	detection := c.detector.Detect(f)
	in := Input{
		BenefitAmount: amount,
		Start:         *f.BenefitStart,
		End:           end,
		Index:         f.Index(),
		Uplift25:      f.Uplift25,
		DynamicBase:   detection.Indexed,
	}

	var notes generic.Observations
	if detection.Indexed {
		notes.Add(generic.LevelInfo, ObsDetection,
			"benefit classified as minimum-wage indexed (%s)", describe(detection))
	} else {
		notes.Add(generic.LevelInfo, ObsDetection, "benefit classified as a fixed amount")
		notes = append(notes, c.validateBenefit(amount, *f.BenefitStart)...)
	}

	res := c.Calculate(ctx, in)
	res.Detection = &detection
	if res.Status == generic.StatusSuccess {
		res.Observations = append(notes, res.Observations...)
	}
	return res
}

// validateBenefit checks a fixed RMI against the floor and ceiling in force
// at the DIB. The outcome is advisory.
func (c *Calculator) validateBenefit(amount decimal.Decimal, dib generic.TimePoint) generic.Observations {
	var obs generic.Observations
	ok, msg, err := c.table.Validate(amount, dib, false)
	switch {
	case err != nil:
		obs.Add(generic.LevelWarning, ObsBenefitValidity, "benefit amount could not be validated: %v", err)
	case !ok:
		obs.Add(generic.LevelWarning, ObsBenefitValidity, "%s", msg)
	default:
		obs.Add(generic.LevelInfo, ObsBenefitValidity, "%s", msg)
	}
	return obs
}

func describe(d Detection) string {
	if d.Detail == "" {
		return string(d.Reason)
	}
	return string(d.Reason) + ": " + d.Detail
}
