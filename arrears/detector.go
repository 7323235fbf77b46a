package arrears

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/facts"
	"github.com/jurisflow/calc-engine/reference"
)

// Reason records which rule classified a benefit.
type Reason string

const (
	ReasonNoInitialBenefit    Reason = "no_initial_benefit"
	ReasonMatchesMinimumWage  Reason = "matches_minimum_wage"
	ReasonMatchesUpliftedWage Reason = "matches_uplifted_minimum_wage"
	ReasonRemarksMentionFloor Reason = "remarks_mention_floor"
	ReasonFixedAmount         Reason = "fixed_amount"
)

// matchTolerance is the absolute currency distance accepted as "equal to the
// minimum wage".
var matchTolerance = decimal.NewFromInt(5)

var floorKeywords = []string{
	"salário mínimo",
	"salario minimo",
	"minimum wage",
	"piso nacional",
	"piso previdenciário",
	"benefício mínimo",
	"valor mínimo",
	"floor benefit",
	"minimum amount",
}

// Detection is the outcome of the dynamic-base heuristic.
type Detection struct {
	Indexed bool   `json:"indexed"`
	Reason  Reason `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// Detector decides whether a benefit tracks the minimum wage. Rules apply in
// order, first match wins:
//
//  1. no RMI, or RMI <= 0
//  2. RMI within 5.00 of the minimum wage at the DIB (or of 1.25× it with the uplift)
//  3. remarks mention the national floor
//  4. otherwise the benefit is a fixed amount
type Detector struct {
	table  *reference.Table
	logger *zap.Logger
}

// NewDetector creates a detector. A nil logger uses the global one.
func NewDetector(table *reference.Table, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.L()
	}
	return &Detector{table: table, logger: logger}
}

// IsMinimumWageIndexed reports whether the benefit should be calculated on a
// dynamic minimum-wage base.
func (d *Detector) IsMinimumWageIndexed(f facts.BenefitFacts) bool {
	return d.Detect(f).Indexed
}

// Detect classifies the benefit and says which rule decided.
func (d *Detector) Detect(f facts.BenefitFacts) Detection {
	if f.InitialBenefit == nil || !f.InitialBenefit.IsPositive() {
		return Detection{Indexed: true, Reason: ReasonNoInitialBenefit}
	}
	rmi := *f.InitialBenefit

	if f.BenefitStart != nil && !f.BenefitStart.IsZero() && d.table != nil {
		wage, err := d.table.MinimumWage(*f.BenefitStart)
		switch {
		case err != nil:
			// Unknown year: fall through to the remarks.
			d.logger.Debug("minimum wage lookup failed during detection",
				zap.String("dib", f.BenefitStart.String()), zap.Error(err))
		case rmi.Sub(wage).Abs().LessThanOrEqual(matchTolerance):
			return Detection{Indexed: true, Reason: ReasonMatchesMinimumWage,
				Detail: "RMI " + rmi.StringFixed(2) + " matches the minimum wage " + wage.StringFixed(2)}
		case f.Uplift25 && rmi.Sub(wage.Mul(upliftFactor)).Abs().LessThanOrEqual(matchTolerance):
			return Detection{Indexed: true, Reason: ReasonMatchesUpliftedWage,
				Detail: "RMI " + rmi.StringFixed(2) + " matches 1.25 × the minimum wage " + wage.StringFixed(2)}
		}
	}

	for _, remark := range f.Remarks {
		lower := strings.ToLower(remark)
		for _, kw := range floorKeywords {
			if strings.Contains(lower, kw) {
				return Detection{Indexed: true, Reason: ReasonRemarksMentionFloor, Detail: kw}
			}
		}
	}

	return Detection{Indexed: false, Reason: ReasonFixedAmount}
}
