// Package facts defines the structured case facts handed to the calculators.
//
// Records are produced by an extraction step that reads legal documents on a
// best-effort basis, so every field is optional. Calculators validate the
// combinations they need at their own boundary instead of rejecting records
// upstream.
package facts

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jurisflow/calc-engine/generic"
)

// Requested severance items (wire codes used by the extraction step).
const (
	ItemSalaryBalance        = "saldo_salario"
	ItemFGTS                 = "fgts"
	ItemFGTSPenalty          = "multa_40"
	ItemNoticePeriod         = "aviso_previo"
	ItemThirteenthSalary     = "decimo_terceiro"
	ItemProportionalVacation = "ferias_proporcionais"
)

// KnownItems lists the recognised vocabulary.
var KnownItems = []string{
	ItemSalaryBalance,
	ItemFGTS,
	ItemFGTSPenalty,
	ItemNoticePeriod,
	ItemThirteenthSalary,
	ItemProportionalVacation,
}

// Allowances are salary premiums that add to the remuneration base.
type Allowances struct {
	Unhealthiness *decimal.Decimal `json:"unhealthiness,omitempty"` // insalubridade
	HazardPay     *decimal.Decimal `json:"hazard_pay,omitempty"`    // periculosidade
	NightShift    *decimal.Decimal `json:"night_shift,omitempty"`   // adicional noturno
}

// Total sums the present allowances.
func (a *Allowances) Total() decimal.Decimal {
	total := decimal.Zero
	if a == nil {
		return total
	}
	for _, v := range []*decimal.Decimal{a.Unhealthiness, a.HazardPay, a.NightShift} {
		if v != nil {
			total = total.Add(*v)
		}
	}
	return total
}

// Any reports whether at least one allowance is present and non-zero.
func (a *Allowances) Any() bool {
	if a == nil {
		return false
	}
	for _, v := range []*decimal.Decimal{a.Unhealthiness, a.HazardPay, a.NightShift} {
		if v != nil && !v.IsZero() {
			return true
		}
	}
	return false
}

// LaborFacts describes a labor-termination claim.
type LaborFacts struct {
	ClaimantName       string             `json:"claimant_name,omitempty"`
	AdmissionDate      *generic.TimePoint `json:"admission_date,omitempty"`
	TerminationDate    *generic.TimePoint `json:"termination_date,omitempty"`
	BaseSalary         *decimal.Decimal   `json:"base_salary,omitempty"`
	Allowances         *Allowances        `json:"allowances,omitempty"`
	RequestedItems     []string           `json:"requested_items"`
	TerminationReason  string             `json:"termination_reason,omitempty"`
	LatePaymentPenalty bool               `json:"late_payment_penalty"` // CLT Art. 477
	UncontestedPenalty bool               `json:"uncontested_penalty"`  // CLT Art. 467
	Remarks            []string           `json:"remarks,omitempty"`
}

// Requests reports whether an item code was requested. Codes are compared
// case-insensitively.
func (f LaborFacts) Requests(item string) bool {
	for _, r := range f.RequestedItems {
		if strings.EqualFold(strings.TrimSpace(r), item) {
			return true
		}
	}
	return false
}

// BenefitFacts describes a social-security arrears claim.
type BenefitFacts struct {
	ClaimantName    string             `json:"claimant_name,omitempty"`
	BenefitType     string             `json:"benefit_type,omitempty"`
	BenefitStart    *generic.TimePoint `json:"benefit_start,omitempty"`   // DIB
	PaymentStart    *generic.TimePoint `json:"payment_start,omitempty"`   // DIP, calculation end
	InitialBenefit  *decimal.Decimal   `json:"initial_benefit,omitempty"` // RMI
	Uplift25        bool               `json:"uplift_25"`
	CorrectionIndex string             `json:"correction_index,omitempty"`
	Remarks         []string           `json:"remarks,omitempty"`
}

// DefaultCorrectionIndex applies when the facts do not name one.
const DefaultCorrectionIndex = "SELIC"

// Index returns the correction index, defaulting to SELIC.
func (f BenefitFacts) Index() string {
	if strings.TrimSpace(f.CorrectionIndex) == "" {
		return DefaultCorrectionIndex
	}
	return f.CorrectionIndex
}
