/*
Package factory converts extraction output into case facts.

PURPOSE:
  The extraction collaborator reads a petition and answers with a JSON object
  using its own Portuguese field names. The factory turns that answer into
  facts.LaborFacts / facts.BenefitFacts. Calculators validate what they need,
  so the factory is lenient: fields it cannot read are dropped and reported,
  never fatal.

WHY A SEPARATE SCHEMA?
  - The extraction schema is owned by the prompt, not by the engine
  - Model output is noisy: code fences, prose around the object, amounts
    written as "R$ 1.500,50", dates as dd/mm/yyyy
  - Keeping the mapping here lets the engine's own JSON stay stable

JSON SCHEMA (labor):
  {
    "data_admissao": "2021-09-01",
    "data_dispensa": "22/10/2021",
    "salario_base": "R$ 3.158,96",
    "adicionais": {"insalubridade": 282.40, "periculosidade": null, "noturno": null},
    "verbas_requeridas": ["fgts", "multa_40", "aviso_previo"],
    "justificativa_demissao": "sem justa causa",
    "observacoes": ["CTPS não assinada"],
    "multa_467_requerida": false,
    "multa_477_requerida": true
  }

JSON SCHEMA (benefit):
  {
    "nome_segurado": "...", "tipo_beneficio": "aposentadoria por invalidez",
    "dib": "2023-01-01", "dip": null, "rmi": 1302.00,
    "tem_adicional_25": true, "indice_correcao": "SELIC", "observacoes": []
  }

USAGE:
  f := factory.NewFactsFactory(logger)
  labor, dropped, err := f.ParseLaborFacts(modelAnswer)

SEE ALSO:
  - facts/facts.go: the engine-side records
*/
package factory

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/facts"
	"github.com/jurisflow/calc-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LaborExtractionJSON is the extraction schema of a labor claim.
type LaborExtractionJSON struct {
	ClaimantName       string          `json:"nome_reclamante,omitempty"`
	AdmissionDate      string          `json:"data_admissao,omitempty"`
	TerminationDate    string          `json:"data_dispensa,omitempty"`
	BaseSalary         *Amount         `json:"salario_base,omitempty"`
	Allowances         *AllowancesJSON `json:"adicionais,omitempty"`
	RequestedItems     []string        `json:"verbas_requeridas"`
	TerminationReason  string          `json:"justificativa_demissao,omitempty"`
	Remarks            []string        `json:"observacoes"`
	UncontestedPenalty bool            `json:"multa_467_requerida"`
	LatePaymentPenalty bool            `json:"multa_477_requerida"`
}

// AllowancesJSON holds the salary premiums.
type AllowancesJSON struct {
	Unhealthiness *Amount `json:"insalubridade,omitempty"`
	HazardPay     *Amount `json:"periculosidade,omitempty"`
	NightShift    *Amount `json:"noturno,omitempty"`
}

// BenefitExtractionJSON is the extraction schema of a social-security claim.
type BenefitExtractionJSON struct {
	ClaimantName    string   `json:"nome_segurado,omitempty"`
	BenefitType     string   `json:"tipo_beneficio,omitempty"`
	BenefitStart    string   `json:"dib,omitempty"`
	PaymentStart    string   `json:"dip,omitempty"`
	InitialBenefit  *Amount  `json:"rmi,omitempty"`
	Uplift25        bool     `json:"tem_adicional_25"`
	CorrectionIndex string   `json:"indice_correcao,omitempty"`
	Remarks         []string `json:"observacoes"`
}

// Amount is a monetary value as written by the extractor: a JSON number or a
// string such as "1500.50", "1.500,50" or "R$ 1.500,50". The raw text is kept
// and parsed during conversion.
type Amount string

// UnmarshalJSON accepts numbers, strings and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}
	*a = Amount(strings.TrimSpace(s))
	return nil
}

// Decimal parses the amount.
func (a Amount) Decimal() (decimal.Decimal, error) {
	return ParseAmount(string(a))
}

// ParseAmount reads plain or Brazilian-formatted money. A comma is taken as the
// decimal separator, in which case dots are thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "factory: parse amount %q", s)
	}
	return d, nil
}

// =============================================================================
// FACTS FACTORY
// =============================================================================

// FactsFactory converts extraction answers to facts.
type FactsFactory struct {
	logger *zap.Logger
}

// NewFactsFactory creates a factory. A nil logger uses the global one.
func NewFactsFactory(logger *zap.Logger) *FactsFactory {
	if logger == nil {
		logger = zap.L()
	}
	return &FactsFactory{logger: logger}
}

// ParseLaborFacts decodes a (possibly fenced) extraction answer. It fails only
// when no JSON object can be decoded; unreadable fields are returned in
// dropped.
func (f *FactsFactory) ParseLaborFacts(raw string) (facts.LaborFacts, []string, error) {
	var lj LaborExtractionJSON
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &lj); err != nil {
		return facts.LaborFacts{}, nil, eris.Wrap(err, "factory: decode labor extraction")
	}
	lf, dropped := f.LaborFromJSON(lj)
	return lf, dropped, nil
}

// ParseBenefitFacts decodes a (possibly fenced) extraction answer.
func (f *FactsFactory) ParseBenefitFacts(raw string) (facts.BenefitFacts, []string, error) {
	var bj BenefitExtractionJSON
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &bj); err != nil {
		return facts.BenefitFacts{}, nil, eris.Wrap(err, "factory: decode benefit extraction")
	}
	bf, dropped := f.BenefitFromJSON(bj)
	return bf, dropped, nil
}

// LaborFromJSON converts the extraction schema to LaborFacts.
func (f *FactsFactory) LaborFromJSON(lj LaborExtractionJSON) (facts.LaborFacts, []string) {
	c := converter{logger: f.logger}
	lf := facts.LaborFacts{
		ClaimantName:       strings.TrimSpace(lj.ClaimantName),
		AdmissionDate:      c.date("data_admissao", lj.AdmissionDate),
		TerminationDate:    c.date("data_dispensa", lj.TerminationDate),
		BaseSalary:         c.amount("salario_base", lj.BaseSalary),
		RequestedItems:     normalizeItems(lj.RequestedItems),
		TerminationReason:  strings.TrimSpace(lj.TerminationReason),
		LatePaymentPenalty: lj.LatePaymentPenalty,
		UncontestedPenalty: lj.UncontestedPenalty,
		Remarks:            lj.Remarks,
	}
	if a := lj.Allowances; a != nil {
		allowances := &facts.Allowances{
			Unhealthiness: c.amount("adicionais.insalubridade", a.Unhealthiness),
			HazardPay:     c.amount("adicionais.periculosidade", a.HazardPay),
			NightShift:    c.amount("adicionais.noturno", a.NightShift),
		}
		if allowances.Unhealthiness != nil || allowances.HazardPay != nil || allowances.NightShift != nil {
			lf.Allowances = allowances
		}
	}
	return lf, c.dropped
}

// BenefitFromJSON converts the extraction schema to BenefitFacts.
func (f *FactsFactory) BenefitFromJSON(bj BenefitExtractionJSON) (facts.BenefitFacts, []string) {
	c := converter{logger: f.logger}
	bf := facts.BenefitFacts{
		ClaimantName:    strings.TrimSpace(bj.ClaimantName),
		BenefitType:     strings.TrimSpace(bj.BenefitType),
		BenefitStart:    c.date("dib", bj.BenefitStart),
		PaymentStart:    c.date("dip", bj.PaymentStart),
		InitialBenefit:  c.amount("rmi", bj.InitialBenefit),
		Uplift25:        bj.Uplift25,
		CorrectionIndex: strings.ToUpper(strings.TrimSpace(bj.CorrectionIndex)),
		Remarks:         bj.Remarks,
	}
	return bf, c.dropped
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// converter collects the fields that could not be read.
type converter struct {
	logger  *zap.Logger
	dropped []string
}

func (c *converter) date(field, s string) *generic.TimePoint {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		c.drop(field, s, err)
		return nil
	}
	return &tp
}

func (c *converter) amount(field string, a *Amount) *decimal.Decimal {
	if a == nil || *a == "" {
		return nil
	}
	d, err := a.Decimal()
	if err != nil {
		c.drop(field, string(*a), err)
		return nil
	}
	return &d
}

func (c *converter) drop(field, value string, err error) {
	c.dropped = append(c.dropped, field)
	c.logger.Debug("extraction field dropped",
		zap.String("field", field), zap.String("value", value), zap.Error(err))
}

// normalizeItems lower-cases item codes and removes blanks and duplicates.
func normalizeItems(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

// ExtractJSON strips what a language model puts around a JSON answer: a
// ```json fence, a bare ``` fence, or prose before the first '{' and after
// the last '}'.
func ExtractJSON(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		start := i + len("```json")
		if end := strings.LastIndex(text, "```"); end > start {
			return strings.TrimSpace(text[start:end])
		}
		return strings.TrimSpace(text[start:])
	}
	if i := strings.Index(text, "```"); i >= 0 {
		start := i + len("```")
		if end := strings.LastIndex(text, "```"); end > start {
			return strings.TrimSpace(text[start:end])
		}
		return strings.TrimSpace(text[start:])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}
