/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Calculation results
  are returned as the calculators produce them (they already carry the full
  audit trail); these types cover request bodies and the thin wrappers
  around reference lookups, index tables and the audit log.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Calculations:
    ArrearsRequest (explicit input), facts.LaborFacts and facts.BenefitFacts
    are accepted as-is

  Extractions:
    ExtractionRequest, ExtractionResponse

  Reference:
    ReferenceValueDTO, ValidateBenefitRequest, ValidateBenefitResponse,
    AppendReferenceRequest

  Indexes:
    RateTableDTO, MonthlyRateDTO

  Audit:
    CalculationDTO

VALIDATION:
  Validation is done in handlers and calculators, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/facts.go: extraction records
*/
package api

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/jurisflow/calc-engine/arrears"
	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/index"
	"github.com/jurisflow/calc-engine/store/sqlite"
)

// =============================================================================
// CALCULATIONS
// =============================================================================

// ArrearsRequest is the explicit arrears input plus the claimant name kept in
// the audit log.
type ArrearsRequest struct {
	arrears.Input
	ClaimantName string `json:"claimant_name,omitempty"`
}

// =============================================================================
// EXTRACTIONS
// =============================================================================

// ExtractionRequest carries the raw answer of the extraction step. Code fences
// and surrounding prose are tolerated.
type ExtractionRequest struct {
	Text string `json:"text"`
}

// ExtractionResponse is the decoded facts record plus the fields that could
// not be read.
type ExtractionResponse struct {
	Facts   any      `json:"facts"`
	Dropped []string `json:"dropped"`
}

// =============================================================================
// REFERENCE TABLES
// =============================================================================

// ReferenceValueDTO is one reference lookup.
type ReferenceValueDTO struct {
	Kind      string            `json:"kind"`
	Date      generic.TimePoint `json:"date"`
	Amount    decimal.Decimal   `json:"amount"`
	Formatted string            `json:"formatted"`
	Version   string            `json:"version"`
}

// ValidateBenefitRequest asks whether an amount is inside the floor/ceiling
// band in force at a date.
type ValidateBenefitRequest struct {
	Amount            decimal.Decimal   `json:"amount"`
	Date              generic.TimePoint `json:"date"`
	AllowAboveCeiling bool              `json:"allow_above_ceiling"`
}

// ValidateBenefitResponse is the outcome of a validation.
type ValidateBenefitResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// AppendReferenceRequest adds or replaces a breakpoint.
type AppendReferenceRequest struct {
	Kind   string          `json:"kind"`
	Year   int             `json:"year"`
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// =============================================================================
// INDEXES
// =============================================================================

// MonthlyRateDTO is one month of a rate table.
type MonthlyRateDTO struct {
	Month string          `json:"month"`
	Rate  decimal.Decimal `json:"rate"`
}

// RateTableDTO is a rate table with its months in chronological order.
type RateTableDTO struct {
	Requested    index.Name           `json:"requested"`
	Applied      index.Name           `json:"applied"`
	Source       index.Source         `json:"source"`
	SeriesCode   int                  `json:"series_code,omitempty"`
	Start        generic.TimePoint    `json:"start"`
	End          generic.TimePoint    `json:"end"`
	Rates        []MonthlyRateDTO     `json:"rates"`
	Observations generic.Observations `json:"observations"`
}

func toRateTableDTO(t *index.RateTable) RateTableDTO {
	dto := RateTableDTO{
		Requested:    t.Requested,
		Applied:      t.Applied,
		Source:       t.Source,
		SeriesCode:   t.SeriesCode,
		Start:        t.Start,
		End:          t.End,
		Rates:        make([]MonthlyRateDTO, 0, len(t.Rates)),
		Observations: t.Observations,
	}
	if dto.Observations == nil {
		dto.Observations = generic.Observations{}
	}
	for _, label := range t.Labels() {
		dto.Rates = append(dto.Rates, MonthlyRateDTO{Month: label, Rate: t.Rates[label]})
	}
	return dto
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// CalculationDTO represents a stored calculation.
type CalculationDTO struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	ClaimantName string          `json:"claimant_name,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// toCalculationDTO converts a record; list views leave out the payloads.
func toCalculationDTO(rec sqlite.CalculationRecord, withPayload bool) CalculationDTO {
	dto := CalculationDTO{
		ID:           rec.ID,
		Kind:         rec.Kind,
		Status:       rec.Status,
		ClaimantName: rec.ClaimantName,
		CreatedAt:    rec.CreatedAt,
	}
	if withPayload {
		dto.Input = rec.Input
		dto.Result = rec.Result
	}
	return dto
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
