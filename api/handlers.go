/*
handlers.go - HTTP API handlers for the calculation engine

PURPOSE:
  Exposes the severance and arrears calculators, the reference tables and
  the index provider via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Calculations:
    POST   /api/severance              Labor facts -> severance result
    POST   /api/arrears                Explicit input -> arrears result
    POST   /api/arrears/facts          Benefit facts -> detection + arrears result

  Extractions:
    POST   /api/extractions/labor      Raw extraction text -> labor facts
    POST   /api/extractions/benefit    Raw extraction text -> benefit facts

  Reference:
    GET    /api/reference/minimum-wage?date=   Minimum wage in force
    GET    /api/reference/ceiling?date=        INSS benefit ceiling in force
    POST   /api/reference/validate             Floor/ceiling check

  Admin:
    POST   /api/admin/reference        Append a reference breakpoint (persisted)

  Indexes:
    GET    /api/indexes/{name}/rates?start=&end=   Rate table the engine would use

  Audit:
    GET    /api/calculations           Recent calculations (?kind=&limit=)
    GET    /api/calculations/{id}      One calculation with input and result

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: audit log and reference appends
  - Severance / Arrears: the calculators
  - Facts: extraction decoding
  - Reference: the shared reference table (appends land here too)
  - Rates: the monthly index provider

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (decodable body, parseable params)
  3. Call domain logic
  4. Record the calculation (audit log, metrics, log line)
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 200: Success, and also error-status calculation results (they are
         results, not transport errors)
  - 400: Undecodable bodies, bad query params, rejected appends
  - 404: Unknown calculation id
  - 500: Store failures

SECURITY NOTE:
  No authentication or authorization. The admin append is expected to sit
  behind the deployment's own access control.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/arrears"
	"github.com/jurisflow/calc-engine/facts"
	"github.com/jurisflow/calc-engine/factory"
	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/metrics"
	"github.com/jurisflow/calc-engine/reference"
	"github.com/jurisflow/calc-engine/severance"
	"github.com/jurisflow/calc-engine/store/sqlite"
)

// CalculationIDHeader carries the audit id of a stored calculation.
const CalculationIDHeader = "X-Calculation-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Severance *severance.Calculator
	Arrears   *arrears.Calculator
	Facts     *factory.FactsFactory
	Reference *reference.Table
	Rates     arrears.RateSource

	metrics *metrics.Metrics
	logger  *zap.Logger
	clock   generic.Clock
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithClock fixes "today" for every calculator the handler builds.
func WithClock(c generic.Clock) HandlerOption {
	return func(h *Handler) { h.clock = c }
}

// WithMetrics records calculations and appends in Prometheus.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger overrides the global zap logger.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a handler. The reference table is shared with the
// calculators so administrative appends are visible to the next calculation.
func NewHandler(store *sqlite.Store, table *reference.Table, rates arrears.RateSource, opts ...HandlerOption) *Handler {
	h := &Handler{
		Store:     store,
		Reference: table,
		Rates:     rates,
		clock:     generic.SystemClock{},
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Severance = severance.NewCalculator(h.clock)
	h.Arrears = arrears.NewCalculator(table, rates, arrears.WithClock(h.clock), arrears.WithLogger(h.logger))
	h.Facts = factory.NewFactsFactory(h.logger)
	return h
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// CalculateSeverance runs a severance calculation from labor facts.
func (h *Handler) CalculateSeverance(w http.ResponseWriter, r *http.Request) {
	var req facts.LaborFacts
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	started := time.Now()
	res := h.Severance.Compute(req)
	h.respondCalculation(w, r, metrics.KindSeverance, req.ClaimantName, req, res.Status, res, started)
}

// CalculateArrears runs an arrears calculation from an explicit input.
func (h *Handler) CalculateArrears(w http.ResponseWriter, r *http.Request) {
	var req ArrearsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	started := time.Now()
	res := h.Arrears.Calculate(r.Context(), req.Input)
	h.respondCalculation(w, r, metrics.KindArrears, req.ClaimantName, req, res.Status, res, started)
}

// CalculateArrearsFromFacts runs the dynamic-base detector and an arrears
// calculation from benefit facts.
func (h *Handler) CalculateArrearsFromFacts(w http.ResponseWriter, r *http.Request) {
	var req facts.BenefitFacts
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	started := time.Now()
	res := h.Arrears.CalculateFromFacts(r.Context(), req)
	h.respondCalculation(w, r, metrics.KindArrears, req.ClaimantName, req, res.Status, res, started)
}

// respondCalculation stores the calculation in the audit log, records it in
// metrics and the log, and writes the result.
func (h *Handler) respondCalculation(w http.ResponseWriter, r *http.Request, kind, claimant string, input any, status generic.Status, result any, started time.Time) {
	took := time.Since(started)
	h.metrics.ObserveCalculation(kind, string(status), took)
	h.logger.Info("calculation finished",
		zap.String("kind", kind),
		zap.String("status", string(status)),
		zap.Duration("duration", took),
	)

	inputJSON, err := json.Marshal(input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode calculation input", err)
		return
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode calculation result", err)
		return
	}

	rec, err := h.Store.SaveCalculation(r.Context(), sqlite.CalculationRecord{
		Kind:         kind,
		Status:       string(status),
		ClaimantName: claimant,
		Input:        inputJSON,
		Result:       resultJSON,
	})
	if err != nil {
		h.logger.Error("failed to store calculation", zap.String("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store calculation", err)
		return
	}

	w.Header().Set(CalculationIDHeader, rec.ID)
	writeRawJSON(w, http.StatusOK, resultJSON)
}

// =============================================================================
// EXTRACTION HANDLERS
// =============================================================================

// ExtractLaborFacts decodes the extraction step's answer into labor facts.
func (h *Handler) ExtractLaborFacts(w http.ResponseWriter, r *http.Request) {
	text, ok := readExtraction(w, r)
	if !ok {
		return
	}
	f, dropped, err := h.Facts.ParseLaborFacts(text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not decode extracted facts", err)
		return
	}
	writeJSON(w, http.StatusOK, ExtractionResponse{Facts: f, Dropped: nonNil(dropped)})
}

// ExtractBenefitFacts decodes the extraction step's answer into benefit facts.
func (h *Handler) ExtractBenefitFacts(w http.ResponseWriter, r *http.Request) {
	text, ok := readExtraction(w, r)
	if !ok {
		return
	}
	f, dropped, err := h.Facts.ParseBenefitFacts(text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not decode extracted facts", err)
		return
	}
	writeJSON(w, http.StatusOK, ExtractionResponse{Facts: f, Dropped: nonNil(dropped)})
}

func readExtraction(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req ExtractionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return "", false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required", nil)
		return "", false
	}
	return req.Text, true
}

// =============================================================================
// REFERENCE HANDLERS
// =============================================================================

// GetMinimumWage returns the minimum wage in force at ?date (default today).
func (h *Handler) GetMinimumWage(w http.ResponseWriter, r *http.Request) {
	h.lookupReference(w, r, reference.KindMinimumWage)
}

// GetBenefitCeiling returns the INSS ceiling in force at ?date (default today).
func (h *Handler) GetBenefitCeiling(w http.ResponseWriter, r *http.Request) {
	h.lookupReference(w, r, reference.KindBenefitCeiling)
}

func (h *Handler) lookupReference(w http.ResponseWriter, r *http.Request, kind reference.Kind) {
	at, err := dateParam(r, "date", h.clock.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	amount, err := h.Reference.Lookup(kind, at)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No reference value for date", err)
		return
	}

	writeJSON(w, http.StatusOK, ReferenceValueDTO{
		Kind:      string(kind),
		Date:      at,
		Amount:    amount,
		Formatted: reference.FormatBRL(amount),
		Version:   h.Reference.Version(),
	})
}

// ValidateBenefit checks an amount against the floor and ceiling in force.
func (h *Handler) ValidateBenefit(w http.ResponseWriter, r *http.Request) {
	var req ValidateBenefitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "date is required", nil)
		return
	}

	valid, message, err := h.Reference.Validate(req.Amount, req.Date, req.AllowAboveCeiling)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No reference value for date", err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateBenefitResponse{Valid: valid, Message: message})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// AppendReference adds or replaces a reference breakpoint and persists it so
// it is replayed on the next start.
func (h *Handler) AppendReference(w http.ResponseWriter, r *http.Request) {
	var req AppendReferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	kind, err := reference.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reference series", err)
		return
	}
	value := sqlite.ReferenceValue{
		Kind:   kind,
		Year:   req.Year,
		Month:  time.Month(req.Month),
		Amount: req.Amount,
	}

	if err := h.Reference.Append(value.Kind, value.Year, value.Month, value.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "Append rejected", err)
		return
	}
	if err := h.Store.SaveReferenceValue(r.Context(), value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist reference value", err)
		return
	}

	h.metrics.ObserveReferenceAppend(string(kind))
	h.logger.Info("reference value appended",
		zap.String("kind", string(kind)),
		zap.Int("year", value.Year),
		zap.Int("month", int(value.Month)),
		zap.String("amount", value.Amount.String()),
	)
	writeJSON(w, http.StatusCreated, value)
}

// =============================================================================
// INDEX HANDLERS
// =============================================================================

// GetIndexRates returns the monthly rate table the engine would apply to
// [start, end] for an index, including any substitution or fallback.
func (h *Handler) GetIndexRates(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	start, err := dateParam(r, "start", generic.TimePoint{})
	if err != nil || start.IsZero() {
		writeError(w, http.StatusBadRequest, "start is required (YYYY-MM-DD)", err)
		return
	}
	end, err := dateParam(r, "end", generic.TimePoint{})
	if err != nil || end.IsZero() {
		writeError(w, http.StatusBadRequest, "end is required (YYYY-MM-DD)", err)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must not be before start", nil)
		return
	}

	table := h.Rates.MonthlyRates(r.Context(), name, start.MonthStart(), end.MonthStart())
	writeJSON(w, http.StatusOK, toRateTableDTO(table))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListCalculations returns recent calculations, newest first.
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	records, err := h.Store.ListCalculations(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list calculations", err)
		return
	}

	dtos := make([]CalculationDTO, len(records))
	for i, rec := range records {
		dtos[i] = toCalculationDTO(rec, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCalculation returns one stored calculation with its input and result.
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.Store.GetCalculation(r.Context(), id)
	if err != nil {
		if generic.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Calculation not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get calculation", err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(*rec, true))
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":            "ok",
		"reference_version": h.Reference.Version(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func dateParam(r *http.Request, name string, def generic.TimePoint) (generic.TimePoint, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	return generic.ParseDate(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeRawJSON(w, status, body)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
