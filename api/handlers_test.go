/*
handlers_test.go - Tests for the HTTP API

Tests for:
- Calculation endpoints (results, audit log, error-status results)
- Extraction decoding
- Reference lookups, validation and administrative appends
- Index rate tables
- Audit log, health and metrics endpoints
*/
package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/arrears"
	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/index"
	"github.com/jurisflow/calc-engine/metrics"
	"github.com/jurisflow/calc-engine/reference"
	"github.com/jurisflow/calc-engine/severance"
	"github.com/jurisflow/calc-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	handler  *Handler
	router   http.Handler
	store    *sqlite.Store
	registry *prometheus.Registry
}

// newTestServer wires the handler against an in-memory store. A nil rate
// source uses a provider without a live fetcher (fallback table only).
func newTestServer(t *testing.T, rates arrears.RateSource) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if rates == nil {
		rates = index.NewProvider(nil, index.WithMetrics(m), index.WithLogger(zap.NewNop()))
	}

	h := NewHandler(store, reference.DefaultTable(), rates,
		WithClock(generic.FixedClock(generic.NewTimePoint(2025, time.June, 1))),
		WithMetrics(m),
		WithLogger(zap.NewNop()),
	)
	return &testServer{
		handler:  h,
		router:   NewRouter(h, RouterOptions{Gatherer: registry}),
		store:    store,
		registry: registry,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

// zeroRates serves an empty live table: every month contributes factor 1.
type zeroRates struct{}

func (zeroRates) MonthlyRates(_ context.Context, name string, start, end generic.TimePoint) *index.RateTable {
	n, _ := index.Normalize(name)
	return &index.RateTable{
		Requested: n,
		Applied:   n,
		Source:    index.SourceLive,
		Start:     start,
		End:       end,
		Rates:     map[string]decimal.Decimal{},
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got.String())
}

const scenarioA = `{
	"claimant_name": "Maria Souza",
	"admission_date": "2021-09-01",
	"termination_date": "2021-10-22",
	"base_salary": "3158.96",
	"requested_items": ["fgts", "multa_40", "aviso_previo"]
}`

// =============================================================================
// CALCULATIONS
// =============================================================================

func TestCalculateSeverance_ReturnsResultAndRecordsIt(t *testing.T) {
	s := newTestServer(t, nil)

	// GIVEN/WHEN: Scenario A is posted
	rr := s.do(t, http.MethodPost, "/api/severance", scenarioA)

	// THEN: The result comes back with the audit id
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	id := rr.Header().Get(CalculationIDHeader)
	require.NotEmpty(t, id)

	var res severance.Result
	decodeBody(t, rr, &res)
	assert.Equal(t, generic.StatusSuccess, res.Status)
	assertMoney(t, "3760.43", res.GrandTotal)

	// AND: The audit log holds input and result
	rr = s.do(t, http.MethodGet, "/api/calculations/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec CalculationDTO
	decodeBody(t, rr, &rec)
	assert.Equal(t, metrics.KindSeverance, rec.Kind)
	assert.Equal(t, "success", rec.Status)
	assert.Equal(t, "Maria Souza", rec.ClaimantName)
	assert.Contains(t, string(rec.Input), "2021-09-01")
	assert.Contains(t, string(rec.Result), "3760.43")
}

func TestCalculateSeverance_ErrorResultIsNotATransportError(t *testing.T) {
	s := newTestServer(t, nil)

	// GIVEN: Facts without a salary
	rr := s.do(t, http.MethodPost, "/api/severance",
		`{"admission_date": "2021-09-01", "termination_date": "2021-10-22", "requested_items": ["fgts"]}`)

	// THEN: 200 with an error-status result, still audited
	require.Equal(t, http.StatusOK, rr.Code)
	var res severance.Result
	decodeBody(t, rr, &res)
	assert.Equal(t, generic.StatusError, res.Status)
	assert.NotEmpty(t, res.Error)

	records, err := s.store.ListCalculations(context.Background(), metrics.KindSeverance, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0].Status)
}

func TestCalculateSeverance_BadBody(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/severance", `{"admission_date": `)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/severance", `{"admission_date": "someday"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCalculateArrears_ScenarioB(t *testing.T) {
	s := newTestServer(t, zeroRates{})

	// GIVEN: 1500.00 unpaid from January 2023 through January 2024
	body := `{
		"claimant_name": "João da Silva",
		"benefit_amount": "1500.00",
		"start": "2023-01-01",
		"end": "2024-01-01",
		"index": "SELIC"
	}`

	// WHEN: Posting the explicit input
	rr := s.do(t, http.MethodPost, "/api/arrears", body)

	// THEN: 13 ordinary months plus one thirteenth per civil year
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res arrears.Result
	decodeBody(t, rr, &res)
	require.Equal(t, generic.StatusSuccess, res.Status, res.Error)
	assert.Equal(t, 13, res.OrdinaryMonths)
	assert.Len(t, res.Thirteenths(), 2)
	assertMoney(t, "21125.00", res.TotalBeforeCorrection)
	assertMoney(t, "21125.00", res.TotalCorrected)

	records, err := s.store.ListCalculations(context.Background(), metrics.KindArrears, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "João da Silva", records[0].ClaimantName)
}

func TestCalculateArrears_InputErrorIs200(t *testing.T) {
	s := newTestServer(t, zeroRates{})

	rr := s.do(t, http.MethodPost, "/api/arrears",
		`{"benefit_amount": "0", "start": "2023-01-01", "end": "2023-06-01", "index": "SELIC"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var res arrears.Result
	decodeBody(t, rr, &res)
	assert.Equal(t, generic.StatusError, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestCalculateArrearsFromFacts_DetectsDynamicBase(t *testing.T) {
	s := newTestServer(t, zeroRates{})

	// GIVEN: An RMI equal to the minimum wage at the DIB
	body := `{
		"claimant_name": "Ana Lima",
		"benefit_start": "2023-01-01",
		"payment_start": "2023-06-01",
		"initial_benefit": "1302.00",
		"correction_index": "SELIC"
	}`

	// WHEN: Posting the benefit facts
	rr := s.do(t, http.MethodPost, "/api/arrears/facts", body)

	// THEN: The base tracks the minimum wage and the detection is reported
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res arrears.Result
	decodeBody(t, rr, &res)
	require.Equal(t, generic.StatusSuccess, res.Status, res.Error)
	assert.True(t, res.DynamicBase)
	require.NotNil(t, res.Detection)
	assert.True(t, res.Detection.Indexed)
	assert.Equal(t, arrears.ReasonMatchesMinimumWage, res.Detection.Reason)
}

func TestCalculateArrearsFromFacts_MissingDIB(t *testing.T) {
	s := newTestServer(t, zeroRates{})

	rr := s.do(t, http.MethodPost, "/api/arrears/facts", `{"initial_benefit": "2000.00"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var res arrears.Result
	decodeBody(t, rr, &res)
	assert.Equal(t, generic.StatusError, res.Status)
	assert.Contains(t, res.Error, "DIB")
}

// =============================================================================
// EXTRACTIONS
// =============================================================================

func TestExtractLaborFacts(t *testing.T) {
	s := newTestServer(t, nil)

	text := "```json\n{\"data_admissao\": \"2021-09-01\", \"salario_base\": \"R$ 3.158,96\", \"verbas_requeridas\": [\"FGTS\"], \"data_dispensa\": \"ontem\"}\n```"
	payload, err := json.Marshal(ExtractionRequest{Text: text})
	require.NoError(t, err)

	rr := s.do(t, http.MethodPost, "/api/extractions/labor", string(payload))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Facts struct {
			AdmissionDate  string   `json:"admission_date"`
			BaseSalary     string   `json:"base_salary"`
			RequestedItems []string `json:"requested_items"`
		} `json:"facts"`
		Dropped []string `json:"dropped"`
	}
	decodeBody(t, rr, &resp)
	assert.Equal(t, "2021-09-01", resp.Facts.AdmissionDate)
	assert.Equal(t, "3158.96", resp.Facts.BaseSalary)
	assert.Equal(t, []string{"fgts"}, resp.Facts.RequestedItems)
	assert.Equal(t, []string{"data_dispensa"}, resp.Dropped)
}

func TestExtractBenefitFacts(t *testing.T) {
	s := newTestServer(t, nil)

	payload, err := json.Marshal(ExtractionRequest{Text: `{"dib": "2023-01-01", "rmi": 1302, "indice_correcao": "inpc"}`})
	require.NoError(t, err)

	rr := s.do(t, http.MethodPost, "/api/extractions/benefit", string(payload))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Facts struct {
			BenefitStart    string `json:"benefit_start"`
			CorrectionIndex string `json:"correction_index"`
		} `json:"facts"`
		Dropped []string `json:"dropped"`
	}
	decodeBody(t, rr, &resp)
	assert.Equal(t, "2023-01-01", resp.Facts.BenefitStart)
	assert.Equal(t, "INPC", resp.Facts.CorrectionIndex)
	assert.Empty(t, resp.Dropped)
}

func TestExtractLaborFacts_Rejects(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty text", `{"text": "  "}`},
		{"not json", `{"text": "the document does not mention dates"}`},
		{"bad body", `text`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/extractions/labor", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

// =============================================================================
// REFERENCE TABLES
// =============================================================================

func TestReferenceLookups(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"minimum wage 2024", "/api/reference/minimum-wage?date=2024-03-01", "1412.00"},
		{"minimum wage after May 2023 change", "/api/reference/minimum-wage?date=2023-05-15", "1320.00"},
		{"minimum wage defaults to today", "/api/reference/minimum-wage", "1518.00"},
		{"ceiling 2023 before May", "/api/reference/ceiling?date=2023-02-01", "7507.49"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			var dto ReferenceValueDTO
			decodeBody(t, rr, &dto)
			assertMoney(t, tt.want, dto.Amount)
			assert.Equal(t, reference.DefaultVersion, dto.Version)
			assert.True(t, strings.HasPrefix(dto.Formatted, "R$"))
		})
	}
}

func TestReferenceLookups_BadDates(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodGet, "/api/reference/minimum-wage?date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Years before the table are not guessed
	rr = s.do(t, http.MethodGet, "/api/reference/ceiling?date=2010-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestValidateBenefit(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/reference/validate", `{"amount": "1000.00", "date": "2024-03-01"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp ValidateBenefitResponse
	decodeBody(t, rr, &resp)
	assert.False(t, resp.Valid)
	assert.Contains(t, resp.Message, "below the minimum wage")

	rr = s.do(t, http.MethodPost, "/api/reference/validate", `{"amount": "9000.00", "date": "2024-03-01", "allow_above_ceiling": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &resp)
	assert.True(t, resp.Valid)

	rr = s.do(t, http.MethodPost, "/api/reference/validate", `{"amount": "2000.00"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAppendReference_PersistsAndApplies(t *testing.T) {
	s := newTestServer(t, nil)

	// GIVEN/WHEN: The 2026 minimum wage is appended
	rr := s.do(t, http.MethodPost, "/api/admin/reference",
		`{"kind": "minimum_wage", "year": 2026, "month": 1, "amount": "1621.00"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// THEN: Lookups see it
	rr = s.do(t, http.MethodGet, "/api/reference/minimum-wage?date=2026-02-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var dto ReferenceValueDTO
	decodeBody(t, rr, &dto)
	assertMoney(t, "1621.00", dto.Amount)

	// AND: It is persisted for replay
	values, err := s.store.ListReferenceValues(context.Background())
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, reference.KindMinimumWage, values[0].Kind)
	assert.Equal(t, time.January, values[0].Month)
}

func TestAppendReference_Rejects(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind": "inflation", "year": 2026, "month": 1, "amount": "10"}`},
		{"month out of range", `{"kind": "minimum_wage", "year": 2026, "month": 13, "amount": "1621"}`},
		{"non-positive amount", `{"kind": "benefit_ceiling", "year": 2026, "month": 1, "amount": "0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/admin/reference", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	values, err := s.store.ListReferenceValues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, values)
}

// =============================================================================
// INDEXES
// =============================================================================

func TestGetIndexRates_FallbackWithSubstitution(t *testing.T) {
	s := newTestServer(t, nil)

	// GIVEN: No live source, INPC requested across a year boundary
	rr := s.do(t, http.MethodGet, "/api/indexes/inpc/rates?start=2023-11-01&end=2024-02-10", "")

	// THEN: The fallback SELIC table covers every month in order
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var dto RateTableDTO
	decodeBody(t, rr, &dto)
	assert.Equal(t, index.INPC, dto.Requested)
	assert.Equal(t, index.SELIC, dto.Applied)
	assert.Equal(t, index.SourceFallback, dto.Source)
	require.Len(t, dto.Rates, 4)
	assert.Equal(t, "11/2023", dto.Rates[0].Month)
	assertMoney(t, "1.08", dto.Rates[0].Rate)
	assert.Equal(t, "02/2024", dto.Rates[3].Month)
	assertMoney(t, "0.92", dto.Rates[3].Rate)
	assert.True(t, dto.Observations.Has(index.ObsIndexFallback))
	assert.True(t, dto.Observations.Has(index.ObsIndexSubstituted))
}

func TestGetIndexRates_BadParams(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []string{
		"/api/indexes/selic/rates?end=2024-01-01",
		"/api/indexes/selic/rates?start=2024-01-01",
		"/api/indexes/selic/rates?start=2024-05-01&end=2024-01-01",
		"/api/indexes/selic/rates?start=01/2024&end=2024-03-01",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			rr := s.do(t, http.MethodGet, path, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

// =============================================================================
// AUDIT, HEALTH, METRICS
// =============================================================================

func TestListCalculations(t *testing.T) {
	s := newTestServer(t, zeroRates{})

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/severance", scenarioA).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/arrears",
		`{"benefit_amount": "1500.00", "start": "2023-01-01", "end": "2023-03-01", "index": "SELIC"}`).Code)

	rr := s.do(t, http.MethodGet, "/api/calculations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var all []CalculationDTO
	decodeBody(t, rr, &all)
	require.Len(t, all, 2)
	assert.Empty(t, all[0].Result, "list view leaves payloads out")

	rr = s.do(t, http.MethodGet, "/api/calculations?kind=arrears&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var onlyArrears []CalculationDTO
	decodeBody(t, rr, &onlyArrears)
	require.Len(t, onlyArrears, 1)
	assert.Equal(t, metrics.KindArrears, onlyArrears[0].Kind)

	rr = s.do(t, http.MethodGet, "/api/calculations?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetCalculation_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodGet, "/api/calculations/does-not-exist", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.Contains(t, rr.Body.String(), reference.DefaultVersion)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/severance", scenarioA).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/admin/reference",
		`{"kind": "benefit_ceiling", "year": 2026, "month": 1, "amount": "8475.55"}`).Code)

	rr := s.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `legalcalc_calculations_total{kind="severance",status="success"} 1`)
	assert.Contains(t, body, `legalcalc_reference_appends_total{kind="benefit_ceiling"} 1`)
}
