package index

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jurisflow/calc-engine/generic"
)

// DefaultSGSBaseURL is Banco Central's open-data API host.
const DefaultSGSBaseURL = "https://api.bcb.gov.br"

const sgsDateLayout = "02/01/2006"

// SeriesPoint is one published value of a series.
type SeriesPoint struct {
	Date  generic.TimePoint
	Value decimal.Decimal
}

// SeriesFetcher retrieves an official series for a date range. Failures are
// reported as *generic.DataSourceError.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, code int, start, end generic.TimePoint) ([]SeriesPoint, error)
}

// SGSOptions configures the SGS client.
type SGSOptions struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// SGSClient fetches series from the SGS REST API:
//
//	GET {base}/dados/serie/bcdata.sgs.{code}/dados?formato=json&dataInicial=dd/MM/yyyy&dataFinal=dd/MM/yyyy
//	[{"data":"01/01/2023","valor":"1.12"}, ...]
type SGSClient struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewSGSClient creates a client. Zero options get sensible defaults.
func NewSGSClient(opts SGSOptions) *SGSClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultSGSBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "legalcalc/1.0"
	}
	return &SGSClient{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		userAgent: opts.UserAgent,
	}
}

type sgsRow struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
}

// FetchSeries implements SeriesFetcher. Rows with an unparseable date or value
// are skipped; a response with no usable row is an error.
func (c *SGSClient) FetchSeries(ctx context.Context, code int, start, end generic.TimePoint) ([]SeriesPoint, error) {
	series := fmt.Sprint(code)
	fail := func(err error) error {
		return &generic.DataSourceError{Source: "sgs", Series: series, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fail(eris.Wrap(err, "rate limiter"))
	}

	url := fmt.Sprintf("%s/dados/serie/bcdata.sgs.%d/dados?formato=json&dataInicial=%s&dataFinal=%s",
		c.baseURL, code, start.Time.Format(sgsDateLayout), end.Time.Format(sgsDateLayout))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fail(eris.Wrap(err, "build request"))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fail(eris.Wrap(err, "request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(eris.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(eris.Wrap(err, "read body"))
	}

	var rows []sgsRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fail(eris.Wrap(err, "decode body"))
	}

	log := zap.L().With(zap.String("series", series))
	points := make([]SeriesPoint, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse(sgsDateLayout, strings.TrimSpace(row.Data))
		if err != nil {
			log.Warn("skip sgs row: bad date", zap.String("data", row.Data))
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSpace(row.Valor))
		if err != nil {
			log.Warn("skip sgs row: bad value", zap.String("data", row.Data), zap.String("valor", row.Valor))
			continue
		}
		points = append(points, SeriesPoint{Date: generic.FromTime(date), Value: value})
	}

	if len(points) == 0 {
		return nil, fail(eris.New("empty series"))
	}
	return points, nil
}
