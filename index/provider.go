package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/metrics"
)

// Source tells where the rates of a table came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Observation codes recorded on rate tables.
const (
	ObsIndexFallback    = "index_fallback"
	ObsIndexSubstituted = "index_substituted"
)

var errNoMonthsInRange = errors.New("series has no values inside the requested range")

// RateTable maps "MM/YYYY" to a percentage rate for every month of a range.
// Tables handed out by the Provider are shared and must be treated as read-only.
type RateTable struct {
	Requested       Name                       `json:"requested"`
	Applied         Name                       `json:"applied"`
	Source          Source                     `json:"source"`
	SeriesCode      int                        `json:"series_code,omitempty"`
	FallbackVersion string                     `json:"fallback_version,omitempty"`
	Start           generic.TimePoint          `json:"start"`
	End             generic.TimePoint          `json:"end"`
	Rates           map[string]decimal.Decimal `json:"rates"`
	Observations    generic.Observations       `json:"observations,omitempty"`
}

// Rate returns the percentage rate of a month. Months absent from the table
// contribute zero.
func (t *RateTable) Rate(month generic.TimePoint) decimal.Decimal {
	if r, ok := t.Rates[month.MonthLabel()]; ok {
		return r
	}
	return decimal.Zero
}

// Substituted reports whether the applied index differs from the requested one.
func (t *RateTable) Substituted() bool {
	return t.Requested != t.Applied
}

// Labels returns the month labels of the table in chronological order.
func (t *RateTable) Labels() []string {
	labels := make([]string, 0, len(t.Rates))
	for label := range t.Rates {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, _ := generic.ParseMonthLabel(labels[i])
		b, _ := generic.ParseMonthLabel(labels[j])
		return a.Before(b)
	})
	return labels
}

// TableCache persists live tables across process restarts. Keys are exact
// (index, start, end) triples; partial-range reuse is not attempted.
type TableCache interface {
	GetRateTable(ctx context.Context, key string) (*RateTable, error)
	PutRateTable(ctx context.Context, key string, table *RateTable) error
}

// =============================================================================
// PROVIDER
// =============================================================================

// Provider resolves monthly rate tables. It never returns an error: any
// failure of the live source resolves to the fallback table.
type Provider struct {
	fetcher    SeriesFetcher
	series     map[Name]int
	persistent TableCache
	metrics    *metrics.Metrics
	logger     *zap.Logger

	cache sync.Map // key -> *RateTable, live results only
	group singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider)

// WithMonthlySeries replaces the set of indexes with an enabled monthly series.
func WithMonthlySeries(series map[Name]int) Option {
	return func(p *Provider) {
		p.series = make(map[Name]int, len(series))
		for k, v := range series {
			p.series[k] = v
		}
	}
}

// WithTableCache adds a persistent cache for live tables.
func WithTableCache(c TableCache) Option {
	return func(p *Provider) { p.persistent = c }
}

// WithMetrics records source selection in Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithLogger overrides the global zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a provider. A nil fetcher always serves the fallback table.
func NewProvider(fetcher SeriesFetcher, opts ...Option) *Provider {
	p := &Provider{
		fetcher: fetcher,
		series:  DefaultMonthlySeries(),
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CacheKey is the exact-range key used by the in-memory and persistent caches.
func CacheKey(name Name, start, end generic.TimePoint) string {
	return string(name) + "|" + start.String() + "|" + end.String()
}

// MonthlyRates returns the rate table for every month of [start, end]. Unknown
// index names are treated as a request for an index without monthly series.
func (p *Provider) MonthlyRates(ctx context.Context, indexName string, start, end generic.TimePoint) *RateTable {
	requested, ok := Normalize(indexName)
	if !ok {
		requested = Name(indexName)
	}
	key := CacheKey(requested, start, end)

	if cached, ok := p.cache.Load(key); ok {
		return cached.(*RateTable)
	}

	v, _, _ := p.group.Do(key, func() (any, error) {
		if cached, ok := p.cache.Load(key); ok {
			return cached, nil
		}
		table := p.resolve(ctx, requested, key, start, end)
		if table.Source == SourceLive {
			p.cache.Store(key, table)
		}
		return table, nil
	})
	table := v.(*RateTable)
	p.metrics.ObserveIndexTable(string(table.Requested), string(table.Applied), string(table.Source))
	return table
}

func (p *Provider) resolve(ctx context.Context, requested Name, key string, start, end generic.TimePoint) *RateTable {
	period := generic.Period{Start: start, End: end}
	applied := requested
	code, enabled := p.series[requested]
	if !enabled {
		applied = SELIC
		code, enabled = p.series[SELIC]
	}

	log := p.logger.With(zap.String("requested", string(requested)), zap.String("range", period.String()))

	if p.persistent != nil {
		if stored, err := p.persistent.GetRateTable(ctx, key); err != nil {
			log.Warn("rate table cache read failed", zap.Error(err))
		} else if stored != nil {
			return stored
		}
	}

	var cause error
	if p.fetcher != nil && enabled {
		rates, err := p.fetchLive(ctx, code, period)
		if err == nil {
			table := &RateTable{
				Requested:  requested,
				Applied:    applied,
				Source:     SourceLive,
				SeriesCode: code,
				Start:      start,
				End:        end,
				Rates:      rates,
			}
			if table.Substituted() {
				table.Observations.Add(generic.LevelWarning, ObsIndexSubstituted,
					"%s has no monthly series enabled; %s rates (SGS series %d) were applied instead",
					requested, applied, code)
				log.Warn("index substituted", zap.String("applied", string(applied)))
			}
			if p.persistent != nil {
				if err := p.persistent.PutRateTable(ctx, key, table); err != nil {
					log.Warn("rate table cache write failed", zap.Error(err))
				}
			}
			return table
		}
		cause = err
	}

	return p.fallback(log, requested, period, cause)
}

// fetchLive keeps only the points that fall inside the period's months. An
// empty intersection is treated like an empty series.
func (p *Provider) fetchLive(ctx context.Context, code int, period generic.Period) (map[string]decimal.Decimal, error) {
	began := time.Now()
	points, err := p.fetcher.FetchSeries(ctx, code, period.Start.MonthStart(), period.End)
	p.metrics.ObserveIndexFetch(time.Since(began))
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool)
	for _, m := range period.Months() {
		wanted[m.MonthLabel()] = true
	}
	rates := make(map[string]decimal.Decimal)
	for _, pt := range points {
		label := pt.Date.MonthLabel()
		if wanted[label] {
			rates[label] = pt.Value
		}
	}
	if len(rates) == 0 {
		return nil, &generic.DataSourceError{Source: "sgs", Series: fmt.Sprint(code), Err: errNoMonthsInRange}
	}
	return rates, nil
}

func (p *Provider) fallback(log *zap.Logger, requested Name, period generic.Period, cause error) *RateTable {
	table := &RateTable{
		Requested:       requested,
		Applied:         SELIC,
		Source:          SourceFallback,
		FallbackVersion: FallbackVersion,
		Start:           period.Start,
		End:             period.End,
		Rates:           FallbackRates(period),
	}

	reason := "no live series configured"
	if cause != nil {
		reason = cause.Error()
	}
	table.Observations.Add(generic.LevelWarning, ObsIndexFallback,
		"official index series unavailable (%s); fallback table v%s of yearly average SELIC rates applied to all %d months",
		reason, FallbackVersion, len(table.Rates))
	if table.Substituted() {
		table.Observations.Add(generic.LevelWarning, ObsIndexSubstituted,
			"%s was requested but the fallback table estimates %s; %s rates were applied instead",
			requested, SELIC, SELIC)
	}

	log.Warn("using fallback rate table", zap.String("reason", reason), zap.Int("months", len(table.Rates)))
	return table
}
