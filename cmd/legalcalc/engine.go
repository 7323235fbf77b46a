package main

import (
	"context"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/config"
	"github.com/jurisflow/calc-engine/index"
	"github.com/jurisflow/calc-engine/metrics"
	"github.com/jurisflow/calc-engine/reference"
	"github.com/jurisflow/calc-engine/store/sqlite"
)

// engine bundles the long-lived dependencies shared by serve and the
// calculation commands.
type engine struct {
	store    *sqlite.Store
	table    *reference.Table
	provider *index.Provider
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

// newEngine opens the store, builds the reference table (defaults, optional
// file, persisted appends in that order) and the index provider.
func newEngine(ctx context.Context, c *config.Config) (*engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	log := zap.L()

	store, err := sqlite.New(c.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	table := reference.DefaultTable()
	if c.Reference.File != "" {
		table, err = reference.LoadFile(c.Reference.File)
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	replayed, err := store.ReplayReference(ctx, table)
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Info("reference table ready",
		zap.String("version", table.Version()),
		zap.Int("replayed_appends", replayed),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	series, err := c.Index.Series()
	if err != nil {
		store.Close()
		return nil, err
	}

	var fetcher index.SeriesFetcher
	if c.Index.Live {
		fetcher = index.NewSGSClient(index.SGSOptions{
			BaseURL:           c.Index.BaseURL,
			Timeout:           time.Duration(c.Index.TimeoutSecs) * time.Second,
			RequestsPerSecond: c.Index.RequestsPerSecond,
		})
	} else {
		log.Info("live index series disabled, fallback rates only")
	}

	provider := index.NewProvider(fetcher,
		index.WithMonthlySeries(series),
		index.WithTableCache(store),
		index.WithMetrics(m),
		index.WithLogger(log),
	)

	return &engine{
		store:    store,
		table:    table,
		provider: provider,
		metrics:  m,
		registry: registry,
	}, nil
}

func (e *engine) Close() error {
	return e.store.Close()
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode output")
	}
	_, err = w.Write(append(out, '\n'))
	return err
}
