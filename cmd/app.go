package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/apilog/config"
	"github.com/mohammad-safakhou/apilog/internal/cache"
	"github.com/mohammad-safakhou/apilog/internal/collector"
	"github.com/mohammad-safakhou/apilog/internal/insight"
	"github.com/mohammad-safakhou/apilog/internal/report"
	"github.com/mohammad-safakhou/apilog/internal/telemetry"
	"github.com/mohammad-safakhou/apilog/internal/transport"
	"github.com/mohammad-safakhou/apilog/provider"
	"github.com/mohammad-safakhou/apilog/repository"
)

func providerSettings(c config.LLMConfig) provider.Settings {
	return provider.Settings{
		Provider:    c.Provider,
		Endpoint:    c.Endpoint,
		Model:       c.Model,
		APIKey:      c.APIKey,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.Timeout(),
		InDocker:    c.InDocker,
	}
}

// newProvider returns nil when the model path is disabled.
func newProvider(c config.LLMConfig) (provider.Provider, error) {
	p, err := provider.NewProvider(providerSettings(c))
	if errors.Is(err, provider.ErrDisabled) {
		log.Printf("llm provider disabled, reports are deterministic")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	log.Printf("llm provider %s model=%s", p.Name(), p.Model())
	return p, nil
}

func newCollector(c config.ReportConfig, m *telemetry.Metrics) *collector.Collector {
	client := transport.NewHTTPClient(c.FetchTimeout(), 0, 0, 0)
	var disc collector.Discoverer = collector.DefaultStatic()
	if c.Discovery == "openapi" {
		disc = collector.OpenAPI{Client: client, URL: c.FetchBase + "/openapi.json", QueryPath: c.QueryPath}
	}
	return collector.New(collector.Options{
		Base:         c.FetchBase,
		QueryPath:    c.QueryPath,
		Discoverer:   disc,
		Client:       client,
		Workers:      c.Workers,
		FetchTimeout: c.FetchTimeout(),
		RowCap:       c.RowCap,
		BucketCap:    c.BucketCap,
		Metrics:      m,
	})
}

func newCache(ctx context.Context, cfg *config.Config, m *telemetry.Metrics) (*cache.Cache, error) {
	if cfg.Cache.TTL() <= 0 {
		return nil, nil
	}
	r := cfg.Storage.Redis
	store, err := repository.NewCacheStore(ctx, repository.RepoType(cfg.Cache.Backend), cfg.Cache.MaxEntries, cfg.Cache.TTL(), repository.RedisOptions{
		Host:     r.Host,
		Port:     r.Port,
		Password: r.Password,
		DB:       r.DB,
		Timeout:  r.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return cache.New(store, cfg.Cache.TTL(), nil, m), nil
}

// buildService wires the report pipeline from configuration.
func buildService(ctx context.Context, cfg *config.Config, withCache bool) (*report.Service, error) {
	var m *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		m = telemetry.New(nil)
	}
	p, err := newProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	var c *cache.Cache
	if withCache {
		if c, err = newCache(ctx, cfg, m); err != nil {
			return nil, err
		}
	}
	opts := insight.DefaultOptions()
	opts.TrendThresholdPct = cfg.Report.TrendThresholdPct
	return report.NewService(report.Options{
		Source:           newCollector(cfg.Report, m),
		Provider:         p,
		Engine:           insight.New(opts),
		Cache:            c,
		Metrics:          m,
		RetryPrefixChars: cfg.Report.RetryPrefixChars,
		Backfill:         cfg.Report.BackfillSections,
	}), nil
}
