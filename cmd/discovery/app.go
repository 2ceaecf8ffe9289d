package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/omicsearch/discovery-service/internal/cache"
	"github.com/omicsearch/discovery-service/internal/config"
	"github.com/omicsearch/discovery-service/internal/dedup"
	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/fulltext"
	"github.com/omicsearch/discovery-service/internal/observability"
	"github.com/omicsearch/discovery-service/internal/orchestrator"
	"github.com/omicsearch/discovery-service/internal/ranking"
	"github.com/omicsearch/discovery-service/internal/sources"
	"github.com/omicsearch/discovery-service/internal/sources/crossref"
	"github.com/omicsearch/discovery-service/internal/sources/europepmc"
	"github.com/omicsearch/discovery-service/internal/sources/geo"
	"github.com/omicsearch/discovery-service/internal/store"
)

// app bundles the wired components shared by the serve and search
// commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	search *orchestrator.Orchestrator
	sink   store.ResultSink
}

// newApp loads configuration and wires the orchestrator with every
// configured component.
func newApp(withMetrics bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})

	var metrics *observability.Metrics
	if withMetrics && cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	registry := buildRegistry(cfg)

	merger := dedup.NewMerger(dedup.Config{
		TitleSimilarityThreshold: cfg.Dedup.TitleSimilarityThreshold,
		SourcePriority:           sourcePriority(cfg.Dedup.SourcePriority),
	})

	var resolver *fulltext.Resolver
	if cfg.Orchestrator.ResolveFullText {
		strategies, err := fulltext.BuildStrategies(fulltext.WaterfallConfig{
			Order:              cfg.FullText.StrategyOrder,
			UnpaywallBaseURL:   cfg.FullText.UnpaywallBaseURL,
			UnpaywallEmail:     cfg.FullText.UnpaywallEmail,
			EuropePMCRenderURL: cfg.FullText.EuropePMCRenderURL,
			DOIResolverURL:     cfg.FullText.DOIResolverURL,
			HTTPTimeout:        cfg.FullText.HTTPTimeout,
			RateLimits:         cfg.FullText.RateLimits,
		})
		if err != nil {
			return nil, fmt.Errorf("build full-text strategies: %w", err)
		}
		resolver = fulltext.NewResolver(strategies, fulltext.ResolverConfig{
			GlobalConcurrency: cfg.FullText.GlobalConcurrency,
			StrategyTimeout:   cfg.FullText.StrategyTimeout,
			RetryBackoff:      cfg.FullText.RetryBackoff,
		}, logger)
	}

	var sink store.ResultSink
	if cfg.Store.Enabled {
		sqliteSink, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open result store: %w", err)
		}
		sink = sqliteSink
	}

	search := orchestrator.New(
		registry,
		merger,
		ranking.NewScorer(),
		resolver,
		cache.New[*domain.SearchOutcome](cfg.Cache.MaxEntries, cfg.Cache.TTL),
		sink,
		metrics,
		orchestrator.Config{
			Deadline:        cfg.Orchestrator.Deadline,
			MaxResults:      cfg.Orchestrator.MaxResults,
			ResolveFullText: cfg.Orchestrator.ResolveFullText,
		},
		logger,
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		search: search,
		sink:   sink,
	}, nil
}

// close releases resources held by the app.
func (a *app) close() {
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing result store")
		}
	}
}

// buildRegistry constructs and registers the configured source
// clients, each behind a circuit breaker when enabled.
func buildRegistry(cfg *config.Config) *sources.Registry {
	breaker := sources.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		ProbeRequests:    cfg.Breaker.ProbeRequests,
	}
	wrap := func(client sources.SourceClient) sources.SourceClient {
		if !cfg.Breaker.Enabled {
			return client
		}
		return sources.WithBreaker(client, breaker)
	}

	registry := sources.NewRegistry()
	registry.Register(wrap(geo.New(geo.Config{
		BaseURL:    cfg.Sources.GEO.BaseURL,
		APIKey:     cfg.Sources.GEO.APIKey,
		Timeout:    cfg.Sources.GEO.Timeout,
		RateLimit:  cfg.Sources.GEO.RateLimit,
		BurstSize:  cfg.Sources.GEO.BurstSize,
		MaxResults: cfg.Sources.GEO.MaxResults,
		Enabled:    cfg.Sources.GEO.Enabled,
	})))
	registry.Register(wrap(europepmc.New(europepmc.Config{
		BaseURL:    cfg.Sources.EuropePMC.BaseURL,
		Email:      cfg.Sources.EuropePMC.Email,
		Timeout:    cfg.Sources.EuropePMC.Timeout,
		RateLimit:  cfg.Sources.EuropePMC.RateLimit,
		BurstSize:  cfg.Sources.EuropePMC.BurstSize,
		MaxResults: cfg.Sources.EuropePMC.MaxResults,
		Enabled:    cfg.Sources.EuropePMC.Enabled,
	})))
	registry.Register(wrap(crossref.New(crossref.Config{
		BaseURL:    cfg.Sources.Crossref.BaseURL,
		Email:      cfg.Sources.Crossref.Email,
		Timeout:    cfg.Sources.Crossref.Timeout,
		RateLimit:  cfg.Sources.Crossref.RateLimit,
		BurstSize:  cfg.Sources.Crossref.BurstSize,
		MaxResults: cfg.Sources.Crossref.MaxResults,
		Enabled:    cfg.Sources.Crossref.Enabled,
	})))
	return registry
}

// sourcePriority converts configured source names to source types,
// skipping unknown names.
func sourcePriority(names []string) []domain.SourceType {
	var priority []domain.SourceType
	for _, name := range names {
		st := domain.SourceType(name)
		switch st {
		case domain.SourceTypeGEO, domain.SourceTypeEuropePMC, domain.SourceTypeCrossref:
			priority = append(priority, st)
		}
	}
	return priority
}
