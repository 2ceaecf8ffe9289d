package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/omicsearch/discovery-service/internal/cache"
	"github.com/omicsearch/discovery-service/internal/dedup"
	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/fulltext"
	"github.com/omicsearch/discovery-service/internal/observability"
	"github.com/omicsearch/discovery-service/internal/ranking"
	"github.com/omicsearch/discovery-service/internal/sources"
	"github.com/omicsearch/discovery-service/internal/store"
)

// Config holds orchestrator configuration.
type Config struct {
	// Deadline bounds one orchestration pass end to end. Sources that
	// have not responded when it expires are recorded as timed out.
	// Default: 30s.
	Deadline time.Duration

	// MaxResults caps the ranked result list. Default: 50. A query's
	// own MaxResults, when set, takes precedence.
	MaxResults int

	// ResolveFullText runs the full-text waterfall on the ranked
	// results before returning, within the remaining deadline.
	ResolveFullText bool
}

func (c *Config) applyDefaults() {
	if c.Deadline == 0 {
		c.Deadline = 30 * time.Second
	}
	if c.MaxResults == 0 {
		c.MaxResults = 50
	}
}

// Orchestrator fans a query out to every enabled source, collects
// whatever arrives before the deadline, deduplicates, ranks, and
// optionally resolves full text. Identical concurrent queries collapse
// onto one pass through the cache's fetch collapsing.
type Orchestrator struct {
	registry *sources.Registry
	merger   *dedup.Merger
	scorer   *ranking.Scorer
	resolver *fulltext.Resolver
	cache    *cache.Cache[*domain.SearchOutcome]
	sink     store.ResultSink
	metrics  *observability.Metrics
	cfg      Config
	logger   zerolog.Logger
}

// New creates an Orchestrator. resolver, sink, and metrics may be nil;
// the corresponding steps are skipped.
func New(
	registry *sources.Registry,
	merger *dedup.Merger,
	scorer *ranking.Scorer,
	resolver *fulltext.Resolver,
	searchCache *cache.Cache[*domain.SearchOutcome],
	sink store.ResultSink,
	metrics *observability.Metrics,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		registry: registry,
		merger:   merger,
		scorer:   scorer,
		resolver: resolver,
		cache:    searchCache,
		sink:     sink,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Search runs one orchestrated search. Results for an identical query
// within the cache TTL are served from cache; identical queries in
// flight share a single pass. A pass succeeds as long as at least one
// source responded without error, even with zero matches; it fails
// with *domain.AllSourcesFailedError only when no source responded.
func (o *Orchestrator) Search(ctx context.Context, query domain.Query) (*domain.SearchOutcome, error) {
	if err := validate(query); err != nil {
		return nil, err
	}
	key := query.CacheKey()

	if cached, ok := o.cache.Get(key); ok {
		if o.metrics != nil {
			o.metrics.CacheHits.Inc()
		}
		return fromCache(cached), nil
	}
	if o.metrics != nil {
		o.metrics.CacheMisses.Inc()
	}

	outcome, err := o.cache.GetOrFetch(ctx, key, func(ctx context.Context) (*domain.SearchOutcome, error) {
		return o.runPass(ctx, query)
	})
	if err != nil {
		// Unwrap the cache layer so callers match on the domain error.
		var failed *domain.AllSourcesFailedError
		if errors.As(err, &failed) {
			return nil, failed
		}
		return nil, err
	}
	return outcome, nil
}

// runPass executes one uncached orchestration pass.
func (o *Orchestrator) runPass(ctx context.Context, query domain.Query) (*domain.SearchOutcome, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.SearchesStarted.Inc()
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	clients := o.registry.Enabled(query.Sources)
	logger := observability.WithSearchContext(o.logger, query.CacheKey(), len(clients))

	if len(clients) == 0 {
		if o.metrics != nil {
			o.metrics.SearchesFailed.Inc()
		}
		return nil, &domain.AllSourcesFailedError{
			Warnings: []domain.SourceWarning{{Kind: "error", Err: domain.ErrSourceDisabled.Error()}},
		}
	}

	params := sources.SearchParams{
		Query:      query.Text(),
		Organism:   query.Organism,
		YearFrom:   query.YearFrom,
		YearTo:     query.YearTo,
		MaxResults: o.maxResults(query),
	}

	raw, warnings := o.fanOut(ctx, clients, params)

	if len(warnings) == len(clients) {
		if o.metrics != nil {
			o.metrics.SearchesFailed.Inc()
		}
		domain.SortWarnings(warnings)
		logger.Warn().Int("failed", len(warnings)).Msg("every source failed")
		return nil, &domain.AllSourcesFailedError{Warnings: warnings}
	}

	records := o.merger.Merge(raw)
	if o.metrics != nil && len(raw) > len(records) {
		o.metrics.RecordsMerged.Add(float64(len(raw) - len(records)))
	}

	results := o.rank(query, records)

	if o.cfg.ResolveFullText && o.resolver != nil {
		o.resolveFullText(ctx, results)
	}

	domain.SortWarnings(warnings)
	outcome := &domain.SearchOutcome{
		Results:     results,
		Warnings:    warnings,
		CompletedAt: time.Now().UTC(),
	}

	o.emit(query, outcome)

	if o.metrics != nil {
		o.metrics.SearchesCompleted.Inc()
		o.metrics.SearchDuration.Observe(time.Since(start).Seconds())
		o.metrics.ResultsPerSearch.Observe(float64(len(results)))
	}
	logger.Info().
		Int("raw_records", len(raw)).
		Int("results", len(results)).
		Int("warnings", len(warnings)).
		Dur("duration", time.Since(start)).
		Msg("search completed")

	return outcome, nil
}

// fanOut queries every client concurrently and partitions the results
// into raw records and per-source warnings.
func (o *Orchestrator) fanOut(ctx context.Context, clients []sources.SourceClient, params sources.SearchParams) ([]*domain.SourceRecord, []domain.SourceWarning) {
	var (
		raw      []*domain.SourceRecord
		warnings []domain.SourceWarning
	)
	for _, fr := range o.registry.SearchAll(ctx, clients, params) {
		if o.metrics != nil {
			o.metrics.SourceSearches.WithLabelValues(string(fr.Source)).Inc()
		}
		if fr.Err != nil {
			warning := classify(fr.Source, fr.Err)
			warnings = append(warnings, warning)
			if o.metrics != nil {
				o.metrics.SourceFailures.WithLabelValues(string(fr.Source), warning.Kind).Inc()
			}
			srcLogger := observability.WithSourceContext(o.logger, string(fr.Source))
			srcLogger.Warn().Str("kind", warning.Kind).Str("error", warning.Err).
				Msg("source failed")
			continue
		}
		if o.metrics != nil {
			o.metrics.SourceSearchDuration.WithLabelValues(string(fr.Source)).Observe(fr.Result.SearchDuration.Seconds())
			o.metrics.SourceRecords.WithLabelValues(string(fr.Source)).Observe(float64(len(fr.Result.Records)))
		}
		raw = append(raw, fr.Result.Records...)
	}
	return raw, warnings
}

// rank scores every record and sorts descending by score, breaking
// ties by canonical ID so equal scores order deterministically.
func (o *Orchestrator) rank(query domain.Query, records []*domain.CanonicalRecord) []domain.RankedResult {
	results := make([]domain.RankedResult, 0, len(records))
	for _, record := range records {
		score, reasons := o.scorer.Score(record, query)
		results = append(results, domain.RankedResult{
			Record:  record,
			Score:   score,
			Reasons: reasons,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.CanonicalID < results[j].Record.CanonicalID
	})
	if limit := o.maxResults(query); len(results) > limit {
		results = results[:limit]
	}
	return results
}

// resolveFullText runs the waterfall on the ranked results within the
// remaining deadline. Resolution failures never fail the search.
func (o *Orchestrator) resolveFullText(ctx context.Context, results []domain.RankedResult) {
	records := make([]*domain.CanonicalRecord, len(results))
	for i := range results {
		records[i] = results[i].Record
	}
	start := time.Now()
	o.resolver.ResolveAll(ctx, records, false)

	if o.metrics != nil {
		o.metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
		for _, record := range records {
			for _, attempt := range record.Attempts {
				outcome := "failed"
				if attempt.Succeeded {
					outcome = "resolved"
				}
				o.metrics.ResolutionAttempts.WithLabelValues(attempt.Strategy, outcome).Inc()
			}
			if record.FullText == domain.FullTextExhausted {
				o.metrics.RecordsExhausted.Inc()
			}
		}
	}
}

// emit persists the outcome. Sink failures are logged, not returned:
// the searcher already has their results.
func (o *Orchestrator) emit(query domain.Query, outcome *domain.SearchOutcome) {
	if o.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.sink.SaveOutcome(ctx, query, outcome); err != nil {
		o.logger.Error().Err(err).Msg("persisting search outcome")
	}
}

func (o *Orchestrator) maxResults(query domain.Query) int {
	if query.MaxResults > 0 {
		return query.MaxResults
	}
	return o.cfg.MaxResults
}

// validate rejects queries the sources cannot execute.
func validate(query domain.Query) error {
	if strings.TrimSpace(query.Text()) == "" {
		return fmt.Errorf("%w: query has no terms", domain.ErrInvalidInput)
	}
	if query.YearFrom != 0 && query.YearTo != 0 && query.YearFrom > query.YearTo {
		return fmt.Errorf("%w: year range %d-%d is inverted", domain.ErrInvalidInput, query.YearFrom, query.YearTo)
	}
	return nil
}

// classify maps a source failure to a warning kind. Deadline and
// per-source timeouts count as "timeout"; everything else is "error".
func classify(source domain.SourceType, err error) domain.SourceWarning {
	var srcErr *domain.SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Warning()
	}
	kind := "error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrSourceTimeout) {
		kind = "timeout"
	}
	return domain.SourceWarning{Source: source, Kind: kind, Err: err.Error()}
}

// fromCache returns a shallow copy flagged as served from cache, so
// the cached entry itself stays unflagged for future copies.
func fromCache(outcome *domain.SearchOutcome) *domain.SearchOutcome {
	copied := *outcome
	copied.FromCache = true
	return &copied
}
