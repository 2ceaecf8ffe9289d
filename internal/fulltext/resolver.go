package fulltext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// ResolverConfig holds resolver configuration.
type ResolverConfig struct {
	// GlobalConcurrency caps total in-flight strategy attempts across
	// all records. Default: 8.
	GlobalConcurrency int64

	// StrategyTimeout bounds each strategy attempt, independent of the
	// outer deadline (the shorter of the two wins). Default: 20s.
	StrategyTimeout time.Duration

	// RetryBackoff is the delay before the single retry of a transient
	// strategy failure. Default: 500ms.
	RetryBackoff time.Duration
}

func (c *ResolverConfig) applyDefaults() {
	if c.GlobalConcurrency == 0 {
		c.GlobalConcurrency = 8
	}
	if c.StrategyTimeout == 0 {
		c.StrategyTimeout = 20 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// Resolver runs the full-text waterfall: for each record it tries the
// configured strategies in order until one succeeds or the list is
// exhausted. Per-record state transitions are one-way
// (unresolved -> resolved | exhausted) and the attempt log is
// append-only, so callers can always inspect why each strategy failed.
type Resolver struct {
	strategies []Strategy
	cfg        ResolverConfig
	sem        *semaphore.Weighted
	logger     zerolog.Logger

	// locks serializes resolution per record so concurrent Resolve
	// calls for the same record observe idempotence. Entries are
	// reference-counted and removed when the last holder releases, so
	// the map stays bounded by in-flight work rather than growing with
	// every record a long-running process ever resolves.
	mu    sync.Mutex
	locks map[uuid.UUID]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewResolver creates a Resolver with the given ordered strategy list.
// Order is a policy decision reflecting reliability and cost; adding a
// content source means appending a Strategy, not adding branches.
func NewResolver(strategies []Strategy, cfg ResolverConfig, logger zerolog.Logger) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		strategies: strategies,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(cfg.GlobalConcurrency),
		logger:     logger.With().Str("component", "fulltext_resolver").Logger(),
		locks:      make(map[uuid.UUID]*recordLock),
	}
}

// Strategies returns the names of the configured strategies in order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve runs the waterfall for one record. It terminates on the first
// successful strategy or when the list is exhausted, and returns the
// record's full attempt log.
//
// Resolving an already-resolved or exhausted record is a no-op that
// returns the existing attempt log, unless force is set, in which case
// the record is reset to unresolved and the waterfall runs again
// (appending to the existing log).
func (r *Resolver) Resolve(ctx context.Context, record *domain.CanonicalRecord, force bool) ([]domain.FullTextAttempt, error) {
	lock := r.acquireLock(record.ID)
	defer r.releaseLock(record.ID, lock)

	if record.FullText != domain.FullTextUnresolved {
		if !force {
			return record.Attempts, nil
		}
		record.FullText = domain.FullTextUnresolved
		record.FullTextLocation = nil
	}

	logger := r.logger.With().Str("record_id", record.CanonicalID).Logger()

	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			return record.Attempts, err
		}

		attempt, location := r.attempt(ctx, strategy, record)
		record.Attempts = append(record.Attempts, attempt)

		if location != nil {
			if err := record.MarkResolved(*location); err != nil {
				return record.Attempts, err
			}
			logger.Debug().
				Str("strategy", strategy.Name()).
				Str("url", location.URL).
				Str("oa_status", string(location.OAStatus)).
				Dur("duration", attempt.Duration).
				Msg("full text resolved")
			return record.Attempts, nil
		}

		logger.Debug().
			Str("strategy", strategy.Name()).
			Str("reason", attempt.FailureReason).
			Bool("retried", attempt.Retried).
			Msg("strategy failed, trying next")
	}

	if err := record.MarkExhausted(); err != nil {
		return record.Attempts, err
	}
	logger.Info().
		Int("attempts", len(record.Attempts)).
		Msg("full-text strategies exhausted")
	return record.Attempts, nil
}

// ResolveAll resolves every record concurrently. Per-record goroutines
// are cheap; actual network work is bounded by the global semaphore
// inside each strategy attempt. Individual failures never abort the
// batch.
func (r *Resolver) ResolveAll(ctx context.Context, records []*domain.CanonicalRecord, force bool) {
	var wg sync.WaitGroup
	for _, record := range records {
		wg.Add(1)
		go func(rec *domain.CanonicalRecord) {
			defer wg.Done()
			if _, err := r.Resolve(ctx, rec, force); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn().
					Err(err).
					Str("record_id", rec.CanonicalID).
					Msg("full-text resolution aborted")
			}
		}(record)
	}
	wg.Wait()
}

// attempt executes one strategy with the global concurrency cap, the
// per-strategy timeout, and at most one retry on transient failure.
func (r *Resolver) attempt(ctx context.Context, strategy Strategy, record *domain.CanonicalRecord) (domain.FullTextAttempt, *domain.FullTextLocation) {
	start := time.Now()

	location, err := r.runOnce(ctx, strategy, record)
	retried := false
	if err != nil && errors.Is(err, ErrTransient) && ctx.Err() == nil {
		retried = true
		if sleepErr := sleepCtx(ctx, r.cfg.RetryBackoff); sleepErr == nil {
			location, err = r.runOnce(ctx, strategy, record)
		}
	}

	attempt := domain.FullTextAttempt{
		Strategy: strategy.Name(),
		Retried:  retried,
		Duration: time.Since(start),
	}
	if err != nil {
		attempt.FailureReason = err.Error()
		return attempt, nil
	}

	attempt.Succeeded = true
	attempt.URL = location.URL
	return attempt, location
}

// runOnce performs a single strategy execution under the global
// semaphore and per-strategy timeout.
func (r *Resolver) runOnce(ctx context.Context, strategy Strategy, record *domain.CanonicalRecord) (*domain.FullTextLocation, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring resolver slot: %w", err)
	}
	defer r.sem.Release(1)

	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.StrategyTimeout)
	defer cancel()

	return strategy.Locate(attemptCtx, record)
}

// acquireLock takes the per-record mutex, creating it on first use.
func (r *Resolver) acquireLock(id uuid.UUID) *recordLock {
	r.mu.Lock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &recordLock{}
		r.locks[id] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return lock
}

// releaseLock drops the per-record mutex, removing the map entry once
// no other Resolve call holds or awaits it.
func (r *Resolver) releaseLock(id uuid.UUID, lock *recordLock) {
	lock.mu.Unlock()

	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.locks, id)
	}
	r.mu.Unlock()
}

// sleepCtx waits for the duration or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
