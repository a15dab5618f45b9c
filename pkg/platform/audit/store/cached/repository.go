// Package cached decorates an audit repository with a read-through cache for
// the statistics report. Every other read goes straight to the delegate.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/circuit"
)

const (
	StatisticsKey = "audit:statistics"
	DefaultTTL    = time.Minute
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "audittrail_statistics_cache_lookups_total",
	Help: "Statistics cache lookups, labeled by result (hit, miss, error, bypass)",
}, []string{"result"})

var _ audit.IdempotentRepository = (*Repository)(nil)

// Repository serves GetStatistics from the cache and invalidates it on every
// write. Cache failures are logged and fall through to the delegate.
//
// A report computed while a write from this process was in flight is never
// left in the cache. Writes from other processes sharing the key are bounded
// only by the TTL.
type Repository struct {
	audit.IdempotentRepository
	cache   Cache
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger

	// generation counts local writes; bumped before each invalidation.
	generation atomic.Uint64
}

type Option func(*Repository)

func WithTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithBreaker skips the cache while b is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Repository) {
		r.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

func New(delegate audit.IdempotentRepository, cache Cache, opts ...Option) *Repository {
	r := &Repository{
		IdempotentRepository: delegate,
		cache:                cache,
		ttl:                  DefaultTTL,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetStatistics returns the cached report if present and otherwise computes
// and caches a fresh one. While the breaker is open the cache is bypassed.
//
// Side effects: Redis GET, and SET on a miss.
//
// Errors: only delegate errors; cache errors are logged.
func (r *Repository) GetStatistics(ctx context.Context) (audit.Statistics, error) {
	if !r.allowCache() {
		cacheLookups.WithLabelValues("bypass").Inc()
		return r.IdempotentRepository.GetStatistics(ctx)
	}

	if r.probing() {
		// Writes made while the cache was unreachable could not invalidate it.
		if !r.observe(ctx, r.cache.Del(ctx, StatisticsKey)) {
			return r.IdempotentRepository.GetStatistics(ctx)
		}
	} else if st, ok := r.lookup(ctx); ok {
		return st, nil
	}

	gen := r.generation.Load()
	st, err := r.IdempotentRepository.GetStatistics(ctx)
	if err != nil {
		return audit.Statistics{}, err
	}
	r.store(ctx, gen, st)
	return st, nil
}

// store caches st unless a write happened since gen was read. A write racing
// the Set itself is caught by the second check and the entry is dropped.
func (r *Repository) store(ctx context.Context, gen uint64, st audit.Statistics) {
	if r.generation.Load() != gen {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		r.logger.WarnContext(ctx, "encode statistics for cache", "error", err)
		return
	}
	if err := r.cache.Set(ctx, StatisticsKey, payload, r.ttl); !r.observe(ctx, err) {
		r.logger.WarnContext(ctx, "statistics cache write failed", "error", err)
		return
	}
	if r.generation.Load() != gen {
		if err := r.cache.Del(ctx, StatisticsKey); !r.observe(ctx, err) {
			r.logger.WarnContext(ctx, "statistics cache invalidation failed", "error", err)
		}
	}
}

func (r *Repository) lookup(ctx context.Context) (audit.Statistics, bool) {
	data, err := r.cache.Get(ctx, StatisticsKey)
	switch {
	case err == nil:
		r.observe(ctx, nil)
		var st audit.Statistics
		if err := json.Unmarshal(data, &st); err == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return st, true
		}
		r.logger.WarnContext(ctx, "discarding undecodable statistics cache entry")
		cacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, ErrMiss):
		r.observe(ctx, nil)
		cacheLookups.WithLabelValues("miss").Inc()
	default:
		r.observe(ctx, err)
		r.logger.WarnContext(ctx, "statistics cache read failed", "error", err)
		cacheLookups.WithLabelValues("error").Inc()
	}
	return audit.Statistics{}, false
}

func (r *Repository) Save(ctx context.Context, event *audit.Event) error {
	if err := r.IdempotentRepository.Save(ctx, event); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *Repository) SaveIdempotent(ctx context.Context, key uuid.UUID, event *audit.Event) (bool, error) {
	inserted, err := r.IdempotentRepository.SaveIdempotent(ctx, key, event)
	if err != nil {
		return false, err
	}
	if inserted {
		r.invalidate(ctx)
	}
	return inserted, nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.IdempotentRepository.DeleteOlderThan(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.invalidate(ctx)
	}
	return n, nil
}

func (r *Repository) DeleteByCriteria(ctx context.Context, criteria audit.SearchCriteria) (int64, error) {
	n, err := r.IdempotentRepository.DeleteByCriteria(ctx, criteria)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.invalidate(ctx)
	}
	return n, nil
}

func (r *Repository) invalidate(ctx context.Context) {
	r.generation.Add(1)
	if !r.allowCache() {
		return
	}
	if err := r.cache.Del(ctx, StatisticsKey); !r.observe(ctx, err) {
		r.logger.WarnContext(ctx, "statistics cache invalidation failed", "error", err)
	}
}

func (r *Repository) allowCache() bool {
	return r.breaker == nil || r.breaker.Allow()
}

func (r *Repository) probing() bool {
	return r.breaker != nil && r.breaker.State() == circuit.StateHalfOpen
}

// observe feeds a cache call outcome to the breaker and reports whether it succeeded.
func (r *Repository) observe(ctx context.Context, err error) bool {
	if r.breaker == nil {
		return err == nil
	}
	if err == nil {
		if r.breaker.RecordSuccess().Closed {
			r.logger.InfoContext(ctx, "statistics cache recovered", "breaker", r.breaker.Name())
		}
		return true
	}
	if r.breaker.RecordFailure().Opened {
		r.logger.WarnContext(ctx, "statistics cache disabled after repeated failures", "breaker", r.breaker.Name(), "error", err)
	}
	return false
}
