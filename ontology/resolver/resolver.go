// Package resolver defines the uniform Resolver contract (spec §4.E) and
// wraps any backend implementation with a TTL cache and bounded metrics
// retention. The retention shape (a capped list with oldest-eviction) is
// adapted from the teacher's statemanager.Manager.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"oms.heartbeat.dev/db/repository"
	"oms.heartbeat.dev/errs"
)

// Record is a resolver's row representation: a typed-field map keyed by
// property name, matching the active schema's property set for the
// object type in question.
type Record map[string]interface{}

// RowFilterKey is the reserved GetByFilter filters-map key carrying a
// policy-derived row-filter expression (a conjunction of "field = 'value'"
// and "field IN (v1, v2, ...)" clauses, as built by ontology/policy's
// buildRowFilter). Backends that support a native predicate push it into
// their query; backends that don't apply it as a post-filter. It is never
// a real object-type field, so every Backend must exclude it from ordinary
// per-field filter matching.
const RowFilterKey = "__row_filter"

// Backend is implemented once per storage technology (SQL/Warehouse,
// Columnar-File, ...).
type Backend interface {
	Name() string
	GetByID(ctx context.Context, objectType, id string, projection []string) (Record, error)
	GetByFilter(ctx context.Context, objectType string, filters map[string]interface{}, projection []string, limit, offset int) ([]Record, error)
	TraverseLink(ctx context.Context, fromType, fromID, linkType, toType string, linkConfig map[string]interface{}, projection []string, limit int) ([]Record, error)
}

// Config mirrors spec §4.E's defaults.
type Config struct {
	CacheEnabled    bool
	CacheTTL        time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	MaxRows         int
	MaxBatchSize    int
}

func DefaultConfig() Config {
	return Config{
		CacheEnabled: true,
		CacheTTL:     300 * time.Second,
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		MaxRows:      10000,
		MaxBatchSize: 1000,
	}
}

type cacheEntry struct {
	record    Record
	storedAt  time.Time
}

// Metric is one recorded resolver call.
type Metric struct {
	DurationMs int64
	Rows       int
	CacheHit   bool
	Backend    string
	Timestamp  time.Time
}

const maxRetainedMetrics = 1000

// Resolver composes a Backend with a TTL cache and metrics ring.
type Resolver struct {
	backend Backend
	cfg     Config
	dist    repository.CacheRepository // optional distributed cache backend

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry

	metricsMu sync.Mutex
	metrics   []Metric
}

// New wraps backend with the cache/metrics layer. dist may be nil, in
// which case the in-process map is the only cache tier (the spec-mandated
// default).
func New(backend Backend, cfg Config, dist repository.CacheRepository) *Resolver {
	return &Resolver{
		backend: backend,
		cfg:     cfg,
		dist:    dist,
		cache:   make(map[string]cacheEntry),
	}
}

func cacheKey(objectType, id string, projection []string) string {
	proj := "all"
	if len(projection) > 0 {
		sorted := append([]string(nil), projection...)
		sort.Strings(sorted)
		proj = strings.Join(sorted, ",")
	}
	return fmt.Sprintf("%s:%s:%s", objectType, id, proj)
}

// GetByID delegates to the backend, wrapping any error as an errs
// BackendError.
func (r *Resolver) GetByID(ctx context.Context, objectType, id string, projection []string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rec, err := r.backend.GetByID(ctx, objectType, id, projection)
	r.recordMetric(start, boolToRows(rec != nil), false)
	if err != nil {
		return nil, errs.BackendError("resolver GetByID", err)
	}
	return rec, nil
}

func boolToRows(present bool) int {
	if present {
		return 1
	}
	return 0
}

// GetByIDCached returns the cached record on a fresh in-process hit, then
// tries the distributed cache when one is configured; otherwise it calls
// GetByID and stores the result in every configured tier (spec §4.E).
func (r *Resolver) GetByIDCached(ctx context.Context, objectType, id string, projection []string) (Record, error) {
	if !r.cfg.CacheEnabled {
		return r.GetByID(ctx, objectType, id, projection)
	}

	key := cacheKey(objectType, id, projection)

	if rec, ok := r.cacheGet(key); ok {
		r.recordMetric(time.Now(), 1, true)
		return rec, nil
	}

	if r.dist != nil {
		var distRec Record
		if err := r.dist.GetCache(ctx, key, &distRec); err == nil && distRec != nil {
			r.cacheSet(key, distRec)
			r.recordMetric(time.Now(), 1, true)
			return distRec, nil
		}
	}

	rec, err := r.GetByID(ctx, objectType, id, projection)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		r.cacheSet(key, rec)
		if r.dist != nil {
			_ = r.dist.SetCache(ctx, key, rec, r.cfg.CacheTTL)
		}
	}
	return rec, nil
}

func (r *Resolver) cacheGet(key string) (Record, bool) {
	r.cacheMu.RLock()
	entry, ok := r.cache[key]
	r.cacheMu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > r.cfg.CacheTTL {
		return nil, false
	}
	return entry.record, true
}

func (r *Resolver) cacheSet(key string, rec Record) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	softBound := r.cfg.MaxRows * 10
	if softBound > 0 && len(r.cache) >= softBound {
		r.evictExpiredLocked()
	}
	r.cache[key] = cacheEntry{record: rec, storedAt: time.Now()}
}

func (r *Resolver) evictExpiredLocked() {
	for k, v := range r.cache {
		if time.Since(v.storedAt) > r.cfg.CacheTTL {
			delete(r.cache, k)
		}
	}
}

// ClearCache drops every in-process cache entry whose key is for
// objectType, and — when a distributed cache is configured — its entries
// too.
func (r *Resolver) ClearCache(ctx context.Context, objectType string) {
	r.cacheMu.Lock()
	prefix := objectType + ":"
	for k := range r.cache {
		if strings.HasPrefix(k, prefix) {
			delete(r.cache, k)
		}
	}
	r.cacheMu.Unlock()

	if r.dist != nil {
		_, _ = r.dist.DeleteCachePrefix(ctx, prefix)
	}
}

// GetByFilter delegates to the backend, clamping limit to maxRows.
func (r *Resolver) GetByFilter(ctx context.Context, objectType string, filters map[string]interface{}, projection []string, limit, offset int) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if limit <= 0 || limit > r.cfg.MaxRows {
		limit = r.cfg.MaxRows
	}

	start := time.Now()
	recs, err := r.backend.GetByFilter(ctx, objectType, filters, projection, limit, offset)
	r.recordMetric(start, len(recs), false)
	if err != nil {
		return nil, errs.BackendError("resolver GetByFilter", err)
	}
	return recs, nil
}

// TraverseLink delegates to the backend.
func (r *Resolver) TraverseLink(ctx context.Context, fromType, fromID, linkType, toType string, linkConfig map[string]interface{}, projection []string, limit int) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if limit <= 0 || limit > r.cfg.MaxRows {
		limit = r.cfg.MaxRows
	}

	start := time.Now()
	recs, err := r.backend.TraverseLink(ctx, fromType, fromID, linkType, toType, linkConfig, projection, limit)
	r.recordMetric(start, len(recs), false)
	if err != nil {
		return nil, errs.BackendError("resolver TraverseLink", err)
	}
	return recs, nil
}

// recordMetric appends a sample, evicting the oldest once the retention
// bound (1000) is exceeded — the same bounded-ring discipline the
// teacher's state manager uses for operation history.
func (r *Resolver) recordMetric(start time.Time, rows int, cacheHit bool) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	if len(r.metrics) >= maxRetainedMetrics {
		r.metrics = r.metrics[1:]
	}
	r.metrics = append(r.metrics, Metric{
		DurationMs: time.Since(start).Milliseconds(),
		Rows:       rows,
		CacheHit:   cacheHit,
		Backend:    r.backend.Name(),
		Timestamp:  time.Now(),
	})
}

// Metrics returns a copy of the retained metric samples.
func (r *Resolver) Metrics() []Metric {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	out := make([]Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}
