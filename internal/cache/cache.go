// Package cache keeps normalized experiments in memory, one bucket per
// status and type list, each with its own freshness window.
package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/metrics"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

const (
	DefaultRunningTTL = 30 * time.Minute
	DefaultDraftTTL   = 60 * time.Minute
	DefaultPausedTTL  = 60 * time.Minute
)

// Bucket identifies one cache slot.
type Bucket struct {
	Status string
	Types  []string
}

// NewBucket canonicalizes the type list (sorted, de-duplicated, defaulted).
func NewBucket(status string, types []string) Bucket {
	if len(types) == 0 {
		types = vwo.DefaultTypes
	}
	out := slices.Clone(types)
	slices.Sort(out)
	return Bucket{Status: status, Types: slices.Compact(out)}
}

func (b Bucket) key() string {
	return b.Status + "|" + strings.Join(b.Types, ",")
}

// Filter converts the bucket into a lister filter.
func (b Bucket) Filter() vwo.Filter {
	return vwo.Filter{Status: b.Status, Types: b.Types}
}

// TTLs maps a status to its freshness window.
type TTLs map[string]time.Duration

func DefaultTTLs() TTLs {
	return TTLs{
		vwo.StatusRunning: DefaultRunningTTL,
		vwo.StatusDraft:   DefaultDraftTTL,
		vwo.StatusPaused:  DefaultPausedTTL,
	}
}

func (t TTLs) For(status string) time.Duration {
	if d, ok := t[status]; ok {
		return d
	}
	return DefaultRunningTTL
}

// Loader runs one fetch cycle for a bucket.
type Loader func(ctx context.Context, b Bucket) ([]experiments.Experiment, error)

// Result is what a read returns. Cached is true when the data came from a
// fresh bucket without calling the loader. Stale is only set when serving
// old data after a failed refresh.
type Result struct {
	Experiments []experiments.Experiment
	Cached      bool
	Stale       bool
	LastUpdate  time.Time
}

type entry struct {
	experiments []experiments.Experiment
	lastFetch   time.Time
}

// Cache is safe for concurrent use. Reads of a stale bucket are not
// coalesced: two concurrent misses both call the loader and the later
// writer wins.
type Cache struct {
	loader     Loader
	ttls       TTLs
	now        func() time.Time
	serveStale bool

	mu      sync.Mutex
	buckets map[string]*entry
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithServeStale returns the last good data when a refresh fails instead
// of the error.
func WithServeStale(enabled bool) Option { return func(c *Cache) { c.serveStale = enabled } }

func New(loader Loader, ttls TTLs, opts ...Option) *Cache {
	if ttls == nil {
		ttls = DefaultTTLs()
	}
	c := &Cache{
		loader:  loader,
		ttls:    ttls,
		now:     time.Now,
		buckets: map[string]*entry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the bucket's experiments, running the loader when the bucket
// is empty or older than its TTL. A failed load leaves the bucket as it was.
func (c *Cache) Get(ctx context.Context, b Bucket) (Result, error) {
	key := b.key()
	ttl := c.ttls.For(b.Status)

	c.mu.Lock()
	e := c.buckets[key]
	c.mu.Unlock()

	now := c.now()
	if e != nil && now.Sub(e.lastFetch) < ttl {
		metrics.CacheRequests.WithLabelValues(b.Status, "hit").Inc()
		return Result{Experiments: e.experiments, Cached: true, LastUpdate: e.lastFetch}, nil
	}

	metrics.CacheRequests.WithLabelValues(b.Status, "miss").Inc()
	exps, err := c.loader(ctx, b)
	if err != nil {
		if c.serveStale && e != nil {
			metrics.CacheRequests.WithLabelValues(b.Status, "stale").Inc()
			logging.Warn().Err(err).Str("bucket", key).Time("last_fetch", e.lastFetch).
				Msg("refresh failed, serving stale experiments")
			return Result{Experiments: e.experiments, Cached: true, Stale: true, LastUpdate: e.lastFetch}, nil
		}
		metrics.CacheRequests.WithLabelValues(b.Status, "error").Inc()
		return Result{}, err
	}
	if exps == nil {
		exps = []experiments.Experiment{}
	}

	fetched := c.now()
	c.mu.Lock()
	c.buckets[key] = &entry{experiments: exps, lastFetch: fetched}
	metrics.CacheEntries.Set(float64(len(c.buckets)))
	c.mu.Unlock()

	return Result{Experiments: exps, LastUpdate: fetched}, nil
}

// Invalidate drops every bucket for status, or all buckets when status is
// empty, and returns how many were dropped.
func (c *Cache) Invalidate(status string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.buckets {
		if status == "" || strings.HasPrefix(key, status+"|") {
			delete(c.buckets, key)
			n++
		}
	}
	metrics.CacheEntries.Set(float64(len(c.buckets)))
	return n
}
