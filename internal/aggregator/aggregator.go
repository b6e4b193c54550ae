// Package aggregator turns noisy per-frame classifier output into a stable,
// decaying view of the labels currently in front of the camera.
package aggregator

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

const (
	DefaultExpiryWindow  = 3 * time.Second
	DefaultSweepInterval = time.Second
	DefaultMaxResults    = 6
)

// RefreshPolicy decides how a new sighting of a known label updates its entry.
type RefreshPolicy string

const (
	// PolicyOnRaise replaces the entry only when confidence does not drop.
	// A lower sighting neither lowers confidence nor extends the lifetime.
	PolicyOnRaise RefreshPolicy = "on_raise"
	// PolicyAnySighting refreshes the observation time on every sighting and
	// only ever raises confidence.
	PolicyAnySighting RefreshPolicy = "any_sighting"
)

// ParsePolicy maps a configuration value to a RefreshPolicy.
func ParsePolicy(s string) (RefreshPolicy, error) {
	switch p := RefreshPolicy(s); p {
	case PolicyOnRaise, PolicyAnySighting:
		return p, nil
	case "":
		return PolicyOnRaise, nil
	default:
		return "", fmt.Errorf("unknown refresh policy %q", s)
	}
}

// Config holds the aggregator parameters.
type Config struct {
	ExpiryWindow  time.Duration
	SweepInterval time.Duration
	MaxResults    int
	Policy        RefreshPolicy
}

func (c Config) withDefaults() Config {
	if c.ExpiryWindow <= 0 {
		c.ExpiryWindow = DefaultExpiryWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Policy == "" {
		c.Policy = PolicyOnRaise
	}
	return c
}

// PublishFunc observes every published snapshot. It is called with the
// writer lock held and must not call back into Merge, Tick or Reset.
type PublishFunc func(*detection.LiveSnapshot)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithMetrics records snapshots and sweeps on m.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithPublish registers fn to observe published snapshots.
func WithPublish(fn PublishFunc) Option {
	return func(a *Aggregator) { a.publish = fn }
}

// Aggregator owns the detection registry. Mutation and publication happen
// together under one lock; readers get immutable snapshots.
type Aggregator struct {
	cfg     Config
	now     func() time.Time
	metrics *metrics.PipelineMetrics
	publish PublishFunc
	log     logger.Logger

	mu        sync.Mutex
	registry  map[string]detection.ClassificationResult // keyed by Key()
	lastSweep time.Time
	seq       uint64

	current atomic.Pointer[detection.LiveSnapshot]
}

// New creates an empty aggregator.
func New(cfg Config, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		registry: make(map[string]detection.ClassificationResult),
		log:      logger.Global().Module("aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.current.Store(&detection.LiveSnapshot{UpdatedAt: a.now()})
	return a
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config { return a.cfg }

// Merge folds one inference batch into the registry and publishes the
// resulting snapshot.
func (a *Aggregator) Merge(results []detection.ClassificationResult) *detection.LiveSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for _, r := range results {
		key := r.Key()
		if key == "" {
			continue
		}
		a.mergeLocked(key, r, now)
	}
	a.maybeSweepLocked(now)
	return a.publishLocked(now)
}

func (a *Aggregator) mergeLocked(key string, r detection.ClassificationResult, now time.Time) {
	old, ok := a.registry[key]
	if !ok || old.Expired(now, a.cfg.ExpiryWindow) {
		a.registry[key] = r
		return
	}
	switch a.cfg.Policy {
	case PolicyAnySighting:
		if r.Confidence < old.Confidence {
			r.Label, r.Confidence = old.Label, old.Confidence
		}
		a.registry[key] = r
	default:
		if r.Confidence >= old.Confidence {
			a.registry[key] = r
		}
	}
}

// maybeSweepLocked evicts expired entries at most once per sweep interval.
func (a *Aggregator) maybeSweepLocked(now time.Time) {
	if !a.lastSweep.IsZero() && now.Sub(a.lastSweep) < a.cfg.SweepInterval {
		return
	}
	a.lastSweep = now
	evicted := 0
	for k, r := range a.registry {
		if r.Expired(now, a.cfg.ExpiryWindow) {
			delete(a.registry, k)
			evicted++
		}
	}
	a.metrics.RecordSweep()
	if evicted > 0 {
		a.log.Trace("registry swept", logger.Int("evicted", evicted), logger.Int("remaining", len(a.registry)))
	}
}

// publishLocked builds the ranked view. Expired entries not yet swept are
// excluded so no reader observes them.
func (a *Aggregator) publishLocked(now time.Time) *detection.LiveSnapshot {
	a.seq++
	snap := &detection.LiveSnapshot{
		Seq:       a.seq,
		Results:   rank(a.liveLocked(now), now, a.cfg),
		UpdatedAt: now,
	}
	a.current.Store(snap)
	a.metrics.RecordSnapshot(len(snap.Results), len(a.registry))
	if a.publish != nil {
		a.publish(snap)
	}
	return snap
}

func (a *Aggregator) liveLocked(now time.Time) []detection.ClassificationResult {
	live := make([]detection.ClassificationResult, 0, len(a.registry))
	for _, r := range a.registry {
		if !r.Expired(now, a.cfg.ExpiryWindow) {
			live = append(live, r)
		}
	}
	return live
}

// rank sorts by confidence, highest first, and caps at MaxResults. Equal
// confidences are ordered by recency then key for a stable view.
func rank(results []detection.ClassificationResult, now time.Time, cfg Config) []detection.LiveResult {
	slices.SortFunc(results, func(x, y detection.ClassificationResult) int {
		switch {
		case x.Confidence != y.Confidence:
			return cmp.Compare(y.Confidence, x.Confidence)
		case !x.ObservedAt.Equal(y.ObservedAt):
			return y.ObservedAt.Compare(x.ObservedAt)
		default:
			return cmp.Compare(x.Key(), y.Key())
		}
	})
	if len(results) > cfg.MaxResults {
		results = results[:cfg.MaxResults]
	}
	out := make([]detection.LiveResult, len(results))
	for i, r := range results {
		out[i] = detection.LiveResult{
			ClassificationResult: r,
			Display:              r.DisplayLabel(),
			Opacity:              r.DecayFactor(now, cfg.ExpiryWindow),
		}
	}
	return out
}

// Snapshot returns the latest published view with entries that expired since
// publication filtered out.
func (a *Aggregator) Snapshot() *detection.LiveSnapshot {
	snap := a.current.Load()
	now := a.now()
	stale := false
	for _, r := range snap.Results {
		if r.Expired(now, a.cfg.ExpiryWindow) {
			stale = true
			break
		}
	}
	if !stale {
		return snap
	}
	filtered := &detection.LiveSnapshot{Seq: snap.Seq, UpdatedAt: snap.UpdatedAt}
	for _, r := range snap.Results {
		if !r.Expired(now, a.cfg.ExpiryWindow) {
			r.Opacity = r.DecayFactor(now, a.cfg.ExpiryWindow)
			filtered.Results = append(filtered.Results, r)
		}
	}
	return filtered
}

// Tick sweeps if due and republishes so opacity and expiry are reflected
// without new inference output.
func (a *Aggregator) Tick() *detection.LiveSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.maybeSweepLocked(now)
	return a.publishLocked(now)
}

// Reset clears the registry and publishes an empty snapshot.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.registry)
	a.lastSweep = time.Time{}
	a.publishLocked(a.now())
}

// Len returns the number of registry entries, swept or not.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.registry)
}

// Run ticks every sweep interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}
