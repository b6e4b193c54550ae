package inference

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

const (
	// DefaultMinConfidence is the exclusive lower bound for returned results.
	DefaultMinConfidence = 0.25
	// DefaultTopK is the number of results returned per frame.
	DefaultTopK = 5
)

// Config holds the result shaping parameters of an Adapter.
type Config struct {
	TopK          int
	MinConfidence float32
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMetrics records loads and classifications on m.
func WithMetrics(m *metrics.InferenceMetrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithLogger sets the adapter logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// activeModel pairs a model with the type it was loaded for.
type activeModel struct {
	typ   ModelType
	model Model
}

// Adapter owns the active model and a cache of every model loaded so far.
//
// The active model reference is swapped atomically once a load succeeds, so
// Classify never observes a partially initialized model. While a load is in
// flight IsSwapping reports true. Selections settle in request order: a load
// that finishes after another type was requested is cached but not activated.
type Adapter struct {
	loader  Loader
	cfg     Config
	models  *cache.Cache // ModelType -> Model, never expires
	active  atomic.Pointer[activeModel]
	pending atomic.Int32
	group   singleflight.Group
	closed  atomic.Bool
	mu      sync.Mutex // serializes activation, unload and close
	wanted  ModelType  // most recently requested type, guarded by mu

	metrics *metrics.InferenceMetrics
	now     func() time.Time
	log     logger.Logger
}

// NewAdapter creates an adapter with no active model.
func NewAdapter(loader Loader, cfg Config, opts ...Option) *Adapter {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}

	a := &Adapter{
		loader: loader,
		cfg:    cfg,
		// zero cleanup interval: no janitor goroutine
		models: cache.New(cache.NoExpiration, 0),
		now:    time.Now,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.models.OnEvicted(func(key string, v any) {
		if m, ok := v.(Model); ok {
			if err := m.Close(); err != nil {
				a.log.Warn("failed to close evicted model", logger.String("model", key), logger.Error(err))
			}
		}
	})
	return a
}

// LoadModel makes t the active model, loading it unless it is cached.
// On failure the previously active model stays active. If another type is
// requested before the load finishes, the loaded model is only cached and
// ErrModelSuperseded is returned.
func (a *Adapter) LoadModel(ctx context.Context, t ModelType) (Info, error) {
	if a.closed.Load() {
		return Info{}, ErrAdapterClosed
	}
	if _, ok := t.Spec(); !ok {
		return Info{}, errors.New(fmt.Errorf("%w: %q", ErrUnknownModel, t)).
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}

	a.mu.Lock()
	a.wanted = t
	a.mu.Unlock()

	if cur := a.active.Load(); cur != nil && cur.typ == t {
		return cur.model.Info(), nil
	}
	if v, ok := a.models.Get(string(t)); ok {
		a.metrics.RecordCacheHit(string(t))
		return a.activate(t, v.(Model))
	}

	a.pending.Add(1)
	defer a.pending.Add(-1)

	start := time.Now()
	v, err, _ := a.group.Do(string(t), func() (any, error) {
		if v, ok := a.models.Get(string(t)); ok {
			return v, nil
		}
		m, err := a.loader.Load(ctx, t)
		if err != nil {
			return nil, err
		}
		a.models.Set(string(t), m, cache.NoExpiration)
		return m, nil
	})
	a.metrics.RecordModelLoad(string(t), time.Since(start), err)
	if err != nil {
		a.log.Error("model load failed",
			logger.String("model", string(t)),
			logger.Error(err))
		return Info{}, errors.New(err).
			Component("inference").
			Category(errors.CategoryModelLoad).
			Context("model", string(t)).
			Timing("model-load", time.Since(start)).
			Build()
	}

	info, err := a.activate(t, v.(Model))
	if err != nil {
		if errors.Is(err, ErrModelSuperseded) {
			a.log.Debug("model loaded but no longer selected", logger.String("model", string(t)))
		}
		return Info{}, err
	}
	a.log.Info("model loaded",
		logger.String("model", string(t)),
		logger.String("accelerator", info.Accelerate),
		logger.Int("threads", info.Threads),
		logger.Int("classes", info.Classes),
		logger.Duration("duration", time.Since(start)))
	return info, nil
}

func (a *Adapter) activate(t ModelType, m Model) (Info, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return Info{}, ErrAdapterClosed
	}
	if a.wanted != t {
		return Info{}, fmt.Errorf("%w: %s", ErrModelSuperseded, t)
	}
	a.active.Store(&activeModel{typ: t, model: m})
	known := make([]string, 0, len(modelSpecs))
	for _, st := range SupportedModels() {
		known = append(known, string(st))
	}
	a.metrics.SetActiveModel(string(t), known)
	return m.Info(), nil
}

// Active returns the type of the active model.
func (a *Adapter) Active() (ModelType, bool) {
	cur := a.active.Load()
	if cur == nil {
		return "", false
	}
	return cur.typ, true
}

// ActiveInfo returns information about the active model.
func (a *Adapter) ActiveInfo() (Info, bool) {
	cur := a.active.Load()
	if cur == nil {
		return Info{}, false
	}
	return cur.model.Info(), true
}

// Cached returns the model types held in the cache, sorted.
func (a *Adapter) Cached() []ModelType {
	items := a.models.Items()
	types := make([]ModelType, 0, len(items))
	for k := range items {
		types = append(types, ModelType(k))
	}
	slices.Sort(types)
	return types
}

// IsSwapping reports whether a model load is in flight.
func (a *Adapter) IsSwapping() bool {
	return a.pending.Load() > 0
}

// Ready reports whether a model is active and no load is in flight.
func (a *Adapter) Ready() bool {
	return a.active.Load() != nil && !a.IsSwapping()
}

// Unload closes a cached model that is not active.
func (a *Adapter) Unload(t ModelType) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur := a.active.Load(); cur != nil && cur.typ == t {
		return ErrCannotUnloadActive
	}
	if _, ok := a.models.Get(string(t)); !ok {
		return errors.New(fmt.Errorf("model %q is not loaded", t)).
			Component("inference").
			Category(errors.CategoryNotFound).
			Build()
	}
	a.models.Delete(string(t))
	return nil
}

// Close releases every cached model. Further calls fail with ErrAdapterClosed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Swap(true) {
		return nil
	}
	a.active.Store(nil)
	for k := range a.models.Items() {
		a.models.Delete(k)
	}
	return nil
}

// Classify runs the active model on a camera frame.
func (a *Adapter) Classify(ctx context.Context, buf *detection.PixelBuffer, o detection.Orientation) ([]detection.ClassificationResult, error) {
	if a.active.Load() == nil {
		return nil, a.notReady()
	}
	img, err := buf.Image(o)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryImageProcess).
			Build()
	}
	return a.ClassifyImage(ctx, img)
}

// ClassifyImage runs the active model on an upright image.
// Results are filtered to confidence above the minimum, sorted descending and
// truncated to TopK.
func (a *Adapter) ClassifyImage(ctx context.Context, img image.Image) (results []detection.ClassificationResult, err error) {
	cur := a.active.Load()
	if cur == nil {
		return nil, a.notReady()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = errors.New(fmt.Errorf("%w: model panic: %v", ErrInferenceFailed, r)).
				Component("inference").
				Category(errors.CategoryInference).
				Priority(errors.PriorityHigh).
				Context("model", string(cur.typ)).
				Build()
		}
		a.metrics.RecordClassify(string(cur.typ), time.Since(start), err)
	}()

	preds, err := cur.model.Predict(ctx, img)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrInferenceFailed, err)).
			Component("inference").
			Category(errors.CategoryInference).
			Context("model", string(cur.typ)).
			Build()
	}
	return rankPredictions(preds, a.cfg.MinConfidence, a.cfg.TopK, a.now()), nil
}

func (a *Adapter) notReady() error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	return ErrNotReady
}

// rankPredictions keeps predictions above minConfidence, highest first, at most topK.
func rankPredictions(preds []Prediction, minConfidence float32, topK int, at time.Time) []detection.ClassificationResult {
	results := make([]detection.ClassificationResult, 0, min(len(preds), topK))
	for _, p := range preds {
		if p.Confidence > minConfidence {
			results = append(results, detection.NewResult(p.Label, p.Confidence, at))
		}
	}
	slices.SortStableFunc(results, func(x, y detection.ClassificationResult) int {
		switch {
		case x.Confidence > y.Confidence:
			return -1
		case x.Confidence < y.Confidence:
			return 1
		default:
			return 0
		}
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
