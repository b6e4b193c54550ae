// Package inferencetest provides in-memory models for tests of inference consumers.
package inferencetest

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/tphakala/lensnet-go/internal/inference"
)

// Model is a scripted inference.Model.
type Model struct {
	Type inference.ModelType

	mu      sync.Mutex
	preds   []inference.Prediction
	err     error
	panicV  any
	block   chan struct{} // Predict waits for a receive when non-nil
	calls   atomic.Int64
	closed  atomic.Bool
	running atomic.Int32
	maxConc atomic.Int32
}

// NewModel returns a model that always predicts preds.
func NewModel(t inference.ModelType, preds ...inference.Prediction) *Model {
	return &Model{Type: t, preds: preds}
}

// SetPredictions replaces the scripted predictions.
func (m *Model) SetPredictions(preds ...inference.Prediction) {
	m.mu.Lock()
	m.preds = preds
	m.mu.Unlock()
}

// SetError makes Predict fail with err.
func (m *Model) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// SetPanic makes Predict panic with v.
func (m *Model) SetPanic(v any) {
	m.mu.Lock()
	m.panicV = v
	m.mu.Unlock()
}

// Block makes Predict wait until Release is called once per call.
func (m *Model) Block() {
	m.mu.Lock()
	m.block = make(chan struct{})
	m.mu.Unlock()
}

// Release unblocks one pending Predict call.
func (m *Model) Release() {
	m.mu.Lock()
	ch := m.block
	m.mu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
}

// Calls returns the number of Predict calls.
func (m *Model) Calls() int64 { return m.calls.Load() }

// MaxConcurrent returns the highest number of overlapping Predict calls seen.
func (m *Model) MaxConcurrent() int32 { return m.maxConc.Load() }

// Closed reports whether Close was called.
func (m *Model) Closed() bool { return m.closed.Load() }

// Info implements inference.Model.
func (m *Model) Info() inference.Info {
	return inference.Info{Type: m.Type, Name: string(m.Type), Classes: len(m.preds), Accelerate: "fake", Threads: 1}
}

// Predict implements inference.Model.
func (m *Model) Predict(ctx context.Context, _ image.Image) ([]inference.Prediction, error) {
	m.calls.Add(1)
	n := m.running.Add(1)
	defer m.running.Add(-1)
	for {
		cur := m.maxConc.Load()
		if n <= cur || m.maxConc.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	preds, err, panicV, block := m.preds, m.err, m.panicV, m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panicV != nil {
		panic(panicV)
	}
	if err != nil {
		return nil, err
	}
	return append([]inference.Prediction(nil), preds...), nil
}

// Close implements inference.Model.
func (m *Model) Close() error {
	m.closed.Store(true)
	return nil
}

// Loader serves preconfigured models and counts loads.
type Loader struct {
	mu     sync.Mutex
	models map[inference.ModelType]*Model
	errs   map[inference.ModelType]error
	gate   chan struct{}
	loads  atomic.Int64
}

// NewLoader returns a loader serving models.
func NewLoader(models ...*Model) *Loader {
	l := &Loader{
		models: make(map[inference.ModelType]*Model),
		errs:   make(map[inference.ModelType]error),
	}
	for _, m := range models {
		l.models[m.Type] = m
	}
	return l
}

// Fail makes loads of t fail with err.
func (l *Loader) Fail(t inference.ModelType, err error) {
	l.mu.Lock()
	l.errs[t] = err
	l.mu.Unlock()
}

// Hold makes Load wait until Proceed is called once per load.
func (l *Loader) Hold() {
	l.mu.Lock()
	l.gate = make(chan struct{})
	l.mu.Unlock()
}

// Proceed lets one held load continue.
func (l *Loader) Proceed() {
	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// Loads returns the number of Load calls.
func (l *Loader) Loads() int64 { return l.loads.Load() }

// Load implements inference.Loader.
func (l *Loader) Load(ctx context.Context, t inference.ModelType) (inference.Model, error) {
	l.loads.Add(1)
	l.mu.Lock()
	gate, err, m := l.gate, l.errs[t], l.models[t]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, inference.ErrModelAssetMissing
	}
	return m, nil
}
