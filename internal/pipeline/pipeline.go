// Package pipeline wires the capture session, frame throttle, inference
// adapter, result aggregator, highlight evaluator and best shot sequencer into
// one live camera.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/lensnet-go/internal/aggregator"
	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/highlight"
	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/location"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
	"github.com/tphakala/lensnet-go/internal/privacy/faceblur"
	"github.com/tphakala/lensnet-go/internal/throttle"
)

// Config holds the live camera parameters.
type Config struct {
	Model           inference.ModelType
	Position        capture.Position
	Lens            string
	MinInterval     time.Duration
	Live            aggregator.Config
	HighlightRules  map[string]float64
	AssistedCapture bool
	FaceBlur        bool
	BlurStyle       faceblur.Style

	BestShotCaptureInterval time.Duration
	BestShotKeepTop         int
	BestShotThumbnailSize   int
	BestShotFinalizeTimeout time.Duration
}

// ConfigFromSettings maps loaded settings onto a Config.
func ConfigFromSettings(s *conf.Settings) (Config, error) {
	model, err := inference.ParseModelType(s.Model.Type)
	if err != nil {
		return Config{}, err
	}
	pos, err := capture.ParsePosition(s.Camera.Position)
	if err != nil {
		return Config{}, err
	}
	policy, err := aggregator.ParsePolicy(s.Live.RefreshPolicy)
	if err != nil {
		return Config{}, err
	}
	style, err := faceblur.ParseStyle(s.Privacy.Style)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Model:       model,
		Position:    pos,
		Lens:        s.Camera.Lens,
		MinInterval: s.Throttle.MinInterval,
		Live: aggregator.Config{
			ExpiryWindow:  s.Live.ExpiryWindow,
			SweepInterval: s.Live.SweepInterval,
			MaxResults:    s.Live.MaxResults,
			Policy:        policy,
		},
		HighlightRules:          s.Highlight.Rules,
		AssistedCapture:         s.Highlight.AssistedCapture,
		FaceBlur:                s.Privacy.FaceBlur,
		BlurStyle:               style,
		BestShotCaptureInterval: s.BestShot.CaptureInterval,
		BestShotKeepTop:         s.BestShot.KeepTop,
		BestShotThumbnailSize:   s.BestShot.ThumbnailSize,
		BestShotFinalizeTimeout: s.BestShot.FinalizeTimeout,
	}, nil
}

// Option configures a LiveCamera.
type Option func(*LiveCamera)

func WithClock(now func() time.Time) Option { return func(lc *LiveCamera) { lc.now = now } }

// WithBus publishes pipeline events on bus.
func WithBus(bus *events.Bus) Option { return func(lc *LiveCamera) { lc.bus = bus } }

func WithMetrics(m *observability.Metrics) Option { return func(lc *LiveCamera) { lc.metrics = m } }

// WithFaceBlur sets the transform used while face blur is enabled.
func WithFaceBlur(t *faceblur.Transform) Option { return func(lc *LiveCamera) { lc.blur = t } }

func WithLocation(p location.Provider) Option { return func(lc *LiveCamera) { lc.location = p } }

func WithSunCalc(sc *location.SunCalc) Option { return func(lc *LiveCamera) { lc.sun = sc } }

// WithStore persists user facing settings changes.
func WithStore(s *conf.Store) Option { return func(lc *LiveCamera) { lc.store = s } }

// WithBestShotTicker replaces the best shot countdown ticker.
func WithBestShotTicker(fn func(time.Duration) bestshot.Ticker) Option {
	return func(lc *LiveCamera) { lc.bestShotTicker = fn }
}

func WithLogger(l logger.Logger) Option { return func(lc *LiveCamera) { lc.log = l } }

// LiveCamera is the live classification pipeline.
type LiveCamera struct {
	cfg     Config
	session *capture.Session
	adapter *inference.Adapter

	dispatcher *throttle.Dispatcher
	aggregator *aggregator.Aggregator
	sequencer  *bestshot.Sequencer

	now            func() time.Time
	bus            *events.Bus
	metrics        *observability.Metrics
	blur           *faceblur.Transform
	location       location.Provider
	sun            *location.SunCalc
	store          *conf.Store
	bestShotTicker func(time.Duration) bestshot.Ticker
	log            logger.Logger

	rules           atomic.Pointer[highlight.RuleSet]
	lastHighlight   atomic.Pointer[highlight.Result]
	assistedCapture atomic.Bool
	faceBlur        atomic.Bool
	blurStyle       atomic.Value // faceblur.Style

	inputMu sync.Mutex // orders result merges against input resets

	mu        sync.Mutex // lifecycle
	setUp     bool
	running   bool
	closed    bool
	runCtx    context.Context
	runCancel context.CancelFunc
	runDone   chan struct{}

	swaps      sync.WaitGroup // background model switches
	life       context.Context
	lifeCancel context.CancelFunc
}

// New assembles a live camera around an existing capture session and
// inference adapter.
func New(cfg Config, session *capture.Session, adapter *inference.Adapter, opts ...Option) *LiveCamera {
	lc := &LiveCamera{
		cfg:     cfg,
		session: session,
		adapter: adapter,
		now:     time.Now,
		log:     logger.Global().Module("pipeline"),
	}
	for _, opt := range opts {
		opt(lc)
	}
	lc.life, lc.lifeCancel = context.WithCancel(context.Background())

	rules := highlight.NewRuleSet(cfg.HighlightRules)
	lc.rules.Store(&rules)
	lc.lastHighlight.Store(&highlight.Result{})
	lc.assistedCapture.Store(cfg.AssistedCapture)
	lc.faceBlur.Store(cfg.FaceBlur)
	style := cfg.BlurStyle
	if style == "" {
		style = faceblur.StylePixelate
	}
	lc.blurStyle.Store(style)

	pm := lc.pipelineMetrics()
	lc.aggregator = aggregator.New(cfg.Live,
		aggregator.WithClock(lc.now),
		aggregator.WithMetrics(pm),
		aggregator.WithPublish(lc.onSnapshot))
	lc.dispatcher = throttle.New(adapter, cfg.MinInterval, lc.onResults,
		throttle.WithClock(lc.now),
		throttle.WithMetrics(pm))

	bsOpts := []bestshot.Option{
		bestshot.WithClock(lc.now),
		bestshot.WithCaptureInterval(cfg.BestShotCaptureInterval),
		bestshot.WithKeepTop(cfg.BestShotKeepTop),
		bestshot.WithFinalizeTimeout(cfg.BestShotFinalizeTimeout),
		bestshot.WithThumbnailSize(cfg.BestShotThumbnailSize),
		bestshot.WithLocation(lc.location),
		bestshot.WithTransform(lc.protectPhoto),
		bestshot.OnComplete(lc.onBestShot),
	}
	if lc.sun != nil {
		bsOpts = append(bsOpts, bestshot.WithSunCalc(lc.sun))
	}
	if lc.metrics != nil {
		bsOpts = append(bsOpts, bestshot.WithMetrics(lc.metrics.BestShot))
	}
	if lc.bestShotTicker != nil {
		bsOpts = append(bsOpts, bestshot.WithTicker(lc.bestShotTicker))
	}
	lc.sequencer = bestshot.New(session, bsOpts...)

	session.Subscribe(lc.onFrame)
	return lc
}

func (lc *LiveCamera) pipelineMetrics() *metrics.PipelineMetrics {
	if lc.metrics == nil {
		return nil
	}
	return lc.metrics.Pipeline
}

// Setup selects the initial camera and loads the initial model. A missing
// model asset at this point is a hard setup error.
func (lc *LiveCamera) Setup(ctx context.Context) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.closed {
		return ErrClosed
	}
	if err := lc.session.Setup(ctx, lc.cfg.Position, lc.cfg.Lens); err != nil {
		return err
	}
	if _, err := lc.adapter.LoadModel(ctx, lc.cfg.Model); err != nil {
		if errors.Is(err, inference.ErrModelAssetMissing) {
			return errors.New(err).
				Component("pipeline").
				Category(errors.CategoryModelLoad).
				Priority(errors.PriorityCritical).
				Context("model", string(lc.cfg.Model)).
				Build()
		}
		return err
	}
	lc.setUp = true
	if dev, ok := lc.session.ActiveDevice(); ok {
		lc.publishCaptureChanged(dev)
	}
	return nil
}

// Start begins frame delivery and inference.
func (lc *LiveCamera) Start(ctx context.Context) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	switch {
	case lc.closed:
		return ErrClosed
	case !lc.setUp:
		return ErrNotSetUp
	case lc.running:
		return nil
	}

	lc.runCtx, lc.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	lc.runDone = make(chan struct{})
	lc.dispatcher.Start()
	if err := lc.session.Start(lc.runCtx); err != nil {
		lc.dispatcher.Stop()
		lc.runCancel()
		return err
	}
	go func(ctx context.Context, done chan struct{}) {
		defer close(done)
		lc.aggregator.Run(ctx)
	}(lc.runCtx, lc.runDone)

	lc.running = true
	lc.log.Info("live camera started",
		logger.String("model", string(lc.cfg.Model)),
		logger.Duration("min_interval", lc.dispatcher.MinInterval()))
	return nil
}

// Stop halts frame delivery, cancels an active best shot session without
// finalizing and clears all live results.
func (lc *LiveCamera) Stop() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.stopLocked()
}

func (lc *LiveCamera) stopLocked() {
	if !lc.running {
		return
	}
	lc.running = false
	lc.session.Stop()
	lc.dispatcher.Stop()
	lc.sequencer.Close()
	lc.runCancel()
	<-lc.runDone
	lc.aggregator.Reset()

	stats := lc.dispatcher.Stats()
	lc.log.Info("live camera stopped",
		logger.Uint64("frames_offered", stats.Offered),
		logger.Uint64("frames_submitted", stats.Submitted),
		logger.Uint64("frames_dropped", stats.Dropped()),
		logger.Uint64("inference_failed", stats.Failed))
}

// Close stops the camera, waits for background model switches and releases
// the inference adapter.
func (lc *LiveCamera) Close() error {
	lc.mu.Lock()
	if lc.closed {
		lc.mu.Unlock()
		return nil
	}
	lc.stopLocked()
	lc.closed = true
	lc.mu.Unlock()

	lc.lifeCancel()
	lc.swaps.Wait()
	lc.session.Subscribe(nil)
	return lc.adapter.Close()
}

// Running reports whether frames are flowing.
func (lc *LiveCamera) Running() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.running
}

func (lc *LiveCamera) onFrame(f detection.Frame) {
	lc.dispatcher.Offer(f)
}

// onResults merges results unless the frame came from an input that has
// since been replaced.
func (lc *LiveCamera) onResults(f detection.Frame, results []detection.ClassificationResult) {
	lc.inputMu.Lock()
	defer lc.inputMu.Unlock()
	if f.Generation != lc.session.Generation() {
		lc.log.Debug("discarding results from a previous input",
			logger.Uint64("seq", f.Seq),
			logger.Uint64("generation", f.Generation))
		return
	}
	lc.aggregator.Merge(results)
}

// resetLive clears live results after the input changed.
func (lc *LiveCamera) resetLive() {
	lc.inputMu.Lock()
	defer lc.inputMu.Unlock()
	lc.aggregator.Reset()
}

// onSnapshot runs once per published snapshot with the aggregator lock held,
// so evaluations observe snapshots in publish order.
func (lc *LiveCamera) onSnapshot(snap *detection.LiveSnapshot) {
	res := highlight.Evaluate(snap.Results, *lc.rules.Load())
	lc.lastHighlight.Store(&res)
	lc.pipelineMetrics().SetHighlighted(res.ShouldHighlight)

	lc.sequencer.Observe(snap)
	lc.bus.TryPublish(events.LiveUpdate{Snapshot: snap, Highlight: res})
}

func (lc *LiveCamera) onBestShot(c bestshot.Completion) {
	lc.bus.TryPublish(events.BestShotEnded{Completion: c})
}

// protectPhoto blurs faces while face blur is enabled.
func (lc *LiveCamera) protectPhoto(ctx context.Context, data []byte) ([]byte, int, error) {
	if !lc.faceBlur.Load() || lc.blur == nil {
		return data, 0, nil
	}
	return lc.blur.ApplyJPEG(ctx, data, lc.blurStyle.Load().(faceblur.Style))
}

func (lc *LiveCamera) publishCaptureChanged(dev capture.Device) {
	lc.bus.TryPublish(events.CaptureChanged{
		DeviceID: dev.ID,
		Position: string(dev.Position),
		Lens:     dev.Lens,
		At:       lc.now(),
	})
}

func (lc *LiveCamera) publishError(component string, err error) {
	lc.bus.TryPublish(events.NewErrorEvent(component, err, lc.now()))
}
