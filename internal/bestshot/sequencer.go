package bestshot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/location"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

// Capturer takes a full resolution photo.
type Capturer interface {
	CapturePhoto(ctx context.Context) ([]byte, error)
}

// PhotoTransform rewrites a captured photo before it becomes a candidate,
// for example to blur faces. It returns the number of regions changed.
type PhotoTransform func(ctx context.Context, data []byte) ([]byte, int, error)

// Ticker drives the countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

// CompletionFunc receives every ended session. It runs on the goroutine that
// ended the session.
type CompletionFunc func(Completion)

// Option configures a Sequencer.
type Option func(*Sequencer)

func WithClock(now func() time.Time) Option { return func(s *Sequencer) { s.now = now } }

// WithTicker replaces the one second countdown ticker.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(s *Sequencer) { s.newTicker = newTicker }
}

func WithMetrics(m *metrics.BestShotMetrics) Option { return func(s *Sequencer) { s.metrics = m } }

func WithLogger(l logger.Logger) Option { return func(s *Sequencer) { s.log = l } }

// WithLocation attaches the provider's coordinate to every candidate.
func WithLocation(p location.Provider) Option { return func(s *Sequencer) { s.location = p } }

// WithSunCalc tags every candidate with the light conditions at capture.
func WithSunCalc(sc *location.SunCalc) Option { return func(s *Sequencer) { s.sun = sc } }

// WithTransform runs fn on every captured photo.
func WithTransform(fn PhotoTransform) Option { return func(s *Sequencer) { s.transform = fn } }

// WithThumbnailSize sets the longest thumbnail edge; zero disables thumbnails.
func WithThumbnailSize(px int) Option { return func(s *Sequencer) { s.thumbSize = px } }

func WithCaptureInterval(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.captureInterval = d
		}
	}
}

func WithKeepTop(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.keepTop = n
		}
	}
}

func WithFinalizeTimeout(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.finalizeTimeout = d
		}
	}
}

// OnComplete registers fn for ended sessions.
func OnComplete(fn CompletionFunc) Option { return func(s *Sequencer) { s.onComplete = fn } }

// session is the state of one run. Fields below mu in Sequencer guard it.
type session struct {
	id        string
	params    Params
	startedAt time.Time
	remaining time.Duration
	lastShot  time.Time
	cands     []Candidate
	failed    int

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{} // closed to end the countdown goroutine
	stopOnce sync.Once
	done     chan struct{} // closed when the countdown goroutine exits
	captures sync.WaitGroup
}

func (ss *session) stopCountdown() {
	ss.stopOnce.Do(func() { close(ss.stop) })
}

// Sequencer owns at most one best shot session at a time.
type Sequencer struct {
	capturer        Capturer
	now             func() time.Time
	newTicker       func(time.Duration) Ticker
	metrics         *metrics.BestShotMetrics
	log             logger.Logger
	location        location.Provider
	sun             *location.SunCalc
	transform       PhotoTransform
	thumbSize       int
	captureInterval time.Duration
	keepTop         int
	finalizeTimeout time.Duration
	onComplete      CompletionFunc

	mu      sync.Mutex
	state   State
	session *session
}

// New creates an inactive sequencer capturing through c.
func New(c Capturer, opts ...Option) *Sequencer {
	s := &Sequencer{
		capturer:        c,
		now:             time.Now,
		newTicker:       func(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} },
		log:             logger.Global().Module("bestshot"),
		thumbSize:       DefaultThumbnailSize,
		captureInterval: DefaultCaptureInterval,
		keepTop:         DefaultKeepTop,
		finalizeTimeout: DefaultFinalizeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a session and returns its id. Cancelling ctx cancels the
// session without finalizing it.
func (s *Sequencer) Start(ctx context.Context, p Params) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInactive {
		return "", errors.New(ErrSessionActive).
			Component("bestshot").
			Category(errors.CategoryConflict).
			Context("session_id", s.session.id).
			Build()
	}

	sctx, cancel := context.WithCancel(ctx)
	ss := &session{
		id:        uuid.NewString(),
		params:    p,
		startedAt: s.now(),
		remaining: p.Duration,
		ctx:       sctx,
		cancel:    cancel,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.session = ss
	s.state = StateActive

	ticker := s.newTicker(time.Second)
	go s.countdown(ss, ticker)

	s.metrics.SessionStarted()
	s.log.Info("best shot session started",
		logger.String("session_id", ss.id),
		logger.String("target", p.TargetLabel),
		logger.Float32("threshold", p.Threshold),
		logger.Duration("duration", p.Duration))
	return ss.id, nil
}

func (s *Sequencer) countdown(ss *session, ticker Ticker) {
	defer close(ss.done)
	defer ticker.Stop()
	for {
		select {
		case <-ss.stop:
			return
		case <-ss.ctx.Done():
			if s.claim(ss) {
				s.finish(ss, false)
			}
			return
		case <-ticker.C():
			if s.tick(ss) {
				s.finish(ss, true)
				return
			}
		}
	}
}

// tick counts down one second and reports whether the caller now owns
// finalization.
func (s *Sequencer) tick(ss *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != ss || s.state != StateActive {
		return false
	}
	ss.remaining -= time.Second
	if ss.remaining > 0 {
		return false
	}
	ss.remaining = 0
	s.state = StateCompleting
	return true
}

// claim moves an active session to Completing; exactly one caller wins.
func (s *Sequencer) claim(ss *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != ss || s.state != StateActive {
		return false
	}
	s.state = StateCompleting
	return true
}

// Observe checks a published live snapshot for the target label and
// triggers a capture when it qualifies and the last capture is at least the
// capture interval ago.
func (s *Sequencer) Observe(snap *detection.LiveSnapshot) {
	if snap.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := s.session
	if ss == nil || s.state != StateActive {
		return
	}
	r, ok := snap.Find(ss.params.TargetLabel)
	if !ok || r.Confidence < ss.params.Threshold {
		return
	}
	now := s.now()
	if !ss.lastShot.IsZero() && now.Sub(ss.lastShot) < s.captureInterval {
		return
	}
	ss.lastShot = now
	ss.captures.Add(1)
	go s.capture(ss, r.ClassificationResult, now)
}

func (s *Sequencer) capture(ss *session, trigger detection.ClassificationResult, at time.Time) {
	defer ss.captures.Done()

	start := time.Now()
	data, err := s.capturer.CapturePhoto(ss.ctx)
	s.metrics.RecordCapture(time.Since(start).Seconds(), err)
	if err != nil {
		s.recordFailure(ss, err)
		return
	}

	cand := Candidate{
		ID:               uuid.NewString(),
		SessionID:        ss.id,
		TriggeringResult: trigger,
		CapturedAt:       at,
		Location:         location.Lookup(ss.ctx, s.location),
	}
	if s.transform != nil {
		out, n, err := s.transform(ss.ctx, data)
		if err != nil {
			// an unblurred photo must not leak out
			s.recordFailure(ss, err)
			return
		}
		data, cand.FacesBlurred = out, n
	}
	cand.ImageData = data
	if s.thumbSize > 0 {
		thumb, err := makeThumbnail(data, s.thumbSize)
		if err != nil {
			s.log.Debug("thumbnail failed", logger.String("session_id", ss.id), logger.Error(err))
		}
		cand.Thumbnail = thumb
	}
	if s.sun != nil {
		cand.Light = s.sun.Light(at)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != ss {
		return
	}
	ss.cands = append(ss.cands, cand)
	s.log.Debug("best shot candidate captured",
		logger.String("session_id", ss.id),
		logger.Float32("confidence", trigger.Confidence),
		logger.Int("candidates", len(ss.cands)))
}

func (s *Sequencer) recordFailure(ss *session, err error) {
	s.mu.Lock()
	ss.failed++
	s.mu.Unlock()
	if ss.ctx.Err() != nil {
		return
	}
	s.log.Warn("best shot capture failed, skipping",
		logger.String("session_id", ss.id),
		logger.Error(err))
}

// Stop ends the active session early. With finalize the candidates captured
// so far are ranked and returned as on a natural timeout; without it they are
// discarded.
func (s *Sequencer) Stop(finalize bool) ([]Candidate, error) {
	s.mu.Lock()
	ss := s.session
	if ss == nil || s.state != StateActive {
		s.mu.Unlock()
		return nil, ErrNotActive
	}
	s.state = StateCompleting
	s.mu.Unlock()

	ss.stopCountdown()
	<-ss.done
	return s.finish(ss, finalize), nil
}

// finish ends a session the caller has claimed.
func (s *Sequencer) finish(ss *session, finalize bool) []Candidate {
	if finalize && !waitTimeout(&ss.captures, s.finalizeTimeout) {
		s.log.Warn("best shot finalization timed out waiting for captures",
			logger.String("session_id", ss.id),
			logger.Duration("timeout", s.finalizeTimeout))
	}
	ss.cancel()
	if !finalize {
		waitTimeout(&ss.captures, s.finalizeTimeout)
	}

	s.mu.Lock()
	captured, failed := ss.cands, ss.failed
	ss.cands = nil
	s.session = nil
	s.state = StateInactive
	s.mu.Unlock()

	var ranked []Candidate
	outcome := metrics.OutcomeCancelled
	if finalize {
		ranked = Rank(captured, s.keepTop)
		outcome = metrics.OutcomeCompleted
		if len(ranked) == 0 {
			outcome = metrics.OutcomeEmpty
		}
	}
	s.metrics.SessionEnded(outcome, len(ranked))
	s.log.Info("best shot session ended",
		logger.String("session_id", ss.id),
		logger.String("outcome", outcome),
		logger.Int("captured", len(captured)),
		logger.Int("failed", failed),
		logger.Int("returned", len(ranked)))

	if s.onComplete != nil {
		s.onComplete(Completion{
			SessionID:  ss.id,
			Params:     ss.params,
			Outcome:    outcome,
			Candidates: ranked,
			Captured:   len(captured),
			Failed:     failed,
			StartedAt:  ss.startedAt,
			EndedAt:    s.now(),
		})
	}
	return ranked
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress reports the countdown and running candidate count.
func (s *Sequencer) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{State: s.state, StateName: s.state.String()}
	if ss := s.session; ss != nil {
		p.SessionID = ss.id
		p.TargetLabel = ss.params.TargetLabel
		p.Threshold = ss.params.Threshold
		p.Remaining = ss.remaining
		p.RemainingSeconds = ss.remaining.Seconds()
		p.Candidates = len(ss.cands)
		p.StartedAt = ss.startedAt
	}
	return p
}

// Close cancels any active session without finalizing and waits for a
// session that is already completing.
func (s *Sequencer) Close() {
	if _, err := s.Stop(false); err == nil {
		return
	}
	s.mu.Lock()
	ss := s.session
	s.mu.Unlock()
	if ss != nil {
		<-ss.done
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
