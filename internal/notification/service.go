package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
	"github.com/tphakala/lensnet-go/internal/privacy"
)

const defaultSendTimeout = 10 * time.Second

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *metrics.NotificationMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithCircuitBreaker sets the per provider breaker configuration.
func WithCircuitBreaker(cfg CircuitBreakerConfig) Option {
	return func(s *Service) { s.breakerConfig = cfg }
}

// WithTemplates replaces the best shot templates.
func WithTemplates(t *Templates) Option { return func(s *Service) { s.templates = t } }

// WithSendTimeout bounds each provider delivery.
func WithSendTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

type target struct {
	provider Provider
	breaker  *CircuitBreaker
}

// Service turns pipeline events into notifications and fans them out to
// providers. Every provider sits behind its own circuit breaker.
type Service struct {
	node          string
	targets       []target
	templates     *Templates
	breakerConfig CircuitBreakerConfig
	timeout       time.Duration
	metrics       *metrics.NotificationMetrics
	now           func() time.Time
	log           logger.Logger
}

// NewService creates a service over providers. Disabled providers are skipped.
func NewService(node string, providers []Provider, opts ...Option) *Service {
	s := &Service{
		node:          node,
		breakerConfig: DefaultCircuitBreakerConfig(),
		timeout:       defaultSendTimeout,
		now:           time.Now,
		log:           GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.templates == nil {
		// defaults are static
		s.templates, _ = ParseTemplates("", "")
	}
	for _, p := range providers {
		if !p.IsEnabled() {
			continue
		}
		s.targets = append(s.targets, target{
			provider: p,
			breaker:  NewCircuitBreaker(s.breakerConfig, p.GetName(), s.now),
		})
	}
	return s
}

// NewFromSettings builds a service with one shoutrrr provider covering every
// configured URL.
func NewFromSettings(settings *conf.Settings, m *metrics.NotificationMetrics) (*Service, error) {
	p := NewShoutrrrProvider("shoutrrr", settings.Notification.Enabled, settings.Notification.URLs, nil, settings.Notification.Timeout)
	if err := p.ValidateConfig(); err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	GetLogger().Info("notification providers configured",
		logger.Any("endpoints", p.Endpoints()))
	return NewService(settings.Main.Name, []Provider{p}, WithMetrics(m)), nil
}

// Name implements events.Consumer.
func (s *Service) Name() string { return "notification" }

// Kinds lists the event kinds the service consumes.
func Kinds() []events.Kind {
	return []events.Kind{events.KindBestShotEnded, events.KindError, events.KindResource}
}

// Consume implements events.Consumer.
func (s *Service) Consume(e events.Event) error {
	n, ok, err := s.build(e)
	if err != nil || !ok {
		return err
	}
	return s.Notify(context.Background(), n)
}

func (s *Service) build(e events.Event) (*Notification, bool, error) {
	switch ev := e.(type) {
	case events.BestShotEnded:
		if ev.Outcome == metrics.OutcomeCancelled {
			return nil, false, nil
		}
		title, msg, err := s.templates.Render(NewTemplateData(s.node, ev.Completion))
		if err != nil {
			return nil, false, fmt.Errorf("render best shot notification: %w", err)
		}
		return &Notification{
			Type:      TypeBestShot,
			Priority:  PriorityMedium,
			Title:     title,
			Message:   msg,
			Component: "bestshot",
			Timestamp: ev.EndedAt,
		}, true, nil

	case events.ErrorEvent:
		prio := Priority(ev.Err.Priority)
		if prio != PriorityHigh && prio != PriorityCritical {
			return nil, false, nil
		}
		return &Notification{
			Type:      TypeError,
			Priority:  prio,
			Title:     fmt.Sprintf("%s: %s error", s.node, ev.Err.GetComponent()),
			Message:   privacy.ScrubMessage(ev.Err.Error()),
			Component: ev.Err.GetComponent(),
			Timestamp: ev.At,
		}, true, nil

	case events.ResourceEvent:
		return s.resourceNotification(ev), true, nil
	}
	return nil, false, nil
}

func (s *Service) resourceNotification(ev events.ResourceEvent) *Notification {
	what := ev.Resource
	if ev.Path != "" {
		what = fmt.Sprintf("%s (%s)", ev.Resource, ev.Path)
	}
	n := &Notification{
		Type:      TypeWarning,
		Priority:  PriorityHigh,
		Title:     fmt.Sprintf("%s: high %s usage", s.node, ev.Resource),
		Message:   fmt.Sprintf("%s usage at %.0f%% exceeds %.0f%%", what, ev.Value, ev.Threshold),
		Component: "monitor",
		Timestamp: ev.At,
	}
	if ev.Resource == events.ResourceCPU {
		n.Message += "; inference is slowed down."
	} else {
		n.Message += "; new captures may fail to save."
	}
	if ev.Severity == events.SeverityRecovery {
		n.Type = TypeInfo
		n.Priority = PriorityLow
		n.Title = fmt.Sprintf("%s: %s usage recovered", s.node, ev.Resource)
		n.Message = fmt.Sprintf("%s usage back at %.0f%%.", what, ev.Value)
	}
	return n
}

// Notify delivers n to every provider supporting its type. Failures of
// individual providers are joined.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}
	var errs []error
	for _, t := range s.targets {
		if !t.provider.SupportsType(n.Type) {
			continue
		}
		err := t.breaker.Call(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return t.provider.Send(ctx, n)
		})
		s.metrics.RecordSend(t.provider.GetName(), err)
		if err != nil {
			s.log.Warn("notification delivery failed",
				logger.String("provider", t.provider.GetName()),
				logger.String("type", string(n.Type)),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.provider.GetName(), err))
			continue
		}
		s.log.Debug("notification delivered",
			logger.String("provider", t.provider.GetName()),
			logger.String("type", string(n.Type)))
	}
	return errors.Join(errs...)
}
