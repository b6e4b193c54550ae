package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
	"github.com/tphakala/lensnet-go/internal/privacy"
)

// Topic suffixes under the base topic.
const (
	TopicLive     = "live"
	TopicBestShot = "bestshot"
	TopicModel    = "model"
	TopicCamera   = "camera"
	TopicError    = "error"
	TopicStatus   = "status"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

const publishTimeout = 5 * time.Second

// Publisher forwards pipeline events to the broker. Live updates are rate
// limited; a change of the highlight flag is always published.
type Publisher struct {
	client    Client
	baseTopic string
	retain    bool
	limiter   *rate.Limiter
	discovery *Discovery
	metrics   *metrics.MQTTMetrics
	log       logger.Logger

	lastHighlighted atomic.Bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDiscovery publishes Home Assistant discovery configs on Start.
func WithDiscovery(d *Discovery) PublisherOption {
	return func(p *Publisher) { p.discovery = d }
}

// NewPublisher creates a publisher over client.
func NewPublisher(client Client, settings *conf.Settings, m *metrics.MQTTMetrics, opts ...PublisherOption) *Publisher {
	interval := settings.MQTT.PublishInterval
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	p := &Publisher{
		client:    client,
		baseTopic: settings.MQTT.Topic,
		retain:    settings.MQTT.Retain,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   m,
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements events.Consumer.
func (p *Publisher) Name() string { return "mqtt" }

// Start connects and announces the node.
func (p *Publisher) Start(ctx context.Context) error {
	if err := p.client.Connect(ctx); err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.topic(TopicStatus), []byte(StatusOnline), true); err != nil {
		p.log.Warn("failed to publish online status", logger.Error(err))
	}
	if p.discovery != nil {
		if err := p.discovery.Publish(ctx); err != nil {
			p.log.Warn("Home Assistant discovery failed", logger.Error(err))
		}
	}
	return nil
}

// Close announces the node offline and disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.client.Publish(ctx, p.topic(TopicStatus), []byte(StatusOffline), true); err != nil {
			p.log.Debug("failed to publish offline status", logger.Error(err))
		}
	}
	p.client.Disconnect()
}

// Consume implements events.Consumer.
func (p *Publisher) Consume(e events.Event) error {
	switch ev := e.(type) {
	case events.LiveUpdate:
		highlighted := ev.Highlight.ShouldHighlight
		changed := p.lastHighlighted.Swap(highlighted) != highlighted
		if !changed && !p.limiter.Allow() {
			p.metrics.IncrementSkipped()
			return nil
		}
		return p.publishJSON(TopicLive, NewLiveDTO(ev), p.retain)
	case events.BestShotEnded:
		return p.publishJSON(TopicBestShot, NewBestShotDTO(ev.Completion), p.retain)
	case events.ModelChanged:
		return p.publishJSON(TopicModel, NewModelDTO(ev), true)
	case events.CaptureChanged:
		return p.publishJSON(TopicCamera, map[string]string{
			"device":   ev.DeviceID,
			"position": ev.Position,
			"lens":     ev.Lens,
		}, true)
	case events.ErrorEvent:
		return p.publishJSON(TopicError, map[string]string{
			"component": ev.Err.GetComponent(),
			"category":  ev.Err.GetCategory(),
			"message":   privacy.ScrubMessage(ev.Err.Error()),
			"timestamp": ev.At.Format(time.RFC3339),
		}, false)
	}
	return nil
}

func (p *Publisher) publishJSON(suffix string, v any, retain bool) error {
	if !p.client.IsConnected() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return p.client.Publish(ctx, p.topic(suffix), data, retain)
}

func (p *Publisher) topic(suffix string) string {
	return p.baseTopic + "/" + suffix
}

// Kinds lists the event kinds the publisher consumes.
func Kinds() []events.Kind {
	return []events.Kind{
		events.KindLiveUpdate,
		events.KindBestShotEnded,
		events.KindModelChanged,
		events.KindCaptureChanged,
		events.KindError,
	}
}
