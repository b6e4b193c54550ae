package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
	"github.com/tphakala/lensnet-go/internal/privacy"
)

var (
	ErrNotConnected   = errors.NewStd("not connected to MQTT broker")
	ErrTooSoon        = errors.NewStd("connection attempt too recent")
	ErrPublishTimeout = errors.NewStd("publish timeout")
)

// client implements Client on top of paho.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
	stopOnce        sync.Once
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates a client for the broker configured in settings.
func NewClient(settings *conf.Settings, m *metrics.MQTTMetrics) Client {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.ClientID = settings.Main.Name
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	return newClient(cfg, m)
}

func newClient(cfg Config, m *metrics.MQTTMetrics) *client {
	return &client{
		config:        cfg,
		reconnectStop: make(chan struct{}),
		metrics:       m,
		log:           GetLogger(),
	}
}

// Connect resolves the broker host and connects.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return fmt.Errorf("%w, last attempt was %v ago", ErrTooSoon, since.Round(time.Millisecond))
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Host == "" {
		return errors.New(fmt.Errorf("invalid broker URL %s", privacy.RedactEndpoint(c.config.Broker))).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryMQTTConnection).
				Context("broker", privacy.RedactEndpoint(c.config.Broker)).
				Build()
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.Newf("connection timeout after %v", c.config.ConnectTimeout).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", privacy.RedactEndpoint(c.config.Broker)).
			Build()
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

// Publish sends payload to topic at QoS 0.
func (c *client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 0, retain, payload)
	var err error
	select {
	case <-token.Done():
		err = token.Error()
	case <-time.After(c.config.PublishTimeout):
		err = ErrPublishTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.metrics.RecordPublish(len(payload), start, err)
	if err != nil {
		c.log.Debug("publish failed", logger.String("topic", topic), logger.Error(err))
	}
	return err
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.stopOnce.Do(func() { close(c.reconnectStop) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	if c.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.UpdateConnectionStatus(false)
	}
}

func (c *client) onConnect(mqtt.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", privacy.RedactEndpoint(c.config.Broker)))
	c.metrics.UpdateConnectionStatus(true)
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", privacy.RedactEndpoint(c.config.Broker)),
		logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.startReconnectTimer()
}

func (c *client) startReconnectTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		select {
		case <-c.reconnectStop:
			return
		default:
			c.reconnectWithBackoff()
		}
	})
}

func (c *client) reconnectWithBackoff() {
	backoff := time.Second
	const maxBackoff = 5 * time.Minute

	for {
		c.metrics.IncrementReconnectAttempts()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			c.log.Info("reconnected to MQTT broker")
			return
		}

		c.log.Warn("failed to reconnect to MQTT broker",
			logger.Error(err),
			logger.Duration("retry_in", backoff))

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		case <-c.reconnectStop:
			return
		}
	}
}
