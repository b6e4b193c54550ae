package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/mqtt"
	"github.com/tphakala/lensnet-go/internal/privacy"
)

const (
	streamBuffer      = 32
	heartbeatInterval = 30 * time.Second
	writeDeadline     = 10 * time.Second
)

// StreamMessage is one server-sent event.
type StreamMessage struct {
	Event string
	Data  any
}

type streamClient struct {
	id string
	ch chan StreamMessage
}

// streamHub fans bus events out to connected SSE clients. A client whose
// buffer is full misses messages rather than stalling the bus.
type streamHub struct {
	mu      sync.RWMutex
	clients map[string]*streamClient
	dropped uint64
	closed  bool
	log     logger.Logger
}

func newStreamHub(log logger.Logger) *streamHub {
	return &streamHub{clients: make(map[string]*streamClient), log: log}
}

func (h *streamHub) add() (*streamClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &streamClient{id: generateCorrelationID(), ch: make(chan StreamMessage, streamBuffer)}
	h.clients[c.id] = c
	return c, true
}

func (h *streamHub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		close(c.ch)
		delete(h.clients, id)
	}
}

func (h *streamHub) broadcast(msg StreamMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.ch <- msg:
		default:
			h.dropped++
		}
	}
}

func (h *streamHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *streamHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		close(c.ch)
		delete(h.clients, id)
	}
}

func (c *Controller) initStreamRoutes() {
	c.Group.GET("/stream", c.Stream)
	c.Group.GET("/stream/status", c.GetStreamStatus)
}

// Name implements events.Consumer.
func (c *Controller) Name() string { return "api-stream" }

// Kinds lists the events forwarded to stream clients.
func (c *Controller) Kinds() []events.Kind {
	return []events.Kind{
		events.KindLiveUpdate,
		events.KindBestShotEnded,
		events.KindModelChanged,
		events.KindCaptureChanged,
		events.KindPhotoCaptured,
		events.KindError,
	}
}

// Consume implements events.Consumer.
func (c *Controller) Consume(e events.Event) error {
	if c.stream.count() == 0 {
		return nil
	}
	var msg StreamMessage
	switch ev := e.(type) {
	case events.LiveUpdate:
		msg = StreamMessage{"live", mqtt.NewLiveDTO(ev)}
	case events.BestShotEnded:
		msg = StreamMessage{"bestshot", mqtt.NewBestShotDTO(ev.Completion)}
	case events.ModelChanged:
		msg = StreamMessage{"model", mqtt.NewModelDTO(ev)}
	case events.CaptureChanged:
		msg = StreamMessage{"camera", map[string]any{
			"device_id": ev.DeviceID, "position": ev.Position, "lens": ev.Lens, "timestamp": ev.At,
		}}
	case events.PhotoCaptured:
		msg = StreamMessage{"photo", map[string]any{
			"id": ev.ID, "faces_blurred": ev.FacesBlurred, "size": len(ev.Data), "timestamp": ev.At,
		}}
	case events.ErrorEvent:
		msg = StreamMessage{"error", map[string]any{
			"component": ev.Err.GetComponent(),
			"category":  ev.Err.GetCategory(),
			"message":   privacy.ScrubMessage(ev.Err.Error()),
			"timestamp": ev.At,
		}}
	default:
		return nil
	}
	c.stream.broadcast(msg)
	return nil
}

// Stream handles GET /api/v1/stream as server-sent events.
func (c *Controller) Stream(ctx echo.Context) error {
	client, ok := c.stream.add()
	if !ok {
		return c.HandleError(ctx, nil, "server shutting down", http.StatusServiceUnavailable)
	}
	defer c.stream.remove(client.id)

	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	ctx.Response().WriteHeader(http.StatusOK)

	c.log.Debug("stream client connected",
		logger.String("client_id", client.id),
		logger.String("ip", ctx.RealIP()))

	if err := c.sendEvent(ctx, StreamMessage{"connected", map[string]string{"client_id": client.id}}); err != nil {
		return nil
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-client.ch:
			if !ok {
				return nil
			}
			if err := c.sendEvent(ctx, msg); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := c.sendEvent(ctx, StreamMessage{"heartbeat", map[string]int64{"timestamp": time.Now().Unix()}}); err != nil {
				return nil
			}
		case <-ctx.Request().Context().Done():
			return nil
		}
	}
}

func (c *Controller) sendEvent(ctx echo.Context, msg StreamMessage) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}
	rc := http.NewResponseController(ctx.Response().Writer)
	_ = rc.SetWriteDeadline(time.Now().Add(writeDeadline))
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", msg.Event, data); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}

// GetStreamStatus handles GET /api/v1/stream/status.
func (c *Controller) GetStreamStatus(ctx echo.Context) error {
	c.stream.mu.RLock()
	dropped := c.stream.dropped
	c.stream.mu.RUnlock()
	return ctx.JSON(http.StatusOK, map[string]any{
		"connected_clients": c.stream.count(),
		"dropped_messages":  dropped,
	})
}
