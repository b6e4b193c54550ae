package datastore

import (
	"context"
	"time"

	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/logger"
)

const defaultWriteTimeout = 30 * time.Second

// Consumer persists finished best shot sessions and manual photos from
// the event bus.
type Consumer struct {
	store        Interface
	saveSessions bool
	savePhotos   bool
	timeout      time.Duration
	log          logger.Logger
}

// NewConsumer returns a bus consumer writing to store.
func NewConsumer(store Interface, saveSessions, savePhotos bool) *Consumer {
	return &Consumer{
		store:        store,
		saveSessions: saveSessions,
		savePhotos:   savePhotos,
		timeout:      defaultWriteTimeout,
		log:          GetLogger(),
	}
}

func (c *Consumer) Name() string { return "datastore" }

// Kinds lists the events the consumer wants.
func (c *Consumer) Kinds() []events.Kind {
	return []events.Kind{events.KindBestShotEnded, events.KindPhotoCaptured}
}

func (c *Consumer) Consume(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	switch ev := e.(type) {
	case events.BestShotEnded:
		if !c.saveSessions {
			return nil
		}
		if err := c.store.SaveSession(ctx, ev.Completion); err != nil {
			return err
		}
		c.log.Info("best shot session saved",
			logger.String("session_id", ev.SessionID),
			logger.Int("captures", len(ev.Candidates)))
	case events.PhotoCaptured:
		if !c.savePhotos {
			return nil
		}
		return c.store.SavePhoto(ctx, Photo{
			ID:           ev.ID,
			Data:         ev.Data,
			FacesBlurred: ev.FacesBlurred,
			CapturedAt:   ev.At,
		})
	}
	return nil
}
