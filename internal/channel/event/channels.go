package event

import (
	"context"
	"sync"

	"convertflow/logger"
	"convertflow/models"
)

type ChannelStats struct {
	EventsSent    int64
	EventsDropped int64
}

// Channels carries state transition events to the reducer. Publishing
// blocks rather than drops: losing an event would desynchronize the
// aggregate from the streams that produced it.
type Channels struct {
	Events chan models.Event

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Events: make(chan models.Event, bufferSize),
		log:    log,
	}

	log.WithComponent("event_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("event channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Events)
	c.log.WithComponent("event_channels").Info("event channels closed")
}

func (c *Channels) IncrementEventsSent() {
	c.statsMutex.Lock()
	c.stats.EventsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementEventsDropped() {
	c.statsMutex.Lock()
	c.stats.EventsDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) Publish(ctx context.Context, ev models.Event) bool {
	select {
	case c.Events <- ev:
		c.IncrementEventsSent()
		return true
	case <-ctx.Done():
		c.IncrementEventsDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
