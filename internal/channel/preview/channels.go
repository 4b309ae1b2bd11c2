package preview

import (
	"context"
	"sync"

	"convertflow/logger"
	"convertflow/models"
)

type ChannelStats struct {
	KeysSent    int64
	KeysDropped int64
}

// Channels carries the preview stream, keyed only by currency pair.
type Channels struct {
	Keys chan models.PreviewKey

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Keys: make(chan models.PreviewKey, bufferSize),
		log:  log,
	}

	log.WithComponent("preview_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("preview channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Keys)
	c.log.WithComponent("preview_channels").Info("preview channels closed")
}

func (c *Channels) IncrementKeysSent() {
	c.statsMutex.Lock()
	c.stats.KeysSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementKeysDropped() {
	c.statsMutex.Lock()
	c.stats.KeysDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) SendKey(ctx context.Context, key models.PreviewKey) bool {
	select {
	case c.Keys <- key:
		c.IncrementKeysSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementKeysDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
