package convert

import (
	"context"
	"sync"

	"convertflow/logger"
	"convertflow/models"
)

type ChannelStats struct {
	RawSent          int64
	CommittedSent    int64
	RawDropped       int64
	CommittedDropped int64
}

// Channels carries the conversion request stream: Raw holds user-originated
// requests entering the filter, Committed holds requests that survived
// dedupe and debounce.
type Channels struct {
	Raw       chan models.ConversionRequest
	Committed chan models.CommittedRequest

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, committedBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:       make(chan models.ConversionRequest, rawBufferSize),
		Committed: make(chan models.CommittedRequest, committedBufferSize),
		log:       log,
	}

	log.WithComponent("convert_channels").WithFields(logger.Fields{
		"raw_buffer_size":       rawBufferSize,
		"committed_buffer_size": committedBufferSize,
	}).Info("conversion channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Committed)
	c.log.WithComponent("convert_channels").Info("conversion channels closed")
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementCommittedSent() {
	c.statsMutex.Lock()
	c.stats.CommittedSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementCommittedDropped() {
	c.statsMutex.Lock()
	c.stats.CommittedDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) SendRaw(ctx context.Context, req models.ConversionRequest) bool {
	select {
	case c.Raw <- req:
		c.IncrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementRawDropped()
		return false
	}
}

// SendCommitted blocks until the executor accepts the request; committed
// requests are never dropped because downstream order matters.
func (c *Channels) SendCommitted(ctx context.Context, committed models.CommittedRequest) bool {
	select {
	case c.Committed <- committed:
		c.IncrementCommittedSent()
		return true
	case <-ctx.Done():
		c.IncrementCommittedDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
