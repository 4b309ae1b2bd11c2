package channel

import (
	"context"
	"time"

	"convertflow/internal/channel/convert"
	"convertflow/internal/channel/event"
	"convertflow/internal/channel/preview"
	"convertflow/logger"
)

type Channels struct {
	Convert *convert.Channels
	Preview *preview.Channels
	Event   *event.Channels

	metricsReportTicker *time.Ticker
	log                 *logger.Log
}

func NewChannels(rawBufferSize, committedBufferSize, previewBufferSize, eventBufferSize int) *Channels {
	return &Channels{
		Convert: convert.NewChannels(rawBufferSize, committedBufferSize),
		Preview: preview.NewChannels(previewBufferSize),
		Event:   event.NewChannels(eventBufferSize),
		log:     logger.GetLogger(),
	}
}

func (c *Channels) Close() {
	if c.Convert != nil {
		c.Convert.Close()
	}
	if c.Preview != nil {
		c.Preview.Close()
	}
	if c.Event != nil {
		c.Event.Close()
	}
}

func (c *Channels) StartMetricsReporting(ctx context.Context) {
	c.metricsReportTicker = time.NewTicker(30 * time.Second)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.metricsReportTicker.Stop()
				return
			case <-c.metricsReportTicker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	convertStats := c.Convert.GetStats()
	previewStats := c.Preview.GetStats()
	eventStats := c.Event.GetStats()

	logger.RecordChannelMessage("convert.raw", len(c.Convert.Raw))
	logger.RecordChannelMessage("convert.committed", len(c.Convert.Committed))
	logger.RecordChannelMessage("preview.keys", len(c.Preview.Keys))
	logger.RecordChannelMessage("events", len(c.Event.Events))

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"raw_sent":          convertStats.RawSent,
		"raw_dropped":       convertStats.RawDropped,
		"committed_sent":    convertStats.CommittedSent,
		"committed_dropped": convertStats.CommittedDropped,
		"preview_sent":      previewStats.KeysSent,
		"preview_dropped":   previewStats.KeysDropped,
		"events_sent":       eventStats.EventsSent,
		"events_dropped":    eventStats.EventsDropped,
	}).Info("channel statistics")
}
