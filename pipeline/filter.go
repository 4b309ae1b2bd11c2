package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "convertflow/config"
	"convertflow/internal/channel/convert"
	"convertflow/logger"
	"convertflow/models"
)

// RequestFilter sits between raw user input and the conversion executor.
// It drops structural duplicates of the previous request and debounces the
// survivors: a request is committed only after the quiet window elapses
// with no newer request arriving, so only the last of a burst goes out.
type RequestFilter struct {
	config   *appconfig.Config
	channels *convert.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// Metrics
	requestsSeen       int64
	duplicatesDropped  int64
	debounceSuperseded int64
	requestsCommitted  int64
}

func NewRequestFilter(cfg *appconfig.Config, channels *convert.Channels) *RequestFilter {
	return &RequestFilter{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (f *RequestFilter) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("request filter already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	log := f.log.WithComponent("request_filter").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"debounce_window": f.config.Pipeline.DebounceWindow.String(),
	}).Info("starting request filter")

	f.wg.Add(1)
	go f.worker()

	go f.metricsReporter(ctx)

	log.Info("request filter started successfully")
	return nil
}

func (f *RequestFilter) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	f.log.WithComponent("request_filter").Info("stopping request filter")
	f.wg.Wait()
	f.log.WithComponent("request_filter").Info("request filter stopped")
}

func (f *RequestFilter) worker() {
	defer f.wg.Done()

	log := f.log.WithComponent("request_filter").WithFields(logger.Fields{"worker": "debounce"})

	window := f.config.Pipeline.DebounceWindow
	if window <= 0 {
		window = appconfig.DefaultDebounceWindow
	}

	timer := time.NewTimer(window)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var (
		last       models.ConversionRequest
		haveLast   bool
		pending    models.ConversionRequest
		hasPending bool
	)

	for {
		select {
		case <-f.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return

		case req, ok := <-f.channels.Raw:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}

			f.mu.Lock()
			f.requestsSeen++
			f.mu.Unlock()

			if !req.Valid() {
				log.WithFields(logger.Fields{
					"from":   req.From,
					"to":     req.To,
					"amount": req.Amount,
				}).Debug("invalid request dropped")
				continue
			}

			// A repeat of the previous request is ignored outright. The
			// pending timer keeps running, so a duplicate arriving inside
			// the window cannot postpone the commit.
			if haveLast && req.Equal(last) {
				f.mu.Lock()
				f.duplicatesDropped++
				f.mu.Unlock()
				log.WithFields(logger.Fields{
					"from":      req.From,
					"to":        req.To,
					"amount":    req.Amount,
					"direction": string(req.Direction),
				}).Debug("duplicate request dropped")
				continue
			}

			last = req
			haveLast = true

			if hasPending {
				f.mu.Lock()
				f.debounceSuperseded++
				f.mu.Unlock()
			}
			pending = req
			hasPending = true

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(window)

		case <-timer.C:
			if !hasPending {
				continue
			}
			f.commit(pending, log)
			hasPending = false
		}
	}
}

func (f *RequestFilter) commit(req models.ConversionRequest, log *logger.Entry) {
	committed := models.CommittedRequest{
		ID:          uuid.New().String(),
		Request:     req,
		CommittedAt: time.Now().UTC(),
	}

	if !f.channels.SendCommitted(f.ctx, committed) {
		log.Warn("failed to commit request, context cancelled")
		return
	}

	f.mu.Lock()
	f.requestsCommitted++
	f.mu.Unlock()

	logger.IncrementCommitted()
	log.WithFields(logger.Fields{
		"request_id": committed.ID,
		"from":       req.From,
		"to":         req.To,
		"amount":     req.Amount,
		"direction":  string(req.Direction),
	}).Info("request committed")
}

func (f *RequestFilter) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.reportMetrics()
		}
	}
}

func (f *RequestFilter) reportMetrics() {
	f.mu.RLock()
	seen := f.requestsSeen
	duplicates := f.duplicatesDropped
	superseded := f.debounceSuperseded
	committed := f.requestsCommitted
	f.mu.RUnlock()

	f.log.WithComponent("request_filter").WithFields(logger.Fields{
		"requests_seen":       seen,
		"duplicates_dropped":  duplicates,
		"debounce_superseded": superseded,
		"requests_committed":  committed,
	}).Info("request filter metrics")
}
