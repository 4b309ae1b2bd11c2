package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "convertflow/config"
	"convertflow/internal/channel/event"
	"convertflow/internal/channel/preview"
	"convertflow/logger"
	"convertflow/models"
)

// ErrPreviewMessage is the user-facing message for a failed preview call.
const ErrPreviewMessage = "Failed to preview conversion"

// previewAmount is the fixed amount previews are quoted for.
const previewAmount = 1

type previewResult struct {
	gen   uint64
	key   models.PreviewKey
	value float64
	err   error
}

// PreviewExecutor quotes one unit of the pair on the preview stream. It
// follows the same switch-latest discipline as the conversion executor but
// runs independently: a preview call never blocks or supersedes a
// conversion call.
type PreviewExecutor struct {
	config  *appconfig.Config
	api     API
	preview *preview.Channels
	events  *event.Channels
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// Metrics
	callsIssued     int64
	callsSuperseded int64
	callsSucceeded  int64
	callsFailed     int64
}

func NewPreviewExecutor(cfg *appconfig.Config, api API, previewCh *preview.Channels, eventCh *event.Channels) *PreviewExecutor {
	return &PreviewExecutor{
		config:  cfg,
		api:     api,
		preview: previewCh,
		events:  eventCh,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (e *PreviewExecutor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("preview executor already running")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("preview_executor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting preview executor")

	e.wg.Add(1)
	go e.worker()

	log.Info("preview executor started successfully")
	return nil
}

func (e *PreviewExecutor) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("preview_executor").Info("stopping preview executor")
	e.wg.Wait()
	e.log.WithComponent("preview_executor").Info("preview executor stopped")
}

func (e *PreviewExecutor) worker() {
	defer e.wg.Done()

	log := e.log.WithComponent("preview_executor").WithFields(logger.Fields{"worker": "preview"})

	results := make(chan previewResult, 1)

	var (
		gen        uint64
		cancelCall context.CancelFunc
	)
	defer func() {
		if cancelCall != nil {
			cancelCall()
		}
	}()

	for {
		select {
		case <-e.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return

		case key, ok := <-e.preview.Keys:
			if !ok {
				log.Info("preview channel closed, worker stopping")
				return
			}

			if cancelCall != nil {
				cancelCall()
				e.mu.Lock()
				e.callsSuperseded++
				e.mu.Unlock()
			}
			gen++

			callCtx, cancel := context.WithCancel(e.ctx)
			cancelCall = cancel

			e.mu.Lock()
			e.callsIssued++
			e.mu.Unlock()

			go e.call(callCtx, gen, key, results)

		case r := <-results:
			if r.gen != gen {
				log.Debug("discarding stale preview result")
				continue
			}
			if cancelCall != nil {
				cancelCall()
				cancelCall = nil
			}
			e.settle(r, log)
		}
	}
}

func (e *PreviewExecutor) call(ctx context.Context, gen uint64, key models.PreviewKey, results chan<- previewResult) {
	start := time.Now()

	value, err := e.api.Convert(ctx, key.From, key.To, previewAmount)

	e.log.WithComponent("preview_executor").WithFields(logger.Fields{
		"from":        key.From,
		"to":          key.To,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("preview call finished")

	select {
	case results <- previewResult{gen: gen, key: key, value: value, err: err}:
	case <-ctx.Done():
	}
}

func (e *PreviewExecutor) settle(r previewResult, log *logger.Entry) {
	if r.err != nil {
		e.mu.Lock()
		e.callsFailed++
		e.mu.Unlock()

		log.WithError(r.err).WithFields(logger.Fields{
			"from": r.key.From,
			"to":   r.key.To,
		}).Warn("preview call failed")

		e.events.Publish(e.ctx, models.PreviewFailed{Message: ErrPreviewMessage})
		logger.IncrementPreviewSettled()
		return
	}

	value := models.FinanceRound(r.value)

	e.mu.Lock()
	e.callsSucceeded++
	e.mu.Unlock()

	log.WithFields(logger.Fields{
		"from":  r.key.From,
		"to":    r.key.To,
		"value": value,
	}).Info("preview settled")

	e.events.Publish(e.ctx, models.PreviewSucceeded{Value: value})
	logger.IncrementPreviewSettled()
}
