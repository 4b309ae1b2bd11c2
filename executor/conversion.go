package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "convertflow/config"
	"convertflow/internal/channel/convert"
	"convertflow/internal/channel/event"
	"convertflow/logger"
	"convertflow/models"
)

// ErrConversionMessage is the user-facing message for any failed
// conversion call, regardless of the underlying cause.
const ErrConversionMessage = "Failed to convert currency"

// API is the slice of the rate provider the executors need.
type API interface {
	Convert(ctx context.Context, from, to string, amount float64) (float64, error)
}

type conversionResult struct {
	gen     uint64
	request models.ConversionRequest
	value   float64
	err     error
}

// ConversionExecutor consumes committed requests and issues exactly one
// provider call per request. A newer committed request supersedes the one
// in flight: the running call is cancelled and a late result is discarded
// by generation check, so stale values never reach the state aggregate.
type ConversionExecutor struct {
	config  *appconfig.Config
	api     API
	convert *convert.Channels
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

func NewConversionExecutor(cfg *appconfig.Config, api API, convertCh *convert.Channels, eventCh *event.Channels) *ConversionExecutor {
	return &ConversionExecutor{
		config:  cfg,
		api:     api,
		convert: convertCh,
		events:  eventCh,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (e *ConversionExecutor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("conversion executor already running")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("conversion_executor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting conversion executor")

	e.wg.Add(1)
	go e.worker()

	go e.metricsReporter(ctx)

	log.Info("conversion executor started successfully")
	return nil
}

func (e *ConversionExecutor) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("conversion_executor").Info("stopping conversion executor")
	e.wg.Wait()
	e.log.WithComponent("conversion_executor").Info("conversion executor stopped")
}

func (e *ConversionExecutor) worker() {
	defer e.wg.Done()

	log := e.log.WithComponent("conversion_executor").WithFields(logger.Fields{"worker": "convert"})

	results := make(chan conversionResult, 1)

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

		case committed, ok := <-e.convert.Committed:
			if !ok {
				log.Info("committed channel closed, worker stopping")
				return
			}

			if cancelCall != nil {
				cancelCall()
				e.mu.Lock()
				e.callsSuperseded++
				e.mu.Unlock()
				log.WithFields(logger.Fields{"request_id": committed.ID}).Debug("superseded in-flight conversion call")
			}
			gen++

			if !e.events.Publish(e.ctx, models.ConversionCommitted{Request: committed.Request}) {
				return
			}

			callCtx, cancel := context.WithCancel(e.ctx)
			cancelCall = cancel

			e.mu.Lock()
			e.callsIssued++
			e.mu.Unlock()

			go e.call(callCtx, gen, committed, results)

		case r := <-results:
			if r.gen != gen {
				log.Debug("discarding stale conversion result")
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

func (e *ConversionExecutor) call(ctx context.Context, gen uint64, committed models.CommittedRequest, results chan<- conversionResult) {
	start := time.Now()
	req := committed.Request

	value, err := e.api.Convert(ctx, req.From, req.To, req.Amount)

	e.log.WithComponent("conversion_executor").WithFields(logger.Fields{
		"request_id":  committed.ID,
		"from":        req.From,
		"to":          req.To,
		"amount":      req.Amount,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("provider call finished")

	select {
	case results <- conversionResult{gen: gen, request: req, value: value, err: err}:
	case <-ctx.Done():
	}
}

func (e *ConversionExecutor) settle(r conversionResult, log *logger.Entry) {
	if r.err != nil {
		e.mu.Lock()
		e.callsFailed++
		e.mu.Unlock()

		log.WithError(r.err).WithFields(logger.Fields{
			"from": r.request.From,
			"to":   r.request.To,
		}).Warn("conversion call failed")

		e.events.Publish(e.ctx, models.ConversionFailed{Message: ErrConversionMessage})
		logger.IncrementConversionSettled()
		return
	}

	outcome := models.ConversionOutcome{
		Request: r.request,
		Value:   models.FinanceRound(r.value),
	}

	e.mu.Lock()
	e.callsSucceeded++
	e.mu.Unlock()

	log.WithFields(logger.Fields{
		"from":   r.request.From,
		"to":     r.request.To,
		"amount": r.request.Amount,
		"value":  outcome.Value,
	}).Info("conversion settled")

	e.events.Publish(e.ctx, models.ConversionSucceeded{Outcome: outcome})
	logger.IncrementConversionSettled()
}

func (e *ConversionExecutor) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reportMetrics()
		}
	}
}

func (e *ConversionExecutor) reportMetrics() {
	e.mu.RLock()
	issued := e.callsIssued
	superseded := e.callsSuperseded
	succeeded := e.callsSucceeded
	failed := e.callsFailed
	e.mu.RUnlock()

	e.log.WithComponent("conversion_executor").WithFields(logger.Fields{
		"calls_issued":     issued,
		"calls_superseded": superseded,
		"calls_succeeded":  succeeded,
		"calls_failed":     failed,
	}).Info("conversion executor metrics")
}
