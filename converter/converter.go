package converter

import (
	"context"
	"fmt"
	"sync"

	appconfig "convertflow/config"
	"convertflow/executor"
	"convertflow/internal/channel"
	"convertflow/logger"
	"convertflow/models"
	"convertflow/pipeline"
	"convertflow/querysync"
	"convertflow/state"
)

// ErrCatalogMessage is the user-facing message for a failed catalog load.
const ErrCatalogMessage = "Failed to load currencies"

// Provider is the full rate provider surface the coordinator needs.
type Provider interface {
	executor.API
	Currencies(ctx context.Context) ([]models.Currency, error)
}

// Converter wires the whole pipeline together and is the only entry point
// user input goes through: raw requests in, state snapshots out.
type Converter struct {
	config   *appconfig.Config
	provider Provider
	channels *channel.Channels
	store    *state.Store

	filter     *pipeline.RequestFilter
	convExec   *executor.ConversionExecutor
	prevExec   *executor.PreviewExecutor
	dispatcher *state.Dispatcher
	syncer     *querysync.Syncer

	ctx     context.Context
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	previewMu   sync.Mutex
	lastPreview models.PreviewKey
	hasPreview  bool
}

func New(cfg *appconfig.Config, provider Provider, queryStore querysync.Store) *Converter {
	channels := channel.NewChannels(
		cfg.Channels.RequestBuffer,
		cfg.Channels.CommittedBuffer,
		cfg.Channels.PreviewBuffer,
		cfg.Channels.EventBuffer,
	)
	store := state.NewStore()

	return &Converter{
		config:     cfg,
		provider:   provider,
		channels:   channels,
		store:      store,
		filter:     pipeline.NewRequestFilter(cfg, channels.Convert),
		convExec:   executor.NewConversionExecutor(cfg, provider, channels.Convert, channels.Event),
		prevExec:   executor.NewPreviewExecutor(cfg, provider, channels.Preview, channels.Event),
		dispatcher: state.NewDispatcher(store, channels.Event),
		syncer:     querysync.NewSyncer(queryStore, store.LastConversions()),
		log:        logger.GetLogger(),
	}
}

// Start launches every stage. The dispatcher comes up first so no stage
// ever publishes into a drainless event channel.
func (c *Converter) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("converter already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("converter").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting converter")

	if err := c.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start state dispatcher: %w", err)
	}
	if err := c.syncer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start query syncer: %w", err)
	}
	if err := c.convExec.Start(ctx); err != nil {
		return fmt.Errorf("failed to start conversion executor: %w", err)
	}
	if err := c.prevExec.Start(ctx); err != nil {
		return fmt.Errorf("failed to start preview executor: %w", err)
	}
	if err := c.filter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start request filter: %w", err)
	}

	c.channels.StartMetricsReporting(ctx)

	log.Info("converter started successfully")
	return nil
}

// Stop halts the stages front to back so in-flight work can drain.
func (c *Converter) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	log := c.log.WithComponent("converter")
	log.Info("stopping converter")

	c.filter.Stop()
	c.convExec.Stop()
	c.prevExec.Stop()
	c.syncer.Stop()
	c.dispatcher.Stop()

	log.Info("converter stopped")
}

// LoadCurrencies fetches the currency catalog. The call is asynchronous;
// progress and outcome land in the state aggregate.
func (c *Converter) LoadCurrencies(ctx context.Context) {
	c.channels.Event.Publish(ctx, models.CatalogLoadStarted{})

	go func() {
		currencies, err := c.provider.Currencies(ctx)
		if err != nil {
			c.log.WithComponent("converter").WithError(err).Warn("catalog load failed")
			c.channels.Event.Publish(ctx, models.CatalogLoadFailed{Message: ErrCatalogMessage})
			return
		}

		c.log.WithComponent("converter").WithFields(logger.Fields{
			"currencies": len(currencies),
		}).Info("catalog loaded")
		c.channels.Event.Publish(ctx, models.CatalogLoaded{Currencies: currencies})
	}()
}

// ConvertCurrency feeds one request into the pipeline. Incomplete input
// is dropped silently; it is not an error.
func (c *Converter) ConvertCurrency(req models.ConversionRequest) {
	c.mu.RLock()
	ctx := c.ctx
	running := c.running
	c.mu.RUnlock()
	if !running {
		return
	}

	if !req.Valid() {
		c.log.WithComponent("converter").WithFields(logger.Fields{
			"from":   req.From,
			"to":     req.To,
			"amount": req.Amount,
		}).Debug("incomplete conversion request dropped")
		return
	}

	c.channels.Convert.SendRaw(ctx, req)
}

// PreviewConversion requests the unit rate for a pair. Repeats of the
// previously submitted pair are suppressed before reaching the executor.
func (c *Converter) PreviewConversion(from, to string) {
	c.mu.RLock()
	ctx := c.ctx
	running := c.running
	c.mu.RUnlock()
	if !running {
		return
	}

	key := models.PreviewKey{From: from, To: to}
	if !key.Valid() {
		return
	}

	c.previewMu.Lock()
	if c.hasPreview && key == c.lastPreview {
		c.previewMu.Unlock()
		return
	}
	c.lastPreview = key
	c.hasPreview = true
	c.previewMu.Unlock()

	c.channels.Preview.SendKey(ctx, key)
}

// Read projections, all served from immutable state snapshots.

func (c *Converter) Currencies() []models.Currency {
	return c.store.Snapshot().Currencies
}

func (c *Converter) Status() state.Status {
	return c.store.Snapshot().Status
}

func (c *Converter) Err() string {
	return c.store.Snapshot().Err
}

func (c *Converter) ConversionResult() *float64 {
	return c.store.Snapshot().ConversionResult
}

func (c *Converter) PreviewResult() *float64 {
	return c.store.Snapshot().PreviewResult
}

func (c *Converter) LastConversion() *models.ConversionOutcome {
	return c.store.Snapshot().LastConversion
}

// Snapshot exposes the full aggregate for callers that need a consistent
// view across fields.
func (c *Converter) Snapshot() state.Snapshot {
	return c.store.Snapshot()
}
