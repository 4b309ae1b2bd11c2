package state

import (
	"context"
	"fmt"
	"sync"

	"convertflow/internal/channel/event"
	"convertflow/logger"
)

// Dispatcher drains the event channel into the store. A single worker
// applies events in arrival order, which is what keeps the reducer serial.
type Dispatcher struct {
	store   *Store
	events  *event.Channels
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	eventsApplied int64
}

func NewDispatcher(store *Store, events *event.Channels) *Dispatcher {
	return &Dispatcher{
		store:  store,
		events: events,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	d.log.WithComponent("state_dispatcher").Info("starting state dispatcher")

	d.wg.Add(1)
	go d.worker()

	return nil
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.log.WithComponent("state_dispatcher").Info("stopping state dispatcher")
	d.wg.Wait()
	d.log.WithComponent("state_dispatcher").Info("state dispatcher stopped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	log := d.log.WithComponent("state_dispatcher").WithFields(logger.Fields{"worker": "reducer"})

	for {
		select {
		case <-d.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case ev, ok := <-d.events.Events:
			if !ok {
				log.Info("event channel closed, worker stopping")
				return
			}

			d.store.Apply(ev)

			d.mu.Lock()
			d.eventsApplied++
			d.mu.Unlock()

			log.WithFields(logger.Fields{"event_type": ev.Type()}).Debug("event applied")
		}
	}
}
