package querysync

import (
	"context"
	"fmt"
	"sync"

	"convertflow/logger"
	"convertflow/models"
)

// Syncer is the sink stage that mirrors the pair of each settled
// conversion into the query store. It only ever writes; nothing it does
// flows back into the request stream.
type Syncer struct {
	store   Store
	source  <-chan models.ConversionOutcome
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// Metrics
	writes int64
	skips  int64
}

func NewSyncer(store Store, source <-chan models.ConversionOutcome) *Syncer {
	return &Syncer{
		store:  store,
		source: source,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("query syncer already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.log.WithComponent("query_sync").Info("starting query syncer")

	s.wg.Add(1)
	go s.worker()

	return nil
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.WithComponent("query_sync").Info("stopping query syncer")
	s.wg.Wait()
	s.log.WithComponent("query_sync").Info("query syncer stopped")
}

func (s *Syncer) worker() {
	defer s.wg.Done()

	log := s.log.WithComponent("query_sync").WithFields(logger.Fields{"worker": "sync"})

	for {
		select {
		case <-s.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case outcome, ok := <-s.source:
			if !ok {
				log.Info("source channel closed, worker stopping")
				return
			}
			s.sync(outcome, log)
		}
	}
}

func (s *Syncer) sync(outcome models.ConversionOutcome, log *logger.Entry) {
	from, to := CanonicalPair(outcome.Request)

	curFrom, curTo := s.store.Get()
	if curFrom == from && curTo == to {
		s.mu.Lock()
		s.skips++
		s.mu.Unlock()
		return
	}

	s.store.Set(from, to)

	s.mu.Lock()
	s.writes++
	s.mu.Unlock()

	logger.IncrementQueryWrite()
	log.WithFields(logger.Fields{"from": from, "to": to}).Info("query pair updated")
}

// CanonicalPair orients the pair the way the page shows it: a request
// entered on the target side is stored with its currencies swapped.
func CanonicalPair(req models.ConversionRequest) (string, string) {
	if req.Direction == models.SideTarget {
		return req.To, req.From
	}
	return req.From, req.To
}
