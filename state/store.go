package state

import (
	"sync"

	"convertflow/logger"
	"convertflow/models"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// Snapshot is an immutable copy of the conversion state at one point in
// time. Status is shared by the catalog, conversion and preview streams:
// whichever stream settles last owns the field.
type Snapshot struct {
	Currencies       []models.Currency
	Status           Status
	Err              string
	ConversionResult *float64
	PreviewResult    *float64
	LastConversion   *models.ConversionOutcome
}

// Store holds the single state aggregate. Events are applied one at a
// time; readers get copies and can never mutate the aggregate.
type Store struct {
	mu         sync.RWMutex
	snap       Snapshot
	lastConvCh chan models.ConversionOutcome
	log        *logger.Log
}

func NewStore() *Store {
	return &Store{
		snap:       Snapshot{Status: StatusIdle},
		lastConvCh: make(chan models.ConversionOutcome, 16),
		log:        logger.GetLogger(),
	}
}

// Apply folds one event into the aggregate.
func (s *Store) Apply(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case models.CatalogLoadStarted:
		s.snap.Status = StatusLoading
		s.snap.Err = ""

	case models.CatalogLoaded:
		s.snap.Currencies = e.Currencies
		s.snap.Status = StatusIdle

	case models.CatalogLoadFailed:
		s.snap.Status = StatusError
		s.snap.Err = e.Message

	case models.ConversionCommitted:
		s.snap.Status = StatusLoading
		s.snap.ConversionResult = nil
		s.snap.Err = ""

	case models.ConversionSucceeded:
		// Result and lastConversion move together: observers of one never
		// see the other lag behind.
		value := e.Outcome.Value
		outcome := e.Outcome
		s.snap.ConversionResult = &value
		s.snap.LastConversion = &outcome
		s.snap.Status = StatusIdle
		s.snap.Err = ""
		s.pushLastConversion(outcome)

	case models.ConversionFailed:
		s.snap.Status = StatusError
		s.snap.Err = e.Message

	case models.PreviewSucceeded:
		value := e.Value
		s.snap.PreviewResult = &value
		s.snap.Status = StatusIdle

	case models.PreviewFailed:
		s.snap.Status = StatusError
		s.snap.Err = e.Message

	default:
		s.log.WithComponent("state").WithFields(logger.Fields{
			"event_type": ev.Type(),
		}).Warn("unknown event ignored")
	}
}

// pushLastConversion notifies subscribers, dropping the oldest pending
// notification when the buffer is full. Callers hold s.mu.
func (s *Store) pushLastConversion(outcome models.ConversionOutcome) {
	for {
		select {
		case s.lastConvCh <- outcome:
			return
		default:
		}
		select {
		case <-s.lastConvCh:
		default:
		}
	}
}

// Snapshot returns a copy of the current state. The currencies slice is
// copied so callers cannot reach into the aggregate.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snap
	if s.snap.Currencies != nil {
		snap.Currencies = make([]models.Currency, len(s.snap.Currencies))
		copy(snap.Currencies, s.snap.Currencies)
	}
	if s.snap.ConversionResult != nil {
		v := *s.snap.ConversionResult
		snap.ConversionResult = &v
	}
	if s.snap.PreviewResult != nil {
		v := *s.snap.PreviewResult
		snap.PreviewResult = &v
	}
	if s.snap.LastConversion != nil {
		o := *s.snap.LastConversion
		snap.LastConversion = &o
	}
	return snap
}

// LastConversions exposes settled conversions to sink stages.
func (s *Store) LastConversions() <-chan models.ConversionOutcome {
	return s.lastConvCh
}
