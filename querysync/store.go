package querysync

import (
	"net/url"
	"sync"
)

// Store is where the active currency pair is mirrored, typically the
// query string of the page embedding the converter.
type Store interface {
	Get() (from, to string)
	Set(from, to string)
}

// MemoryStore is the in-process implementation used headless and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	from string
	to   string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.from, s.to
}

func (s *MemoryStore) Set(from, to string) {
	s.mu.Lock()
	s.from = from
	s.to = to
	s.mu.Unlock()
}

// URLValuesStore mirrors the pair into url.Values, matching the query
// string shape of the web embedding ("from" and "to" keys).
type URLValuesStore struct {
	mu     sync.RWMutex
	values url.Values
}

func NewURLValuesStore(values url.Values) *URLValuesStore {
	if values == nil {
		values = url.Values{}
	}
	return &URLValuesStore{values: values}
}

func (s *URLValuesStore) Get() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Get("from"), s.values.Get("to")
}

func (s *URLValuesStore) Set(from, to string) {
	s.mu.Lock()
	s.values.Set("from", from)
	s.values.Set("to", to)
	s.mu.Unlock()
}

// Encode returns the current query string.
func (s *URLValuesStore) Encode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Encode()
}
