// Package store holds the canonical latest-value table: one entry per
// symbol, last write wins. Reads reflect the most recent upsert as soon as
// it returns; there is no eventual consistency window.
package store

import (
	"log/slog"
	"sync"
)

// Entry is the latest known state for one symbol. Entries are created on
// first quote (or by Preload) and live for the process lifetime of the
// connection; they are never deleted.
type Entry struct {
	Symbol    string
	Close     float64
	Bid       float64
	Ask       float64
	High      float64
	Low       float64
	Timestamp int64 // µs since epoch, from the most recent accepted update
}

// Store is the thread-safe symbol → latest entry table.
type Store struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		logger:  logger,
		entries: make(map[string]*Entry),
	}
}

// Preload populates every symbol in the universe with a zero-valued entry,
// so consumers never observe a missing row mid-load. Existing entries are
// kept; the store is allowed to be wrong-but-present before the first tick.
func (s *Store) Preload(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, sym := range symbols {
		if _, ok := s.entries[sym]; ok {
			continue
		}
		s.entries[sym] = &Entry{Symbol: sym}
		added++
	}

	s.logger.Info("store preloaded", "symbols", len(symbols), "added", added)
}

// Upsert merges fields into the entry for symbol, creating a zero entry
// first if absent. The mutate callback runs under the write lock; the most
// recently processed update always wins regardless of its embedded
// timestamp.
func (s *Store) Upsert(symbol string, mutate func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[symbol]
	if !ok {
		e = &Entry{Symbol: symbol}
		s.entries[symbol] = e
	}
	mutate(e)
}

// Get returns a copy of the entry for symbol.
func (s *Store) Get(symbol string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[symbol]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns a copy of every entry. Order is unspecified.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
