package store

import (
	"math"
	"sync"

	"github.com/SloanRudderham/tl-quotes-relay/pkg/models"
)

// Store holds the latest known quote per symbol. It is the single source of
// truth for snapshots; Merge is the only mutation path. One writer (the
// relay pipeline) and many readers (snapshot queries, health counts).
type Store struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
}

func New() *Store {
	return &Store{quotes: make(map[string]models.Quote)}
}

// Merge applies a partial delta with last-write-wins semantics per field:
// a finite incoming value replaces the stored one, anything else keeps it.
// Time is always taken from the delta — the normalizer has already
// defaulted it — so a priceless delta still advances the record's time.
// Returns the resulting full record.
func (s *Store) Merge(symbol string, d models.Delta) models.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.quotes[symbol]
	if finite(d.Bid) {
		q.Bid = d.Bid
	}
	if finite(d.Ask) {
		q.Ask = d.Ask
	}
	if finite(d.Last) {
		q.Last = d.Last
	}
	q.Time = d.Time
	s.quotes[symbol] = q
	return q
}

// Snapshot returns the current quote for every stored symbol in filter, or
// every symbol when filter is empty. The copy is taken under one read lock,
// so no partially merged record is ever observable.
func (s *Store) Snapshot(filter map[string]struct{}) map[string]models.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Quote, len(s.quotes))
	for sym, q := range s.quotes {
		if len(filter) > 0 {
			if _, ok := filter[sym]; !ok {
				continue
			}
		}
		out[sym] = q
	}
	return out
}

// Len reports the number of tracked symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quotes)
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
