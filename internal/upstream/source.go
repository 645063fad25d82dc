package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// Event is one raw message off the feed plus its declared type tag. The raw
// payload is transient: it is handed to the normalizer and never retained.
type Event struct {
	Type string
	Raw  []byte
}

// Source abstracts the upstream feed transport. Run blocks until ctx is
// cancelled; received events are pushed to the Events channel.
type Source interface {
	Run(ctx context.Context) error
	Events() <-chan Event
}

// Liveness exposes the connectivity state the watchdog and the status
// endpoint read. Reconnection itself belongs to the source.
type Liveness interface {
	Connected() bool
	LastEventAt() time.Time
	LastConnectError() string
}

// feedState is the shared liveness bookkeeping for all source kinds.
type feedState struct {
	mu        sync.RWMutex
	connected bool
	lastEvent time.Time
	lastErr   string
}

func (s *feedState) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *feedState) LastEventAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent
}

func (s *feedState) LastConnectError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *feedState) setConnected(ok bool) {
	s.mu.Lock()
	s.connected = ok
	s.mu.Unlock()
}

func (s *feedState) setConnectError(err error) {
	s.mu.Lock()
	s.connected = false
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *feedState) markEvent(at time.Time) {
	s.mu.Lock()
	s.lastEvent = at
	s.mu.Unlock()
}

// typeTag pulls the declared type of an envelope. Vendors disagree on the
// key; classification downstream tolerates an empty tag.
func typeTag(raw []byte) string {
	for _, key := range []string{"type", "event", "op"} {
		if v := gjson.GetBytes(raw, key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
