package hub

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/internal/protocol"
	"github.com/SloanRudderham/tl-quotes-relay/internal/store"
	"github.com/SloanRudderham/tl-quotes-relay/pkg/models"
)

// Sink is a live output destination owned by a transport adapter. Send must
// not block: it reports false when the frame could not be queued (backlog or
// closed connection), which the hub treats as a disconnect.
type Sink interface {
	ID() string
	Send(f protocol.Frame) bool
	Close()
}

// Hub is the subscriber registry and broadcast engine. Subscribe and Publish
// share one mutex so a joining subscriber atomically gets a store snapshot
// and a registry slot: it never misses an update merged after its baseline
// and never sees an update before it.
type Hub struct {
	mu   sync.Mutex
	subs map[Sink]map[string]struct{}

	store  *store.Store
	env    string
	logger *zap.Logger
	now    func() time.Time
}

func New(st *store.Store, env string, logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[Sink]map[string]struct{}),
		store:  st,
		env:    env,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers sink with an optional symbol filter (empty or nil
// means all symbols) and delivers the hello and snapshot frames before any
// incremental update can reach it.
func (h *Hub) Subscribe(sink Sink, filter map[string]struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := h.store.Snapshot(filter)
	if !sink.Send(protocol.Hello(h.env)) || !sink.Send(protocol.Snapshot(h.now().UnixMilli(), snap)) {
		h.logger.Warn("Subscriber rejected baseline frames", zap.String("id", sink.ID()))
		sink.Close()
		return
	}
	h.subs[sink] = filter
	h.logger.Info("Subscriber joined",
		zap.String("id", sink.ID()),
		zap.Int("filter_size", len(filter)),
		zap.Int("subscribers", len(h.subs)))
}

// Unsubscribe removes sink and releases its transport resources. Idempotent:
// unsubscribing twice is a no-op.
func (h *Hub) Unsubscribe(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sink]; !ok {
		return
	}
	delete(h.subs, sink)
	sink.Close()
	h.logger.Info("Subscriber left",
		zap.String("id", sink.ID()),
		zap.Int("subscribers", len(h.subs)))
}

// Publish delivers an update frame to every subscriber whose filter is
// empty or contains symbol. A sink that cannot keep up is dropped and
// disconnected; the rest are unaffected.
func (h *Hub) Publish(symbol string, q models.Quote) {
	h.mu.Lock()
	defer h.mu.Unlock()

	frame := protocol.Update(h.now().UnixMilli(), symbol, q)

	var evicted []Sink
	for sink, filter := range h.subs {
		if len(filter) > 0 {
			if _, ok := filter[symbol]; !ok {
				continue
			}
		}
		if !sink.Send(frame) {
			evicted = append(evicted, sink)
		}
	}

	for _, sink := range evicted {
		delete(h.subs, sink)
		sink.Close()
		h.logger.Warn("Dropping slow subscriber", zap.String("id", sink.ID()), zap.String("symbol", symbol))
	}
}

// Count reports the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
