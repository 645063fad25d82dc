package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/internal/hub"
	"github.com/SloanRudderham/tl-quotes-relay/internal/normalize"
	"github.com/SloanRudderham/tl-quotes-relay/internal/store"
	"github.com/SloanRudderham/tl-quotes-relay/internal/upstream"
)

// Relay is the ingestion pipeline: upstream event -> normalizer -> store
// merge -> broadcast. It runs as a single goroutine, which is what preserves
// the per-symbol delivery order end to end.
type Relay struct {
	events <-chan upstream.Event
	store  *store.Store
	hub    *hub.Hub
	logger *zap.Logger
	now    func() time.Time
}

func New(events <-chan upstream.Event, st *store.Store, h *hub.Hub, logger *zap.Logger) *Relay {
	return &Relay{
		events: events,
		store:  st,
		hub:    h,
		logger: logger,
		now:    time.Now,
	}
}

// Run consumes events until ctx is cancelled or the event channel closes.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			delta, ok := normalize.Normalize(ev.Type, ev.Raw, r.now)
			if !ok {
				// Non-quote upstream noise, dropped by design.
				continue
			}
			q := r.store.Merge(delta.Symbol, delta)
			r.hub.Publish(delta.Symbol, q)
		}
	}
}
