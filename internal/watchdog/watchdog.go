package watchdog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Liveness is the upstream state the watchdog polls.
type Liveness interface {
	Connected() bool
	LastEventAt() time.Time
}

// Watchdog detects a connected-but-silently-dead or stuck-reconnecting
// upstream session: the transport already retries on its own, so the only
// failure mode left is one it cannot self-diagnose. When the feed reports
// disconnected AND nothing has been accepted for longer than the staleness
// threshold, the watchdog fires once and stays fired; main turns that into
// a non-zero exit so the supervisor restarts a fresh process.
type Watchdog struct {
	liveness  Liveness
	threshold time.Duration
	poll      time.Duration
	logger    *zap.Logger
	now       func() time.Time
	fired     chan struct{}
}

func New(liveness Liveness, threshold, poll time.Duration, logger *zap.Logger) *Watchdog {
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &Watchdog{
		liveness:  liveness,
		threshold: threshold,
		poll:      poll,
		logger:    logger,
		now:       time.Now,
		fired:     make(chan struct{}),
	}
}

// Fired is closed when the watchdog has declared the upstream stale.
func (w *Watchdog) Fired() <-chan struct{} { return w.fired }

// Run polls until ctx is cancelled or the watchdog fires. A zero or
// negative threshold disables the check entirely.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.threshold <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.stale() {
				w.logger.Error("Upstream stale while disconnected, triggering restart",
					zap.Time("last_event_at", w.liveness.LastEventAt()),
					zap.Duration("threshold", w.threshold))
				close(w.fired)
				return nil
			}
		}
	}
}

func (w *Watchdog) stale() bool {
	if w.liveness.Connected() {
		return false
	}
	last := w.liveness.LastEventAt()
	if last.IsZero() {
		// Never received anything: measure staleness from process start
		// is not tracked here; wait for a first event before judging.
		return false
	}
	return w.now().Sub(last) > w.threshold
}
