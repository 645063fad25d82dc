package watchdog

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeLiveness struct {
	connected bool
	last      time.Time
}

func (f *fakeLiveness) Connected() bool        { return f.connected }
func (f *fakeLiveness) LastEventAt() time.Time { return f.last }

func TestStale_ThresholdBoundary(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	live := &fakeLiveness{connected: false, last: base}
	w := New(live, 120*time.Second, time.Second, zap.NewNop())

	w.now = func() time.Time { return base.Add(119 * time.Second) }
	if w.stale() {
		t.Error("119s of staleness must not trip a 120s threshold")
	}

	w.now = func() time.Time { return base.Add(121 * time.Second) }
	if !w.stale() {
		t.Error("121s of staleness must trip a 120s threshold")
	}
}

func TestStale_ConnectedNeverTrips(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	live := &fakeLiveness{connected: true, last: base}
	w := New(live, 120*time.Second, time.Second, zap.NewNop())
	w.now = func() time.Time { return base.Add(time.Hour) }

	if w.stale() {
		t.Error("Watchdog must not fire while upstream reports connected")
	}
}

func TestStale_NoEventsYet(t *testing.T) {
	live := &fakeLiveness{connected: false}
	w := New(live, 120*time.Second, time.Second, zap.NewNop())

	if w.stale() {
		t.Error("Watchdog must wait for a first event timestamp")
	}
}

func TestRun_FiresOnce(t *testing.T) {
	live := &fakeLiveness{connected: false, last: time.Now().Add(-time.Minute)}
	w := New(live, 10*time.Millisecond, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Fired():
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not fire")
	}

	if err := <-done; err != nil {
		t.Errorf("Run returned %v after firing, want nil", err)
	}
}

func TestRun_DisabledThreshold(t *testing.T) {
	live := &fakeLiveness{connected: false, last: time.Now().Add(-time.Hour)}
	w := New(live, 0, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	select {
	case <-w.Fired():
		t.Error("Disabled watchdog must never fire")
	default:
	}
}
