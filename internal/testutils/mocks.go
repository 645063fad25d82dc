package testutils

import (
	"sync"
	"time"

	"github.com/SloanRudderham/tl-quotes-relay/internal/protocol"
)

// MockSink records frames delivered by the hub.
type MockSink struct {
	IDVal  string
	Mu     sync.Mutex
	Frames []protocol.Frame
	Closed bool
	Reject bool // simulate a full backlog / dead connection
}

func NewMockSink(id string) *MockSink {
	return &MockSink{IDVal: id}
}

func (m *MockSink) ID() string { return m.IDVal }

func (m *MockSink) Send(f protocol.Frame) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Reject || m.Closed {
		return false
	}
	m.Frames = append(m.Frames, f)
	return true
}

func (m *MockSink) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockSink) SetReject(reject bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Reject = reject
}

func (m *MockSink) FrameCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Frames)
}

func (m *MockSink) FrameAt(i int) protocol.Frame {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Frames[i]
}

func (m *MockSink) Events() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	events := make([]string, len(m.Frames))
	for i, f := range m.Frames {
		events[i] = f.Event
	}
	return events
}

func (m *MockSink) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

// MockLiveness simulates the upstream feed state.
type MockLiveness struct {
	Mu           sync.Mutex
	ConnectedVal bool
	LastEventVal time.Time
	LastErrVal   string
}

func (m *MockLiveness) Connected() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.ConnectedVal
}

func (m *MockLiveness) LastEventAt() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.LastEventVal
}

func (m *MockLiveness) LastConnectError() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.LastErrVal
}
