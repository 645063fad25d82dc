package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/internal/protocol"
)

// sseClient is the hub sink for one Server-Sent Events stream. The request
// goroutine itself is the write pump; Send only queues.
type sseClient struct {
	id   string
	send chan protocol.Frame

	closeOnce sync.Once
	done      chan struct{}
}

func newSSEClient(id string, buffer int) *sseClient {
	return &sseClient{
		id:   id,
		send: make(chan protocol.Frame, buffer),
		done: make(chan struct{}),
	}
}

func (c *sseClient) ID() string { return c.id }

// Send queues a frame without blocking. False means the client is gone or
// its backlog is full; the hub turns that into a disconnect.
func (c *sseClient) Send(f protocol.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *sseClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := newSSEClient(r.RemoteAddr, s.sendBuffer)
	s.hub.Subscribe(client, parseFilter(r))
	defer s.hub.Unsubscribe(client)

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case f := <-client.send:
			if err := writeSSE(w, f); err != nil {
				s.logger.Debug("SSE write failed", zap.String("id", client.ID()), zap.Error(err))
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, protocol.Ping(s.now().UnixMilli())); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, f protocol.Frame) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, f.Data)
	return err
}
