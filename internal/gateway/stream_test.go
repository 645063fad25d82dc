package gateway_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket" // test client, the server side speaks gobwas

	"github.com/SloanRudderham/tl-quotes-relay/internal/limiter"
	"github.com/SloanRudderham/tl-quotes-relay/internal/protocol"
	"github.com/SloanRudderham/tl-quotes-relay/pkg/config"
	"github.com/SloanRudderham/tl-quotes-relay/pkg/models"
)

func waitForSubscribers(t *testing.T, fx *fixture, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fx.hub.Count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Never reached %d subscribers", n)
}

// readSSEFrame consumes one event/data block from an SSE stream.
func readSSEFrame(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("SSE read: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event != "" || data != "" {
				return event, data
			}
			continue
		}
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
		}
	}
}

func TestSSE_HelloSnapshotUpdateSequence(t *testing.T) {
	ts, fx := newTestServer(t, config.AppConfig{Env: "test"}, limiter.Noop{}, time.Minute)
	fx.store.Merge("EURUSD", models.Delta{Symbol: "EURUSD", Bid: models.Float(1.08), Time: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream?symbols=EURUSD", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Stream open: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)

	event, data := readSSEFrame(t, r)
	if event != protocol.EventHello {
		t.Fatalf("First frame = %s, want hello", event)
	}
	var hello protocol.HelloData
	json.Unmarshal([]byte(data), &hello)
	if !hello.OK || hello.Env != "test" {
		t.Errorf("Hello = %+v", hello)
	}

	event, data = readSSEFrame(t, r)
	if event != protocol.EventQuotes {
		t.Fatalf("Second frame = %s, want quotes snapshot", event)
	}
	var snap protocol.SnapshotData
	json.Unmarshal([]byte(data), &snap)
	if _, ok := snap.All["EURUSD"]; !ok {
		t.Errorf("Snapshot missing EURUSD: %s", data)
	}

	waitForSubscribers(t, fx, 1)
	// The GBPUSD update must be filtered out; only EURUSD arrives.
	fx.hub.Publish("GBPUSD", models.Quote{Bid: models.Float(1.27), Time: 2})
	fx.hub.Publish("EURUSD", models.Quote{Bid: models.Float(1.09), Time: 3})

	event, data = readSSEFrame(t, r)
	if event != protocol.EventQuotes {
		t.Fatalf("Third frame = %s, want quotes update", event)
	}
	var upd protocol.UpdateData
	json.Unmarshal([]byte(data), &upd)
	if upd.Symbol != "EURUSD" || *upd.Quote.Bid != 1.09 {
		t.Errorf("Update = %+v, want filtered EURUSD 1.09", upd)
	}
}

func TestSSE_Keepalive(t *testing.T) {
	ts, _ := newTestServer(t, config.AppConfig{Env: "test"}, limiter.Noop{}, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Stream open: %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readSSEFrame(t, r) // hello
	readSSEFrame(t, r) // snapshot

	event, _ := readSSEFrame(t, r)
	if event != protocol.EventPing {
		t.Errorf("Idle stream frame = %s, want ping keepalive", event)
	}
}

func TestWS_HelloSnapshotUpdateSequence(t *testing.T) {
	ts, fx := newTestServer(t, config.AppConfig{Env: "test"}, limiter.Noop{}, time.Minute)
	fx.store.Merge("EURUSD", models.Delta{Symbol: "EURUSD", Bid: models.Float(1.08), Time: 1})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?symbols=EURUSD"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame protocol.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Read hello: %v", err)
	}
	if frame.Event != protocol.EventHello {
		t.Fatalf("First frame = %s, want hello", frame.Event)
	}

	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Read snapshot: %v", err)
	}
	var snap protocol.SnapshotData
	json.Unmarshal(frame.Data, &snap)
	if q, ok := snap.All["EURUSD"]; !ok || *q.Bid != 1.08 {
		t.Errorf("Snapshot = %+v", snap)
	}

	waitForSubscribers(t, fx, 1)
	fx.hub.Publish("EURUSD", models.Quote{Bid: models.Float(1.09), Time: 2})

	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Read update: %v", err)
	}
	var upd protocol.UpdateData
	json.Unmarshal(frame.Data, &upd)
	if upd.Symbol != "EURUSD" || *upd.Quote.Bid != 1.09 {
		t.Errorf("Update = %+v", upd)
	}
}

func TestWS_ClientDisconnectUnsubscribes(t *testing.T) {
	ts, fx := newTestServer(t, config.AppConfig{Env: "test"}, limiter.Noop{}, time.Minute)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	waitForSubscribers(t, fx, 1)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fx.hub.Count() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Subscriber not removed after client disconnect")
}
