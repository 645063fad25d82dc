package protocol

import (
	"encoding/json"

	"github.com/SloanRudderham/tl-quotes-relay/pkg/models"
)

// Frame event names as they appear on the wire.
const (
	EventHello  = "hello"
	EventQuotes = "quotes"
	EventPing   = "ping"
)

// Frame is one push message. Data is pre-encoded so the hub marshals a
// payload once per publish regardless of subscriber count; transports only
// decide how to envelope it (SSE event/data lines vs. a WS text frame).
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type HelloData struct {
	OK  bool   `json:"ok"`
	Env string `json:"env"`
}

type SnapshotData struct {
	ServerTime int64                   `json:"serverTime"`
	All        map[string]models.Quote `json:"all"`
}

type UpdateData struct {
	ServerTime int64        `json:"serverTime"`
	Symbol     string       `json:"symbol"`
	Quote      models.Quote `json:"quote"`
}

func Hello(env string) Frame {
	return frame(EventHello, HelloData{OK: true, Env: env})
}

func Snapshot(serverTime int64, all map[string]models.Quote) Frame {
	return frame(EventQuotes, SnapshotData{ServerTime: serverTime, All: all})
}

func Update(serverTime int64, symbol string, q models.Quote) Frame {
	return frame(EventQuotes, UpdateData{ServerTime: serverTime, Symbol: symbol, Quote: q})
}

func Ping(serverTime int64) Frame {
	return frame(EventPing, map[string]int64{"serverTime": serverTime})
}

func frame(event string, data interface{}) Frame {
	// The payload types above cannot fail to marshal.
	b, _ := json.Marshal(data)
	return Frame{Event: event, Data: b}
}

// Marshal renders the whole frame as one JSON object, the WS wire format.
func (f Frame) Marshal() []byte {
	b, _ := json.Marshal(f)
	return b
}
