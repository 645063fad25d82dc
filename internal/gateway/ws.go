package gateway

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/internal/hub"
	"github.com/SloanRudderham/tl-quotes-relay/internal/protocol"
)

const maxInboundSize = 4 * 1024

// wsClient is the hub sink for one WebSocket subscriber. Frames are JSON
// text messages; keepalive is a protocol-level ping from the write pump.
type wsClient struct {
	conn   net.Conn
	hub    *hub.Hub
	send   chan protocol.Frame
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func newWSClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, buffer int, keepalive, writeWait time.Duration) *wsClient {
	return &wsClient{
		conn:       conn,
		hub:        h,
		send:       make(chan protocol.Frame, buffer),
		logger:     logger,
		done:       make(chan struct{}),
		writeWait:  writeWait,
		pongWait:   2 * keepalive,
		pingPeriod: keepalive,
	}
}

func (c *wsClient) start() {
	go c.writePump()
	go c.readPump()
}

func (c *wsClient) ID() string { return c.conn.RemoteAddr().String() }

func (c *wsClient) Send(f protocol.Frame) bool {
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

func (c *wsClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump drains the connection for control frames. The symbol filter is
// fixed at stream open, so inbound text is ignored; close or a read error
// tears the subscriber down.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			return
		}
		if header.Length > maxInboundSize {
			c.logger.Warn("Inbound frame too big", zap.Int64("size", header.Length))
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong, ws.OpPing:
			// All writes stay on the write pump; deadline refresh is enough.
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.Write(ws.CompiledClose)
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerText(c.conn, f.Marshal()); err != nil {
				c.hub.Unsubscribe(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				c.hub.Unsubscribe(c)
				return
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug("WS upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(conn, s.hub, s.logger, s.sendBuffer, s.keepalive, s.writeTimeout)
	client.start()
	s.hub.Subscribe(client, filter)
}
