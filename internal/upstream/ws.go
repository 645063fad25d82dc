package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/pkg/config"
)

// WSSource maintains one WebSocket session against the upstream feed,
// reconnecting with exponential backoff. It owns the liveness state the
// watchdog reads; it never gives up on its own — deciding that the session
// is beyond saving is the watchdog's job.
type WSSource struct {
	feedState

	cfg    config.UpstreamConfig
	logger *zap.Logger
	events chan Event

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewWSSource(cfg config.UpstreamConfig, logger *zap.Logger) *WSSource {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 1024
	}
	return &WSSource{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, buffer),
	}
}

func (s *WSSource) Events() <-chan Event { return s.events }

// Run drives the connect/read loop until ctx is cancelled.
func (s *WSSource) Run(ctx context.Context) error {
	// Staleness is measured from boot until the first real event arrives.
	s.markEvent(time.Now())

	retry := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.setConnectError(err)
			delay := backoff(retry)
			retry++
			s.logger.Warn("Upstream connect failed",
				zap.Error(err), zap.Int("retry", retry), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		s.readLoop(ctx)
		s.setConnected(false)
	}
}

func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}

	if s.cfg.SubscribeMsg != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(s.cfg.SubscribeMsg)); err != nil {
			conn.Close()
			return err
		}
	}

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
	s.setConnected(true)
	s.logger.Info("Upstream connected", zap.String("url", s.cfg.URL))

	if s.cfg.PingInterval > 0 {
		go s.pingLoop(ctx, conn)
	}
	return nil
}

func (s *WSSource) readLoop(ctx context.Context) {
	conn := s.currentConn()
	if conn == nil {
		return
	}
	defer conn.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("Upstream read error", zap.Error(err))
			return
		}

		s.markEvent(time.Now())

		select {
		case s.events <- Event{Type: typeTag(msg), Raw: msg}:
		default:
			// The pipeline is behind; the store is last-write-wins, so
			// dropping the oldest-pending in favor of fresher data is safe.
			s.logger.Warn("Dropping upstream event, pipeline backlog full")
		}
	}
}

func (s *WSSource) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *WSSource) currentConn() *websocket.Conn {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn
}
