package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/internal/hub"
	"github.com/SloanRudderham/tl-quotes-relay/internal/limiter"
	"github.com/SloanRudderham/tl-quotes-relay/internal/store"
	"github.com/SloanRudderham/tl-quotes-relay/internal/upstream"
	"github.com/SloanRudderham/tl-quotes-relay/pkg/config"
	"github.com/SloanRudderham/tl-quotes-relay/pkg/models"
)

// Server is the HTTP gateway: push streams (SSE and WebSocket) plus
// point-in-time snapshot and health/status queries. Queries are pure reads
// of the store and feed state; they never fail on normalization issues.
type Server struct {
	store   *store.Store
	hub     *hub.Hub
	live    upstream.Liveness
	limiter limiter.Limiter
	logger  *zap.Logger

	env          string
	authToken    string
	sendBuffer   int
	keepalive    time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

func NewServer(st *store.Store, h *hub.Hub, live upstream.Liveness, lim limiter.Limiter,
	app config.AppConfig, stream config.StreamConfig, logger *zap.Logger) *Server {
	return &Server{
		store:        st,
		hub:          h,
		live:         live,
		limiter:      lim,
		logger:       logger,
		env:          app.Env,
		authToken:    app.AuthToken,
		sendBuffer:   stream.SendBuffer,
		keepalive:    stream.KeepaliveInterval,
		writeTimeout: stream.WriteTimeout,
		now:          time.Now,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.auth(s.limit(s.handleStream)))
	mux.HandleFunc("/ws", s.auth(s.limit(s.handleWS)))
	mux.HandleFunc("/snapshot", s.auth(s.handleSnapshot))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

type snapshotResponse struct {
	ServerTime int64                   `json:"serverTime"`
	Count      int                     `json:"count"`
	Quotes     map[string]models.Quote `json:"quotes"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	quotes := s.store.Snapshot(parseFilter(r))
	writeJSON(w, http.StatusOK, snapshotResponse{
		ServerTime: s.now().UnixMilli(),
		Count:      len(quotes),
		Quotes:     quotes,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"env":         s.env,
		"symbolCount": s.store.Len(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var lastEventAt int64
	if at := s.live.LastEventAt(); !at.IsZero() {
		lastEventAt = at.UnixMilli()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"env":              s.env,
		"connected":        s.live.Connected(),
		"symbolCount":      s.store.Len(),
		"lastEventAt":      lastEventAt,
		"lastConnectError": s.live.LastConnectError(),
		"now":              s.now().UnixMilli(),
	})
}

// auth enforces the configured bearer token. SSE clients cannot set headers
// from EventSource, so a token query parameter is accepted too. An empty
// configured token disables the check.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"ok": false, "error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// limit applies the connection rate limiter per client IP. Limiter errors
// fail open: an unreachable Redis must not take the stream surface down.
func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowed, err := s.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			s.logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			next(w, r)
			return
		}
		if !allowed {
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{"ok": false, "error": "rate limited"})
			return
		}
		next(w, r)
	}
}

// parseFilter reads the symbols query parameter into a filter set. Symbols
// are case-sensitive opaque tokens; an absent or empty parameter means no
// filtering.
func parseFilter(r *http.Request) map[string]struct{} {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		return nil
	}
	filter := make(map[string]struct{})
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter[s] = struct{}{}
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
