package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/datastream/datastream/server/internal/generator"
	"github.com/datastream/datastream/server/internal/metrics"
	"github.com/datastream/datastream/server/internal/session"
	"github.com/datastream/datastream/server/internal/stream"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultReadLimit    = 64 * 1024
	defaultConcurrency  = 32
)

// Options tunes a Hub. Zero values fall back to the defaults above.
type Options struct {
	// WriteTimeout is the deadline for a single write to a client.
	WriteTimeout time.Duration

	// PongWait is how long to wait for a pong before the connection is
	// treated as dead. Pings go out every PongWait*9/10.
	PongWait time.Duration

	// ReadLimit is the maximum inbound message size in bytes.
	ReadLimit int64

	// AllowedOrigins restricts the Origin header; empty accepts all.
	AllowedOrigins []string

	// BroadcastConcurrency caps parallel writes during Broadcast.
	BroadcastConcurrency int

	// Metrics receives session and message counts. May be nil.
	Metrics *metrics.Registry

	// NewID returns a fresh session ID. Defaults to uuid.NewString.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.BroadcastConcurrency <= 0 {
		o.BroadcastConcurrency = defaultConcurrency
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Result reports the outcome of one Broadcast.
type Result struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// SessionInfo describes one registered session.
type SessionInfo struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Hub accepts WebSocket connections, runs their lifecycle and fans
// broadcasts out to every open session.
type Hub struct {
	registry *session.Registry
	gen      generator.Generator
	streamer *stream.Streamer
	metrics  *metrics.Registry
	opts     Options
	upgrader websocket.Upgrader

	// ctx parents every streamer; Run cancels it on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Hub that tracks sessions in reg, builds payloads with gen and
// starts a streamer per session.
func New(reg *session.Registry, gen generator.Generator, st *stream.Streamer, opts Options) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		registry: reg,
		gen:      gen,
		streamer: st,
		metrics:  opts.Metrics,
		opts:     opts,
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s := session.New(h.opts.NewID(), conn,
		session.WithWriteTimeout(h.opts.WriteTimeout),
		session.WithRemoteAddr(r.RemoteAddr),
	)
	if !h.onConnect(s) {
		return
	}

	done := make(chan struct{})
	go h.keepalive(s, conn, done)
	status := h.readLoop(s, conn)
	close(done)
	h.onClose(s, status)
}

// Run blocks until ctx is cancelled, then closes every session with
// 1001 (going away).
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.CloseAll(websocket.CloseGoingAway, "server shutting down")
	h.cancel()
}

// CloseAll closes every registered session with the given status.
func (h *Hub) CloseAll(code int, reason string) {
	for _, s := range h.registry.Snapshot() {
		_ = s.CloseWithStatus(code, reason)
	}
}

// Disconnect closes the session with the given ID. It reports whether the
// session was registered.
func (h *Hub) Disconnect(id string) bool {
	s, ok := h.registry.Get(id)
	if !ok {
		return false
	}
	_ = s.CloseWithStatus(websocket.ClosePolicyViolation, "disconnected by server")
	return true
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	return h.registry.Len()
}

// Sessions lists the registered sessions.
func (h *Hub) Sessions() []SessionInfo {
	snap := h.registry.Snapshot()
	out := make([]SessionInfo, 0, len(snap))
	for _, s := range snap {
		out = append(out, SessionInfo{
			ID:          s.ID(),
			State:       s.State().String(),
			RemoteAddr:  s.RemoteAddr(),
			ConnectedAt: s.ConnectedAt().UTC(),
		})
	}
	return out
}

// Broadcast serialises v once and sends it to every session open at the time
// of the call. A failed send is counted and does not stop the others.
func (h *Hub) Broadcast(ctx context.Context, v any) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("ws: broadcast encode failed", "err", err)
		return Result{}, fmt.Errorf("%w: %v", session.ErrEncode, err)
	}

	targets := h.registry.Open()
	var delivered, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(h.opts.BroadcastConcurrency)
	for _, s := range targets {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			if err := s.SendText(data); err != nil {
				if !errors.Is(err, session.ErrClosed) {
					slog.Error("ws: broadcast send failed", "session", s.ID(), "err", err)
				}
				failed.Add(1)
				h.metrics.SendFailed(metrics.KindBroadcast)
				return nil
			}
			delivered.Add(1)
			h.metrics.Sent(metrics.KindBroadcast)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	slog.Debug("ws: broadcast done", "delivered", res.Delivered, "failed", res.Failed)
	return res, ctx.Err()
}

// --- lifecycle --------------------------------------------------------------

// onConnect opens s, sends the welcome message, registers s and starts the
// streamer. It returns false if s could not be registered.
//
// The welcome goes out before registration so that a concurrent Broadcast
// cannot reach the client ahead of it.
func (h *Hub) onConnect(s *session.Session) bool {
	if !s.Open() {
		return false
	}
	h.send(s, metrics.KindWelcome, func() (any, error) { return h.gen.Welcome(s.ID()) })

	if err := h.registry.Add(s); err != nil {
		slog.Error("ws: register failed", "session", s.ID(), "err", err)
		_ = s.CloseWithStatus(websocket.CloseInternalServerErr, "")
		return false
	}
	h.metrics.SessionOpened()
	slog.Info("ws: connection established", "session", s.ID(), "remote", s.RemoteAddr())

	s.OnStop(h.streamer.Start(h.ctx, s))
	return true
}

// onMessage echoes payload back to s only.
func (h *Hub) onMessage(s *session.Session, payload string) {
	h.metrics.Received()
	slog.Debug("ws: message received", "session", s.ID(), "payload", payload)
	h.send(s, metrics.KindEcho, func() (any, error) { return h.gen.Echo(payload) })
}

// onTransportError logs err and closes s.
func (h *Hub) onTransportError(s *session.Session, err error) {
	h.metrics.TransportError()
	slog.Error("ws: transport error", "session", s.ID(), "err", err)
	_ = s.Close()
}

// onClose removes s from the registry and closes it, which stops its
// streamer before returning.
func (h *Hub) onClose(s *session.Session, status int) {
	if _, ok := h.registry.Remove(s.ID()); ok {
		h.metrics.SessionClosed()
	}
	_ = s.Close()
	slog.Info("ws: connection closed", "session", s.ID(), "status", status)
}

// send builds a payload and writes it to s, logging and counting failures.
func (h *Hub) send(s *session.Session, kind metrics.Kind, build func() (any, error)) {
	v, err := build()
	if err != nil {
		slog.Error("ws: generate message failed", "session", s.ID(), "kind", kind, "err", err)
		h.metrics.SendFailed(kind)
		return
	}
	if err := s.SendJSON(v); err != nil {
		slog.Error("ws: send failed", "session", s.ID(), "kind", kind, "err", err)
		h.metrics.SendFailed(kind)
		return
	}
	h.metrics.Sent(kind)
}

// --- pumps ------------------------------------------------------------------

// readLoop dispatches inbound text frames until the connection ends and
// returns the close status that ended it.
func (h *Hub) readLoop(s *session.Session, conn *websocket.Conn) int {
	conn.SetReadLimit(h.opts.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(h.opts.PongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				return ce.Code
			case !s.IsOpen():
				// Closed locally: shutdown, Disconnect or a rejected frame.
				return websocket.CloseNormalClosure
			default:
				h.onTransportError(s, err)
				return websocket.CloseAbnormalClosure
			}
		}
		if mt != websocket.TextMessage {
			_ = s.CloseWithStatus(websocket.CloseUnsupportedData, "text frames only")
			return websocket.CloseUnsupportedData
		}
		h.onMessage(s, string(data))
	}
}

// keepalive sends ping frames until done is closed or a ping fails.
func (h *Hub) keepalive(s *session.Session, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
			if !s.IsOpen() {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				slog.Debug("ws: ping failed", "session", s.ID(), "err", err)
				return
			}
		}
	}
}

// originChecker accepts requests whose Origin header is in allowed. An empty
// list, or a request without Origin, is always accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
