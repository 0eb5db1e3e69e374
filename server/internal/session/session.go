package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// DefaultWriteTimeout bounds a single write when no timeout is configured.
const DefaultWriteTimeout = 10 * time.Second

var (
	// ErrClosed is returned when sending on a session that is not open.
	ErrClosed = errors.New("session: not open")

	// ErrEncode wraps JSON serialization failures from SendJSON.
	ErrEncode = errors.New("session: encode message")
)

// State is the lifecycle state of a session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the subset of *websocket.Conn a session writes through.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for write deadlines and ConnectedAt.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithWriteTimeout sets the per-write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithRemoteAddr records the peer address for listings and logs.
func WithRemoteAddr(addr string) Option {
	return func(s *Session) { s.remoteAddr = addr }
}

// Session is one client connection and its send channel.
type Session struct {
	id           string
	remoteAddr   string
	conn         Conn
	clock        clockwork.Clock
	writeTimeout time.Duration
	connectedAt  time.Time

	state atomic.Int32

	writeMu sync.Mutex

	stopMu sync.Mutex
	stop   func()

	closeOnce sync.Once
	closeErr  error
}

// New creates a session in the CONNECTING state.
func New(id string, conn Conn, opts ...Option) *Session {
	s := &Session{
		id:           id,
		conn:         conn,
		clock:        clockwork.NewRealClock(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.connectedAt = s.clock.Now()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address, if one was recorded.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// ConnectedAt returns the time the session was created.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// IsOpen reports whether the session accepts sends.
func (s *Session) IsOpen() bool { return s.State() == StateOpen }

// Open moves the session from CONNECTING to OPEN. It returns false if the
// session was already opened or closed.
func (s *Session) Open() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// OnStop attaches the function run when the session closes. If the session is
// already closed, stop runs immediately. Attaching replaces any earlier
// function that has not run yet.
func (s *Session) OnStop(stop func()) {
	s.stopMu.Lock()
	if s.State() == StateClosed {
		s.stopMu.Unlock()
		stop()
		return
	}
	s.stop = stop
	s.stopMu.Unlock()
}

// SendText writes data as a single text frame.
func (s *Session) SendText(data []byte) error {
	if !s.IsOpen() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Re-check under the lock: Close may have won the race.
	if !s.IsOpen() {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(s.clock.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("session %s: set write deadline: %w", s.id, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("session %s: write: %w", s.id, err)
	}
	return nil
}

// SendJSON serialises v and writes it as a text frame.
func (s *Session) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return s.SendText(data)
}

// Close closes the session with a normal closure status.
func (s *Session) Close() error {
	return s.CloseWithStatus(websocket.CloseNormalClosure, "")
}

// CloseWithStatus moves the session to CLOSED, sends a close frame with code
// and reason, closes the connection and runs the stop function. Only the
// first call has any effect; later calls return the first call's error.
func (s *Session) CloseWithStatus(code int, reason string) error {
	s.closeOnce.Do(func() {
		s.stopMu.Lock()
		s.state.Store(int32(StateClosed))
		stop := s.stop
		s.stop = nil
		s.stopMu.Unlock()

		deadline := s.clock.Now().Add(s.writeTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.closeErr = s.conn.Close()

		if stop != nil {
			stop()
		}
	})
	return s.closeErr
}
