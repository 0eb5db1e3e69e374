package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/datastream/datastream/server/internal/generator"
	"github.com/datastream/datastream/server/internal/metrics"
	"github.com/datastream/datastream/server/internal/session"
)

// Default cadence.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultPeriod       = 2 * time.Second
)

// Config is the streaming cadence.
type Config struct {
	InitialDelay time.Duration
	Period       time.Duration
}

// DefaultConfig returns the default cadence.
func DefaultConfig() Config {
	return Config{InitialDelay: DefaultInitialDelay, Period: DefaultPeriod}
}

func (c Config) validate() error {
	if c.InitialDelay < 0 {
		return fmt.Errorf("stream: initial delay must not be negative")
	}
	if c.Period <= 0 {
		return fmt.Errorf("stream: period must be positive")
	}
	return nil
}

// Target is the session side a streamer writes to.
type Target interface {
	ID() string
	IsOpen() bool
	SendJSON(v any) error
}

// Streamer starts per-session sample loops.
type Streamer struct {
	gen     generator.Generator
	clock   clockwork.Clock
	metrics *metrics.Registry
	cfg     atomic.Pointer[Config]
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithClock sets the clock driving timers.
func WithClock(c clockwork.Clock) Option {
	return func(st *Streamer) { st.clock = c }
}

// WithMetrics records sent and failed samples in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(st *Streamer) { st.metrics = m }
}

// WithConfig sets the initial cadence.
func WithConfig(cfg Config) Option {
	return func(st *Streamer) { st.cfg.Store(&cfg) }
}

// New creates a Streamer that samples gen.
func New(gen generator.Generator, opts ...Option) *Streamer {
	st := &Streamer{
		gen:   gen,
		clock: clockwork.NewRealClock(),
	}
	def := DefaultConfig()
	st.cfg.Store(&def)
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Config returns the cadence applied to newly started sessions.
func (st *Streamer) Config() Config {
	return *st.cfg.Load()
}

// SetConfig replaces the cadence for sessions started after the call.
// Running loops keep their cadence.
func (st *Streamer) SetConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	st.cfg.Store(&cfg)
	return nil
}

// Start launches the sample loop for t and returns its stop function.
func (st *Streamer) Start(ctx context.Context, t Target) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cfg := st.Config()

	go func() {
		defer close(done)
		st.run(ctx, t, cfg)
	}()

	return func() {
		cancel()
		<-done
	}
}

func (st *Streamer) run(ctx context.Context, t Target, cfg Config) {
	timer := st.clock.NewTimer(cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.Chan():
	}
	if !st.tick(t) {
		return
	}

	ticker := st.clock.NewTicker(cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !st.tick(t) {
				return
			}
		}
	}
}

// tick sends one sample. It returns false once the session is gone.
func (st *Streamer) tick(t Target) bool {
	if !t.IsOpen() {
		return false
	}

	v, err := st.gen.Sample()
	if err != nil {
		slog.Error("stream: generate sample failed", "session", t.ID(), "err", err)
		st.metrics.SendFailed(metrics.KindSample)
		return true
	}

	if err := t.SendJSON(v); err != nil {
		if errors.Is(err, session.ErrClosed) {
			return false
		}
		slog.Error("stream: send sample failed", "session", t.ID(), "err", err)
		st.metrics.SendFailed(metrics.KindSample)
		return true
	}
	st.metrics.Sent(metrics.KindSample)
	return true
}
