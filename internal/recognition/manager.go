package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicscribe/dictation-gateway/internal/observability"
	"github.com/clinicscribe/dictation-gateway/internal/transcript"
)

// State is the connection lifecycle state.
type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
)

// KeyFetcher mints one single-use session key per connection attempt.
type KeyFetcher interface {
	FetchSessionKey(ctx context.Context) (string, error)
}

const (
	defaultConnectTimeout = 5 * time.Second

	// transcriptBufferSize absorbs bursts of recognizer results while the
	// consumer catches up.
	transcriptBufferSize = 100
)

// ManagerConfig carries the recognition options and the overall connect
// deadline. A zero ConnectTimeout uses the default.
type ManagerConfig struct {
	Options        Options
	ConnectTimeout time.Duration
}

// Manager owns one recognizer connection at a time. Connect fetches a fresh
// session key, dials the transport, and waits for the open signal under a
// single deadline. Transcript events flow out on the channel Connect returns;
// mid-session connection loss is reported on Failures.
type Manager struct {
	transport      Transport
	keys           KeyFetcher
	opts           Options
	connectTimeout time.Duration
	metrics        *observability.Metrics
	logger         zerolog.Logger

	mu       sync.Mutex
	state    State
	conn     *managedConn
	failures chan error
}

// managedConn is one connection's stream plus its consumer-facing channel.
// detach is closed on local disconnect so the pump can tell a requested
// close apart from a connection loss.
type managedConn struct {
	stream     Stream
	out        chan transcript.Event
	detach     chan struct{}
	detachOnce sync.Once
}

// NewManager creates a connection manager. metrics may be nil.
func NewManager(transport Transport, keys KeyFetcher, cfg ManagerConfig, metrics *observability.Metrics) *Manager {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &Manager{
		transport:      transport,
		keys:           keys,
		opts:           cfg.Options,
		connectTimeout: timeout,
		metrics:        metrics,
		logger:         observability.WithComponent("recognition.manager"),
		state:          StateClosed,
		failures:       make(chan error, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failures delivers mid-session connection losses. Buffered so the pump
// never blocks on an absent listener.
func (m *Manager) Failures() <-chan error {
	return m.failures
}

// Connect establishes the recognizer connection and returns the transcript
// event channel for its lifetime. Calling Connect while already connecting
// or open returns the existing channel without side effects. The entire
// sequence (key fetch, dial, waiting for open) shares one deadline; on
// expiry the attempt is abandoned with ErrConnectTimeout.
func (m *Manager) Connect(ctx context.Context) (<-chan transcript.Event, error) {
	m.mu.Lock()
	if m.state != StateClosed {
		c := m.conn
		m.mu.Unlock()
		m.logger.Debug().Msg("Connect requested while already connecting or open, ignoring")
		return c.out, nil
	}
	c := &managedConn{
		out:    make(chan transcript.Event, transcriptBufferSize),
		detach: make(chan struct{}),
	}
	m.state = StateConnecting
	m.conn = c
	m.mu.Unlock()

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	stream, err := m.establish(cctx)
	if err != nil {
		m.mu.Lock()
		if m.conn == c {
			m.state = StateClosed
			m.conn = nil
		}
		m.mu.Unlock()
		close(c.out)

		outcome := "error"
		if errors.Is(err, ErrConnectTimeout) {
			outcome = "timeout"
		}
		observability.RecordConnectOutcome(outcome)
		m.logger.Error().Err(err).Str("outcome", outcome).Msg("Recognizer connection failed")
		return nil, err
	}

	m.mu.Lock()
	if m.conn != c {
		// Disconnected while the attempt was in flight.
		m.mu.Unlock()
		_ = stream.Close()
		close(c.out)
		return nil, fmt.Errorf("%w: disconnected during connect", ErrConnectionFailed)
	}
	c.stream = stream
	m.state = StateOpen
	m.mu.Unlock()

	observability.RecordConnectOutcome("open")
	observability.RecordConnectLatency(time.Since(start))
	m.logger.Info().Dur("elapsed", time.Since(start)).Msg("Recognizer connection open")

	go m.pump(c, stream)
	return c.out, nil
}

// establish runs the key fetch, dial, and open wait under ctx's deadline.
func (m *Manager) establish(ctx context.Context) (Stream, error) {
	key, err := m.keys.FetchSessionKey(ctx)
	if err != nil {
		return nil, expiryErr(ctx, err)
	}

	stream, err := m.transport.Dial(ctx, key, m.opts)
	if err != nil {
		return nil, expiryErr(ctx, err)
	}

	select {
	case ev, ok := <-stream.Events():
		if !ok {
			return nil, fmt.Errorf("%w: stream ended before open", ErrConnectionFailed)
		}
		switch ev.Type {
		case EventOpen:
			return stream, nil
		case EventError:
			_ = stream.Close()
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, ev.Err)
		default:
			_ = stream.Close()
			return nil, fmt.Errorf("%w: stream closed before open", ErrConnectionFailed)
		}
	case <-ctx.Done():
		_ = stream.Close()
		return nil, expiryErr(ctx, ctx.Err())
	}
}

// expiryErr classifies a failure while the connect context may have expired:
// only a blown open deadline is a timeout; caller cancellation and everything
// else is a plain connection failure.
func expiryErr(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrConnectTimeout
	}
	return fmt.Errorf("%w: %v", ErrConnectionFailed, cause)
}

// Send forwards one audio chunk. Chunks offered while the connection is not
// open are dropped silently; the return value reports whether the chunk was
// handed to the transport.
func (m *Manager) Send(chunk []byte) bool {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil || m.conn.stream == nil {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.RecordAudioBytes("dropped", int64(len(chunk)))
		}
		return false
	}
	stream := m.conn.stream
	m.mu.Unlock()

	if err := stream.Send(chunk); err != nil {
		m.logger.Warn().Err(err).Msg("Audio send failed")
		if m.metrics != nil {
			m.metrics.RecordAudioBytes("dropped", int64(len(chunk)))
		}
		return false
	}
	if m.metrics != nil {
		m.metrics.RecordAudioBytes("sent", int64(len(chunk)))
	}
	return true
}

// Disconnect tears down the current connection. Safe to call in any state
// and more than once. The consumer channel is detached before the stream is
// released, so a locally requested close never shows up as a failure.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.conn
	m.state = StateClosed
	m.conn = nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	c.detachOnce.Do(func() { close(c.detach) })
	if c.stream != nil {
		_ = c.stream.Close()
	}
	m.logger.Info().Msg("Recognizer connection closed")
}

// pump moves transcript events from the transport stream to the consumer
// channel until the stream ends or the connection is detached.
func (m *Manager) pump(c *managedConn, stream Stream) {
	defer close(c.out)

	for {
		select {
		case <-c.detach:
			for range stream.Events() {
			}
			return

		case ev, ok := <-stream.Events():
			if !ok {
				m.connectionLost(c, fmt.Errorf("%w: stream ended", ErrConnectionFailed))
				return
			}
			switch ev.Type {
			case EventTranscript:
				select {
				case c.out <- ev.Transcript:
				default:
					m.logger.Warn().Msg("Transcript buffer full, dropping event")
					if m.metrics != nil {
						m.metrics.RecordTranscriptEvent("dropped")
					}
				}

			case EventError:
				m.connectionLost(c, ev.Err)
				return

			case EventClosed:
				m.connectionLost(c, fmt.Errorf("%w: closed by remote", ErrConnectionFailed))
				return

			case EventOpen:
				// Already observed during establish.
			}
		}
	}
}

// connectionLost handles a stream ending that was not locally requested.
func (m *Manager) connectionLost(c *managedConn, cause error) {
	select {
	case <-c.detach:
		return
	default:
	}

	m.mu.Lock()
	if m.conn == c {
		m.state = StateClosed
		m.conn = nil
	}
	m.mu.Unlock()

	if c.stream != nil {
		_ = c.stream.Close()
	}
	if cause == nil {
		cause = ErrConnectionFailed
	}
	m.logger.Error().Err(cause).Msg("Recognizer connection lost")
	if m.metrics != nil {
		m.metrics.RecordError("connection_lost", "recognition")
	}
	select {
	case m.failures <- cause:
	default:
	}
}
