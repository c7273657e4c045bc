package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicscribe/dictation-gateway/internal/audio"
	"github.com/clinicscribe/dictation-gateway/internal/observability"
	"github.com/clinicscribe/dictation-gateway/internal/transcript"
)

// CaptureController is the session-facing subset of the capture controller.
type CaptureController interface {
	Setup(ctx context.Context) error
	Start() (<-chan []byte, error)
	Stop()
	Failures() <-chan error
}

// ConnectionManager is the session-facing subset of the recognizer
// connection manager.
type ConnectionManager interface {
	Connect(ctx context.Context) (<-chan transcript.Event, error)
	Send(chunk []byte) bool
	Disconnect()
	Failures() <-chan error
}

// Config holds orchestrator tunables. A zero ClockInterval means one tick
// per second.
type Config struct {
	ClockInterval time.Duration
}

// Snapshot is the caller-visible view of the session, published on every
// status request and over the live socket.
type Snapshot struct {
	SessionID      string  `json:"session_id,omitempty"`
	State          State   `json:"state"`
	DisplayText    string  `json:"display_text"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	LastError      string  `json:"last_error,omitempty"`
	Level          float64 `json:"level"`
	SpeechActive   bool    `json:"speech_active"`
}

// Controller owns one dictation session at a time. Start acquires the
// device, the recognizer connection, and the clock together and unwinds all
// of them on any partial failure; Stop and Reset release everything
// deterministically so no producer, event pump, or timer outlives the
// session.
type Controller struct {
	capture CaptureController
	conn    ConnectionManager
	engine  *transcript.Engine
	meter   *audio.LevelMeter
	logger  zerolog.Logger

	clockInterval time.Duration

	mu        sync.Mutex
	state     State
	sessionID string
	elapsed   int
	lastError error
	cancel    context.CancelFunc
	metrics   *observability.Metrics

	wg sync.WaitGroup
}

// NewController wires the pipeline components together. The meter is
// optional and only feeds snapshots.
func NewController(capture CaptureController, conn ConnectionManager, engine *transcript.Engine, meter *audio.LevelMeter, cfg Config) *Controller {
	interval := cfg.ClockInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Controller{
		capture:       capture,
		conn:          conn,
		engine:        engine,
		meter:         meter,
		logger:        observability.WithComponent("session"),
		clockInterval: interval,
		state:         StateIdle,
	}
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the caller-visible session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		SessionID:      c.sessionID,
		State:          c.state,
		ElapsedSeconds: c.elapsed,
	}
	if c.lastError != nil {
		s.LastError = c.lastError.Error()
	}
	c.mu.Unlock()

	s.DisplayText = c.engine.DisplayText()
	if c.meter != nil {
		s.Level = c.meter.Level()
		s.SpeechActive = c.meter.SpeechActive()
	}
	return s
}

// Start brings up a recording session: transcript reset, device setup,
// recognizer connect, chunk/event binding, clock start. Requesting a start
// while one is already preparing or recording is a silent no-op. On any
// failure every acquired resource is released before the error is surfaced.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StatePreparing || c.state == StateRecording {
		c.mu.Unlock()
		c.logger.Debug().Msg("Start requested while session active, ignoring")
		return nil
	}
	next, err := Transition(c.state, EventStart)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	c.sessionID = observability.NewSessionID()
	c.elapsed = 0
	c.lastError = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	logger := c.logger.With().Str("session_id", sessionID).Logger()
	logger.Info().Msg("Starting recording session")

	c.engine.Reset()

	// Device first: it has no network dependency and fails fast on
	// permission.
	if err := c.capture.Setup(ctx); err != nil {
		c.startFailed(logger, err)
		return err
	}

	events, err := c.conn.Connect(ctx)
	if err != nil {
		c.capture.Stop()
		c.startFailed(logger, err)
		return err
	}

	chunks, err := c.capture.Start()
	if err != nil {
		c.conn.Disconnect()
		c.startFailed(logger, err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	metrics := observability.NewSessionMetrics(sessionID)

	c.mu.Lock()
	next, err = Transition(c.state, EventStarted)
	if err != nil {
		// Reset raced the start; unwind what we just acquired.
		c.mu.Unlock()
		cancel()
		c.capture.Stop()
		c.conn.Disconnect()
		return err
	}
	c.state = next
	c.cancel = cancel
	c.metrics = metrics
	c.mu.Unlock()

	metrics.RecordSessionStart()
	logger.Info().Msg("Recording session active")

	c.wg.Add(1)
	go c.run(runCtx, logger, chunks, events, metrics)
	return nil
}

// startFailed unwinds a partially-acquired session into the error state.
func (c *Controller) startFailed(logger zerolog.Logger, err error) {
	c.mu.Lock()
	if next, terr := Transition(c.state, EventFail); terr == nil {
		c.state = next
	}
	c.lastError = err
	c.mu.Unlock()
	logger.Error().Err(err).Msg("Session start failed")
}

// Stop ends the active session and returns the frozen transcript. Calling
// it while not recording is a silent no-op returning the empty string.
func (c *Controller) Stop() string {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ""
	}
	next, _ := Transition(c.state, EventStop)
	c.state = next
	cancel := c.cancel
	c.cancel = nil
	metrics := c.metrics
	c.metrics = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	// Detach the pump before releasing resources so nothing mutates the
	// transcript after this returns.
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.capture.Stop()
	c.conn.Disconnect()

	if metrics != nil {
		metrics.RecordSessionEnd()
	}

	final := c.engine.DisplayText()
	c.logger.Info().Str("session_id", sessionID).Int("transcript_len", len(final)).Msg("Recording session stopped")
	return final
}

// Reset forcibly tears down whatever is active and clears all session
// state, returning to idle regardless of the prior state.
func (c *Controller) Reset() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	metrics := c.metrics
	c.metrics = nil
	c.state, _ = Transition(c.state, EventReset)
	c.sessionID = ""
	c.elapsed = 0
	c.lastError = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.capture.Stop()
	c.conn.Disconnect()
	c.engine.Reset()
	if c.meter != nil {
		c.meter.Reset()
	}
	if metrics != nil {
		metrics.RecordSessionEnd()
	}
	c.logger.Info().Msg("Session reset")
}

// run is the session's single pump: audio chunks to the connection,
// transcript events to the engine, one elapsed tick per clock interval, and
// component failures to the error path. It exits when the session context
// is cancelled or a failure ends the session.
func (c *Controller) run(ctx context.Context, logger zerolog.Logger, chunks <-chan []byte, events <-chan transcript.Event, metrics *observability.Metrics) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.clockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			c.conn.Send(chunk)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if c.engine.Apply(ev) {
				kind := "interim"
				if ev.IsFinal {
					kind = "final"
				}
				metrics.RecordTranscriptEvent(kind)
			}

		case <-ticker.C:
			c.mu.Lock()
			c.elapsed++
			c.mu.Unlock()

		case err := <-c.capture.Failures():
			c.sessionFailed(logger, metrics, "capture", err)
			return

		case err := <-c.conn.Failures():
			c.sessionFailed(logger, metrics, "recognition", err)
			return
		}
	}
}

// sessionFailed handles a component dying mid-session: audio production
// stops and the session lands in the error state, but the accumulated
// transcript is kept for the caller.
func (c *Controller) sessionFailed(logger zerolog.Logger, metrics *observability.Metrics, component string, err error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	next, _ := Transition(c.state, EventFail)
	c.state = next
	c.lastError = err
	cancel := c.cancel
	c.cancel = nil
	c.metrics = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.capture.Stop()
	c.conn.Disconnect()

	metrics.RecordError("session_failure", component)
	metrics.RecordSessionEnd()
	logger.Error().Err(err).Str("component", component).Msg("Recording session failed")
}
