package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicscribe/dictation-gateway/internal/audio"
	"github.com/clinicscribe/dictation-gateway/internal/observability"
)

// State is the capture controller's lifecycle state.
type State string

const (
	StateNotSetup  State = "not_setup"
	StateSettingUp State = "setting_up"
	StateReady     State = "ready"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateError     State = "error"
)

// ControllerConfig holds the chunking parameters for the producer.
type ControllerConfig struct {
	Device        DeviceConfig
	ChunkInterval time.Duration // One chunk emitted per interval while recording
	BufferMillis  int           // Ring buffer depth between device reads and chunk emission
}

// Controller owns one audio input and its chunk producer. At most one
// producer exists at any time; Start while recording is a no-op rather than
// a second producer.
type Controller struct {
	device Device
	cfg    ControllerConfig
	meter  *audio.LevelMeter
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	producer *producer

	failures chan error
}

// NewController creates a controller around an unopened device. The meter is
// optional; when present it is fed every emitted chunk.
func NewController(device Device, cfg ControllerConfig, meter *audio.LevelMeter) *Controller {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 200 * time.Millisecond
	}
	if cfg.BufferMillis <= 0 {
		cfg.BufferMillis = 1000
	}
	return &Controller{
		device:   device,
		cfg:      cfg,
		meter:    meter,
		logger:   observability.WithComponent("capture"),
		state:    StateNotSetup,
		failures: make(chan error, 1),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failures surfaces producer-level device errors (for example the input
// being revoked mid-session) to the owning session.
func (c *Controller) Failures() <-chan error {
	return c.failures
}

// Setup requests exclusive access to the audio input. Invoking it outside
// NotSetup/Error is a silent no-op so duplicate UI triggers stay harmless.
func (c *Controller) Setup(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateNotSetup && c.state != StateError {
		c.mu.Unlock()
		return nil
	}
	c.state = StateSettingUp
	c.mu.Unlock()

	err := c.device.Open(ctx, c.cfg.Device)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateError
		c.logger.Error().Err(err).Msg("Audio input setup failed")
		return fmt.Errorf("capture setup: %w", err)
	}
	c.state = StateReady
	c.logger.Info().
		Int("sample_rate", c.cfg.Device.SampleRate).
		Int("channels", c.cfg.Device.Channels).
		Dur("chunk_interval", c.cfg.ChunkInterval).
		Msg("Audio input ready")
	return nil
}

// Start begins chunk production and returns the chunk stream. From Paused it
// resumes the existing producer. Calling it while already Recording is a
// no-op that returns the live stream.
func (c *Controller) Start() (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRecording:
		return c.producer.out, nil

	case StatePaused:
		c.producer.resume()
		c.state = StateRecording
		return c.producer.out, nil

	case StateReady:
		chunkSize := audio.ChunkSizeBytes(
			c.cfg.Device.SampleRate,
			c.cfg.Device.Channels,
			int(c.cfg.ChunkInterval/time.Millisecond),
		)
		bufSize := audio.ChunkSizeBytes(c.cfg.Device.SampleRate, c.cfg.Device.Channels, c.cfg.BufferMillis)
		c.producer = newProducer(c.device, c.cfg.ChunkInterval, chunkSize, bufSize, c.meter, c.onProducerError)
		c.state = StateRecording
		c.logger.Debug().Int("chunk_bytes", chunkSize).Msg("Chunk producer started")
		return c.producer.out, nil

	default:
		return nil, fmt.Errorf("cannot start capture from state %s", c.state)
	}
}

// Stop flushes and releases the producer entirely so a later Start creates a
// fresh one. Calling it when already stopped is a safe no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateRecording && c.state != StatePaused {
		c.mu.Unlock()
		return
	}
	p := c.producer
	c.producer = nil
	c.state = StateReady
	c.mu.Unlock()

	if p != nil {
		p.stop()
	}
	if c.meter != nil {
		c.meter.Reset()
	}
	c.logger.Debug().Msg("Chunk producer released")
}

// Pause suspends chunk emission without releasing the producer. Valid only
// while Recording; otherwise a silent no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return
	}
	c.producer.pause()
	c.state = StatePaused
}

// Resume continues chunk emission after Pause. Valid only while Paused;
// otherwise a silent no-op.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return
	}
	c.producer.resume()
	c.state = StateRecording
}

// Teardown stops any producer and releases the device. The controller
// returns to NotSetup and can be set up again.
func (c *Controller) Teardown() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotSetup {
		return
	}
	if err := c.device.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Error closing audio input")
	}
	c.state = StateNotSetup
}

// onProducerError runs when the device fails mid-recording. The producer has
// already shut itself down; surface the failure and mark the controller.
func (c *Controller) onProducerError(err error) {
	c.mu.Lock()
	if c.state != StateRecording && c.state != StatePaused {
		c.mu.Unlock()
		return
	}
	c.producer = nil
	c.state = StateError
	c.mu.Unlock()

	c.logger.Error().Err(err).Msg("Audio device failed while recording")
	select {
	case c.failures <- fmt.Errorf("%w: %v", ErrDeviceUnavailable, err):
	default:
	}
}

// producer pulls PCM from the device into a ring buffer and emits one chunk
// per tick. It owns two goroutines, both released by stop.
type producer struct {
	out    chan []byte
	stopCh chan struct{}

	mu     sync.Mutex
	paused bool

	wg sync.WaitGroup
}

func newProducer(device Device, interval time.Duration, chunkSize, bufSize int, meter *audio.LevelMeter, onError func(error)) *producer {
	p := &producer{
		out:    make(chan []byte, 16),
		stopCh: make(chan struct{}),
	}

	ring := audio.NewRingBuffer(bufSize + 1)
	readErr := make(chan error, 1)

	// Device-paced read loop.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		buf := make([]byte, chunkSize)
		for {
			n, err := device.Read(buf)
			if err != nil {
				select {
				case readErr <- err:
				default:
				}
				return
			}
			if n > 0 {
				ring.Write(buf[:n])
			}
			select {
			case <-p.stopCh:
				return
			default:
			}
		}
	}()

	// Interval-paced chunk emission.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		chunk := make([]byte, chunkSize)
		for {
			select {
			case <-p.stopCh:
				// Flush whatever the device delivered before stop.
				if n := ring.Read(chunk); n > 0 {
					p.emit(chunk[:n], meter)
				}
				return

			case err := <-readErr:
				if onError != nil {
					onError(err)
				}
				return

			case <-ticker.C:
				p.mu.Lock()
				paused := p.paused
				p.mu.Unlock()
				if paused {
					// Discard paused audio so resume does not replay it.
					ring.Clear()
					continue
				}
				if n := ring.Read(chunk); n > 0 {
					p.emit(chunk[:n], meter)
				}
			}
		}
	}()

	return p
}

func (p *producer) emit(chunk []byte, meter *audio.LevelMeter) {
	if meter != nil {
		meter.Process(chunk)
	}
	copied := make([]byte, len(chunk))
	copy(copied, chunk)
	select {
	case p.out <- copied:
	default:
		// Consumer fell behind; dropping beats stalling the ticker.
	}
}

func (p *producer) pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *producer) resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *producer) stop() {
	close(p.stopCh)
	p.wg.Wait()
}
