package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/clinicscribe/dictation-gateway/internal/audio"
)

// readWait bounds how long PulseDevice.Read blocks when no audio is pending.
const readWait = 100 * time.Millisecond

// PulseDevice captures s16le PCM from a PulseAudio source. When echo
// cancellation is requested it prefers an echo-cancel source (PulseAudio's
// module-echo-cancel publishes one) over the raw input.
type PulseDevice struct {
	mu      sync.Mutex
	client  *pulse.Client
	stream  *pulse.RecordStream
	frames  chan []byte
	pending []byte
	closed  bool
}

// NewPulseDevice creates an unopened Pulse capture device.
func NewPulseDevice() *PulseDevice {
	return &PulseDevice{}
}

// Open connects to the Pulse server, resolves the requested source, and
// starts a record stream at the configured rate.
func (d *PulseDevice) Open(ctx context.Context, cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return nil
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("dictation-gateway"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return classifyPulseError(err)
	}

	source, err := resolveSource(client, cfg)
	if err != nil {
		client.Close()
		return err
	}

	frames := make(chan []byte, 64)
	chunkBytes := audio.ChunkSizeBytes(cfg.SampleRate, cfg.Channels, 20) // 20ms fragments

	writer := pulse.NewWriter(pulseWriterFunc(func(buf []byte) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		frame := make([]byte, len(buf))
		copy(frame, buf)
		select {
		case frames <- frame:
		default:
			// Reader fell behind; dropping beats blocking the pulse callback.
		}
		return len(buf), nil
	}), pulseproto.FormatInt16LE)

	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(chunkBytes)),
		pulse.RecordMediaName("clinic dictation"),
	}
	if cfg.Channels == 1 {
		opts = append(opts, pulse.RecordMono)
	} else {
		opts = append(opts, pulse.RecordStereo)
	}
	if source != nil {
		opts = append(opts, pulse.RecordSource(source))
	}

	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		client.Close()
		return classifyPulseError(err)
	}

	d.client = client
	d.stream = stream
	d.frames = frames
	d.closed = false
	stream.Start()
	return nil
}

// Read delivers captured PCM. It blocks up to readWait when no audio is
// pending and returns n=0 in that case; a closed device returns
// ErrDeviceUnavailable.
func (d *PulseDevice) Read(buf []byte) (int, error) {
	d.mu.Lock()
	if d.closed || d.frames == nil {
		d.mu.Unlock()
		return 0, ErrDeviceUnavailable
	}
	frames := d.frames
	if len(d.pending) > 0 {
		n := copy(buf, d.pending)
		d.pending = d.pending[n:]
		d.mu.Unlock()
		return n, nil
	}
	d.mu.Unlock()

	select {
	case frame, ok := <-frames:
		if !ok {
			return 0, ErrDeviceUnavailable
		}
		n := copy(buf, frame)
		if n < len(frame) {
			d.mu.Lock()
			d.pending = frame[n:]
			d.mu.Unlock()
		}
		return n, nil
	case <-time.After(readWait):
		return 0, nil
	}
}

// Close stops the record stream and disconnects from the Pulse server.
func (d *PulseDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.stream != nil {
		d.stream.Stop()
		d.stream.Close()
		d.stream = nil
	}
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
	// frames is left open: the pulse callback may still be draining, and
	// Read checks closed before touching it.
	d.frames = nil
	d.pending = nil
	return nil
}

// resolveSource picks the capture source: an explicit name when configured,
// an echo-cancel source when echo cancellation was requested and one exists,
// otherwise the server default (nil).
func resolveSource(client *pulse.Client, cfg DeviceConfig) (*pulse.Source, error) {
	if cfg.Source != "" {
		source, err := client.SourceByID(cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("resolve source %q: %w", cfg.Source, classifyPulseError(err))
		}
		return source, nil
	}

	if cfg.EchoCancellation || cfg.NoiseSuppression {
		var infos pulseproto.GetSourceInfoListReply
		if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err == nil {
			for _, info := range infos {
				if info == nil {
					continue
				}
				if strings.Contains(info.SourceName, "echo-cancel") {
					if source, err := client.SourceByID(info.SourceName); err == nil {
						return source, nil
					}
				}
			}
		}
	}

	return nil, nil
}

func classifyPulseError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// ProbeBackend reports whether the PulseAudio server is reachable. Used by
// the readiness endpoint; it never holds on to the connection.
func ProbeBackend(ctx context.Context) (bool, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("dictation-gateway-probe"))
	if err != nil {
		return false, classifyPulseError(err)
	}
	client.Close()
	return true, nil
}

// pulseWriterFunc adapts a function to the io.Writer shape pulse.NewWriter
// expects.
type pulseWriterFunc func([]byte) (int, error)

func (f pulseWriterFunc) Write(p []byte) (int, error) {
	return f(p)
}
