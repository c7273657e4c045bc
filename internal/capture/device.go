// Package capture owns the physical audio input: exclusive device access,
// the recording state machine, and the fixed-interval chunk producer.
package capture

import (
	"context"
	"errors"
)

// Sentinel errors for capture failures. Callers match with errors.Is.
var (
	// ErrPermissionDenied means the platform refused access to the input.
	ErrPermissionDenied = errors.New("audio input permission denied")

	// ErrDeviceUnavailable means the capture hardware failed or was revoked.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
)

// DeviceConfig describes the stream requested from the input device.
type DeviceConfig struct {
	Source           string // Backend-specific source name; empty selects the default input
	SampleRate       int    // Hz
	Channels         int
	NoiseSuppression bool
	EchoCancellation bool
}

// Device is one physical audio input. Implementations deliver s16le PCM at
// the configured rate. Open requests exclusive access and may block on a
// permission prompt. Read blocks until audio is available or a short
// internal wait elapses; it returns n=0 with a nil error when no audio
// arrived, and a non-nil error only when the device has failed. Close
// releases the hardware.
type Device interface {
	Open(ctx context.Context, cfg DeviceConfig) error
	Read(buf []byte) (int, error)
	Close() error
}
