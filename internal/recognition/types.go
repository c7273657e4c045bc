// Package recognition manages the streaming session to the speech
// recognition service: one connection per recording session, authenticated
// with a single-use key, sending audio chunks out and delivering transcript
// events in receipt order.
package recognition

import (
	"errors"
	"time"

	"github.com/clinicscribe/dictation-gateway/internal/transcript"
)

// Sentinel errors for connection failures. Callers match with errors.Is.
var (
	// ErrConnectTimeout means the transport did not reach open in time.
	ErrConnectTimeout = errors.New("recognition connection timed out")

	// ErrConnectionFailed covers transport-level failures at any phase.
	ErrConnectionFailed = errors.New("recognition connection failed")
)

// Options is the recognition configuration passed through to the transport,
// fixed for the lifetime of one connection.
type Options struct {
	Model          string
	Language       string
	InterimResults bool
	SmartFormat    bool // Recognizer-side punctuation and formatting
	Encoding       string
	SampleRate     int
	Channels       int
}

// EventType classifies transport stream events.
type EventType int

const (
	EventOpen       EventType = iota // Transport reached open
	EventTranscript                  // One transcript fragment
	EventError                       // Terminal transport failure
	EventClosed                      // Transport closed (remote or local)
)

// StreamEvent is one lifecycle or transcript event from a transport stream.
// Transcript events carry their receipt timestamp for downstream
// duplicate-delivery suppression.
type StreamEvent struct {
	Type       EventType
	Transcript transcript.Event
	Err        error
}

// stampEvent builds a transcript event with its arrival time attached.
func stampEvent(isFinal bool, text string) transcript.Event {
	return transcript.Event{IsFinal: isFinal, Text: text, ReceivedAt: time.Now()}
}
