package recognition

import (
	"context"
)

// Transport opens one streaming session to the recognition service. The
// session key is single-use; a fresh one is required for every Dial.
type Transport interface {
	Dial(ctx context.Context, sessionKey string, opts Options) (Stream, error)
}

// Stream is one live recognizer session. Events delivers lifecycle and
// transcript events in receipt order and is closed after the terminal
// event, so consumers drain out naturally without listener bookkeeping.
// Send and Close may be called from different goroutines than the Events
// reader.
type Stream interface {
	Send(chunk []byte) error
	Events() <-chan StreamEvent
	Close() error
}
