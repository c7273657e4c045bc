package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/clinicscribe/dictation-gateway/internal/observability"
)

// DeepgramTransport drives the recognizer through the official SDK's
// websocket callback client. The single-use session key is passed as the
// connection credential.
type DeepgramTransport struct {
	logger zerolog.Logger
}

// NewDeepgramTransport creates an SDK-backed transport.
func NewDeepgramTransport() *DeepgramTransport {
	return &DeepgramTransport{
		logger: observability.WithComponent("recognition.deepgram"),
	}
}

// callbackHandler implements the SDK's LiveMessageCallback interface by
// embedding the default handler and overriding only the lifecycle and
// result callbacks the pipeline consumes.
type callbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	stream *dgStream
}

func (h *callbackHandler) Open(or *msginterfaces.OpenResponse) error {
	h.stream.push(StreamEvent{Type: EventOpen})
	return nil
}

func (h *callbackHandler) Message(mr *msginterfaces.MessageResponse) error {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	h.stream.push(StreamEvent{
		Type:       EventTranscript,
		Transcript: stampEvent(mr.IsFinal, mr.Channel.Alternatives[0].Transcript),
	})
	return nil
}

func (h *callbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	err := errors.New("recognizer error")
	if er != nil {
		err = fmt.Errorf("recognizer error: %s (%s)", er.ErrMsg, er.ErrCode)
	}
	h.stream.terminal(StreamEvent{Type: EventError, Err: err})
	return nil
}

func (h *callbackHandler) Close(cr *msginterfaces.CloseResponse) error {
	h.stream.terminal(StreamEvent{Type: EventClosed})
	return nil
}

// Dial creates the SDK client with the session key and connects.
func (t *DeepgramTransport) Dial(ctx context.Context, sessionKey string, opts Options) (Stream, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          opts.Model,
		Language:       opts.Language,
		Punctuate:      true,
		SmartFormat:    opts.SmartFormat,
		InterimResults: opts.InterimResults,
		Encoding:       opts.Encoding,
		Channels:       opts.Channels,
		SampleRate:     opts.SampleRate,
	}

	s := &dgStream{
		events: make(chan StreamEvent, 32),
		logger: t.logger,
	}
	callback := &callbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		stream:                 s,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, sessionKey, nil, tOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("create recognizer client: %w", err)
	}
	s.client = client

	if !client.Connect() {
		s.terminal(StreamEvent{Type: EventClosed})
		return nil, fmt.Errorf("recognizer connect refused")
	}
	return s, nil
}

type dgStream struct {
	client *listenClient.WSCallback
	events chan StreamEvent
	logger zerolog.Logger

	mu       sync.Mutex
	finished bool
}

func (s *dgStream) Send(chunk []byte) error {
	_, err := s.client.Write(chunk)
	if err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (s *dgStream) Events() <-chan StreamEvent {
	return s.events
}

// Close finishes the SDK session; the Close callback then emits the
// terminal event.
func (s *dgStream) Close() error {
	s.client.Finish()
	// The SDK does not guarantee a Close callback after Finish, so emit the
	// terminal event ourselves; terminal() deduplicates.
	s.terminal(StreamEvent{Type: EventClosed})
	return nil
}

// push delivers a non-terminal event without blocking the SDK's callback
// goroutine. The send happens under the lock so it can never race the
// channel close in terminal; the select keeps it non-blocking.
func (s *dgStream) push(ev StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn().Msg("Recognizer event buffer full, dropping event")
	}
}

// terminal delivers the final event exactly once and closes Events. The send
// and close stay under the same lock push sends under.
func (s *dgStream) terminal(ev StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true

	select {
	case s.events <- ev:
	default:
	}
	close(s.events)
}
