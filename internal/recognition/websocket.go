package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/clinicscribe/dictation-gateway/internal/observability"
)

// WebSocketTransport speaks the recognizer's raw streaming listen protocol:
// binary frames carry audio out, JSON text frames carry transcript results
// back.
type WebSocketTransport struct {
	listenURL string
	logger    zerolog.Logger
}

// NewWebSocketTransport creates a transport dialing the given listen URL.
func NewWebSocketTransport(listenURL string) *WebSocketTransport {
	return &WebSocketTransport{
		listenURL: listenURL,
		logger:    observability.WithComponent("recognition.ws"),
	}
}

// listenMessage is the recognizer's result frame, reduced to the fields the
// pipeline consumes.
type listenMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Dial opens the socket with the session key and recognition options. The
// websocket handshake completing is the transport's open signal.
func (t *WebSocketTransport) Dial(ctx context.Context, sessionKey string, opts Options) (Stream, error) {
	u, err := url.Parse(t.listenURL)
	if err != nil {
		return nil, fmt.Errorf("parse listen url: %w", err)
	}

	q := u.Query()
	q.Set("model", opts.Model)
	q.Set("language", opts.Language)
	q.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("punctuate", "true")
	q.Set("encoding", opts.Encoding)
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	q.Set("channels", strconv.Itoa(opts.Channels))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+sessionKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial recognizer: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial recognizer: %w", err)
	}

	s := &wsStream{
		conn:   conn,
		events: make(chan StreamEvent, 32),
		logger: t.logger,
	}
	s.events <- StreamEvent{Type: EventOpen}
	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	events chan StreamEvent
	logger zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closing   bool
}

func (s *wsStream) Send(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closing {
		return fmt.Errorf("stream closed")
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

func (s *wsStream) Events() <-chan StreamEvent {
	return s.events
}

// Close sends a close frame best-effort and tears down the socket; the read
// loop then emits the terminal event and closes Events.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closing = true
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

func (s *wsStream) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.writeMu.Lock()
			closing := s.closing
			s.writeMu.Unlock()

			if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.events <- StreamEvent{Type: EventClosed}
			} else {
				s.events <- StreamEvent{Type: EventError, Err: fmt.Errorf("recognizer socket: %w", err)}
			}
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Unparseable recognizer frame")
			continue
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			s.events <- StreamEvent{
				Type:       EventTranscript,
				Transcript: stampEvent(msg.IsFinal, msg.Channel.Alternatives[0].Transcript),
			}

		case "Metadata", "SpeechStarted", "UtteranceEnd":
			// Informational frames the pipeline does not consume.

		default:
			s.logger.Debug().Str("type", msg.Type).Msg("Unknown recognizer frame type")
		}
	}
}
