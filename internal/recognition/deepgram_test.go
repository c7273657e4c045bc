package recognition

import (
	"sync"
	"testing"
	"time"
)

func newTestDGStream() *dgStream {
	return &dgStream{events: make(chan StreamEvent, 32)}
}

func TestDGStream_TerminalClosesEventsOnce(t *testing.T) {
	s := newTestDGStream()

	s.push(StreamEvent{Type: EventOpen})
	s.terminal(StreamEvent{Type: EventClosed})
	// A late callback after the terminal event must be swallowed, not panic.
	s.terminal(StreamEvent{Type: EventError})
	s.push(StreamEvent{Type: EventTranscript, Transcript: stampEvent(true, "late")})

	var got []EventType
	for ev := range s.events {
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[0] != EventOpen || got[1] != EventClosed {
		t.Errorf("Unexpected event sequence: %v", got)
	}
}

func TestDGStream_ConcurrentPushAndTerminal(t *testing.T) {
	// The SDK's read loop pushes results from its own goroutine while the
	// connection manager can finish the stream from another. Hammer both
	// sides; a lost race here is a send on a closed channel.
	for i := 0; i < 200; i++ {
		s := newTestDGStream()

		var wg sync.WaitGroup
		start := make(chan struct{})
		for p := 0; p < 8; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 50; j++ {
					s.push(StreamEvent{Type: EventTranscript, Transcript: stampEvent(false, "partial")})
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			time.Sleep(time.Microsecond)
			s.terminal(StreamEvent{Type: EventClosed})
		}()

		close(start)
		wg.Wait()

		// The channel must end closed so consumers drain out; surviving the
		// hammering without a send-on-closed panic is the point.
		for range s.events {
		}
		if !s.finished {
			t.Fatal("Stream did not finish")
		}
	}
}

func TestDGStream_PushDropsWhenBufferFull(t *testing.T) {
	s := &dgStream{events: make(chan StreamEvent, 1)}

	s.push(StreamEvent{Type: EventOpen})
	s.push(StreamEvent{Type: EventTranscript, Transcript: stampEvent(false, "overflow")})
	s.terminal(StreamEvent{Type: EventClosed})

	var got []EventType
	for ev := range s.events {
		got = append(got, ev.Type)
	}
	// Overflow is dropped, the terminal event is dropped too when no room
	// remains, and the channel still closes cleanly.
	if len(got) != 1 || got[0] != EventOpen {
		t.Errorf("Unexpected event sequence: %v", got)
	}
}
