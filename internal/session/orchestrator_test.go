package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicscribe/dictation-gateway/internal/transcript"
)

type fakeCapture struct {
	mu         sync.Mutex
	setupErr   error
	startErr   error
	setupCalls int
	startCalls int
	stopCalls  int
	chunks     chan []byte
	failures   chan error
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{failures: make(chan error, 1)}
}

func (c *fakeCapture) Setup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setupCalls++
	return c.setupErr
}

func (c *fakeCapture) Start() (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startCalls++
	if c.startErr != nil {
		return nil, c.startErr
	}
	c.chunks = make(chan []byte, 16)
	return c.chunks, nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
}

func (c *fakeCapture) Failures() <-chan error { return c.failures }

func (c *fakeCapture) stopped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCalls
}

func (c *fakeCapture) emit(chunk []byte) {
	c.mu.Lock()
	ch := c.chunks
	c.mu.Unlock()
	ch <- chunk
}

type fakeConn struct {
	mu          sync.Mutex
	connectErr  error
	connects    int
	disconnects int
	events      chan transcript.Event
	sent        [][]byte
	failures    chan error
	open        bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{failures: make(chan error, 1)}
}

func (c *fakeConn) Connect(ctx context.Context) (<-chan transcript.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	c.events = make(chan transcript.Event, 16)
	c.open = true
	return c.events, nil
}

func (c *fakeConn) Send(chunk []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return false
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	c.sent = append(c.sent, buf)
	return true
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.open = false
}

func (c *fakeConn) Failures() <-chan error { return c.failures }

func (c *fakeConn) deliver(isFinal bool, text string) {
	c.mu.Lock()
	ch := c.events
	c.mu.Unlock()
	ch <- transcript.Event{IsFinal: isFinal, Text: text, ReceivedAt: time.Now()}
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func testController(capt *fakeCapture, conn *fakeConn) *Controller {
	return NewController(capt, conn, transcript.NewEngine(), nil, Config{ClockInterval: 10 * time.Millisecond})
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestController_StartStopLifecycle(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("Expected recording, got %s", c.State())
	}

	capt.emit([]byte{1, 2, 3, 4})
	waitFor(t, func() bool { return conn.sentCount() == 1 }, "Chunk was not forwarded to the connection")

	conn.deliver(false, "taking the patient")
	conn.deliver(true, "taking the patient history now")
	waitFor(t, func() bool {
		return c.Snapshot().DisplayText == "taking the patient history now"
	}, "Transcript events were not reconciled")

	final := c.Stop()
	if final != "taking the patient history now" {
		t.Errorf("Unexpected frozen transcript: %q", final)
	}
	if c.State() != StateIdle {
		t.Errorf("Expected idle after stop, got %s", c.State())
	}
	if capt.stopped() == 0 {
		t.Error("Expected capture stopped")
	}
	if conn.disconnects == 0 {
		t.Error("Expected connection released")
	}
}

func TestController_StartWhileActiveIsNoOp(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	c.Start(context.Background())
	if err := c.Start(context.Background()); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
	if conn.connects != 1 {
		t.Errorf("Expected one connect, got %d", conn.connects)
	}
	c.Stop()
}

func TestController_SetupFailureLeavesNothingAcquired(t *testing.T) {
	capt := newFakeCapture()
	capt.setupErr = errors.New("permission denied")
	conn := newFakeConn()
	c := testController(capt, conn)

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Expected start to fail")
	}
	if c.State() != StateError {
		t.Errorf("Expected error state, got %s", c.State())
	}
	if conn.connects != 0 {
		t.Error("Expected no connect attempt after device failure")
	}

	snap := c.Snapshot()
	if !strings.Contains(snap.LastError, "permission denied") {
		t.Errorf("Expected surfaced failure, got %q", snap.LastError)
	}
}

func TestController_UnwindOnConnectFailure(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	conn.connectErr = errors.New("recognizer unreachable")
	c := testController(capt, conn)

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Expected start to fail")
	}
	if c.State() != StateError {
		t.Errorf("Expected error state, got %s", c.State())
	}
	if capt.stopped() == 0 {
		t.Error("Expected capture device released after connect failure")
	}
}

func TestController_UnwindOnCaptureStartFailure(t *testing.T) {
	capt := newFakeCapture()
	capt.startErr = errors.New("device busy")
	conn := newFakeConn()
	c := testController(capt, conn)

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Expected start to fail")
	}
	if c.State() != StateError {
		t.Errorf("Expected error state, got %s", c.State())
	}
	if conn.disconnects == 0 {
		t.Error("Expected connection released after capture failure")
	}
}

func TestController_TeardownDetachesPumps(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	c.Start(context.Background())
	conn.deliver(true, "note one")
	waitFor(t, func() bool { return c.Snapshot().DisplayText == "note one" }, "Event not applied")

	final := c.Stop()
	if final != "note one" {
		t.Fatalf("Unexpected frozen transcript: %q", final)
	}

	// Events and chunks after teardown must not reach the engine or the
	// connection.
	conn.deliver(true, "stale event")
	capt.emit([]byte{9, 9})
	time.Sleep(50 * time.Millisecond)

	if got := c.Snapshot().DisplayText; got != "note one" {
		t.Errorf("Transcript mutated after teardown: %q", got)
	}
	if conn.sentCount() != 0 {
		t.Errorf("Audio forwarded after teardown: %d chunks", conn.sentCount())
	}
}

func TestController_MidSessionFailureKeepsTranscript(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	c.Start(context.Background())
	conn.deliver(true, "partial dictation")
	waitFor(t, func() bool { return c.Snapshot().DisplayText == "partial dictation" }, "Event not applied")

	conn.failures <- errors.New("socket reset")
	waitFor(t, func() bool { return c.State() == StateError }, "Failure did not reach the session")

	snap := c.Snapshot()
	if snap.DisplayText != "partial dictation" {
		t.Errorf("Expected accumulated transcript preserved, got %q", snap.DisplayText)
	}
	if capt.stopped() == 0 {
		t.Error("Expected audio production stopped after failure")
	}

	// Recovery requires an explicit new start.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Restart after error failed: %v", err)
	}
	if c.State() != StateRecording {
		t.Errorf("Expected recording after restart, got %s", c.State())
	}
	c.Stop()
}

func TestController_DeviceFailureMidSession(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	c.Start(context.Background())
	capt.failures <- errors.New("input revoked")
	waitFor(t, func() bool { return c.State() == StateError }, "Device failure did not reach the session")

	if conn.disconnects == 0 {
		t.Error("Expected connection released after device failure")
	}
}

func TestController_ResetClearsEverything(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	c.Start(context.Background())
	conn.deliver(true, "to be discarded")
	waitFor(t, func() bool { return c.Snapshot().DisplayText != "" }, "Event not applied")

	c.Reset()

	snap := c.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("Expected idle after reset, got %s", snap.State)
	}
	if snap.DisplayText != "" {
		t.Errorf("Expected cleared transcript, got %q", snap.DisplayText)
	}
	if snap.ElapsedSeconds != 0 {
		t.Errorf("Expected cleared clock, got %d", snap.ElapsedSeconds)
	}
	if snap.SessionID != "" {
		t.Errorf("Expected cleared session id, got %q", snap.SessionID)
	}
}

func TestController_ElapsedClockTicks(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	c.Start(context.Background())
	waitFor(t, func() bool { return c.Snapshot().ElapsedSeconds >= 2 }, "Clock did not tick")
	c.Stop()

	frozen := c.Snapshot().ElapsedSeconds
	time.Sleep(50 * time.Millisecond)
	if c.Snapshot().ElapsedSeconds != frozen {
		t.Error("Clock ticked after stop")
	}
}

func TestController_StopWhileIdleIsNoOp(t *testing.T) {
	capt := newFakeCapture()
	conn := newFakeConn()
	c := testController(capt, conn)

	if got := c.Stop(); got != "" {
		t.Errorf("Expected empty result, got %q", got)
	}
	if capt.stopped() != 0 {
		t.Error("Expected no capture interaction")
	}
}
