// Package session coordinates the dictation pipeline: the capture
// controller, the recognizer connection, the reconciliation engine, and the
// elapsed-time clock, under one externally visible state machine.
package session

import "fmt"

// State is the session lifecycle state.
type State string

// Event is a session state machine input.
type Event string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateRecording State = "recording"
	StateError     State = "error"
)

const (
	EventStart   Event = "start"   // Caller requested a session
	EventStarted Event = "started" // All resources acquired
	EventStop    Event = "stop"    // Caller requested stop
	EventFail    Event = "fail"    // Acquisition or mid-session failure
	EventReset   Event = "reset"   // Forced teardown back to idle
)

// Transition applies one event to the current state. It is the only
// mutation path for session state; callers treat invalid transitions as
// silent no-ops or surfaced errors depending on the operation.
func Transition(current State, event Event) (State, error) {
	if event == EventReset {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StatePreparing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePreparing:
		switch event {
		case EventStarted:
			return StateRecording, nil
		case EventFail:
			return StateError, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateIdle, nil
		case EventFail:
			return StateError, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventStart:
			return StatePreparing, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
