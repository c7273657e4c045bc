package session

import "testing"

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		current State
		event   Event
		want    State
		wantErr bool
	}{
		{"idle start", StateIdle, EventStart, StatePreparing, false},
		{"idle stop invalid", StateIdle, EventStop, StateIdle, true},
		{"idle started invalid", StateIdle, EventStarted, StateIdle, true},
		{"preparing started", StatePreparing, EventStarted, StateRecording, false},
		{"preparing fail", StatePreparing, EventFail, StateError, false},
		{"preparing stop invalid", StatePreparing, EventStop, StatePreparing, true},
		{"recording stop", StateRecording, EventStop, StateIdle, false},
		{"recording fail", StateRecording, EventFail, StateError, false},
		{"recording start invalid", StateRecording, EventStart, StateRecording, true},
		{"error start", StateError, EventStart, StatePreparing, false},
		{"error stop invalid", StateError, EventStop, StateError, true},
		{"reset from recording", StateRecording, EventReset, StateIdle, false},
		{"reset from error", StateError, EventReset, StateIdle, false},
		{"reset from idle", StateIdle, EventReset, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.current, tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition(%s, %s) error = %v, wantErr %v", tt.current, tt.event, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Transition(%s, %s) = %s, want %s", tt.current, tt.event, got, tt.want)
			}
		})
	}
}
