package transcript

import (
	"testing"
	"time"
)

var eventClock = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// ev builds an event with a unique arrival time so the duplicate-delivery
// guard does not interfere with merge tests.
func ev(isFinal bool, text string) Event {
	eventClock = eventClock.Add(50 * time.Millisecond)
	return Event{IsFinal: isFinal, Text: text, ReceivedAt: eventClock}
}

func TestEngine_FinalAppends(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "patient presents with"))
	e.Apply(ev(true, "acute chest pain"))

	want := "patient presents with acute chest pain"
	if got := e.FinalText(); got != want {
		t.Errorf("FinalText = %q, want %q", got, want)
	}
}

func TestEngine_DuplicateFinalAppliedOnce(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "blood pressure stable"))
	e.Apply(ev(true, "blood pressure stable"))

	if got := e.FinalText(); got != "blood pressure stable" {
		t.Errorf("Expected duplicate final suppressed, got %q", got)
	}
}

func TestEngine_OverlapTrim(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "the cat sat"))
	e.Apply(ev(true, "cat sat on the mat"))

	want := "the cat sat on the mat"
	if got := e.FinalText(); got != want {
		t.Errorf("FinalText = %q, want %q", got, want)
	}
}

func TestEngine_OverlapPrefersLongestMatch(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "no no allergies"))
	// "no allergies" (2 words) must win over the 1-word match "allergies".
	e.Apply(ev(true, "no allergies reported"))

	want := "no no allergies reported"
	if got := e.FinalText(); got != want {
		t.Errorf("FinalText = %q, want %q", got, want)
	}
}

func TestEngine_OverlapWindowBounded(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "a b c d e"))
	// A five-word overlap exceeds the window, so nothing is trimmed.
	e.Apply(ev(true, "a b c d e f"))

	want := "a b c d e a b c d e f"
	if got := e.FinalText(); got != want {
		t.Errorf("FinalText = %q, want %q", got, want)
	}
}

func TestEngine_InterimReplacement(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(false, "patient pres"))
	e.Apply(ev(false, "patient presents with"))

	if got := e.InterimText(); got != "patient presents with" {
		t.Errorf("InterimText = %q, want full replacement", got)
	}
	if got := e.DisplayText(); got != "patient presents with" {
		t.Errorf("DisplayText = %q, must never contain both interims", got)
	}
}

func TestEngine_FinalClearsInterim(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(false, "patient presents"))
	e.Apply(ev(true, "patient presents with headache"))

	if got := e.InterimText(); got != "" {
		t.Errorf("Expected empty interim after final, got %q", got)
	}
	if got := e.FinalText(); got != "patient presents with headache" {
		t.Errorf("FinalText = %q", got)
	}
}

func TestEngine_EmptyEventsAreNoOps(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "note begins"))

	for _, text := range []string{"", "   ", "\t\n"} {
		if changed := e.Apply(ev(true, text)); changed {
			t.Errorf("Expected blank final %q to be a no-op", text)
		}
		if changed := e.Apply(ev(false, text)); changed {
			t.Errorf("Expected blank interim %q to be a no-op", text)
		}
	}

	if got := e.DisplayText(); got != "note begins" {
		t.Errorf("DisplayText = %q after blank events", got)
	}
}

func TestEngine_DuplicateDeliveryDropped(t *testing.T) {
	e := NewEngine()

	// Identical event object delivered twice (same arrival time, same text)
	// simulates duplicate delivery from the network layer.
	dup := Event{IsFinal: true, Text: "vitals recorded", ReceivedAt: eventClock.Add(time.Hour)}
	if !e.Apply(dup) {
		t.Error("Expected first delivery to apply")
	}
	if e.Apply(dup) {
		t.Error("Expected second delivery to be dropped")
	}
	if got := e.FinalText(); got != "vitals recorded" {
		t.Errorf("FinalText = %q", got)
	}
}

func TestEngine_DisplayTextJoinsWithSingleSpace(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "exam complete"))
	e.Apply(ev(false, "follow up in"))

	if got := e.DisplayText(); got != "exam complete follow up in" {
		t.Errorf("DisplayText = %q", got)
	}
}

func TestEngine_DisplayTextEmptyStates(t *testing.T) {
	e := NewEngine()

	if got := e.DisplayText(); got != "" {
		t.Errorf("Expected empty display text, got %q", got)
	}

	e.Apply(ev(false, "only interim"))
	if got := e.DisplayText(); got != "only interim" {
		t.Errorf("DisplayText = %q with interim only", got)
	}
}

func TestEngine_Reset(t *testing.T) {
	e := NewEngine()

	e.Apply(ev(true, "first note"))
	e.Apply(ev(false, "pending"))
	e.Reset()

	if e.FinalText() != "" || e.InterimText() != "" || e.DisplayText() != "" {
		t.Error("Expected all transcript state cleared after reset")
	}

	// Post-reset events start a fresh transcript.
	e.Apply(ev(true, "second note"))
	if got := e.FinalText(); got != "second note" {
		t.Errorf("FinalText = %q after reset", got)
	}
}

func TestTrimOverlap(t *testing.T) {
	cases := []struct {
		existing string
		next     string
		want     string
	}{
		{"the cat sat", "cat sat on the mat", "on the mat"},
		{"hello world", "world peace", "peace"},
		{"hello world", "goodbye moon", "goodbye moon"},
		{"one two", "one two", ""},
		{"a", "a b c", "b c"},
	}

	for _, tc := range cases {
		if got := trimOverlap(tc.existing, tc.next); got != tc.want {
			t.Errorf("trimOverlap(%q, %q) = %q, want %q", tc.existing, tc.next, got, tc.want)
		}
	}
}
