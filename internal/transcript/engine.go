// Package transcript reconciles interim and final recognizer events into a
// single monotonically-growing transcript. It performs no I/O; events are fed
// in receipt order and the merged text is read back out.
package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Event is one transcript fragment received from the recognition service.
type Event struct {
	IsFinal    bool
	Text       string
	ReceivedAt time.Time // Stamped by the connection manager on receipt
}

// overlapWindowWords bounds the overlap search so merging stays O(1) per
// event regardless of transcript length.
const overlapWindowWords = 4

// identityPrefixLen is how much of the text participates in the derived
// event identity used for duplicate-delivery suppression.
const identityPrefixLen = 16

// Engine owns the transcript state for one recording session.
//
// finalText only grows (modulo overlap trimming); interimText is replaced
// wholesale by every interim event and cleared by every final event.
type Engine struct {
	mu           sync.RWMutex
	finalText    string
	interimText  string
	lastIdentity string
}

// NewEngine creates an empty reconciliation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Apply folds one event into the transcript state. It reports whether the
// visible transcript changed, so callers know when to re-publish.
func (e *Engine) Apply(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The network layer can deliver the same event twice. Identity is
	// derived from arrival time plus a text prefix; an exact repeat of the
	// immediately preceding identity is dropped before any merging.
	identity := deriveIdentity(ev)
	if identity == e.lastIdentity {
		return false
	}
	e.lastIdentity = identity

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return false
	}

	if ev.IsFinal {
		return e.applyFinal(text)
	}
	return e.applyInterim(text)
}

func (e *Engine) applyFinal(text string) bool {
	changed := false

	switch {
	case e.finalText == text || strings.HasSuffix(e.finalText, " "+text):
		// The recognizer re-sent an identical final segment; keep one copy.

	case e.finalText == "":
		e.finalText = text
		changed = true

	default:
		// The recognizer often re-emits the tail of the previous final
		// segment as the head of the next. Trim the longest overlapping
		// word prefix, bounded to a small window.
		remainder := trimOverlap(e.finalText, text)
		if remainder != "" {
			e.finalText = e.finalText + " " + remainder
			changed = true
		}
	}

	// A final event always supersedes pending interim text.
	if e.interimText != "" {
		e.interimText = ""
		changed = true
	}
	return changed
}

func (e *Engine) applyInterim(text string) bool {
	if e.interimText == text {
		return false
	}
	e.interimText = text
	return true
}

// trimOverlap returns the portion of next that does not overlap the tail of
// existing, comparing 1..overlapWindowWords word prefixes and taking the
// longest match. An empty return means next was fully absorbed.
func trimOverlap(existing, next string) string {
	existingWords := strings.Fields(existing)
	nextWords := strings.Fields(next)

	maxWindow := overlapWindowWords
	if len(existingWords) < maxWindow {
		maxWindow = len(existingWords)
	}
	if len(nextWords) < maxWindow {
		maxWindow = len(nextWords)
	}

	for n := maxWindow; n >= 1; n-- {
		match := true
		for i := 0; i < n; i++ {
			if existingWords[len(existingWords)-n+i] != nextWords[i] {
				match = false
				break
			}
		}
		if match {
			return strings.Join(nextWords[n:], " ")
		}
	}
	return next
}

func deriveIdentity(ev Event) string {
	prefix := ev.Text
	if len(prefix) > identityPrefixLen {
		prefix = prefix[:identityPrefixLen]
	}
	return fmt.Sprintf("%d|%t|%s", ev.ReceivedAt.UnixMilli(), ev.IsFinal, prefix)
}

// DisplayText returns the externally visible transcript: the confirmed text
// plus the current interim fragment, space separated.
func (e *Engine) DisplayText() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.finalText == "" {
		return e.interimText
	}
	if e.interimText == "" {
		return e.finalText
	}
	return e.finalText + " " + e.interimText
}

// FinalText returns the confirmed transcript only.
func (e *Engine) FinalText() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.finalText
}

// InterimText returns the pending provisional fragment.
func (e *Engine) InterimText() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.interimText
}

// Reset clears both transcript fields atomically. The owning session only
// calls this while not actively recording.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalText = ""
	e.interimText = ""
	e.lastIdentity = ""
}
