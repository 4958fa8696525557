// Package session implements Friday's live conversation loop: audio capture
// and playback, the model event stream, tool dispatch, and the supervisor
// that ties their lifetimes together.
package session

import (
	"sync"
	"time"
)

// TurnState is the per-session state record: the current turn's accumulators
// plus the speaking/stop flags. It replaces ad hoc booleans spread across
// components with named transitions, each documenting its pre/post
// conditions. Safe for concurrent use; the control plane and the audio
// goroutines both touch it.
type TurnState struct {
	mu sync.Mutex

	userText      string
	assistantText string

	// Exact-match duplicate suppression against the last logged text per
	// role. The model sometimes redelivers a full transcript; an identical
	// resend must not produce a second log line.
	lastLoggedUser      string
	lastLoggedAssistant string

	assistantSpeaking bool
	stopSpeaking      bool

	turnStarted time.Time
}

// NewTurnState returns an empty state record.
func NewTurnState() *TurnState {
	return &TurnState{}
}

// Speaking reports whether assistant audio is currently being played.
func (s *TurnState) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistantSpeaking
}

// MarkSpeaking sets the assistant-speaking flag. Returns true when the flag
// actually changed, so callers can emit a single "speaking" notification per
// transition instead of one per audio chunk.
func (s *TurnState) MarkSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assistantSpeaking {
		return false
	}
	s.assistantSpeaking = true
	s.touchTurnLocked()
	return true
}

// RequestStop sets the stop-speaking flag and clears the speaking flag.
// Precondition (enforced by callers): the assistant is speaking and the
// microphone is live, or the request comes from the control plane.
func (s *TurnState) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSpeaking = true
	s.assistantSpeaking = false
}

// StopRequested reports whether a stop is pending.
func (s *TurnState) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopSpeaking
}

// ConsumeStop atomically checks and clears the stop-speaking flag. When it
// returns true the caller owns the interrupt: it must purge queued inbound
// audio and announce that the assistant stopped speaking.
func (s *TurnState) ConsumeStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopSpeaking {
		return false
	}
	s.stopSpeaking = false
	s.assistantSpeaking = false
	return true
}

// ClearSpeaking clears the speaking flag without touching the stop flag.
// Returns true when the flag changed.
func (s *TurnState) ClearSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.assistantSpeaking {
		return false
	}
	s.assistantSpeaking = false
	return true
}

// ResyncOnUnmute clears the speaking flag; unmuting implies the user may
// want to interrupt. Implements the audiostate pipeline hook.
func (s *TurnState) ResyncOnUnmute() {
	s.ClearSpeaking()
}

// AppendAssistantText adds a streamed fragment to the assistant accumulator.
func (s *TurnState) AppendAssistantText(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistantText += fragment
	s.touchTurnLocked()
}

// SetUserTranscript replaces the user accumulator with the latest
// transcription value. The model's input transcription is cumulative, so
// replacement (not append) keeps the accumulator equal to the full utterance.
func (s *TurnState) SetUserTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userText = text
	s.touchTurnLocked()
}

// UserText returns the current user accumulator.
func (s *TurnState) UserText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userText
}

// AssistantText returns the current assistant accumulator.
func (s *TurnState) AssistantText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistantText
}

// touchTurnLocked stamps the start of a new turn on its first event.
func (s *TurnState) touchTurnLocked() {
	if s.turnStarted.IsZero() {
		s.turnStarted = time.Now()
	}
}

// FlushResult reports what a Flush actually emitted.
type FlushResult struct {
	UserLogged      bool
	UserText        string
	AssistantLogged bool
	AssistantText   string
	// TurnDuration is the time from the turn's first event to the flush,
	// zero when the turn never produced anything.
	TurnDuration time.Duration
}

// Flush reports the turn's accumulated text (once per non-empty,
// non-duplicate side), clears both accumulators, and resets the speaking and
// stop flags. The caller performs the actual logging from the returned
// FlushResult, outside the state lock. Flushing an already-empty turn is a
// no-op result.
func (s *TurnState) Flush() FlushResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res FlushResult
	if s.userText != "" && s.userText != s.lastLoggedUser {
		s.lastLoggedUser = s.userText
		res.UserLogged = true
		res.UserText = s.userText
	}
	if s.assistantText != "" && s.assistantText != s.lastLoggedAssistant {
		s.lastLoggedAssistant = s.assistantText
		res.AssistantLogged = true
		res.AssistantText = s.assistantText
	}

	if !s.turnStarted.IsZero() {
		res.TurnDuration = time.Since(s.turnStarted)
	}

	s.userText = ""
	s.assistantText = ""
	s.assistantSpeaking = false
	s.stopSpeaking = false
	s.turnStarted = time.Time{}
	return res
}
