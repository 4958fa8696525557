package session

import (
	"strings"

	"github.com/syedmehfooz47/Friday2/internal/phrasematch"
)

// PhraseMatcher recognises the spoken control commands embedded in user
// transcription fragments. Matching is case-insensitive substring search:
// the model's transcription wraps commands in arbitrary punctuation and
// filler, so exact equality would miss almost every real utterance. For
// shutdown commands, a phonetic pass additionally catches a mangled
// assistant name after "shutdown" or "exit".
type PhraseMatcher struct {
	stop     []string
	shutdown []string
	// name is the configured assistant name, the only word the phonetic
	// shutdown pass accepts.
	name     string
	phonetic *phrasematch.Matcher
}

// NewPhraseMatcher builds the matcher for the given assistant name. The
// common alternate wake names are always included so a misrecognised name
// still stops playback.
func NewPhraseMatcher(name string) *PhraseMatcher {
	lower := strings.ToLower(strings.TrimSpace(name))
	stop := []string{"stop"}
	for _, n := range []string{lower, "jarvis", "friday"} {
		if n == "" {
			continue
		}
		phrase := n + " stop"
		if !contains(stop, phrase) {
			stop = append(stop, phrase)
		}
	}
	return &PhraseMatcher{
		stop: stop,
		shutdown: []string{
			"shutdown " + lower,
			"exit " + lower,
		},
		name:     lower,
		phonetic: phrasematch.New(),
	}
}

// IsStop reports whether text contains a stop-speaking command. Callers must
// additionally check the speaking/mute gate; the matcher only classifies
// text.
func (m *PhraseMatcher) IsStop(text string) bool {
	return matchAny(text, m.stop)
}

// IsShutdown reports whether text contains a session-shutdown command.
// Shutdown commands are honoured regardless of speaking or mute state.
// When the exact phrase misses, the word after "shutdown" or "exit" is
// matched phonetically against the wake names, so "shutdown fryday" still
// ends the session.
func (m *PhraseMatcher) IsShutdown(text string) bool {
	if matchAny(text, m.shutdown) {
		return true
	}

	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		if w != "shutdown" && w != "exit" {
			continue
		}
		if i+1 < len(words) && m.phonetic.MatchesAny(trimPunct(words[i+1]), []string{m.name}) {
			return true
		}
	}
	return false
}

func trimPunct(w string) string {
	return strings.Trim(w, ".,!?;:\"'")
}

func matchAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
