// Package phrasematch recognises spoken command words in noisy speech
// transcriptions. Realtime transcription regularly mangles proper names
// ("Friday" arrives as "fryday" or "fry day"), so exact string comparison
// misses commands the user clearly spoke.
//
// Matching runs in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for the heard
//     word and for each known word. A known word whose codes overlap with
//     the heard word becomes a candidate.
//  2. Jaro-Winkler ranking: among candidates, the known word with the
//     highest similarity to the heard word wins, provided it clears the
//     phonetic threshold. When no phonetic candidate exists, a stricter
//     pure-similarity pass runs as a fallback.
package phrasematch

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a Matcher.
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity a phonetic candidate
// needs to be accepted. Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for the non-phonetic
// fallback pass. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher matches heard words against a fixed vocabulary. Read-only after
// construction, so safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match reports the vocabulary word most likely meant by heard. heard may be
// a single word or a short phrase; multi-word vocabulary entries are
// supported. When ok is false, match is empty and confidence is 0.
func (m *Matcher) Match(heard string, vocabulary []string) (match string, confidence float64, ok bool) {
	heardLower := strings.ToLower(strings.TrimSpace(heard))
	if heardLower == "" || len(vocabulary) == 0 {
		return "", 0, false
	}
	heardTokens := strings.Fields(heardLower)
	heardCodes := metaphoneCodes(heardTokens)

	var (
		bestWord     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, word := range vocabulary {
		wordLower := strings.ToLower(strings.TrimSpace(word))
		if wordLower == "" {
			continue
		}
		wordTokens := strings.Fields(wordLower)

		phonetic := codesOverlap(heardCodes, metaphoneCodes(wordTokens))
		score := similarity(heardTokens, wordTokens, heardLower, wordLower)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestWord, bestScore, bestPhonetic = word, score, true
			}
		case !phonetic && !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			bestWord, bestScore = word, score
		}
	}

	if bestWord == "" {
		return "", 0, false
	}
	return bestWord, bestScore, true
}

// MatchesAny reports whether heard plausibly means any vocabulary word.
func (m *Matcher) MatchesAny(heard string, vocabulary []string) bool {
	_, _, ok := m.Match(heard, vocabulary)
	return ok
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
// Tokens too short to produce a code contribute nothing.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score across three views of the pair:
// the full strings, the space-stripped strings, and the best token pairing.
// The latter two handle "fry day" vs "friday" style splits.
func similarity(heardTokens, wordTokens []string, heardFull, wordFull string) float64 {
	score := matchr.JaroWinkler(heardFull, wordFull, false)

	if len(heardTokens) > 1 || len(wordTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(heardTokens, ""), strings.Join(wordTokens, ""), false)
		if joined > score {
			score = joined
		}
	}

	for _, ht := range heardTokens {
		for _, wt := range wordTokens {
			if s := matchr.JaroWinkler(ht, wt, false); s > score {
				score = s
			}
		}
	}
	return score
}
