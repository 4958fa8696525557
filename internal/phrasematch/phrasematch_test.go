package phrasematch_test

import (
	"testing"

	"github.com/syedmehfooz47/Friday2/internal/phrasematch"
)

func TestMatch_MangledName(t *testing.T) {
	t.Parallel()
	m := phrasematch.New()
	vocab := []string{"Friday", "Jarvis"}

	match, conf, ok := m.Match("fryday", vocab)
	if !ok {
		t.Fatalf("Match(%q): ok=false, want true", "fryday")
	}
	if match != "Friday" {
		t.Errorf("Match(%q) = %q, want %q", "fryday", match, "Friday")
	}
	if conf < 0.7 {
		t.Errorf("confidence = %f, want >= 0.7", conf)
	}
}

func TestMatch_SplitName(t *testing.T) {
	t.Parallel()
	m := phrasematch.New()

	// Transcription sometimes splits the name into two words.
	match, _, ok := m.Match("fry day", []string{"Friday", "Jarvis"})
	if !ok {
		t.Fatalf("Match(%q): ok=false, want true", "fry day")
	}
	if match != "Friday" {
		t.Errorf("Match(%q) = %q, want %q", "fry day", match, "Friday")
	}
}

func TestMatch_UnrelatedWord(t *testing.T) {
	t.Parallel()
	m := phrasematch.New()

	if match, conf, ok := m.Match("hello", []string{"Friday", "Jarvis"}); ok {
		t.Errorf("Match(%q) = %q (%f), want no match", "hello", match, conf)
	}
}

func TestMatch_ExactAndCase(t *testing.T) {
	t.Parallel()
	m := phrasematch.New()
	vocab := []string{"Jarvis", "Friday"}

	match, conf, ok := m.Match("JARVIS", vocab)
	if !ok || match != "Jarvis" {
		t.Fatalf("Match(%q) = %q, ok=%v", "JARVIS", match, ok)
	}
	if conf < 0.9 {
		t.Errorf("exact match confidence = %f, want >= 0.9", conf)
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	t.Parallel()
	m := phrasematch.New()

	if _, _, ok := m.Match("", []string{"Friday"}); ok {
		t.Error("empty heard word should not match")
	}
	if _, _, ok := m.Match("friday", nil); ok {
		t.Error("empty vocabulary should not match")
	}
}

func TestMatch_ThresholdRejection(t *testing.T) {
	t.Parallel()
	m := phrasematch.New(
		phrasematch.WithPhoneticThreshold(0.99),
		phrasematch.WithFuzzyThreshold(0.99),
	)

	if _, _, ok := m.Match("fryday", []string{"Friday"}); ok {
		t.Error("threshold 0.99 should reject a near-match")
	}
}

func TestMatchesAny(t *testing.T) {
	t.Parallel()
	m := phrasematch.New()

	if !m.MatchesAny("fridey", []string{"Friday"}) {
		t.Error("MatchesAny should accept a close mishearing")
	}
	if m.MatchesAny("window", []string{"Friday"}) {
		t.Error("MatchesAny should reject an unrelated word")
	}
}
