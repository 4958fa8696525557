// Package audiostate holds the microphone mute state shared between the
// audio pipeline and the control plane.
//
// The in-memory value is the source of truth for all gate checks; the file
// copy exists only so the state survives restarts. The store is the single
// synchronization point between the session's goroutines and the
// control-plane server, so every mutation goes through it.
package audiostate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrTooFrequent is returned by [Store.Set] when a toggle arrives inside the
// debounce window of the previous accepted change.
var ErrTooFrequent = errors.New("audiostate: too frequent toggles")

// Pipeline is the hook the session registers so that unmuting can clear its
// assistant-speaking flag. Unmute implies the user may want to interrupt.
type Pipeline interface {
	// ResyncOnUnmute clears any assistant-speaking indication. It must be
	// safe to call from outside the session's own goroutines.
	ResyncOnUnmute()
}

// Change describes one applied mute-state transition.
type Change struct {
	Muted  bool
	Source string
	At     time.Time
}

// Result reports the outcome of a state change.
type Result struct {
	// Muted is the state after the call.
	Muted bool

	// Persisted reports whether the durable write succeeded. The in-memory
	// change is applied regardless.
	Persisted bool

	// PersistErr carries the durable-write failure when Persisted is false.
	PersistErr error

	// PipelineResynced reports whether a registered pipeline had its
	// speaking flag cleared as part of this change.
	PipelineResynced bool
}

// persistedState is the on-disk JSON shape.
type persistedState struct {
	Muted bool `json:"muted"`
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce overrides the debounce window applied by [Store.Set].
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithLogger sets the logger used for state-change and persistence messages.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Store is a durable, single-writer mute flag with change notification.
// The zero value is not usable; construct with [New].
type Store struct {
	path     string
	debounce time.Duration
	log      *slog.Logger

	mu         sync.Mutex
	muted      bool
	lastChange time.Time
	pipeline   Pipeline
	subs       map[int]chan Change
	nextSubID  int
}

// New creates a Store backed by the file at path. If the file exists and is
// readable, the persisted value is restored; otherwise the store starts
// muted, which is the safe default for an always-listening microphone.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		debounce: 200 * time.Millisecond,
		log:      slog.Default(),
		muted:    true,
		subs:     make(map[int]chan Change),
	}
	for _, o := range opts {
		o(s)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("mute state file unreadable, starting muted", "path", path, "err", err)
		}
		return s
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		s.log.Warn("mute state file corrupt, starting muted", "path", path, "err", err)
		return s
	}
	s.muted = ps.Muted
	s.log.Info("restored mute state", "path", path, "muted", s.muted)
	return s
}

// Muted returns the current in-memory mute flag.
func (s *Store) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// RegisterPipeline attaches the session pipeline whose speaking flag is
// cleared on unmute. Only one pipeline is tracked; a later call replaces the
// earlier registration.
func (s *Store) RegisterPipeline(p Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = p
}

// Subscribe returns a channel receiving every applied change and a cancel
// function. Slow subscribers lose intermediate changes rather than blocking
// the writer.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Change, 8)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// SetDebounce changes the debounce window at runtime, for config reloads.
func (s *Store) SetDebounce(d time.Duration) {
	s.mu.Lock()
	s.debounce = d
	s.mu.Unlock()
}

// SetSync applies the change immediately, without debouncing. It is meant
// for interactive control requests that need the change visible before they
// return. Safe for concurrent use from any goroutine.
func (s *Store) SetSync(muted bool, source string) Result {
	s.mu.Lock()
	res, pipeline := s.applyLocked(muted, source)
	s.mu.Unlock()
	return s.resync(res, pipeline, muted, source)
}

// Set applies the change with debouncing: a toggle arriving within the
// debounce window of the previously accepted change is rejected with
// [ErrTooFrequent]. The window check and the transition happen under one
// lock hold so concurrent callers racing the window cannot both apply.
// The context is consulted before the state is touched.
func (s *Store) Set(ctx context.Context, muted bool, source string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	if since := time.Since(s.lastChange); since < s.debounce {
		s.mu.Unlock()
		s.log.Warn("too frequent toggles, ignoring", "source", source, "since_last", since)
		return Result{}, ErrTooFrequent
	}
	res, pipeline := s.applyLocked(muted, source)
	s.mu.Unlock()

	return s.resync(res, pipeline, muted, source), nil
}

// applyLocked performs the transition: in-memory flip, synchronous durable
// write, subscriber notification. Caller holds mu. The pipeline is returned
// so the caller can resync it after releasing the lock.
func (s *Store) applyLocked(muted bool, source string) (Result, Pipeline) {
	s.muted = muted
	s.lastChange = time.Now()

	res := Result{Muted: muted, Persisted: true}
	if err := s.persistLocked(); err != nil {
		res.Persisted = false
		res.PersistErr = err
		s.log.Error("failed to persist mute state", "path", s.path, "err", err)
	}

	change := Change{Muted: muted, Source: source, At: s.lastChange}
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
	return res, s.pipeline
}

// resync runs the unmute pipeline hook outside the lock and logs the change.
func (s *Store) resync(res Result, pipeline Pipeline, muted bool, source string) Result {
	if !muted && pipeline != nil {
		pipeline.ResyncOnUnmute()
		res.PipelineResynced = true
	}
	s.log.Info("mute state changed", "muted", muted, "source", source)
	return res
}

// persistLocked writes the current flag to the state file via a temp file
// and rename, so a crash mid-write cannot leave a torn file. Caller holds mu.
func (s *Store) persistLocked() error {
	data, err := json.Marshal(persistedState{Muted: s.muted})
	if err != nil {
		return fmt.Errorf("audiostate: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("audiostate: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("audiostate: rename %q: %w", tmp, err)
	}
	return nil
}
