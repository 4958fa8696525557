// Package mock provides in-memory implementations of the audio device
// contracts for use in unit tests.
//
// All mocks are safe for concurrent use. They record method calls so tests
// can assert on call counts and written data, and expose exported fields the
// test can set to control return values.
//
// Typical usage:
//
//	in := mock.NewInput(16000, [][]byte{frame1, frame2})
//	out := mock.NewOutput(24000)
//	// ... run the pipeline ...
//	got := out.Written()
package mock

import (
	"io"
	"sync"

	"github.com/syedmehfooz47/Friday2/pkg/audio"
)

// Compile-time assertions that the mocks satisfy the device contracts.
var (
	_ audio.InputDevice  = (*Input)(nil)
	_ audio.OutputDevice = (*Output)(nil)
)

// Input is a scripted [audio.InputDevice]. ReadFrame returns the configured
// frames in order, then ReadError (or [io.EOF] if ReadError is nil).
type Input struct {
	mu sync.Mutex

	frames [][]byte
	next   int
	rate   int
	closed bool

	// ReadError is returned once the scripted frames are exhausted.
	// Defaults to io.EOF.
	ReadError error

	// Repeat, when true, cycles through the scripted frames forever
	// instead of returning ReadError on exhaustion.
	Repeat bool

	// CallCountRead records how many times ReadFrame was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewInput creates an Input that yields the given frames at rate Hz.
func NewInput(rate int, frames [][]byte) *Input {
	return &Input{frames: frames, rate: rate}
}

// ReadFrame returns the next scripted frame, or the configured error once
// all frames have been consumed.
func (m *Input) ReadFrame() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountRead++
	if m.next >= len(m.frames) {
		if m.Repeat && len(m.frames) > 0 {
			m.next = 0
		} else if m.ReadError != nil {
			return nil, m.ReadError
		} else {
			return nil, io.EOF
		}
	}
	f := m.frames[m.next]
	m.next++
	return f, nil
}

// SampleRate returns the configured capture rate.
func (m *Input) SampleRate() int { return m.rate }

// Close marks the input closed. Always returns nil.
func (m *Input) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountClose++
	m.closed = true
	return nil
}

// Output is a recording [audio.OutputDevice]. Every WriteFrame call is
// appended to an internal log retrievable via [Output.Written].
type Output struct {
	mu sync.Mutex

	written [][]byte
	rate    int

	// WriteError, when non-nil, is returned by every WriteFrame call.
	WriteError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewOutput creates an Output that records writes at rate Hz.
func NewOutput(rate int) *Output {
	return &Output{rate: rate}
}

// WriteFrame records a copy of pcm, or returns WriteError if set.
func (m *Output) WriteFrame(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return m.WriteError
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	m.written = append(m.written, cp)
	return nil
}

// Written returns a snapshot of all recorded writes in order.
func (m *Output) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// SampleRate returns the configured playback rate.
func (m *Output) SampleRate() int { return m.rate }

// Close records the call. Always returns nil.
func (m *Output) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountClose++
	return nil
}
