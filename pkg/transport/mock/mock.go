// Package mock provides scripted transport implementations for testing.
//
// All behavior can be scripted via the exported fields. Each method records
// the number of times it was called and the arguments it received.
package mock

import (
	"context"
	"sync"

	"github.com/syedmehfooz47/Friday2/pkg/transport"
)

// Compile-time assertions.
var (
	_ transport.Provider = (*Provider)(nil)
	_ transport.Session  = (*Session)(nil)
)

// Provider is a scripted transport.Provider.
type Provider struct {
	mu sync.Mutex

	// ConnectResult is returned from Connect. If nil and ConnectError is
	// nil, a fresh Session is created and returned.
	ConnectResult *Session
	// ConnectError, when non-nil, is returned from Connect.
	ConnectError error

	// ConnectConfigs records the SessionConfig of each Connect call.
	ConnectConfigs []transport.SessionConfig
	// CallCountConnect is the number of Connect invocations.
	CallCountConnect int
}

// Connect returns the scripted session or error.
func (p *Provider) Connect(_ context.Context, cfg transport.SessionConfig) (transport.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountConnect++
	p.ConnectConfigs = append(p.ConnectConfigs, cfg)
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	if p.ConnectResult != nil {
		return p.ConnectResult, nil
	}
	return NewSession(), nil
}

// Session is a scripted transport.Session. Tests push events with Emit and
// inspect what the code under test sent via the recorded slices.
type Session struct {
	mu sync.Mutex

	events chan transport.Event

	// SendAudioError, SendTextError and SendToolResponseError are returned
	// from the corresponding methods when non-nil.
	SendAudioError        error
	SendTextError         error
	SendToolResponseError error
	// ErrResult is returned from Err.
	ErrResult error

	// SentAudio records every chunk passed to SendAudio.
	SentAudio [][]byte
	// SentTexts records every string passed to SendText.
	SentTexts []string
	// SentToolResponses records every batch passed to SendToolResponse.
	SentToolResponses [][]transport.ToolResponse

	CallCountSendAudio        int
	CallCountSendText         int
	CallCountSendToolResponse int
	CallCountClose            int

	closeOnce sync.Once
}

// NewSession creates a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan transport.Event, 64)}
}

// Emit pushes an event onto the session's event channel.
func (s *Session) Emit(ev transport.Event) {
	s.events <- ev
}

// EmitAudio is shorthand for emitting an audio event carrying pcm.
func (s *Session) EmitAudio(pcm []byte) {
	s.Emit(transport.Event{Type: transport.EventAudio, Audio: pcm})
}

// EmitTurnComplete is shorthand for emitting a turn-complete event.
func (s *Session) EmitTurnComplete() {
	s.Emit(transport.Event{Type: transport.EventTurnComplete})
}

// FinishEvents closes the event channel, simulating the remote end closing
// the connection. Safe to call multiple times.
func (s *Session) FinishEvents() {
	s.closeOnce.Do(func() { close(s.events) })
}

func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountSendAudio++
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.SentAudio = append(s.SentAudio, cp)
	return s.SendAudioError
}

func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountSendText++
	s.SentTexts = append(s.SentTexts, text)
	return s.SendTextError
}

func (s *Session) SendToolResponse(responses []transport.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountSendToolResponse++
	s.SentToolResponses = append(s.SentToolResponses, responses)
	return s.SendToolResponseError
}

func (s *Session) Events() <-chan transport.Event { return s.events }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrResult
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	s.mu.Unlock()
	s.FinishEvents()
	return nil
}

// AudioSent returns a snapshot of all audio chunks sent so far.
func (s *Session) AudioSent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SentAudio))
	copy(out, s.SentAudio)
	return out
}

// TextsSent returns a snapshot of all texts sent so far.
func (s *Session) TextsSent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SentTexts))
	copy(out, s.SentTexts)
	return out
}

// ToolResponsesSent returns a snapshot of all tool response batches sent so far.
func (s *Session) ToolResponsesSent() [][]transport.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]transport.ToolResponse, len(s.SentToolResponses))
	copy(out, s.SentToolResponses)
	return out
}
