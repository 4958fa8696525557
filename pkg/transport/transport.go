// Package transport defines the contract with the realtime model backend.
//
// A Session is a bidirectional, multiplexed stream: raw PCM audio and tool
// responses flow in; a single ordered channel of typed Events flows out,
// carrying synthesised audio, incremental text, the model's own transcription
// of user speech, tool-call requests, and turn-boundary markers.
//
// Sessions are long-lived (minutes to hours). All implementations must be
// safe for concurrent use.
package transport

import "context"

// EventType discriminates the payload of an [Event].
type EventType int

const (
	// EventAudio carries a chunk of synthesised speech PCM in Event.Audio.
	EventAudio EventType = iota

	// EventText carries an incremental assistant text fragment in Event.Text.
	EventText

	// EventInputTranscription carries the model's latest transcription of
	// the user's speech for the current turn in Event.Text. Later events
	// replace earlier ones; the text is cumulative, not a delta.
	EventInputTranscription

	// EventToolCall carries one or more function calls in Event.ToolCalls.
	EventToolCall

	// EventToolCancellation carries withdrawn call IDs in Event.CancelledIDs.
	// No response must be sent for a cancelled call.
	EventToolCancellation

	// EventTurnComplete marks the end of a model turn. It has no payload.
	EventTurnComplete

	// EventInterrupted signals that the model aborted its own generation
	// (server-side barge-in detection). It has no payload.
	EventInterrupted
)

// String returns the event type's wire-style name, for logs.
func (t EventType) String() string {
	switch t {
	case EventAudio:
		return "audio"
	case EventText:
		return "text"
	case EventInputTranscription:
		return "input_transcription"
	case EventToolCall:
		return "tool_call"
	case EventToolCancellation:
		return "tool_cancellation"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Event is one demultiplexed message from the model. Exactly the fields
// relevant to Type are populated.
type Event struct {
	Type EventType

	// Audio is raw PCM for EventAudio.
	Audio []byte

	// Text is the fragment for EventText, or the cumulative user transcript
	// for EventInputTranscription.
	Text string

	// ToolCalls holds the requested function calls for EventToolCall.
	ToolCalls []FunctionCall

	// CancelledIDs holds withdrawn call IDs for EventToolCancellation.
	CancelledIDs []string
}

// FunctionCall is a single tool invocation requested by the model. The ID is
// opaque and must be echoed back unchanged in the matching [ToolResponse].
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse is the result of one tool invocation, keyed by the original
// call ID. Response is an arbitrary JSON-shaped mapping; by convention it
// carries at least "status" and "message".
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// ToolDefinition describes one tool offered to the model at session setup.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig is the initial configuration for a new model session.
type SessionConfig struct {
	// Model selects the backend model identifier.
	Model string

	// Instructions is the system prompt, including any memory context
	// injected at startup.
	Instructions string

	// Voice selects the synthesised voice, if the backend supports it.
	Voice string

	// Tools is the set of tool definitions offered to the model.
	Tools []ToolDefinition

	// InputSampleRate is the PCM rate of audio sent via SendAudio, in Hz.
	InputSampleRate int

	// OutputSampleRate is the PCM rate of EventAudio payloads, in Hz.
	OutputSampleRate int
}

// Session is an open realtime connection to the model.
//
// The Events channel is closed when the session ends; call Err afterwards to
// distinguish a clean close from a transport failure. Consumers must drain
// Events promptly — a stalled consumer backpressures the receive loop.
//
// Callers must call Close when the session is no longer needed.
type Session interface {
	// SendAudio delivers one raw PCM chunk of user audio to the model.
	SendAudio(pcm []byte) error

	// SendText submits a typed user message, bypassing audio input. The
	// model replies through the same Events stream as a normal voice turn.
	SendText(text string) error

	// SendToolResponse transmits results for previously requested calls.
	// Every observed FunctionCall must eventually be answered by exactly
	// one response, unless the call was cancelled.
	SendToolResponse(responses []ToolResponse) error

	// Events returns the demultiplexed event stream. The same channel is
	// returned on every call.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil if it is
	// still open or ended cleanly.
	Err() error

	// Close terminates the session and closes Events. Idempotent.
	Close() error
}

// Provider establishes model sessions.
type Provider interface {
	// Connect opens a new session. The returned Session is ready to accept
	// audio immediately. The caller owns the Session and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
