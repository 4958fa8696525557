package controlplane

import "github.com/syedmehfooz47/Friday2/internal/chatlog"

// Client message types.
const (
	MsgPing         = "ping"
	MsgGetState     = "get_state"
	MsgToggleMic    = "toggle_mic"
	MsgStopSpeaking = "stop_speaking"
	MsgSendMessage  = "send_message"
	MsgGetChatlogs  = "get_chatlogs"
)

// Server message types.
const (
	MsgPong          = "pong"
	MsgState         = "state"
	MsgMicState      = "mic_state"
	MsgStopResult    = "stop_result"
	MsgChatlogs      = "chatlogs"
	MsgTranscript    = "transcript"
	MsgSpeaking      = "speaking"
	MsgAssistantText = "assistant_text"
	MsgError         = "error"
)

// ClientMessage is the envelope for every message a WebSocket client sends.
// Fields beyond Type are interpreted per message type.
type ClientMessage struct {
	Type  string `json:"type"`
	Muted *bool  `json:"muted,omitempty"`
	Text  string `json:"text,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ServerMessage is the envelope for every message the server sends, both
// direct replies and broadcasts. Unused fields are omitted on the wire.
type ServerMessage struct {
	Type string `json:"type"`

	// state
	Running   *bool `json:"running,omitempty"`
	MicMuted  *bool `json:"mic_muted,omitempty"`
	Speaking  *bool `json:"speaking,omitempty"`
	Persisted *bool `json:"persisted,omitempty"`

	// stop_result
	Stopped *bool  `json:"stopped,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// transcript / assistant_text / error
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`

	// chatlogs
	Records []chatlog.Record `json:"records,omitempty"`
}

func boolPtr(b bool) *bool { return &b }
