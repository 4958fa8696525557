package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/syedmehfooz47/Friday2/internal/audiostate"
	"github.com/syedmehfooz47/Friday2/internal/chatlog"
)

// wsReadLimit bounds inbound frames; control messages are small.
const wsReadLimit = 1 << 16

// handleWS upgrades the connection and serves the typed message protocol
// until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The control plane is a local-first surface; browsers on other
		// origins are allowed so dashboards can connect during development.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)
	defer conn.Close(websocket.StatusInternalError, "server error")

	c := s.hub.register(r.Context(), conn)
	defer s.hub.unregister(c)

	// Push the current state so new clients render without a round trip.
	s.hub.reply(c, s.stateMessage())

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.log.Debug("websocket read ended", "client_id", c.id, "err", err)
			return
		}
		if typ != websocket.MessageText {
			s.hub.reply(c, ServerMessage{Type: MsgError, Message: "text frames only"})
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.reply(c, ServerMessage{Type: MsgError, Message: "invalid JSON"})
			continue
		}
		s.dispatch(r.Context(), c, msg)
	}
}

// dispatch handles one client message and queues the reply.
func (s *Server) dispatch(ctx context.Context, c *client, msg ClientMessage) {
	switch msg.Type {
	case MsgPing:
		s.hub.reply(c, ServerMessage{Type: MsgPong})

	case MsgGetState:
		s.hub.reply(c, s.stateMessage())

	case MsgToggleMic:
		target := !s.mute.Muted()
		if msg.Muted != nil {
			target = *msg.Muted
		}
		res, err := s.mute.Set(ctx, target, "websocket")
		if errors.Is(err, audiostate.ErrTooFrequent) {
			s.metrics.RecordMuteToggle(ctx, "websocket", "rejected")
			s.hub.reply(c, ServerMessage{Type: MsgError, Message: "too frequent toggles"})
			return
		}
		if err != nil {
			s.hub.reply(c, ServerMessage{Type: MsgError, Message: err.Error()})
			return
		}
		s.metrics.RecordMuteToggle(ctx, "websocket", "applied")
		s.hub.reply(c, ServerMessage{
			Type:      MsgMicState,
			MicMuted:  boolPtr(res.Muted),
			Persisted: boolPtr(res.Persisted),
		})

	case MsgStopSpeaking:
		ok, reason := s.control.StopSpeaking("websocket")
		s.hub.reply(c, ServerMessage{Type: MsgStopResult, Stopped: boolPtr(ok), Reason: reason})

	case MsgSendMessage:
		if msg.Text == "" {
			s.hub.reply(c, ServerMessage{Type: MsgError, Message: "send_message requires text"})
			return
		}
		if err := s.control.SubmitText(msg.Text); err != nil {
			s.hub.reply(c, ServerMessage{Type: MsgError, Message: err.Error()})
			return
		}

	case MsgGetChatlogs:
		limit := msg.Limit
		if limit <= 0 {
			limit = defaultChatlogLimit
		}
		records, err := chatlog.Tail(s.chatPath, limit)
		if err != nil {
			s.hub.reply(c, ServerMessage{Type: MsgError, Message: err.Error()})
			return
		}
		if records == nil {
			records = []chatlog.Record{}
		}
		s.hub.reply(c, ServerMessage{Type: MsgChatlogs, Records: records})

	default:
		s.hub.reply(c, ServerMessage{Type: MsgError, Message: "unknown message type: " + msg.Type})
	}
}

// stateMessage snapshots the assistant state for get_state and connect.
func (s *Server) stateMessage() ServerMessage {
	return ServerMessage{
		Type:     MsgState,
		Running:  boolPtr(s.control.Running()),
		MicMuted: boolPtr(s.mute.Muted()),
		Speaking: boolPtr(s.control.Speaking()),
	}
}
