package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/syedmehfooz47/Friday2/internal/audiostate"
	"github.com/syedmehfooz47/Friday2/internal/chatlog"
	"github.com/syedmehfooz47/Friday2/internal/memory"
)

// CurrentTime reports the local date and time.
func CurrentTime() Tool {
	return Tool{
		Name:        "current_time",
		Description: "Get the current local date and time.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(_ context.Context, _ map[string]any) (Result, error) {
			now := time.Now()
			return Success(now.Format("Monday, 2 January 2006, 15:04")).
				WithExtra("iso8601", now.Format(time.RFC3339)), nil
		},
	}
}

// ConversationHistory returns recent transcript lines from the durable log.
func ConversationHistory(logPath string) Tool {
	return Tool{
		Name:        "conversation_history",
		Description: "Retrieve the most recent conversation transcript entries.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of entries to return (default 10).",
				},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (Result, error) {
			limit, ok := IntArg(args, "limit")
			if !ok || limit <= 0 {
				limit = 10
			}
			records, err := chatlog.Tail(logPath, limit)
			if err != nil {
				return Result{}, fmt.Errorf("reading conversation history: %w", err)
			}
			if len(records) == 0 {
				return Success("No conversation history yet."), nil
			}
			var b strings.Builder
			for _, rec := range records {
				fmt.Fprintf(&b, "[%s] %s: %s\n", rec.Timestamp.Format(time.RFC3339), rec.Role, rec.Content)
			}
			return Success(b.String()).WithExtra("count", len(records)), nil
		},
	}
}

// Recaller reads back stored long-term memory entries.
type Recaller interface {
	Recall(limit int) ([]memory.Entry, error)
}

// RecallMemory returns entries from the long-term memory store.
func RecallMemory(store Recaller) Tool {
	return Tool{
		Name:        "recall_memory",
		Description: "Recall facts and conversation items from long-term memory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of memories to return (default 20).",
				},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (Result, error) {
			limit, ok := IntArg(args, "limit")
			if !ok || limit <= 0 {
				limit = 20
			}
			entries, err := store.Recall(limit)
			if err != nil {
				return Result{}, fmt.Errorf("recalling memory: %w", err)
			}
			if len(entries) == 0 {
				return Success("Long-term memory is empty."), nil
			}
			var b strings.Builder
			for _, e := range entries {
				fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
			}
			return Success(b.String()).WithExtra("count", len(entries)), nil
		},
	}
}

// SetMicrophone lets the model mute or unmute the microphone on request.
func SetMicrophone(store *audiostate.Store) Tool {
	return Tool{
		Name:        "set_microphone",
		Description: "Mute or unmute the user's microphone.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"muted": map[string]any{
					"type":        "boolean",
					"description": "True to mute the microphone, false to unmute it.",
				},
			},
			"required": []string{"muted"},
		},
		Handler: func(_ context.Context, args map[string]any) (Result, error) {
			muted, ok := args["muted"].(bool)
			if !ok {
				return Result{}, fmt.Errorf("argument 'muted' must be a boolean")
			}
			res := store.SetSync(muted, "tool")
			state := "unmuted"
			if res.Muted {
				state = "muted"
			}
			return Success("Microphone is now " + state + "."), nil
		},
	}
}
