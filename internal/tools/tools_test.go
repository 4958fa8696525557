package tools_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/syedmehfooz47/Friday2/internal/audiostate"
	"github.com/syedmehfooz47/Friday2/internal/chatlog"
	"github.com/syedmehfooz47/Friday2/internal/memory"
	"github.com/syedmehfooz47/Friday2/internal/tools"
)

func newDispatcher(t *testing.T, ts ...tools.Tool) *tools.Dispatcher {
	t.Helper()
	d, err := tools.NewDispatcher(nil, ts...)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t, tools.Tool{
		Name: "greet",
		Handler: func(_ context.Context, args map[string]any) (tools.Result, error) {
			name, _ := tools.StringArg(args, "name")
			return tools.Success("hello " + name), nil
		},
	})

	res := d.Execute(context.Background(), "greet", map[string]any{"name": "sam"})
	if res.Status != tools.StatusSuccess {
		t.Errorf("status = %q, want success", res.Status)
	}
	if res.Message != "hello sam" {
		t.Errorf("message = %q, want hello sam", res.Message)
	}
}

func TestExecute_UnknownToolYieldsErrorResult(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t)

	res := d.Execute(context.Background(), "teleport", nil)
	if res.Status != tools.StatusError {
		t.Errorf("status = %q, want error", res.Status)
	}
	if res.Message != "Tool 'teleport' is not implemented." {
		t.Errorf("message = %q", res.Message)
	}
}

func TestExecute_HandlerErrorConverted(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t, tools.Tool{
		Name: "flaky",
		Handler: func(_ context.Context, _ map[string]any) (tools.Result, error) {
			return tools.Result{}, errors.New("upstream unavailable")
		},
	})

	res := d.Execute(context.Background(), "flaky", nil)
	if res.Status != tools.StatusError {
		t.Errorf("status = %q, want error", res.Status)
	}
	if res.Message == "" {
		t.Error("error result should carry a non-empty message")
	}
}

func TestExecute_HandlerPanicRecovered(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t, tools.Tool{
		Name: "boom",
		Handler: func(_ context.Context, _ map[string]any) (tools.Result, error) {
			panic("nil pointer somewhere")
		},
	})

	res := d.Execute(context.Background(), "boom", nil)
	if res.Status != tools.StatusError {
		t.Errorf("status = %q, want error", res.Status)
	}
	if res.Message == "" {
		t.Error("panic result should carry a non-empty message")
	}
}

func TestExecute_EmptyStatusDefaultsToSuccess(t *testing.T) {
	t.Parallel()
	d := newDispatcher(t, tools.Tool{
		Name: "bare",
		Handler: func(_ context.Context, _ map[string]any) (tools.Result, error) {
			return tools.Result{Message: "done"}, nil
		},
	})

	res := d.Execute(context.Background(), "bare", nil)
	if res.Status != tools.StatusSuccess {
		t.Errorf("status = %q, want success", res.Status)
	}
}

func TestRegister_DuplicateName(t *testing.T) {
	t.Parallel()
	tool := tools.Tool{
		Name:    "dup",
		Handler: func(_ context.Context, _ map[string]any) (tools.Result, error) { return tools.Success("ok"), nil },
	}
	d := newDispatcher(t, tool)
	if err := d.Register(tool); err == nil {
		t.Error("registering a duplicate name should fail")
	}
}

func TestDefinitions_SortedByName(t *testing.T) {
	t.Parallel()
	noop := func(_ context.Context, _ map[string]any) (tools.Result, error) { return tools.Success("ok"), nil }
	d := newDispatcher(t,
		tools.Tool{Name: "zeta", Handler: noop},
		tools.Tool{Name: "alpha", Handler: noop},
		tools.Tool{Name: "mid", Handler: noop},
	)

	defs := d.Definitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions, want 3", len(defs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestResult_Map(t *testing.T) {
	t.Parallel()
	res := tools.Success("done").WithExtra("path", "/tmp/out.png")
	m := res.Map()
	if m["status"] != tools.StatusSuccess {
		t.Errorf("status = %v", m["status"])
	}
	if m["message"] != "done" {
		t.Errorf("message = %v", m["message"])
	}
	if m["path"] != "/tmp/out.png" {
		t.Errorf("path = %v", m["path"])
	}
}

// ── builtins ─────────────────────────────────────────────────────────────────

func TestConversationHistory_Empty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "chatlogs.json")
	d := newDispatcher(t, tools.ConversationHistory(path))

	res := d.Execute(context.Background(), "conversation_history", nil)
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", res.Status, res.Message)
	}
}

func TestConversationHistory_ReturnsRecentEntries(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "chatlogs.json")
	l, err := chatlog.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.Append(chatlog.RoleUser, "hello there"); err != nil {
		t.Fatal(err)
	}

	d := newDispatcher(t, tools.ConversationHistory(path))
	res := d.Execute(context.Background(), "conversation_history", map[string]any{"limit": float64(5)})
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", res.Status, res.Message)
	}
	if res.Extra["count"] != 1 {
		t.Errorf("count = %v, want 1", res.Extra["count"])
	}
}

func TestRecallMemory(t *testing.T) {
	t.Parallel()
	store := memory.NewFileStore(filepath.Join(t.TempDir(), "memory.json"))
	d := newDispatcher(t, tools.RecallMemory(store))

	res := d.Execute(context.Background(), "recall_memory", nil)
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", res.Status, res.Message)
	}
	if res.Message != "Long-term memory is empty." {
		t.Errorf("message = %q", res.Message)
	}

	err := store.Sync(context.Background(), []chatlog.Record{
		{Role: chatlog.RoleUser, Content: "my cat is named Miso"},
	})
	if err != nil {
		t.Fatal(err)
	}

	res = d.Execute(context.Background(), "recall_memory", map[string]any{"limit": float64(10)})
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", res.Status, res.Message)
	}
	if res.Extra["count"] != 1 {
		t.Errorf("count = %v, want 1", res.Extra["count"])
	}
	if !strings.Contains(res.Message, "Miso") {
		t.Errorf("message %q should contain the stored content", res.Message)
	}
}

func TestSetMicrophone(t *testing.T) {
	t.Parallel()
	store := audiostate.New(filepath.Join(t.TempDir(), "mic_state.json"))
	d := newDispatcher(t, tools.SetMicrophone(store))

	res := d.Execute(context.Background(), "set_microphone", map[string]any{"muted": false})
	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %q: %s", res.Status, res.Message)
	}
	if store.Muted() {
		t.Error("store should be unmuted")
	}

	res = d.Execute(context.Background(), "set_microphone", map[string]any{"muted": "yes"})
	if res.Status != tools.StatusError {
		t.Error("non-boolean argument should yield an error result")
	}
}
