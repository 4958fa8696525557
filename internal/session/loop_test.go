package session_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/syedmehfooz47/Friday2/internal/audiostate"
	"github.com/syedmehfooz47/Friday2/internal/chatlog"
	"github.com/syedmehfooz47/Friday2/internal/memory"
	"github.com/syedmehfooz47/Friday2/internal/observe"
	"github.com/syedmehfooz47/Friday2/internal/session"
	"github.com/syedmehfooz47/Friday2/internal/tools"
	amock "github.com/syedmehfooz47/Friday2/pkg/audio/mock"
	"github.com/syedmehfooz47/Friday2/pkg/transport"
	tmock "github.com/syedmehfooz47/Friday2/pkg/transport/mock"
)

// recordingNotifier captures control-plane notifications for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	transcripts []string
	speaking    []bool
	fragments   []string
}

func (n *recordingNotifier) TranscriptLogged(role, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transcripts = append(n.transcripts, role+":"+text)
}

func (n *recordingNotifier) SpeakingChanged(speaking bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.speaking = append(n.speaking, speaking)
}

func (n *recordingNotifier) AssistantText(fragment string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fragments = append(n.fragments, fragment)
}

func (n *recordingNotifier) lastSpeaking() (bool, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.speaking) == 0 {
		return false, false
	}
	return n.speaking[len(n.speaking)-1], true
}

type fixture struct {
	loop     *session.Loop
	sess     *tmock.Session
	mic      *amock.Input
	spk      *amock.Output
	mute     *audiostate.Store
	notif    *recordingNotifier
	chatPath string

	cancel context.CancelFunc
	done   chan error
}

// newFixture builds a running session loop over mocked devices and transport.
// The mute store starts muted (the process default); tests unmute explicitly.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	chatPath := filepath.Join(dir, "chatlogs.json")
	chat, err := chatlog.Open(chatPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { chat.Close() })

	mute := audiostate.New(filepath.Join(dir, "mic_state.json"), audiostate.WithDebounce(0))
	syncer := memory.NewFileStore(filepath.Join(dir, "memory.json"))

	echo := tools.Tool{
		Name: "echo",
		Handler: func(_ context.Context, args map[string]any) (tools.Result, error) {
			msg, _ := tools.StringArg(args, "message")
			return tools.Success(msg), nil
		},
	}
	dispatcher, err := tools.NewDispatcher(nil, echo)
	if err != nil {
		t.Fatal(err)
	}

	mic := amock.NewInput(16000, [][]byte{make([]byte, 2048)})
	mic.Repeat = true
	spk := amock.NewOutput(24000)
	sess := tmock.NewSession()
	notif := &recordingNotifier{}

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	cfg := session.Config{
		AssistantName:       "Friday",
		InputSampleRate:     16000,
		OutputSampleRate:    24000,
		FrameSize:           1024,
		OutQueueSize:        5,
		InQueueSize:         64,
		MonitorInterval:     time.Hour,
		InactivityThreshold: time.Hour,
		MemorySyncInterval:  time.Hour,
	}

	loop := session.New(cfg, sess, mic, spk, mute, dispatcher, chat, syncer,
		session.WithNotifier(notif),
		session.WithMetrics(metrics),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx); close(done) }()

	f := &fixture{
		loop: loop, sess: sess, mic: mic, spk: spk, mute: mute,
		notif: notif, chatPath: chatPath, cancel: cancel, done: done,
	}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("session did not shut down")
		}
	})
	return f
}

// stop cancels the session and returns Run's error.
func (f *fixture) stop(t *testing.T) error {
	t.Helper()
	f.cancel()
	select {
	case err := <-f.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down")
		return nil
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTurn_LogsExactlyOncePerRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.sess.Emit(transport.Event{Type: transport.EventInputTranscription, Text: "what's the"})
	f.sess.Emit(transport.Event{Type: transport.EventInputTranscription, Text: "what's the time"})
	f.sess.Emit(transport.Event{Type: transport.EventText, Text: "It is "})
	f.sess.Emit(transport.Event{Type: transport.EventText, Text: "noon."})
	f.sess.EmitTurnComplete()

	waitFor(t, "turn flush", func() bool {
		records, _ := chatlog.ReadAll(f.chatPath)
		return len(records) == 2
	})

	records, err := chatlog.ReadAll(f.chatPath)
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Role != chatlog.RoleUser || records[0].Content != "what's the time" {
		t.Errorf("user record = %+v", records[0])
	}
	if records[1].Role != chatlog.RoleAssistant || records[1].Content != "It is noon." {
		t.Errorf("assistant record = %+v", records[1])
	}

	// A second turn-complete with empty accumulators must not add lines.
	f.sess.EmitTurnComplete()
	time.Sleep(50 * time.Millisecond)
	records, _ = chatlog.ReadAll(f.chatPath)
	if len(records) != 2 {
		t.Errorf("idempotent flush violated: %d records", len(records))
	}
}

func TestVoiceInterrupt_Honoured(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mute.SetSync(false, "test")

	f.sess.EmitAudio(make([]byte, 512))
	waitFor(t, "assistant speaking", func() bool { return f.loop.State().Speaking() })

	f.sess.Emit(transport.Event{Type: transport.EventInputTranscription, Text: "Friday stop"})
	waitFor(t, "speaking cleared", func() bool { return !f.loop.State().Speaking() })

	if got, ok := f.notif.lastSpeaking(); !ok || got {
		t.Error("last speaking notification should be false")
	}
	if f.loop.State().UserText() != "" {
		t.Error("stop phrase must not be treated as conversational input")
	}

	// The stop phrase never reaches the transcript.
	f.sess.EmitTurnComplete()
	time.Sleep(50 * time.Millisecond)
	records, _ := chatlog.ReadAll(f.chatPath)
	for _, rec := range records {
		if rec.Role == chatlog.RoleUser {
			t.Errorf("unexpected user record: %+v", rec)
		}
	}
}

func TestVoiceInterrupt_SuppressedWhenMuted(t *testing.T) {
	t.Parallel()
	f := newFixture(t) // muted by default

	f.sess.EmitAudio(make([]byte, 512))
	waitFor(t, "assistant speaking", func() bool { return f.loop.State().Speaking() })

	f.sess.Emit(transport.Event{Type: transport.EventInputTranscription, Text: "Friday stop"})
	time.Sleep(50 * time.Millisecond)

	if !f.loop.State().Speaking() {
		t.Error("stop phrase must not be honoured while muted")
	}
	if f.loop.State().UserText() != "" {
		t.Error("fragment should be discarded, not accumulated")
	}
}

func TestSpeechDiscardedWhileSpeaking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mute.SetSync(false, "test")

	f.sess.EmitAudio(make([]byte, 512))
	waitFor(t, "assistant speaking", func() bool { return f.loop.State().Speaking() })

	f.sess.Emit(transport.Event{Type: transport.EventInputTranscription, Text: "also dim the bedroom"})
	time.Sleep(50 * time.Millisecond)

	if f.loop.State().UserText() != "" {
		t.Error("non-stop speech during playback must be discarded")
	}
}

func TestShutdownPhrase_EndsSessionCleanly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.sess.Emit(transport.Event{Type: transport.EventInputTranscription, Text: "shutdown Friday"})

	select {
	case err := <-f.done:
		if err != nil {
			t.Errorf("shutdown command should end the session cleanly, got: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end after shutdown command")
	}
}

func TestToolCalls_OneResponsePerCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.sess.Emit(transport.Event{
		Type: transport.EventToolCall,
		ToolCalls: []transport.FunctionCall{
			{ID: "call-1", Name: "echo", Args: map[string]any{"message": "hi"}},
			{ID: "call-2", Name: "nonexistent", Args: nil},
		},
	})

	var responses map[string]map[string]any
	waitFor(t, "two tool responses", func() bool {
		responses = map[string]map[string]any{}
		for _, batch := range f.sess.ToolResponsesSent() {
			for _, r := range batch {
				responses[r.ID] = r.Response
			}
		}
		return len(responses) == 2
	})

	if responses["call-1"]["status"] != tools.StatusSuccess {
		t.Errorf("call-1 status = %v", responses["call-1"]["status"])
	}
	if responses["call-2"]["status"] != tools.StatusError {
		t.Errorf("call-2 status = %v", responses["call-2"]["status"])
	}
	if responses["call-2"]["message"] != "Tool 'nonexistent' is not implemented." {
		t.Errorf("call-2 message = %v", responses["call-2"]["message"])
	}
}

func TestShutdownFlush_LogsPendingTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.sess.Emit(transport.Event{Type: transport.EventInputTranscription, Text: "turn on the lights"})
	waitFor(t, "accumulated user text", func() bool {
		return f.loop.State().UserText() == "turn on the lights"
	})

	if err := f.stop(t); err != nil {
		t.Fatalf("Run returned: %v", err)
	}

	records, err := chatlog.ReadAll(f.chatPath)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, rec := range records {
		if rec.Role == chatlog.RoleUser && rec.Content == "turn on the lights" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("pending turn logged %d times, want exactly 1", count)
	}
}

func TestStopSpeaking_ControlGuards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Muted: refused.
	if ok, reason := f.loop.StopSpeaking("control"); ok || reason != "mic_muted" {
		t.Errorf("muted: got ok=%v reason=%q", ok, reason)
	}

	// Unmuted but idle: refused.
	f.mute.SetSync(false, "test")
	if ok, reason := f.loop.StopSpeaking("control"); ok || reason != "not_speaking" {
		t.Errorf("idle: got ok=%v reason=%q", ok, reason)
	}

	// Speaking and unmuted: accepted.
	f.sess.EmitAudio(make([]byte, 512))
	waitFor(t, "assistant speaking", func() bool { return f.loop.State().Speaking() })
	if ok, reason := f.loop.StopSpeaking("control"); !ok || reason != "" {
		t.Errorf("speaking: got ok=%v reason=%q", ok, reason)
	}
	if f.loop.State().Speaking() {
		t.Error("accepted stop should clear the speaking flag")
	}
}

func TestCapture_ForwardsOnlyWhenGateOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t) // muted: nothing may reach the transport

	time.Sleep(100 * time.Millisecond)
	if n := len(f.sess.AudioSent()); n != 0 {
		t.Fatalf("muted session sent %d frames, want 0", n)
	}

	f.mute.SetSync(false, "test")
	waitFor(t, "frames transmitted", func() bool { return len(f.sess.AudioSent()) > 0 })
}

func TestPlayback_WritesReceivedAudio(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	chunk := []byte{1, 2, 3, 4}
	f.sess.EmitAudio(chunk)

	waitFor(t, "speaker write", func() bool { return len(f.spk.Written()) > 0 })
}

func TestPlayback_DropsRateMismatchedAudio(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	chat, err := chatlog.Open(filepath.Join(dir, "chatlogs.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { chat.Close() })

	dispatcher, err := tools.NewDispatcher(nil)
	if err != nil {
		t.Fatal(err)
	}
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	mic := amock.NewInput(16000, [][]byte{make([]byte, 2048)})
	mic.Repeat = true
	// A speaker opened at the wrong rate must never receive frames tagged
	// for 24 kHz playback.
	spk := amock.NewOutput(22050)
	sess := tmock.NewSession()
	notif := &recordingNotifier{}
	mute := audiostate.New(filepath.Join(dir, "mic_state.json"), audiostate.WithDebounce(0))

	loop := session.New(session.Config{
		AssistantName:       "Friday",
		InputSampleRate:     16000,
		OutputSampleRate:    24000,
		MonitorInterval:     time.Hour,
		InactivityThreshold: time.Hour,
		MemorySyncInterval:  time.Hour,
	}, sess, mic, spk, mute, dispatcher, chat, nil,
		session.WithNotifier(notif),
		session.WithMetrics(metrics),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("session did not shut down")
		}
	})

	sess.EmitAudio([]byte{1, 2, 3, 4})

	waitFor(t, "speaking state", func() bool {
		speaking, ok := notif.lastSpeaking()
		return ok && speaking
	})
	time.Sleep(100 * time.Millisecond)
	if n := len(spk.Written()); n != 0 {
		t.Errorf("mismatched frames written = %d, want 0", n)
	}
}

func TestSubmitText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.loop.SubmitText("hello from the keyboard"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	texts := f.sess.TextsSent()
	if len(texts) != 1 || texts[0] != "hello from the keyboard" {
		t.Errorf("sent texts = %v", texts)
	}

	if err := f.loop.SubmitText(""); err == nil {
		t.Error("empty message should be rejected")
	}
}

func TestRunning_Lifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	waitFor(t, "loop running", func() bool { return f.loop.Running() })
	f.stop(t)
	if f.loop.Running() {
		t.Error("Running should be false after shutdown")
	}
}
