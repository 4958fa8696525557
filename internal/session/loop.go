package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syedmehfooz47/Friday2/internal/audiostate"
	"github.com/syedmehfooz47/Friday2/internal/chatlog"
	"github.com/syedmehfooz47/Friday2/internal/memory"
	"github.com/syedmehfooz47/Friday2/internal/observe"
	"github.com/syedmehfooz47/Friday2/internal/tools"
	"github.com/syedmehfooz47/Friday2/internal/transcribe"
	"github.com/syedmehfooz47/Friday2/pkg/audio"
	"github.com/syedmehfooz47/Friday2/pkg/transport"
)

// ErrShutdownRequested signals that the user spoke a shutdown command. The
// supervisor treats it as a clean stop, not a failure.
var ErrShutdownRequested = errors.New("session: shutdown requested")

// keepAliveFrame is the silent PCM chunk injected to keep an idle transport
// connection open. 160 samples of 16-bit silence.
var keepAliveFrame = make([]byte, 320)

// Notifier receives the events the session pushes outward to the control
// plane. Implementations must not block; they are called from the session's
// own goroutines.
type Notifier interface {
	// TranscriptLogged fires after a turn's text is durably logged.
	TranscriptLogged(role, text string)
	// SpeakingChanged fires when the assistant starts or stops speaking.
	SpeakingChanged(speaking bool)
	// AssistantText streams raw assistant text fragments for live display.
	AssistantText(fragment string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) TranscriptLogged(string, string) {}
func (NopNotifier) SpeakingChanged(bool)            {}
func (NopNotifier) AssistantText(string)            {}

// Config holds the session supervisor's tuning parameters.
type Config struct {
	// AssistantName feeds the stop/shutdown phrase matcher.
	AssistantName string

	InputSampleRate  int
	OutputSampleRate int
	// FrameSize is in samples; frames on the wire are FrameSize*2 bytes.
	FrameSize int

	OutQueueSize int
	InQueueSize  int

	MonitorInterval     time.Duration
	InactivityThreshold time.Duration
	MemorySyncInterval  time.Duration

	// TranscriptionFrames is the buffered frame count that triggers a local
	// transcription pass.
	TranscriptionFrames int
}

// Loop owns the concurrent session tasks: capture, transmit, receive,
// playback, connection monitor, and periodic memory sync.
type Loop struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	state   *TurnState
	phrases *PhraseMatcher
	mute    *audiostate.Store

	sess    transport.Session
	mic     audio.InputDevice
	speaker audio.OutputDevice

	dispatcher *tools.Dispatcher
	chat       *chatlog.Log
	syncer     memory.Syncer
	notifier   Notifier
	worker     *transcribe.Worker

	outQ chan audio.Frame
	inQ  chan audio.Frame

	// started anchors frame timestamps to the loop's construction time.
	started time.Time

	// lastActivity is the unix-nano timestamp of the last frame sent or
	// received, read by the connection monitor.
	lastActivity atomic.Int64

	running atomic.Bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the session logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithNotifier sets the control-plane notifier.
func WithNotifier(n Notifier) Option {
	return func(l *Loop) { l.notifier = n }
}

// WithTranscription attaches the best-effort local transcription worker.
func WithTranscription(w *transcribe.Worker) Option {
	return func(l *Loop) { l.worker = w }
}

// New assembles a session loop. The transport session, devices, dispatcher,
// chat log, and memory syncer are owned by the caller except that Run closes
// the audio devices on exit (the supervisor's shutdown duty).
func New(
	cfg Config,
	sess transport.Session,
	mic audio.InputDevice,
	speaker audio.OutputDevice,
	mute *audiostate.Store,
	dispatcher *tools.Dispatcher,
	chat *chatlog.Log,
	syncer memory.Syncer,
	opts ...Option,
) *Loop {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 1024
	}
	if cfg.OutQueueSize <= 0 {
		cfg.OutQueueSize = 5
	}
	if cfg.InQueueSize <= 0 {
		cfg.InQueueSize = 64
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Second
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = 180 * time.Second
	}
	if cfg.MemorySyncInterval <= 0 {
		cfg.MemorySyncInterval = 300 * time.Second
	}
	if cfg.TranscriptionFrames <= 0 {
		cfg.TranscriptionFrames = 25
	}

	l := &Loop{
		cfg:        cfg,
		log:        slog.Default(),
		state:      NewTurnState(),
		phrases:    NewPhraseMatcher(cfg.AssistantName),
		mute:       mute,
		sess:       sess,
		mic:        mic,
		speaker:    speaker,
		dispatcher: dispatcher,
		chat:       chat,
		syncer:     syncer,
		notifier:   NopNotifier{},
		outQ:       make(chan audio.Frame, cfg.OutQueueSize),
		inQ:        make(chan audio.Frame, cfg.InQueueSize),
		started:    time.Now(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	l.touchActivity()
	return l
}

// Control is the narrow surface external callers, such as the control
// plane, use to observe and steer a running session.
type Control interface {
	Running() bool
	Speaking() bool
	StopSpeaking(source string) (ok bool, reason string)
	SubmitText(text string) error
}

var _ Control = (*Loop)(nil)

// State exposes the turn state for control-plane reads.
func (l *Loop) State() *TurnState { return l.state }

// Running reports whether the session tasks are active.
func (l *Loop) Running() bool { return l.running.Load() }

// Speaking reports whether assistant audio is currently being played.
func (l *Loop) Speaking() bool { return l.state.Speaking() }

// Run executes the session until ctx is cancelled, a task fails, or the user
// speaks a shutdown command. The final-flush guarantees run in every case:
// not-yet-logged turn text is written to the transcript, the collected
// history is synced to memory, and the audio devices are closed.
func (l *Loop) Run(ctx context.Context) error {
	l.mute.RegisterPipeline(l.state)
	l.running.Store(true)
	l.metrics.SessionActive.Add(ctx, 1)
	defer func() {
		l.running.Store(false)
		l.metrics.SessionActive.Add(context.Background(), -1)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.captureLoop(gctx) })
	g.Go(func() error { return l.transmitLoop(gctx) })
	g.Go(func() error { return l.receiveLoop(gctx) })
	g.Go(func() error { return l.playbackLoop(gctx) })
	g.Go(func() error { return l.monitorLoop(gctx) })
	g.Go(func() error { return l.memorySyncLoop(gctx) })

	err := g.Wait()

	l.finalFlush()
	l.finalMemorySync()
	l.closeDevices()

	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, ErrShutdownRequested):
		l.log.Info("session ended")
		return nil
	default:
		return fmt.Errorf("session: %w", err)
	}
}

// StopSpeaking handles an external stop-speaking request from the control
// plane. It enforces the same guards as the voice path and returns a reason
// string when the request is refused.
func (l *Loop) StopSpeaking(source string) (ok bool, reason string) {
	if l.mute.Muted() {
		return false, "mic_muted"
	}
	if !l.state.Speaking() {
		return false, "not_speaking"
	}
	l.state.RequestStop()
	l.purgeInbound()
	l.notifier.SpeakingChanged(false)
	l.metrics.RecordInterrupt(context.Background(), source)
	l.log.Info("stop-speaking accepted", "source", source)
	return true, ""
}

// SubmitText forwards a typed chat message to the model, bypassing audio.
func (l *Loop) SubmitText(text string) error {
	if text == "" {
		return fmt.Errorf("session: empty message")
	}
	return l.sess.SendText(text)
}

// touchActivity records transport traffic for the connection monitor.
func (l *Loop) touchActivity() {
	l.lastActivity.Store(time.Now().UnixNano())
}

// purgeInbound discards all queued assistant audio. Used on interrupts and
// at turn boundaries so stale audio never bleeds into the next turn.
func (l *Loop) purgeInbound() {
	for {
		select {
		case <-l.inQ:
		default:
			return
		}
	}
}

// flushTurn logs the turn's accumulated text exactly once per side and
// resets the turn record.
func (l *Loop) flushTurn() {
	res := l.state.Flush()
	if res.UserLogged {
		l.logTranscript(chatlog.RoleUser, res.UserText)
	}
	if res.AssistantLogged {
		l.logTranscript(chatlog.RoleAssistant, res.AssistantText)
	}
	if res.TurnDuration > 0 {
		l.metrics.TurnDuration.Record(context.Background(), res.TurnDuration.Seconds())
	}
}

func (l *Loop) logTranscript(role chatlog.Role, text string) {
	if err := l.chat.Append(role, text); err != nil {
		l.log.Error("failed to append transcript", "role", role, "err", err)
		return
	}
	l.notifier.TranscriptLogged(string(role), text)
	l.log.Info("transcript logged", "role", role, "chars", len(text))
}

// finalFlush is the shutdown safety net: text accumulated but not yet
// turn-complete still reaches the durable log.
func (l *Loop) finalFlush() {
	l.flushTurn()
}

// finalMemorySync runs one best-effort sync with its own short deadline.
func (l *Loop) finalMemorySync() {
	if l.syncer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.syncMemory(ctx)
}

func (l *Loop) closeDevices() {
	if err := l.mic.Close(); err != nil {
		l.log.Warn("failed to close microphone", "err", err)
	}
	if err := l.speaker.Close(); err != nil {
		l.log.Warn("failed to close speaker", "err", err)
	}
}

// monitorLoop watches for transport inactivity and injects a silent
// keep-alive frame. Advisory only: failures are logged, never fatal.
func (l *Loop) monitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			idle := time.Since(time.Unix(0, l.lastActivity.Load()))
			if idle < l.cfg.InactivityThreshold {
				continue
			}
			l.log.Debug("connection idle, sending keep-alive", "idle", idle)
			if err := l.sess.SendAudio(keepAliveFrame); err != nil {
				l.log.Warn("keep-alive send failed", "err", err)
				continue
			}
			l.metrics.KeepAlives.Add(ctx, 1)
			l.touchActivity()
		}
	}
}

// memorySyncLoop periodically syncs the durable transcript into long-term
// memory. Best effort: errors are logged and swallowed.
func (l *Loop) memorySyncLoop(ctx context.Context) error {
	if l.syncer == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(l.cfg.MemorySyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.syncMemory(ctx)
		}
	}
}

func (l *Loop) syncMemory(ctx context.Context) {
	records, err := chatlog.ReadAll(l.chat.Path())
	if err != nil {
		l.log.Warn("memory sync: reading transcript failed", "err", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := l.syncer.Sync(ctx, records); err != nil {
		l.log.Warn("memory sync failed", "err", err)
		return
	}
	l.log.Debug("memory synced", "records", len(records))
}
