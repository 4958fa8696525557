// Package app wires all Friday subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes them until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithProvider,
// WithInputOpener, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/syedmehfooz47/Friday2/internal/audiostate"
	"github.com/syedmehfooz47/Friday2/internal/chatlog"
	"github.com/syedmehfooz47/Friday2/internal/config"
	"github.com/syedmehfooz47/Friday2/internal/controlplane"
	"github.com/syedmehfooz47/Friday2/internal/health"
	"github.com/syedmehfooz47/Friday2/internal/memory"
	"github.com/syedmehfooz47/Friday2/internal/observe"
	"github.com/syedmehfooz47/Friday2/internal/session"
	"github.com/syedmehfooz47/Friday2/internal/tools"
	"github.com/syedmehfooz47/Friday2/internal/transcribe"
	"github.com/syedmehfooz47/Friday2/internal/transcribe/whisper"
	"github.com/syedmehfooz47/Friday2/pkg/audio"
	"github.com/syedmehfooz47/Friday2/pkg/audio/portaudio"
	"github.com/syedmehfooz47/Friday2/pkg/transport"
	"github.com/syedmehfooz47/Friday2/pkg/transport/gemini"
	"github.com/syedmehfooz47/Friday2/pkg/transport/redial"
)

// InputOpener opens a capture device at the given rate and frame size.
type InputOpener func(sampleRate, frameSize int) (audio.InputDevice, error)

// OutputOpener opens a playback device at the given rate and frame size.
type OutputOpener func(sampleRate, frameSize int) (audio.OutputDevice, error)

// TranscriberFactory creates the local transcriber when transcription is
// enabled in the config.
type TranscriberFactory func(modelPath string) (transcribe.Transcriber, error)

// App owns all subsystem lifetimes: the mute store, the chat log, the tool
// dispatcher, the realtime transport session, the session loop, and the
// control plane.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics

	// Injectable seams.
	provider       transport.Provider
	openInput      InputOpener
	openOutput     OutputOpener
	newTranscriber TranscriberFactory

	mute       *audiostate.Store
	chat       *chatlog.Log
	memStore   *memory.FileStore
	guard      *memory.Guard
	dispatcher *tools.Dispatcher
	sess       transport.Session
	loop       *session.Loop
	server     *controlplane.Server
	worker     *transcribe.Worker

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics sets the metrics instruments shared by all subsystems.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithProvider injects a realtime transport provider instead of building a
// Gemini one from the configured API key.
func WithProvider(p transport.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithInputOpener injects the capture device constructor.
func WithInputOpener(open InputOpener) Option {
	return func(a *App) { a.openInput = open }
}

// WithOutputOpener injects the playback device constructor.
func WithOutputOpener(open OutputOpener) Option {
	return func(a *App) { a.openOutput = open }
}

// WithTranscriberFactory injects the local transcriber constructor.
func WithTranscriberFactory(f TranscriberFactory) Option {
	return func(a *App) { a.newTranscriber = f }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: durable state is restored, tools are registered, the realtime
// session is connected, and the audio devices are opened before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.openInput == nil {
		a.openInput = func(rate, frame int) (audio.InputDevice, error) {
			return portaudio.OpenInput(rate, frame)
		}
	}
	if a.openOutput == nil {
		a.openOutput = func(rate, frame int) (audio.OutputDevice, error) {
			return portaudio.OpenOutput(rate, frame)
		}
	}
	if a.newTranscriber == nil {
		a.newTranscriber = func(modelPath string) (transcribe.Transcriber, error) {
			return whisper.New(modelPath)
		}
	}

	if err := a.initState(); err != nil {
		return nil, err
	}
	if err := a.initTools(); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initSession(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initTranscription(); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initLoop(); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

// initState restores the durable pieces: mute flag, chat log, memory store.
func (a *App) initState() error {
	a.mute = audiostate.New(a.cfg.Mute.StateFile,
		audiostate.WithDebounce(a.cfg.Mute.Debounce),
		audiostate.WithLogger(a.log),
	)

	chat, err := chatlog.Open(a.cfg.ChatLog.Path)
	if err != nil {
		return fmt.Errorf("app: open chat log: %w", err)
	}
	a.chat = chat
	a.closers = append(a.closers, chat.Close)

	a.memStore = memory.NewFileStore(a.cfg.Memory.Path)
	a.guard = memory.NewGuard(a.memStore, a.log)
	return nil
}

// initTools registers the built-in tool handlers.
func (a *App) initTools() error {
	d, err := tools.NewDispatcher(a.log,
		tools.CurrentTime(),
		tools.ConversationHistory(a.cfg.ChatLog.Path),
		tools.RecallMemory(a.memStore),
		tools.SetMicrophone(a.mute),
	)
	if err != nil {
		return fmt.Errorf("app: build tool dispatcher: %w", err)
	}
	a.dispatcher = d
	return nil
}

// initSession connects the realtime transport session.
func (a *App) initSession(ctx context.Context) error {
	if a.provider == nil {
		apiKey := os.Getenv(a.cfg.Assistant.APIKeyEnv)
		if apiKey == "" {
			return fmt.Errorf("app: missing API key in env %s", a.cfg.Assistant.APIKeyEnv)
		}
		a.provider = redial.New(
			gemini.New(apiKey, gemini.WithModel(a.cfg.Assistant.Model)),
			redial.WithLogger(a.log),
		)
	}

	sess, err := a.provider.Connect(ctx, transport.SessionConfig{
		Model:            a.cfg.Assistant.Model,
		Instructions:     a.cfg.Assistant.Instructions,
		Voice:            a.cfg.Assistant.Voice,
		Tools:            a.dispatcher.Definitions(),
		InputSampleRate:  a.cfg.Audio.InputSampleRate,
		OutputSampleRate: a.cfg.Audio.OutputSampleRate,
	})
	if err != nil {
		return fmt.Errorf("app: connect realtime session: %w", err)
	}
	a.sess = sess
	a.closers = append(a.closers, sess.Close)
	a.log.Info("realtime session established",
		"model", a.cfg.Assistant.Model,
		"voice", a.cfg.Assistant.Voice,
	)
	return nil
}

// initTranscription creates the optional local transcription worker.
func (a *App) initTranscription() error {
	if !a.cfg.Transcribe.Enabled {
		return nil
	}
	tr, err := a.newTranscriber(a.cfg.Transcribe.ModelPath)
	if err != nil {
		return fmt.Errorf("app: load transcriber: %w", err)
	}
	if closer, ok := tr.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}
	a.worker = transcribe.NewWorker(tr, a.log, func(label, text string) {
		a.log.Info("local transcription", "label", label, "text", text)
	})
	return nil
}

// initLoop opens the audio devices and assembles the session loop and the
// control plane around it.
func (a *App) initLoop() error {
	mic, err := a.openInput(a.cfg.Audio.InputSampleRate, a.cfg.Audio.FrameSize)
	if err != nil {
		return fmt.Errorf("app: open capture device: %w", err)
	}
	speaker, err := a.openOutput(a.cfg.Audio.OutputSampleRate, a.cfg.Audio.FrameSize)
	if err != nil {
		mic.Close()
		return fmt.Errorf("app: open playback device: %w", err)
	}

	hub := controlplane.NewHub(a.log, a.metrics)

	loopOpts := []session.Option{
		session.WithLogger(a.log),
		session.WithMetrics(a.metrics),
		session.WithNotifier(hub),
	}
	if a.worker != nil {
		loopOpts = append(loopOpts, session.WithTranscription(a.worker))
	}
	a.loop = session.New(session.Config{
		AssistantName:       a.cfg.Assistant.Name,
		InputSampleRate:     a.cfg.Audio.InputSampleRate,
		OutputSampleRate:    a.cfg.Audio.OutputSampleRate,
		FrameSize:           a.cfg.Audio.FrameSize,
		OutQueueSize:        a.cfg.Audio.OutQueueSize,
		InQueueSize:         a.cfg.Audio.InQueueSize,
		MonitorInterval:     a.cfg.Session.MonitorInterval,
		InactivityThreshold: a.cfg.Session.InactivityThreshold,
		MemorySyncInterval:  a.cfg.Session.MemorySyncInterval,
		TranscriptionFrames: a.cfg.Transcribe.FrameThreshold,
	}, a.sess, mic, speaker, a.mute, a.dispatcher, a.chat, a.guard, loopOpts...)

	checker := health.New(
		health.FileWritable("chatlog", a.cfg.ChatLog.Path),
		health.BoolChecker("session", a.loop.Running, "session loop is not running"),
		health.BoolChecker("memory", func() bool { return !a.guard.IsDegraded() }, "memory store degraded"),
	)
	a.server = controlplane.New(
		controlplane.Config{ListenAddr: a.cfg.Server.ListenAddr},
		a.loop, a.mute, a.cfg.ChatLog.Path,
		controlplane.WithLogger(a.log),
		controlplane.WithMetrics(a.metrics),
		controlplane.WithHealth(checker),
		controlplane.WithHub(hub),
	)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Loop returns the session loop, the control surface for the running session.
func (a *App) Loop() *session.Loop { return a.loop }

// Mute returns the durable mute store.
func (a *App) Mute() *audiostate.Store { return a.mute }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the session loop, the control plane, and the transcription
// worker until ctx is cancelled or one of them fails. A clean user-requested
// shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loop.Run(gctx) })
	g.Go(func() error { return a.server.Run(gctx) })
	if a.worker != nil {
		g.Go(func() error {
			a.worker.Run(gctx)
			return nil
		})
	}

	a.log.Info("assistant running", "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes all subsystems in reverse initialisation order. Safe to
// call more than once. The context bounds how long teardown may take.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			err = a.closeAll()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return err
}

// closeAll runs the registered closers newest-first and reports the first
// failure. Used both by Shutdown and by New's partial-failure cleanup.
func (a *App) closeAll() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
