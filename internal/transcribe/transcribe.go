// Package transcribe provides best-effort local transcription of the audio
// flowing through the session.
//
// It is a secondary channel: anything that would block or fail here is
// dropped or logged, never allowed to touch the primary audio path.
package transcribe

import (
	"context"
	"log/slog"
	"sync"
)

// Transcriber converts raw 16-bit little-endian mono PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// Buffer accumulates raw audio bytes for one direction (user or assistant)
// and reports when the frame-count threshold is reached. Not safe for
// concurrent use; each pipeline direction owns its own Buffer.
type Buffer struct {
	threshold int
	frames    int
	data      []byte
}

// NewBuffer creates a buffer that signals readiness every threshold frames.
func NewBuffer(threshold int) *Buffer {
	if threshold <= 0 {
		threshold = 25
	}
	return &Buffer{threshold: threshold}
}

// Add appends one frame. When the threshold is reached, the accumulated
// bytes are returned and the buffer resets; otherwise returns (nil, false).
func (b *Buffer) Add(frame []byte) ([]byte, bool) {
	b.data = append(b.data, frame...)
	b.frames++
	if b.frames < b.threshold {
		return nil, false
	}
	out := b.data
	b.data = nil
	b.frames = 0
	return out, true
}

// Reset discards any accumulated audio.
func (b *Buffer) Reset() {
	b.data = nil
	b.frames = 0
}

// Frames returns the number of frames accumulated since the last flush.
func (b *Buffer) Frames() int { return b.frames }

// job is one queued transcription request.
type job struct {
	pcm        []byte
	sampleRate int
	label      string
}

// Worker runs transcription off the audio path. Submissions are dropped when
// the queue is full rather than blocking the caller.
type Worker struct {
	t    Transcriber
	log  *slog.Logger
	sink func(label, text string)

	jobs chan job
	wg   sync.WaitGroup
	once sync.Once
}

// NewWorker creates a worker feeding transcripts to sink. The sink receives
// the submission label (e.g. "user", "assistant") and the recognised text;
// it may be nil, in which case results are only logged.
func NewWorker(t Transcriber, log *slog.Logger, sink func(label, text string)) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		t:    t,
		log:  log,
		sink: sink,
		jobs: make(chan job, 8),
	}
	return w
}

// Run processes submissions until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			text, err := w.t.Transcribe(ctx, j.pcm, j.sampleRate)
			if err != nil {
				w.log.Warn("transcription failed", "label", j.label, "err", err)
				continue
			}
			if text == "" {
				continue
			}
			w.log.Debug("transcribed audio", "label", j.label, "text", text)
			if w.sink != nil {
				w.sink(j.label, text)
			}
		}
	}
}

// Submit queues pcm for transcription. Returns false when the queue is full
// and the submission was dropped.
func (w *Worker) Submit(label string, pcm []byte, sampleRate int) bool {
	select {
	case w.jobs <- job{pcm: pcm, sampleRate: sampleRate, label: label}:
		return true
	default:
		w.log.Debug("transcription queue full, dropping submission", "label", label)
		return false
	}
}
