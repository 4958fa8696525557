package session

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/syedmehfooz47/Friday2/internal/observe"
	"github.com/syedmehfooz47/Friday2/internal/transcribe"
	"github.com/syedmehfooz47/Friday2/pkg/audio"
)

const (
	// captureRetryDelay is the pause after a transient microphone read error.
	captureRetryDelay = 100 * time.Millisecond
	// captureMaxErrors is the number of consecutive read failures treated as
	// a non-recoverable device failure.
	captureMaxErrors = 10
	// gatedPause is the cooperative yield taken when a frame is discarded by
	// the gate, to avoid a busy loop against a muted device.
	gatedPause = 10 * time.Millisecond
)

// captureLoop reads fixed-size frames from the microphone, gates them on
// mute/speaking state, and forwards eligible frames to the outbound queue
// and the user transcription buffer. Gated frames are discarded, never
// buffered: silence while muted must not replay later.
func (l *Loop) captureLoop(ctx context.Context) error {
	buf := transcribe.NewBuffer(l.cfg.TranscriptionFrames)
	errCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := l.mic.ReadFrame()
		if err != nil {
			errCount++
			if errCount >= captureMaxErrors {
				return fmt.Errorf("microphone read failed %d times: %w", errCount, err)
			}
			l.log.Warn("microphone read error, retrying", "attempt", errCount, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(captureRetryDelay):
			}
			continue
		}
		errCount = 0

		if l.mute.Muted() || l.state.Speaking() {
			l.metrics.FramesCaptured.Add(ctx, 1,
				metric.WithAttributes(observe.Attr("outcome", "gated")))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(gatedPause):
			}
			continue
		}

		l.metrics.FramesCaptured.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("outcome", "forwarded")))

		// Backpressure: wait for queue space rather than dropping speech.
		select {
		case l.outQ <- audio.Frame{
			Data:       frame,
			Channel:    audio.ChannelOutbound,
			SampleRate: l.cfg.InputSampleRate,
			Timestamp:  time.Since(l.started),
		}:
		case <-ctx.Done():
			return ctx.Err()
		}

		if l.worker != nil {
			if pcm, ready := buf.Add(frame); ready {
				l.worker.Submit("user", pcm, l.cfg.InputSampleRate)
			}
		}
	}
}
