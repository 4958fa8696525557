package session

import (
	"context"

	"github.com/syedmehfooz47/Friday2/internal/transcribe"
	"github.com/syedmehfooz47/Friday2/pkg/audio"
)

// playbackLoop drains the inbound audio queue to the speaker and samples it
// for assistant-side transcription. Playback write errors are logged and
// the chunk skipped: a glitching speaker should not take the session down
// while the conversation itself is healthy.
func (l *Loop) playbackLoop(ctx context.Context) error {
	buf := transcribe.NewBuffer(l.cfg.TranscriptionFrames)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.inQ:
			// The queue only carries model audio; a frame with the wrong tag
			// or rate would play garbled and is dropped instead.
			if f.Channel != audio.ChannelInbound || f.SampleRate != l.speaker.SampleRate() {
				l.log.Warn("dropping mismatched playback frame",
					"channel", f.Channel, "rate", f.SampleRate)
				continue
			}
			if err := l.speaker.WriteFrame(f.Data); err != nil {
				l.log.Warn("speaker write failed, dropping chunk", "err", err)
				continue
			}
			if l.worker != nil {
				if flush, ready := buf.Add(f.Data); ready {
					l.worker.Submit("assistant", flush, l.cfg.OutputSampleRate)
				}
			}
		}
	}
}
