package session

import (
	"context"
	"fmt"
)

// transmitLoop drains the outbound queue strictly in FIFO order and forwards
// frames to the model transport. The gate is re-evaluated at send time: a
// mute or speaking-state change between enqueue and send drops the frame.
// A transport failure is fatal to the session, not retried.
func (l *Loop) transmitLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.outQ:
			if l.mute.Muted() || l.state.Speaking() {
				l.metrics.FramesDropped.Add(ctx, 1)
				continue
			}
			if err := l.sess.SendAudio(f.Data); err != nil {
				return fmt.Errorf("transmit audio: %w", err)
			}
			l.metrics.FramesSent.Add(ctx, 1)
			l.touchActivity()
		}
	}
}
