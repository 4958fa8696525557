package session

import (
	"context"
	"fmt"
	"time"

	"github.com/syedmehfooz47/Friday2/internal/tools"
	"github.com/syedmehfooz47/Friday2/pkg/audio"
	"github.com/syedmehfooz47/Friday2/pkg/transport"
)

// receiveLoop consumes the model's event stream and drives the turn state
// machine: audio demux, text accumulation, voice-command recognition, tool
// dispatch, and turn flushing.
func (l *Loop) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-l.sess.Events():
			if !ok {
				if err := l.sess.Err(); err != nil {
					return fmt.Errorf("transport closed: %w", err)
				}
				return fmt.Errorf("transport closed")
			}
			l.touchActivity()
			if err := l.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) handleEvent(ctx context.Context, ev transport.Event) error {
	switch ev.Type {
	case transport.EventAudio:
		return l.handleAudio(ctx, ev.Audio)
	case transport.EventText:
		l.state.AppendAssistantText(ev.Text)
		l.notifier.AssistantText(ev.Text)
	case transport.EventInputTranscription:
		return l.handleInputTranscription(ctx, ev.Text)
	case transport.EventToolCall:
		l.handleToolCalls(ctx, ev.ToolCalls)
	case transport.EventToolCancellation:
		// The model withdrew these calls; acknowledge by not responding.
		l.log.Info("tool calls cancelled by model", "ids", ev.CancelledIDs)
	case transport.EventInterrupted:
		// Model-side barge-in detection: stop playing immediately.
		l.purgeInbound()
		if l.state.ClearSpeaking() {
			l.notifier.SpeakingChanged(false)
		}
		l.log.Debug("model reported interruption")
	case transport.EventTurnComplete:
		l.completeTurn(ctx)
	}
	return nil
}

// handleAudio enqueues an assistant audio chunk for playback, unless a stop
// request is pending, in which case the chunk and all queued audio are
// discarded.
func (l *Loop) handleAudio(ctx context.Context, pcm []byte) error {
	l.metrics.AudioChunksReceived.Add(ctx, 1)

	if l.state.ConsumeStop() {
		l.purgeInbound()
		l.notifier.SpeakingChanged(false)
		l.log.Debug("discarding assistant audio after stop request")
		return nil
	}

	if l.state.MarkSpeaking() {
		l.notifier.SpeakingChanged(true)
	}

	select {
	case l.inQ <- audio.Frame{
		Data:       pcm,
		Channel:    audio.ChannelInbound,
		SampleRate: l.cfg.OutputSampleRate,
		Timestamp:  time.Since(l.started),
	}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// handleInputTranscription applies the voice-command rules to a user
// transcription fragment.
//
// Shutdown phrases are honoured at any time. Stop phrases are honoured only
// while the assistant is speaking AND the microphone is live. While the
// assistant is speaking, any other user speech is discarded entirely rather
// than queued for a later turn.
func (l *Loop) handleInputTranscription(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	if l.phrases.IsShutdown(text) {
		l.log.Info("shutdown command recognised", "text", text)
		return ErrShutdownRequested
	}

	if l.state.Speaking() {
		if !l.mute.Muted() && l.phrases.IsStop(text) {
			l.state.RequestStop()
			l.purgeInbound()
			l.notifier.SpeakingChanged(false)
			l.metrics.RecordInterrupt(ctx, "voice")
			l.log.Info("stop command recognised", "text", text)
			return nil
		}
		// Non-stop speech during playback is dropped, not buffered.
		l.log.Debug("discarding user speech while assistant is speaking", "text", text)
		return nil
	}

	l.state.SetUserTranscript(text)
	return nil
}

// handleToolCalls dispatches each call off the event loop and sends exactly
// one response per call id. Dispatch is total, so a tool failure becomes an
// error result rather than a session failure.
func (l *Loop) handleToolCalls(ctx context.Context, calls []transport.FunctionCall) {
	for _, call := range calls {
		call := call
		go func() {
			start := time.Now()
			res := l.dispatcher.Execute(ctx, call.Name, call.Args)
			l.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
			l.metrics.RecordToolCall(ctx, call.Name, res.Status)
			if res.Status != tools.StatusSuccess {
				l.log.Warn("tool returned error", "tool", call.Name, "message", res.Message)
			}

			resp := []transport.ToolResponse{{
				ID:       call.ID,
				Name:     call.Name,
				Response: res.Map(),
			}}
			if err := l.sess.SendToolResponse(resp); err != nil {
				l.log.Error("failed to send tool response", "tool", call.Name, "id", call.ID, "err", err)
				return
			}
			l.touchActivity()
		}()
	}
}

// completeTurn flushes the turn accumulators, resets the speaking/stop
// flags, and drains leftover inbound audio so nothing stale bleeds into the
// next turn.
func (l *Loop) completeTurn(ctx context.Context) {
	l.flushTurn()
	l.purgeInbound()
	l.notifier.SpeakingChanged(false)
	l.metrics.Turns.Add(ctx, 1)
}
