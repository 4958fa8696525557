// Package audio defines the device contract and frame type shared by the
// Friday voice pipeline. Frames are the atomic unit of audio transport:
// captured from the microphone, queued towards the model session, received
// back from it, and played through the speaker.
//
// Capture and playback run at different sample rates (16 kHz in, 24 kHz out)
// and the two directions must never be conflated; every Frame carries its
// channel tag and rate so a consumer can reject mismatched data.
package audio

import "time"

// Channel tags the logical direction a frame belongs to.
type Channel string

const (
	// ChannelOutbound marks microphone audio travelling towards the model.
	ChannelOutbound Channel = "outbound-to-model"

	// ChannelInbound marks synthesised audio received from the model.
	ChannelInbound Channel = "inbound-from-model"
)

// Frame is a fixed-size chunk of 16-bit little-endian mono PCM samples.
// Ownership transfers from producer to consumer on successful enqueue;
// producers must not reuse Data after handing a Frame off.
type Frame struct {
	// Data holds raw PCM bytes (2 bytes per sample).
	Data []byte

	// Channel is the logical direction of this frame.
	Channel Channel

	// SampleRate in Hz. 16000 for capture, 24000 for playback.
	SampleRate int

	// Timestamp marks when the frame was produced, relative to stream start.
	Timestamp time.Duration
}

// InputDevice is a blocking microphone source. ReadFrame fills and returns
// the next fixed-size frame of captured PCM. Implementations may block in
// device I/O; callers wrap reads so the cooperative pipeline is not starved.
type InputDevice interface {
	// ReadFrame returns the next captured frame. A transient device error is
	// returned as-is; the caller decides whether to retry.
	ReadFrame() ([]byte, error)

	// SampleRate returns the capture rate in Hz.
	SampleRate() int

	// Close releases the device. Safe to call more than once.
	Close() error
}

// OutputDevice is a blocking speaker sink.
type OutputDevice interface {
	// WriteFrame plays a chunk of PCM. Blocks until the device has accepted
	// the data.
	WriteFrame(pcm []byte) error

	// SampleRate returns the playback rate in Hz.
	SampleRate() int

	// Close releases the device. Safe to call more than once.
	Close() error
}
