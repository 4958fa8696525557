// Package portaudio implements the audio device contract on top of the
// PortAudio library. One Init/Terminate pair brackets all device use; the
// capture and playback streams are opened against the default devices.
package portaudio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/syedmehfooz47/Friday2/pkg/audio"
)

// Compile-time assertions that the streams satisfy the device contracts.
var (
	_ audio.InputDevice  = (*InputStream)(nil)
	_ audio.OutputDevice = (*OutputStream)(nil)
)

var (
	initMu   sync.Mutex
	initRefs int
)

// initialize bumps the PortAudio refcount, initialising the library on the
// first call. Terminate is deferred until the last stream closes.
func initialize() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	initRefs++
	return nil
}

func terminate() {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		return
	}
	initRefs--
	if initRefs == 0 {
		_ = portaudio.Terminate()
	}
}

// InputStream captures fixed-size frames from the default input device.
type InputStream struct {
	stream     *portaudio.Stream
	buf        []int16
	frameBytes []byte
	sampleRate int

	mu     sync.Mutex
	closed bool
}

// OpenInput opens the default capture device at sampleRate Hz, mono, with
// frameSize samples per read.
func OpenInput(sampleRate, frameSize int) (*InputStream, error) {
	if err := initialize(); err != nil {
		return nil, err
	}

	buf := make([]int16, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, buf)
	if err != nil {
		terminate()
		return nil, fmt.Errorf("portaudio: open input: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		terminate()
		return nil, fmt.Errorf("portaudio: start input: %w", err)
	}

	return &InputStream{
		stream:     stream,
		buf:        buf,
		frameBytes: make([]byte, frameSize*2),
		sampleRate: sampleRate,
	}, nil
}

// ReadFrame blocks until a full frame has been captured and returns a copy
// of its bytes as little-endian 16-bit PCM.
func (s *InputStream) ReadFrame() ([]byte, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	for i, sample := range s.buf {
		s.frameBytes[2*i] = byte(sample)
		s.frameBytes[2*i+1] = byte(sample >> 8)
	}
	out := make([]byte, len(s.frameBytes))
	copy(out, s.frameBytes)
	return out, nil
}

// SampleRate returns the capture rate in Hz.
func (s *InputStream) SampleRate() int { return s.sampleRate }

// Close stops and releases the stream. Idempotent.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	terminate()
	return err
}

// OutputStream plays PCM chunks through the default output device.
type OutputStream struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int

	mu     sync.Mutex
	closed bool
}

// OpenOutput opens the default playback device at sampleRate Hz, mono, with
// frameSize samples per write.
func OpenOutput(sampleRate, frameSize int) (*OutputStream, error) {
	if err := initialize(); err != nil {
		return nil, err
	}

	buf := make([]int16, frameSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), frameSize, buf)
	if err != nil {
		terminate()
		return nil, fmt.Errorf("portaudio: open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		terminate()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}

	return &OutputStream{
		stream:     stream,
		buf:        buf,
		sampleRate: sampleRate,
	}, nil
}

// WriteFrame plays pcm, splitting it into device-sized writes. Chunks that do
// not fill the device buffer are zero-padded; the model sends contiguous
// audio so padding only occurs on the trailing chunk of a response.
func (s *OutputStream) WriteFrame(pcm []byte) error {
	for off := 0; off < len(pcm); off += len(s.buf) * 2 {
		end := off + len(s.buf)*2
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := pcm[off:end]
		for i := range s.buf {
			if 2*i+1 < len(chunk) {
				s.buf[i] = int16(chunk[2*i]) | int16(chunk[2*i+1])<<8
			} else {
				s.buf[i] = 0
			}
		}
		if err := s.stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

// SampleRate returns the playback rate in Hz.
func (s *OutputStream) SampleRate() int { return s.sampleRate }

// Close stops and releases the stream. Idempotent.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	terminate()
	return err
}
