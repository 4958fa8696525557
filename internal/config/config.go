// Package config provides the configuration schema and loader for the Friday
// voice assistant.
package config

import "time"

// LogLevel controls log verbosity for the assistant.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Friday.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Audio      AudioConfig      `yaml:"audio"`
	Mute       MuteConfig       `yaml:"mute"`
	Session    SessionConfig    `yaml:"session"`
	ChatLog    ChatLogConfig    `yaml:"chatlog"`
	Memory     MemoryConfig     `yaml:"memory"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
}

// ServerConfig holds network and logging settings for the control-plane server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control-plane server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AssistantConfig identifies the model, voice, and persona of the assistant.
type AssistantConfig struct {
	// Name is the assistant's wake name (e.g., "Friday"). It is substituted
	// into the interrupt and shutdown phrases.
	Name string `yaml:"name"`

	// Model selects the Gemini Live model.
	Model string `yaml:"model"`

	// Voice selects the prebuilt voice used for speech synthesis.
	Voice string `yaml:"voice"`

	// Instructions is the system prompt transmitted at session setup.
	Instructions string `yaml:"instructions"`

	// APIKeyEnv names the environment variable holding the Gemini API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// AudioConfig holds the PCM stream parameters for capture and playback.
type AudioConfig struct {
	// InputSampleRate is the microphone capture rate in Hz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the speaker playback rate in Hz.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// FrameSize is the number of samples read from the microphone per frame.
	FrameSize int `yaml:"frame_size"`

	// OutQueueSize bounds the microphone-to-network queue. Keeping this
	// small limits how much stale audio reaches the model after an
	// interruption.
	OutQueueSize int `yaml:"out_queue_size"`

	// InQueueSize bounds the network-to-speaker queue.
	InQueueSize int `yaml:"in_queue_size"`
}

// MuteConfig controls microphone mute behavior and persistence.
type MuteConfig struct {
	// StateFile is where the mute flag is persisted across restarts.
	StateFile string `yaml:"state_file"`

	// Debounce is the minimum interval between accepted mute toggles.
	Debounce time.Duration `yaml:"debounce"`
}

// SessionConfig holds timing parameters of the session supervisor.
type SessionConfig struct {
	// MonitorInterval is how often connection activity is checked.
	MonitorInterval time.Duration `yaml:"monitor_interval"`

	// InactivityThreshold is how long the connection may stay silent before
	// a keep-alive frame is sent.
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`

	// MemorySyncInterval is how often conversation memory is synced to disk.
	MemorySyncInterval time.Duration `yaml:"memory_sync_interval"`
}

// ChatLogConfig locates the persistent conversation log.
type ChatLogConfig struct {
	// Path is the append-only conversation log file.
	Path string `yaml:"path"`
}

// MemoryConfig locates the long-term memory store.
type MemoryConfig struct {
	// Path is the memory snapshot file.
	Path string `yaml:"path"`
}

// TranscribeConfig controls the optional local transcription collaborator.
type TranscribeConfig struct {
	// Enabled turns local transcription of buffered microphone audio on.
	Enabled bool `yaml:"enabled"`

	// ModelPath is the filesystem path to a ggml whisper model.
	ModelPath string `yaml:"model_path"`

	// FrameThreshold is the number of buffered frames that triggers a
	// transcription pass.
	FrameThreshold int `yaml:"frame_threshold"`
}

// Default returns a Config populated with the standard defaults. Values from
// a loaded YAML file overlay on top of these.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Assistant: AssistantConfig{
			Name:      "Friday",
			Model:     "gemini-2.0-flash-exp",
			Voice:     "Aoede",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Audio: AudioConfig{
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
			FrameSize:        1024,
			OutQueueSize:     5,
			InQueueSize:      64,
		},
		Mute: MuteConfig{
			StateFile: "mic_state.json",
			Debounce:  200 * time.Millisecond,
		},
		Session: SessionConfig{
			MonitorInterval:     30 * time.Second,
			InactivityThreshold: 180 * time.Second,
			MemorySyncInterval:  300 * time.Second,
		},
		ChatLog: ChatLogConfig{
			Path: "chatlogs.json",
		},
		Memory: MemoryConfig{
			Path: "memory.json",
		},
		Transcribe: TranscribeConfig{
			FrameThreshold: 25,
		},
	}
}
