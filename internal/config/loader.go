package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r onto the defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty file means all defaults.
			err = nil
		} else {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Assistant.Name == "" {
		errs = append(errs, errors.New("assistant.name is required"))
	}
	if cfg.Assistant.Model == "" {
		errs = append(errs, errors.New("assistant.model is required"))
	}
	if cfg.Assistant.APIKeyEnv == "" {
		errs = append(errs, errors.New("assistant.api_key_env is required"))
	}

	if cfg.Audio.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d must be positive", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must be positive", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.OutQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.out_queue_size %d must be positive", cfg.Audio.OutQueueSize))
	}
	if cfg.Audio.InQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.in_queue_size %d must be positive", cfg.Audio.InQueueSize))
	}

	if cfg.Mute.StateFile == "" {
		errs = append(errs, errors.New("mute.state_file is required"))
	}
	if cfg.Mute.Debounce < 0 {
		errs = append(errs, fmt.Errorf("mute.debounce %s must not be negative", cfg.Mute.Debounce))
	}

	if cfg.Session.MonitorInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.monitor_interval %s must be positive", cfg.Session.MonitorInterval))
	}
	if cfg.Session.InactivityThreshold <= 0 {
		errs = append(errs, fmt.Errorf("session.inactivity_threshold %s must be positive", cfg.Session.InactivityThreshold))
	}
	if cfg.Session.MemorySyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.memory_sync_interval %s must be positive", cfg.Session.MemorySyncInterval))
	}

	if cfg.ChatLog.Path == "" {
		errs = append(errs, errors.New("chatlog.path is required"))
	}
	if cfg.Memory.Path == "" {
		errs = append(errs, errors.New("memory.path is required"))
	}

	if cfg.Transcribe.Enabled {
		if cfg.Transcribe.ModelPath == "" {
			errs = append(errs, errors.New("transcribe.model_path is required when transcribe.enabled is true"))
		}
		if cfg.Transcribe.FrameThreshold <= 0 {
			errs = append(errs, fmt.Errorf("transcribe.frame_threshold %d must be positive", cfg.Transcribe.FrameThreshold))
		}
	}

	return errors.Join(errs...)
}
