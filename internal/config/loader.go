package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Fields left unset in the document keep the values from [Default].
// Unknown fields are rejected so typos surface at startup instead of
// silently falling back to defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
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

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: portaudio", cfg.Audio.Backend))
	}
	switch cfg.Audio.InputSampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d is invalid; valid values: 8000, 16000, 32000, 48000", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must be positive", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; the pipeline works in mono", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.InboundQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.inbound_queue_size %d must be positive", cfg.Audio.InboundQueueSize))
	}
	if cfg.Audio.OutboundQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.outbound_queue_size %d must be positive", cfg.Audio.OutboundQueueSize))
	}

	// VAD
	if !cfg.VAD.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("vad.backend %q is invalid; valid values: silero, energy", cfg.VAD.Backend))
	}
	if cfg.VAD.Backend == VADSilero && cfg.VAD.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required when vad.backend is silero"))
	}
	if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, 3]", cfg.VAD.Aggressiveness))
	}
	if cfg.VAD.SpeechStartFrames <= 0 {
		errs = append(errs, fmt.Errorf("vad.speech_start_frames %d must be positive", cfg.VAD.SpeechStartFrames))
	}
	if cfg.VAD.SpeechEndFrames <= 0 {
		errs = append(errs, fmt.Errorf("vad.speech_end_frames %d must be positive", cfg.VAD.SpeechEndFrames))
	}
	if cfg.VAD.MinSpeechDurationMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_duration_ms %d must not be negative", cfg.VAD.MinSpeechDurationMs))
	}
	if cfg.VAD.MaxSpeechDurationMs <= cfg.VAD.MinSpeechDurationMs {
		errs = append(errs, fmt.Errorf("vad.max_speech_duration_ms %d must exceed vad.min_speech_duration_ms %d",
			cfg.VAD.MaxSpeechDurationMs, cfg.VAD.MinSpeechDurationMs))
	}
	if cfg.VAD.Backend == VADEnergy && (cfg.VAD.EnergyThreshold <= 0 || cfg.VAD.EnergyThreshold >= 1) {
		errs = append(errs, fmt.Errorf("vad.energy_threshold %v is out of range (0, 1)", cfg.VAD.EnergyThreshold))
	}
	if cfg.VAD.PreSpeechFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.pre_speech_frames %d must not be negative", cfg.VAD.PreSpeechFrames))
	}
	if cfg.VAD.TrailingSilenceFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.trailing_silence_frames %d must not be negative", cfg.VAD.TrailingSilenceFrames))
	}

	// Live provider
	if !cfg.Live.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("live.provider %q is invalid; valid values: gemini-live, openai-realtime", cfg.Live.Provider))
	}
	if cfg.Live.APIKeyEnv == "" {
		errs = append(errs, errors.New("live.api_key_env is required"))
	}

	// Export
	if cfg.Export.OutputDir == "" {
		errs = append(errs, errors.New("export.output_dir is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	// Advisory warnings for legal but likely unintended values.
	if cfg.VAD.PreSpeechFrames == 0 {
		slog.Warn("vad.pre_speech_frames is 0; speech onsets may be clipped")
	}
	if cfg.Audio.InboundQueueSize < 16 {
		slog.Warn("audio.inbound_queue_size is small; capture frames may be dropped under load",
			"size", cfg.Audio.InboundQueueSize)
	}
	if cfg.Live.Model == "" {
		slog.Warn("live.model is not set; the provider default model will be used", "provider", cfg.Live.Provider)
	}
	return nil
}

// SlogLevel maps the configured level to its slog equivalent.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
