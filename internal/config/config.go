// Package config provides the configuration schema, loader, file watcher,
// and provider registry for the Formvoice server.
package config

import "time"

// LogLevel controls log verbosity for the Formvoice server.
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

// VADBackend selects the voice-activity classifier implementation.
type VADBackend string

const (
	// VADSilero runs the Silero ONNX model.
	VADSilero VADBackend = "silero"

	// VADEnergy uses the pure-Go RMS threshold classifier.
	VADEnergy VADBackend = "energy"
)

// IsValid reports whether v is a recognised VAD backend.
func (v VADBackend) IsValid() bool {
	return v == VADSilero || v == VADEnergy
}

// LiveProvider selects the live speech model backend.
type LiveProvider string

const (
	LiveGemini LiveProvider = "gemini-live"
	LiveOpenAI LiveProvider = "openai-realtime"
)

// IsValid reports whether p is a recognised live provider.
func (p LiveProvider) IsValid() bool {
	return p == LiveGemini || p == LiveOpenAI
}

// AudioBackend selects the audio device implementation.
type AudioBackend string

const (
	// AudioPortAudio uses the host microphone and speakers via PortAudio.
	AudioPortAudio AudioBackend = "portaudio"
)

// IsValid reports whether a is a recognised audio backend.
func (a AudioBackend) IsValid() bool {
	return a == AudioPortAudio
}

// Config is the root configuration structure for Formvoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
	VAD    VADConfig    `yaml:"vad"`
	Live   LiveConfig   `yaml:"live"`
	Export ExportConfig `yaml:"export"`
}

// ServerConfig holds network and logging settings for the Formvoice server.
type ServerConfig struct {
	// ListenAddr is the TCP address the API server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds device and queue settings for the voice pipeline.
type AudioConfig struct {
	// Backend selects the audio device implementation.
	Backend AudioBackend `yaml:"backend"`

	// InputSampleRate is the microphone capture rate in Hz. It must be a
	// rate the VAD backend supports.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the playback rate in Hz. Live providers emit
	// 24 kHz PCM.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// Channels is the channel count. The pipeline works in mono.
	Channels int `yaml:"channels"`

	// FrameSize is the number of samples per captured frame.
	FrameSize int `yaml:"frame_size"`

	// InboundQueueSize bounds the capture→transmit frame queue.
	InboundQueueSize int `yaml:"inbound_queue_size"`

	// OutboundQueueSize bounds the receive→playback frame queue.
	OutboundQueueSize int `yaml:"outbound_queue_size"`
}

// VADConfig holds voice-activity detection parameters.
type VADConfig struct {
	// Backend selects the classifier implementation.
	Backend VADBackend `yaml:"backend"`

	// ModelPath is the Silero ONNX model file. Required for the silero
	// backend.
	ModelPath string `yaml:"model_path"`

	// Aggressiveness tunes classification strictness, 0 (lenient) to 3
	// (strict).
	Aggressiveness int `yaml:"aggressiveness"`

	// SpeechStartFrames is the number of consecutive speech frames needed
	// to open the gate.
	SpeechStartFrames int `yaml:"speech_start_frames"`

	// SpeechEndFrames is the number of consecutive silence frames needed
	// to close the gate.
	SpeechEndFrames int `yaml:"speech_end_frames"`

	// MinSpeechDurationMs discards shorter segments as false triggers.
	MinSpeechDurationMs int `yaml:"min_speech_duration_ms"`

	// MaxSpeechDurationMs forces a segment cutoff.
	MaxSpeechDurationMs int `yaml:"max_speech_duration_ms"`

	// EnergyThreshold is the normalized RMS level for the energy backend.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// PreSpeechFrames is the number of frames buffered ahead of a speech
	// onset.
	PreSpeechFrames int `yaml:"pre_speech_frames"`

	// TrailingSilenceFrames is the number of frames forwarded after a
	// segment ends.
	TrailingSilenceFrames int `yaml:"trailing_silence_frames"`
}

// MinSpeechDuration returns the configured minimum as a duration.
func (v VADConfig) MinSpeechDuration() time.Duration {
	return time.Duration(v.MinSpeechDurationMs) * time.Millisecond
}

// MaxSpeechDuration returns the configured maximum as a duration.
func (v VADConfig) MaxSpeechDuration() time.Duration {
	return time.Duration(v.MaxSpeechDurationMs) * time.Millisecond
}

// LiveConfig selects and configures the live speech model session.
type LiveConfig struct {
	// Provider selects the backend.
	Provider LiveProvider `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Voice selects the provider voice used for spoken replies.
	Voice string `yaml:"voice"`

	// APIKeyEnv names the environment variable holding the provider API
	// key. The key itself never lives in the config file.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default endpoint. Used in tests.
	BaseURL string `yaml:"base_url"`
}

// ExportConfig controls where generated form documents are written.
type ExportConfig struct {
	// OutputDir is the directory for generated artifacts.
	OutputDir string `yaml:"output_dir"`

	// TemplateRef is the path to the registration form PDF template. When
	// set, exports fill the template's form fields and write the completed
	// PDF; when empty, an FDF sidecar is written instead.
	TemplateRef string `yaml:"template_ref"`
}

// Default returns the configuration used when a field is left unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			Backend:           AudioPortAudio,
			InputSampleRate:   16000,
			OutputSampleRate:  24000,
			Channels:          1,
			FrameSize:         480,
			InboundQueueSize:  64,
			OutboundQueueSize: 256,
		},
		VAD: VADConfig{
			Backend:               VADEnergy,
			Aggressiveness:        2,
			SpeechStartFrames:     3,
			SpeechEndFrames:       10,
			MinSpeechDurationMs:   300,
			MaxSpeechDurationMs:   30000,
			EnergyThreshold:       0.02,
			PreSpeechFrames:       3,
			TrailingSilenceFrames: 5,
		},
		Live: LiveConfig{
			Provider:  LiveGemini,
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Export: ExportConfig{
			OutputDir: "output",
		},
	}
}
