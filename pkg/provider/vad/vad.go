// Package vad provides voice activity detection for the audio pipeline.
//
// Detection is split into two layers. A [Classifier] answers the narrow
// per-frame question "does this frame contain speech?" and is implemented by
// backend subpackages (vad/silero wraps the Silero ONNX model, vad/energy is
// a pure-Go RMS threshold). The [Detector] consumes one classified frame at a
// time and runs the start/stop state machine: consecutive-frame thresholds to
// enter and leave speech, a minimum duration that discards false triggers,
// and a maximum duration that forces a cutoff.
//
// VAD is synchronous by design: ProcessFrame returns immediately with the
// updated state, making it suitable for the low-latency capture loop that
// gates transmission to the live session.
//
// A Detector is owned by a single goroutine and is not safe for concurrent
// use. Classifiers must be safe to call from the goroutine owning the
// Detector that wraps them.
package vad

import (
	"fmt"
	"time"
)

// State is the speech state reported for the most recently processed frame.
type State int

const (
	// StateSilence indicates no active speech segment.
	StateSilence State = iota

	// StateSpeaking indicates an active speech segment.
	StateSpeaking

	// StateSpeechEnded indicates a complete speech segment has just ended.
	StateSpeechEnded
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "SILENCE"
	case StateSpeaking:
		return "SPEAKING"
	case StateSpeechEnded:
		return "SPEECH_ENDED"
	default:
		return "UNKNOWN"
	}
}

// Classifier answers the per-frame speech question for a fixed audio format.
type Classifier interface {
	// IsSpeech reports whether the frame contains speech. The frame is raw
	// little-endian 16-bit mono PCM of exactly the configured frame length.
	IsSpeech(frame []byte) (bool, error)

	// Close releases backend resources. Calling Close more than once is safe.
	Close() error
}

// Config holds the parameters for a Detector.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must be 8000, 16000, 32000,
	// or 48000.
	SampleRate int

	// FrameDurationMs is the duration of each frame in milliseconds.
	// Must be 10, 20, or 30.
	FrameDurationMs int

	// Aggressiveness tunes how strictly frames are classified as non-speech,
	// 0 (least aggressive) to 3 (most aggressive). Backends map it onto
	// their native threshold scale.
	Aggressiveness int

	// SpeechStartFrames is the number of consecutive speech-classified frames
	// required to enter StateSpeaking.
	SpeechStartFrames int

	// SpeechEndFrames is the number of consecutive silence-classified frames
	// required to leave StateSpeaking.
	SpeechEndFrames int

	// MinSpeechDuration discards speech segments shorter than this as false
	// triggers: the detector resets to silence without emitting
	// StateSpeechEnded.
	MinSpeechDuration time.Duration

	// MaxSpeechDuration forces StateSpeechEnded once an active segment
	// exceeds this length, regardless of trailing silence.
	MaxSpeechDuration time.Duration

	// EnergyThreshold is the normalized RMS level (0..1) above which the
	// energy fallback classifies a frame as speech.
	EnergyThreshold float64
}

// DefaultConfig returns detection parameters tuned for 16 kHz voice capture.
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		FrameDurationMs:   30,
		Aggressiveness:    2,
		SpeechStartFrames: 3,
		SpeechEndFrames:   10,
		MinSpeechDuration: 300 * time.Millisecond,
		MaxSpeechDuration: 30 * time.Second,
		EnergyThreshold:   0.02,
	}
}

// FrameBytes returns the expected byte length of one frame: 16-bit mono PCM
// at the configured sample rate and duration.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameDurationMs / 1000 * 2
}

// Validate reports the first configuration error found, or nil.
func (c Config) Validate() error {
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("vad: sample rate must be 8000, 16000, 32000, or 48000, got %d", c.SampleRate)
	}
	switch c.FrameDurationMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("vad: frame duration must be 10, 20, or 30 ms, got %d", c.FrameDurationMs)
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		return fmt.Errorf("vad: aggressiveness must be 0-3, got %d", c.Aggressiveness)
	}
	if c.SpeechStartFrames < 1 {
		return fmt.Errorf("vad: speech start frames must be at least 1, got %d", c.SpeechStartFrames)
	}
	if c.SpeechEndFrames < 1 {
		return fmt.Errorf("vad: speech end frames must be at least 1, got %d", c.SpeechEndFrames)
	}
	if c.MinSpeechDuration < 0 {
		return fmt.Errorf("vad: min speech duration must not be negative, got %v", c.MinSpeechDuration)
	}
	if c.MaxSpeechDuration <= c.MinSpeechDuration {
		return fmt.Errorf("vad: max speech duration %v must exceed min %v", c.MaxSpeechDuration, c.MinSpeechDuration)
	}
	return nil
}
