package audio

import (
	"fmt"
	"time"
)

// Frame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the input
// device, classified by VAD, transmitted to the live session, and played
// through the output device. A Frame is immutable once captured.
type Frame struct {
	// Data is raw little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for capture, 24000 for model output).
	SampleRate int

	// Channels: 1 for mono capture, matching the live session input format.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// MIMEType returns the mime tag the live session expects for this frame's
// format, e.g. "audio/pcm;rate=16000".
func (f Frame) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate)
}

// Duration returns the play time of the frame given its sample rate and
// channel count. Returns zero for a malformed frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// StreamConfig describes the fixed audio format of one device stream.
// It is supplied at session start and immutable for the session's lifetime.
type StreamConfig struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count (1 for mono).
	Channels int

	// FrameSize is the number of samples per frame read or written in one
	// device operation.
	FrameSize int
}

// FrameBytes returns the byte length of one frame: 16-bit PCM.
func (c StreamConfig) FrameBytes() int {
	return c.FrameSize * c.Channels * 2
}

// Validate reports a configuration error, or nil if the config is usable.
func (c StreamConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audio: channel count must be positive, got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("audio: frame size must be positive, got %d", c.FrameSize)
	}
	return nil
}
