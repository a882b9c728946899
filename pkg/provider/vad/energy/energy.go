// Package energy implements a pure-Go RMS-energy speech classifier.
//
// It is the fallback backend used when the Silero model is unavailable or
// fails mid-session. Energy detection cannot distinguish speech from other
// loud sounds, but it keeps the pipeline functional without cgo or model
// files.
package energy

import "encoding/binary"

// DefaultThreshold is the normalized RMS level above which a frame counts
// as speech when no threshold is configured.
const DefaultThreshold = 0.02

// Classifier classifies frames by normalized RMS energy.
type Classifier struct {
	threshold float64
}

// New creates a Classifier with the given normalized threshold (0..1).
// A non-positive threshold selects DefaultThreshold.
func New(threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Classifier{threshold: threshold}
}

// IsSpeech reports whether the frame's normalized RMS energy exceeds the
// threshold. The frame is little-endian 16-bit mono PCM; an empty frame is
// silence. Never returns an error.
func (c *Classifier) IsSpeech(frame []byte) (bool, error) {
	samples := len(frame) / 2
	if samples == 0 {
		return false, nil
	}

	var sum float64
	for i := 0; i < samples; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		sum += s * s
	}
	meanSquare := sum / float64(samples)
	normalized := meanSquare / (32768.0 * 32768.0)

	return normalized > c.threshold, nil
}

// Close is a no-op; the classifier holds no resources.
func (c *Classifier) Close() error { return nil }
