// Package silero implements the vad.Classifier interface on top of the
// Silero VAD ONNX model.
//
// The Silero model operates on 512-sample windows at 16 kHz (256 at 8 kHz),
// which rarely matches the pipeline's frame duration. The classifier
// accumulates incoming frames into model-sized windows and carries the
// in-speech flag between windows, so every frame gets an answer even when it
// only partially fills a window.
package silero

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"
)

// windowSamples returns the model's native window size for a sample rate.
func windowSamples(sampleRate int) int {
	if sampleRate == 8000 {
		return 256
	}
	return 512
}

// Config holds the parameters for a silero Classifier.
type Config struct {
	// ModelPath is the filesystem path to the silero_vad.onnx model.
	ModelPath string

	// SampleRate must be 8000 or 16000; the Silero model supports no others.
	SampleRate int

	// Threshold is the speech probability above which a window counts as
	// speech. Typical: 0.5.
	Threshold float32
}

// ThresholdForAggressiveness maps the pipeline's 0-3 aggressiveness scale
// onto the Silero probability threshold.
func ThresholdForAggressiveness(aggressiveness int) float32 {
	switch aggressiveness {
	case 0:
		return 0.3
	case 1:
		return 0.4
	case 3:
		return 0.6
	default:
		return 0.5
	}
}

// Classifier wraps a Silero streaming detector as a per-frame speech
// classifier.
type Classifier struct {
	mu       sync.Mutex
	detector *speech.Detector
	window   []float32
	winSize  int
	speaking bool
	closed   bool
}

// New loads the Silero model and creates a Classifier. Returns an error if
// the model cannot be loaded or the sample rate is unsupported; callers fall
// back to the energy classifier in that case.
func New(cfg Config) (*Classifier, error) {
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("silero: sample rate must be 8000 or 16000, got %d", cfg.SampleRate)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}

	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  cfg.ModelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  cfg.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("silero: load model %q: %w", cfg.ModelPath, err)
	}

	return &Classifier{
		detector: detector,
		winSize:  windowSamples(cfg.SampleRate),
	}, nil
}

// IsSpeech feeds the frame into the model's window buffer and reports
// whether the stream is currently inside a speech segment. The frame is
// little-endian 16-bit mono PCM.
func (c *Classifier) IsSpeech(frame []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, fmt.Errorf("silero: classifier closed")
	}

	for i := 0; i+1 < len(frame); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(frame[i:]))
		c.window = append(c.window, float32(sample)/32768.0)

		if len(c.window) < c.winSize {
			continue
		}

		event, err := c.detector.DetectStreamFrame(c.window)
		c.window = c.window[:0]
		if err != nil {
			// The detector's internal state machine can desync on abrupt
			// segment ends; reset and keep the previous answer.
			c.detector.Reset()
			continue
		}
		if event != nil {
			if event.IsStart {
				c.speaking = true
			}
			if event.IsEnd {
				c.speaking = false
			}
		}
	}

	return c.speaking, nil
}

// Reset clears the window buffer and the model's internal state.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = c.window[:0]
	c.speaking = false
	if !c.closed {
		c.detector.Reset()
	}
}

// Close destroys the underlying ONNX session. Safe to call more than once.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.detector.Destroy()
}
