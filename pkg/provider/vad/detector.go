package vad

import (
	"log/slog"
	"time"

	"github.com/formvoice/formvoice/pkg/provider/vad/energy"
)

// Detector is the speech start/stop state machine. It consumes one frame at
// a time via [Detector.ProcessFrame] and tracks the transitions between
// silence, active speech, and end-of-speech.
//
// The primary classifier is supplied at construction. If it fails on any
// frame, the detector permanently switches to the RMS-energy fallback so a
// broken backend degrades detection quality rather than killing the session.
//
// Not safe for concurrent use; each audio stream owns its own Detector.
type Detector struct {
	cfg        Config
	classifier Classifier
	fallback   Classifier

	state           State
	speechRun       int // consecutive speech-classified frames while silent
	silenceRun      int // consecutive silence-classified frames while speaking
	speechStartedAt time.Time

	// now is injectable for tests.
	now func() time.Time
}

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithClock overrides the time source used for speech duration tracking.
// Useful in tests to step time deterministically.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a Detector running the given classifier. Passing a nil
// classifier uses the energy fallback directly.
func NewDetector(cfg Config, classifier Classifier, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:        cfg,
		classifier: classifier,
		fallback:   energy.New(cfg.EnergyThreshold),
		state:      StateSilence,
		now:        time.Now,
	}
	if d.classifier == nil {
		d.classifier = d.fallback
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// State returns the state reported for the most recently processed frame.
func (d *Detector) State() State { return d.state }

// Reset clears all accumulated detection state and returns to silence.
// Use this after a segment was consumed, or when the audio stream restarts,
// so stale counters do not bleed into the next segment.
func (d *Detector) Reset() {
	d.state = StateSilence
	d.speechRun = 0
	d.silenceRun = 0
	d.speechStartedAt = time.Time{}
}

// Close releases the classifier backends.
func (d *Detector) Close() error {
	err := d.classifier.Close()
	if d.fallback != d.classifier {
		if ferr := d.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

// ProcessFrame classifies one frame and advances the state machine,
// returning the resulting state. Frames that do not match the configured
// frame size are padded or truncated rather than rejected; the capture loop
// must never die on a short device read.
func (d *Detector) ProcessFrame(frame []byte) State {
	frame = d.normalize(frame)
	isSpeech := d.classify(frame)

	switch d.state {
	case StateSilence, StateSpeechEnded:
		// A SPEECH_ENDED report is terminal for the segment: treat the next
		// frame as a fresh silence state.
		if d.state == StateSpeechEnded {
			d.Reset()
		}
		if isSpeech {
			d.speechRun++
		} else {
			d.speechRun = 0
		}
		if d.speechRun >= d.cfg.SpeechStartFrames {
			d.state = StateSpeaking
			d.speechStartedAt = d.now()
			d.silenceRun = 0
			slog.Debug("speech started")
		}

	case StateSpeaking:
		if isSpeech {
			d.silenceRun = 0
		} else {
			d.silenceRun++
		}

		elapsed := d.now().Sub(d.speechStartedAt)

		switch {
		case elapsed > d.cfg.MaxSpeechDuration:
			slog.Debug("maximum speech duration reached", "elapsed", elapsed)
			d.state = StateSpeechEnded

		case d.silenceRun >= d.cfg.SpeechEndFrames:
			if elapsed >= d.cfg.MinSpeechDuration {
				slog.Debug("speech ended", "elapsed", elapsed)
				d.state = StateSpeechEnded
			} else {
				// False trigger: too short to be a phrase.
				slog.Debug("ignoring short speech burst", "elapsed", elapsed)
				d.Reset()
			}
		}
	}

	return d.state
}

// classify runs the active classifier, switching permanently to the energy
// fallback on the first backend failure.
func (d *Detector) classify(frame []byte) bool {
	isSpeech, err := d.classifier.IsSpeech(frame)
	if err == nil {
		return isSpeech
	}
	if d.classifier != d.fallback {
		slog.Error("vad classifier failed; switching to energy fallback", "err", err)
		_ = d.classifier.Close()
		d.classifier = d.fallback
		if isSpeech, err = d.classifier.IsSpeech(frame); err == nil {
			return isSpeech
		}
	}
	// No working detection method left; assume speech so audio still flows.
	return true
}

// normalize pads or truncates a frame to the exact expected byte length.
func (d *Detector) normalize(frame []byte) []byte {
	want := d.cfg.FrameBytes()
	switch {
	case len(frame) == want:
		return frame
	case len(frame) < want:
		padded := make([]byte, want)
		copy(padded, frame)
		return padded
	default:
		return frame[:want]
	}
}
