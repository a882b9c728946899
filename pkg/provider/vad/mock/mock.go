// Package mock provides test doubles for the vad package interfaces.
//
// Use Classifier to script per-frame speech answers and inspect the frames
// that were submitted for classification.
//
// Example:
//
//	cls := &mock.Classifier{Results: []bool{true, true, true, false}}
//	det, _ := vad.NewDetector(cfg, cls)
package mock

import (
	"sync"

	"github.com/formvoice/formvoice/pkg/provider/vad"
)

// IsSpeechCall records a single invocation of Classifier.IsSpeech.
type IsSpeechCall struct {
	// Frame is a copy of the bytes passed to IsSpeech.
	Frame []byte
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Results are returned by successive IsSpeech calls, in order. Once
	// exhausted, Default is returned.
	Results []bool

	// Default is returned after Results runs out.
	Default bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// ErrAfter, when > 0, makes IsSpeech return Err only from the Nth call
	// onward (1-based). Use it to exercise mid-stream fallback switching.
	ErrAfter int

	// IsSpeechCalls records every call to IsSpeech in order.
	IsSpeechCalls []IsSpeechCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// IsSpeech records the call and returns the next scripted result.
func (c *Classifier) IsSpeech(frame []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.IsSpeechCalls = append(c.IsSpeechCalls, IsSpeechCall{Frame: cp})
	call := len(c.IsSpeechCalls)

	if c.Err != nil && (c.ErrAfter == 0 || call >= c.ErrAfter) {
		return false, c.Err
	}

	if c.next < len(c.Results) {
		r := c.Results[c.next]
		c.next++
		return r, nil
	}
	return c.Default, nil
}

// Close records the call.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return nil
}

// ResetCalls clears all recorded call history and replays Results from the
// beginning. Thread-safe.
func (c *Classifier) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IsSpeechCalls = nil
	c.CloseCallCount = 0
	c.next = 0
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
