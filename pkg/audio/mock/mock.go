// Package mock provides test doubles for the audio package interfaces.
//
// Use Device to verify that streams are opened with the expected
// StreamConfig. Use InputStream to script captured frames and OutputStream
// to inspect what was played.
//
// Example:
//
//	in := &mock.InputStream{Frames: []audio.Frame{{Data: pcm}}}
//	dev := &mock.Device{Input: in}
//	stream, _ := dev.OpenInput(cfg)
package mock

import (
	"errors"
	"sync"

	"github.com/formvoice/formvoice/pkg/audio"
)

// ErrNoMoreFrames is returned by InputStream.ReadFrame once all scripted
// frames have been consumed and BlockWhenEmpty is false.
var ErrNoMoreFrames = errors.New("mock: no more frames")

// OpenCall records a single invocation of Device.OpenInput or
// Device.OpenOutput.
type OpenCall struct {
	// Cfg is the StreamConfig passed to the open call.
	Cfg audio.StreamConfig
}

// Device is a mock implementation of audio.Device.
type Device struct {
	mu sync.Mutex

	// Input is the InputStream returned by OpenInput. If nil, OpenInput
	// returns a new empty InputStream.
	Input audio.InputStream

	// Output is the OutputStream returned by OpenOutput. If nil, OpenOutput
	// returns a new OutputStream.
	Output audio.OutputStream

	// OpenInputErr, if non-nil, is returned as the error from OpenInput.
	OpenInputErr error

	// OpenOutputErr, if non-nil, is returned as the error from OpenOutput.
	OpenOutputErr error

	// OpenInputCalls records every call to OpenInput in order.
	OpenInputCalls []OpenCall

	// OpenOutputCalls records every call to OpenOutput in order.
	OpenOutputCalls []OpenCall
}

// OpenInput records the call and returns Input, OpenInputErr.
func (d *Device) OpenInput(cfg audio.StreamConfig) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenInputCalls = append(d.OpenInputCalls, OpenCall{Cfg: cfg})
	if d.OpenInputErr != nil {
		return nil, d.OpenInputErr
	}
	if d.Input != nil {
		return d.Input, nil
	}
	return &InputStream{}, nil
}

// OpenOutput records the call and returns Output, OpenOutputErr.
func (d *Device) OpenOutput(cfg audio.StreamConfig) (audio.OutputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenOutputCalls = append(d.OpenOutputCalls, OpenCall{Cfg: cfg})
	if d.OpenOutputErr != nil {
		return nil, d.OpenOutputErr
	}
	if d.Output != nil {
		return d.Output, nil
	}
	return &OutputStream{}, nil
}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)

// InputStream is a mock implementation of audio.InputStream that replays
// scripted frames.
type InputStream struct {
	mu sync.Mutex

	// Frames are returned by successive ReadFrame calls, in order.
	Frames []audio.Frame

	// ReadErr, if non-nil, is returned once the scripted frames run out.
	// When nil and BlockWhenEmpty is false, ErrNoMoreFrames is returned.
	ReadErr error

	// BlockWhenEmpty makes ReadFrame block forever once the scripted frames
	// run out, mimicking a silent microphone. Close unblocks the reader.
	BlockWhenEmpty bool

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next     int
	closedCh chan struct{}
	closed   bool
}

// ReadFrame returns the next scripted frame, then ReadErr or ErrNoMoreFrames.
func (s *InputStream) ReadFrame() (audio.Frame, error) {
	s.mu.Lock()
	if s.closedCh == nil {
		s.closedCh = make(chan struct{})
	}
	if s.next < len(s.Frames) {
		f := s.Frames[s.next]
		s.next++
		s.mu.Unlock()
		return f, nil
	}
	block := s.BlockWhenEmpty && !s.closed
	err := s.ReadErr
	ch := s.closedCh
	s.mu.Unlock()

	if block {
		<-ch
		return audio.Frame{}, ErrNoMoreFrames
	}
	if err != nil {
		return audio.Frame{}, err
	}
	return audio.Frame{}, ErrNoMoreFrames
}

// Close records the call and unblocks any blocked reader.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		if s.closedCh == nil {
			s.closedCh = make(chan struct{})
		}
		close(s.closedCh)
	}
	return nil
}

// Ensure InputStream implements audio.InputStream at compile time.
var _ audio.InputStream = (*InputStream)(nil)

// WriteCall records a single invocation of OutputStream.Write.
type WriteCall struct {
	// Data is a copy of the bytes passed to Write.
	Data []byte
}

// OutputStream is a mock implementation of audio.OutputStream.
type OutputStream struct {
	mu sync.Mutex

	// WriteErr, if non-nil, is returned by every Write call.
	WriteErr error

	// WriteDelay, if set, is invoked before each Write returns. Use it to
	// keep playback "active" while asserting on the playback guard.
	WriteDelay func()

	// WriteCalls records every call to Write in order.
	WriteCalls []WriteCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Write records the call and returns WriteErr.
func (s *OutputStream) Write(data []byte) error {
	s.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.WriteCalls = append(s.WriteCalls, WriteCall{Data: cp})
	delay := s.WriteDelay
	err := s.WriteErr
	s.mu.Unlock()

	if delay != nil {
		delay()
	}
	return err
}

// Written returns a snapshot of all recorded writes. Thread-safe.
func (s *OutputStream) Written() []WriteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WriteCall, len(s.WriteCalls))
	copy(out, s.WriteCalls)
	return out
}

// Close records the call.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// Ensure OutputStream implements audio.OutputStream at compile time.
var _ audio.OutputStream = (*OutputStream)(nil)
