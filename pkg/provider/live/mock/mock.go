// Package mock provides test doubles for the live package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/formvoice/formvoice/pkg/provider/live"
)

// Compile-time assertions that the mocks satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.SessionHandle = (*Session)(nil)

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned from Connect when ConnectErr is nil. If nil, a
	// fresh empty Session is created per call.
	Session *Session

	// ConnectErr, when set, is returned from Connect.
	ConnectErr error

	// ConnectCalls records every Connect invocation.
	ConnectCalls []live.SessionConfig
}

// Connect records the call and returns the configured session or error.
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ConnectCalls = append(p.ConnectCalls, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// AudioCall records one SendAudio invocation.
type AudioCall struct {
	Chunk    []byte
	MIMEType string
}

// Session is a scriptable mock implementation of live.SessionHandle.
// Deliver server messages to the pipeline under test with Push, then
// inspect AudioCalls and ToolResponseCalls afterwards.
type Session struct {
	mu sync.Mutex

	messages chan live.ServerMessage

	// SendAudioErr, when set, is returned from SendAudio.
	SendAudioErr error
	// SendToolResponsesErr, when set, is returned from SendToolResponses.
	SendToolResponsesErr error
	// ErrVal is returned from Err.
	ErrVal error

	// AudioCalls records every SendAudio invocation. Chunks are copied.
	AudioCalls []AudioCall
	// ToolResponseCalls records every SendToolResponses batch.
	ToolResponseCalls [][]live.ToolResponse

	closed         bool
	CloseCallCount int
}

// NewSession creates a Session with a buffered message channel.
func NewSession() *Session {
	return &Session{messages: make(chan live.ServerMessage, 64)}
}

// Push delivers a server message to the session's message channel.
func (s *Session) Push(msg live.ServerMessage) {
	s.messages <- msg
}

// SendAudio records the chunk. The data is copied so callers may reuse
// their buffers.
func (s *Session) SendAudio(chunk []byte, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.AudioCalls = append(s.AudioCalls, AudioCall{Chunk: cp, MIMEType: mimeType})
	return s.SendAudioErr
}

// SendToolResponses records the batch.
func (s *Session) SendToolResponses(responses []live.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]live.ToolResponse, len(responses))
	copy(batch, responses)
	s.ToolResponseCalls = append(s.ToolResponseCalls, batch)
	return s.SendToolResponsesErr
}

// Messages returns the scripted message channel.
func (s *Session) Messages() <-chan live.ServerMessage { return s.messages }

// Err returns the configured error value.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close marks the session closed and closes the message channel on the
// first call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.messages)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentAudio returns a snapshot of all recorded audio calls.
func (s *Session) SentAudio() []AudioCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AudioCall, len(s.AudioCalls))
	copy(out, s.AudioCalls)
	return out
}

// SentToolResponses returns a snapshot of all recorded tool response batches.
func (s *Session) SentToolResponses() [][]live.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]live.ToolResponse, len(s.ToolResponseCalls))
	copy(out, s.ToolResponseCalls)
	return out
}
