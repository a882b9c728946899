// Package events implements the cross-goroutine event broadcast used to
// keep web clients in sync with a running voice session.
//
// The Emitter is an explicit, injected service; there is no package-level
// singleton. Emit is fire-and-forget and safe from any goroutine: channel
// subscribers receive with a non-blocking send (slow consumers drop), and
// callback subscribers run on a dedicated dispatch goroutine so a callback
// can never block or crash the emitting loop.
package events

import (
	"log/slog"
	"sync"
)

// Event types published during a session.
const (
	TypeFieldChanged     = "field_changed"
	TypeValidationResult = "validation_result"
	TypeFieldSaved       = "field_saved"
	TypeFieldUpdated     = "field_updated"
	TypeTranscript       = "transcript"
	TypeFormComplete     = "form_complete"
	TypeSessionStarted   = "session_started"
	TypeSessionStopped   = "session_stopped"
)

// Event is one notification about session or form activity.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// Subscription is one observer's handle on the emitter. Close it when the
// observer (e.g. a WebSocket connection) goes away.
type Subscription struct {
	emitter *Emitter
	ch      chan Event
	fn      func(Event)

	closeOnce sync.Once
}

// Events returns the subscription's delivery channel. It is closed when
// the subscription or the emitter is closed. For callback subscriptions
// the channel carries the events consumed by the dispatch goroutine.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unsubscribes. Idempotent and safe from any goroutine.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.emitter.remove(s)
	})
}

// Emitter broadcasts events to all current subscribers.
type Emitter struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	onDrop func(Event)
	closed bool
}

// New creates an Emitter. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{
		log:  log,
		subs: make(map[*Subscription]struct{}),
	}
}

// OnDrop installs a hook invoked whenever an event is dropped for a slow
// subscriber, e.g. to count drops in metrics. The hook runs under the
// emitter lock and must not call back into the emitter.
func (e *Emitter) OnDrop(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDrop = fn
}

// Subscribe registers a channel subscriber. Events are delivered with a
// non-blocking send: when the buffer is full the event is dropped for this
// subscriber and a warning is logged.
func (e *Emitter) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{emitter: e, ch: make(chan Event, buffer)}
	e.add(sub)
	return sub
}

// SubscribeFunc registers a callback subscriber. The callback runs on its
// own dispatch goroutine, never inline with Emit. Panics in fn are
// recovered and logged; the subscription stays alive.
func (e *Emitter) SubscribeFunc(fn func(Event)) *Subscription {
	sub := &Subscription{emitter: e, ch: make(chan Event, 16), fn: fn}
	e.add(sub)
	go e.dispatchLoop(sub)
	return sub
}

// Emit broadcasts the event to every subscriber. Fire-and-forget: it never
// blocks on a slow consumer and never runs callbacks inline. Delivery
// happens under the emitter lock so a concurrent unsubscribe cannot close
// a channel mid-send; the sends are non-blocking, so the lock is held only
// briefly.
func (e *Emitter) Emit(evt Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for s := range e.subs {
		select {
		case s.ch <- evt:
		default:
			e.log.Warn("event dropped: subscriber buffer full", "type", evt.Type)
			if e.onDrop != nil {
				e.onDrop(evt)
			}
		}
	}
}

// Close tears down the emitter: all subscriptions are closed and dispatch
// goroutines exit. Idempotent.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for s := range e.subs {
		s.closeOnce.Do(func() {})
		close(s.ch)
	}
	e.subs = make(map[*Subscription]struct{})
}

func (e *Emitter) add(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(sub.ch)
		return
	}
	e.subs[sub] = struct{}{}
}

func (e *Emitter) remove(sub *Subscription) {
	e.mu.Lock()
	_, present := e.subs[sub]
	delete(e.subs, sub)
	e.mu.Unlock()

	if present {
		close(sub.ch)
	}
}

// dispatchLoop is the owning goroutine of a callback subscription: it
// consumes the subscription channel and invokes the callback, isolating
// panics.
func (e *Emitter) dispatchLoop(sub *Subscription) {
	for evt := range sub.ch {
		e.invoke(sub.fn, evt)
	}
}

func (e *Emitter) invoke(fn func(Event), evt Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event subscriber panicked", "type", evt.Type, "panic", r)
		}
	}()
	fn(evt)
}
