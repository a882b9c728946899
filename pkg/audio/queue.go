package audio

import (
	"context"
	"sync/atomic"
)

// FrameQueue is a bounded queue of audio frames designed for one producer
// and one consumer. Writes never block: when the queue is full the offered
// frame is dropped, favouring fresh audio over completeness. Reads suspend
// the consumer until a frame arrives or its context is cancelled.
type FrameQueue struct {
	ch      chan Frame
	dropped atomic.Int64
}

// NewFrameQueue creates a queue holding at most capacity frames.
// A capacity below 1 is raised to 1.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan Frame, capacity)}
}

// TryPush offers a frame without blocking. It reports whether the frame was
// accepted; on a full queue the frame is dropped and the drop counter
// incremented.
func (q *FrameQueue) TryPush(f Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop blocks until a frame is available or ctx is done. The second return
// value is false when the wait was cancelled.
func (q *FrameQueue) Pop(ctx context.Context) (Frame, bool) {
	select {
	case f := <-q.ch:
		return f, true
	case <-ctx.Done():
		return Frame{}, false
	}
}

// DrainNow discards every frame currently queued and returns the number
// removed. Used for barge-in: when the model is interrupted, buffered
// playback becomes stale immediately.
func (q *FrameQueue) DrainNow() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of frames currently queued.
func (q *FrameQueue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *FrameQueue) Cap() int { return cap(q.ch) }

// Dropped returns the total number of frames dropped due to overflow.
func (q *FrameQueue) Dropped() int64 { return q.dropped.Load() }
