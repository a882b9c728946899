package pipeline

import (
	"context"
	"fmt"

	"github.com/formvoice/formvoice/pkg/audio"
	"github.com/formvoice/formvoice/pkg/provider/vad"
)

// captureLoop reads frames from the input device and gates them through the
// voice-activity detector. While silent, frames are held in a small
// pre-speech ring so the onset of speech is not clipped; when speech starts
// the ring is flushed ahead of the live frames. After a segment ends, a few
// trailing frames are forwarded so the tail is not clipped either.
//
// Frames are forwarded with TryPush: when the inbound queue is full the
// newest frame is dropped rather than stalling the device read.
func (p *Pipeline) captureLoop(ctx context.Context, in audio.InputStream) error {
	ring := newFrameRing(p.cfg.PreSpeechFrames)
	speaking := false
	trailing := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		frame, err := in.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pipeline: device read: %w", err)
		}
		if p.metrics != nil {
			p.metrics.FramesCaptured.Add(ctx, 1)
		}

		switch p.detector.ProcessFrame(frame.Data) {
		case vad.StateSpeaking:
			if !speaking {
				speaking = true
				trailing = 0
				for _, f := range ring.flush() {
					p.forward(ctx, f)
				}
			}
			p.forward(ctx, frame)

		case vad.StateSpeechEnded:
			speaking = false
			trailing = p.cfg.TrailingSilenceFrames
			p.forward(ctx, frame)

		case vad.StateSilence:
			if speaking {
				// Still inside a segment: a short pause the detector has
				// not yet classified as an ending.
				p.forward(ctx, frame)
				continue
			}
			if trailing > 0 {
				trailing--
				p.forward(ctx, frame)
				continue
			}
			ring.push(frame)
		}
	}
}

// forward pushes one frame onto the inbound queue, dropping on overflow.
func (p *Pipeline) forward(ctx context.Context, f audio.Frame) {
	if p.inbound.TryPush(f) {
		return
	}
	p.log.Warn("inbound queue full, frame dropped", "session_id", p.sessionID)
	if p.metrics != nil {
		p.metrics.RecordFrameDropped(ctx, "inbound")
	}
}

// frameRing is a fixed-capacity ring of the most recent silent frames.
type frameRing struct {
	frames []audio.Frame
	cap    int
}

func newFrameRing(capacity int) *frameRing {
	if capacity < 0 {
		capacity = 0
	}
	return &frameRing{cap: capacity}
}

// push appends a frame, evicting the oldest when full. A zero-capacity
// ring discards everything.
func (r *frameRing) push(f audio.Frame) {
	if r.cap == 0 {
		return
	}
	if len(r.frames) == r.cap {
		copy(r.frames, r.frames[1:])
		r.frames[len(r.frames)-1] = f
		return
	}
	r.frames = append(r.frames, f)
}

// flush returns the buffered frames oldest-first and empties the ring.
func (r *frameRing) flush() []audio.Frame {
	out := r.frames
	r.frames = nil
	return out
}
