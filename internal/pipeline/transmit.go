package pipeline

import (
	"context"
	"fmt"
)

// transmitLoop forwards gated frames to the live session. While the
// playback guard is set the assistant is speaking, so captured frames are
// dropped instead of being echoed back to the model.
func (p *Pipeline) transmitLoop(ctx context.Context) error {
	for {
		frame, ok := p.inbound.Pop(ctx)
		if !ok {
			return ctx.Err()
		}

		if p.guard.Active() {
			p.log.Debug("playback active, frame suppressed", "session_id", p.sessionID)
			if p.metrics != nil {
				p.metrics.RecordFrameDropped(ctx, "guard")
			}
			continue
		}

		if err := p.session.SendAudio(frame.Data, frame.MIMEType()); err != nil {
			return fmt.Errorf("pipeline: send audio: %w", err)
		}
		if p.metrics != nil {
			p.metrics.FramesTransmitted.Add(ctx, 1)
		}
	}
}
