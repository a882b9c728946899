package pipeline

import (
	"context"
	"fmt"

	"github.com/formvoice/formvoice/pkg/audio"
)

// playbackLoop writes queued model audio to the output device. The guard
// is set before each write and cleared only once the queue is observed
// empty afterwards, so it stays up across a burst of chunks instead of
// flapping between writes.
func (p *Pipeline) playbackLoop(ctx context.Context, out audio.OutputStream) error {
	for {
		frame, ok := p.outbound.Pop(ctx)
		if !ok {
			return ctx.Err()
		}

		p.guard.Set()
		if err := out.Write(frame.Data); err != nil {
			return fmt.Errorf("pipeline: device write: %w", err)
		}
		if p.metrics != nil {
			p.metrics.FramesPlayed.Add(ctx, 1)
		}

		if p.outbound.Len() == 0 {
			p.guard.Clear()
		}
	}
}
