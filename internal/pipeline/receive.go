package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/formvoice/formvoice/internal/events"
	"github.com/formvoice/formvoice/pkg/audio"
	"github.com/formvoice/formvoice/pkg/provider/live"
)

// receiveLoop consumes the live session's message stream. Tool-call
// batches go through the router and their responses return to the session
// in order; model audio is queued for playback; an interruption clears the
// guard and flushes any unplayed audio so the user can barge in.
func (p *Pipeline) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-p.session.Messages():
			if !ok {
				return ErrSessionClosed
			}
			if err := p.handleMessage(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) handleMessage(ctx context.Context, msg live.ServerMessage) error {
	if len(msg.ToolCalls) > 0 {
		start := time.Now()
		responses := p.router.HandleBatch(msg.ToolCalls)
		if p.metrics != nil {
			p.metrics.ToolCallDuration.Record(ctx, time.Since(start).Seconds())
			for i, call := range msg.ToolCalls {
				status := "ok"
				if _, failed := responses[i].Response["error"]; failed {
					status = "error"
				}
				p.metrics.RecordToolCall(ctx, call.Name, status)
			}
		}
		if err := p.session.SendToolResponses(responses); err != nil {
			return fmt.Errorf("pipeline: send tool responses: %w", err)
		}
	}

	if msg.Interrupted {
		p.guard.Clear()
		if n := p.outbound.DrainNow(); n > 0 {
			p.log.Debug("barge-in: unplayed audio flushed",
				"frames", n, "session_id", p.sessionID)
		}
	}

	if msg.ToolCallCancellation {
		p.log.Debug("tool call cancelled by model", "session_id", p.sessionID)
	}

	if len(msg.Audio) > 0 {
		f := audio.Frame{
			Data:       msg.Audio,
			SampleRate: p.outCfg.SampleRate,
			Channels:   p.outCfg.Channels,
		}
		if !p.outbound.TryPush(f) {
			p.log.Warn("outbound queue full, audio dropped", "session_id", p.sessionID)
			if p.metrics != nil {
				p.metrics.RecordFrameDropped(ctx, "outbound")
			}
		}
	}

	if msg.InputTranscript != "" {
		p.emitTranscript("user", msg.InputTranscript)
	}
	if msg.OutputTranscript != "" {
		p.emitTranscript("assistant", msg.OutputTranscript)
	}

	return nil
}

func (p *Pipeline) emitTranscript(role, text string) {
	p.emitter.Emit(events.Event{
		Type:      events.TypeTranscript,
		SessionID: p.sessionID,
		Data: map[string]any{
			"role": role,
			"text": text,
		},
	})
}
