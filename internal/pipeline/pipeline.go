// Package pipeline wires the audio device, the voice-activity detector and
// the live model session into one running voice loop.
//
// Four loops cooperate over two bounded frame queues:
//
//	capture:  device → VAD gate → inbound queue
//	transmit: inbound queue → live session
//	receive:  live session → tool router / outbound queue / events
//	playback: outbound queue → device
//
// All loops run under a single errgroup; the first failure (or a context
// cancel) stops every loop and releases the devices exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/formvoice/formvoice/internal/events"
	"github.com/formvoice/formvoice/internal/observe"
	"github.com/formvoice/formvoice/pkg/audio"
	"github.com/formvoice/formvoice/pkg/provider/live"
	"github.com/formvoice/formvoice/pkg/provider/vad"
)

// ErrSessionClosed reports that the live session's message stream ended.
// Run treats it as a normal stop when the session reports no error.
var ErrSessionClosed = errors.New("pipeline: live session closed")

// ToolRouter handles a batch of tool calls and returns one response per
// call, preserving order. Satisfied by form.Router.
type ToolRouter interface {
	HandleBatch(calls []live.ToolCall) []live.ToolResponse
}

// Guard is the playback flag shared between the playback and transmit
// loops. While set, captured audio is not forwarded to the model so the
// assistant does not hear itself.
type Guard struct {
	active atomic.Bool
}

// Set marks playback as active.
func (g *Guard) Set() { g.active.Store(true) }

// Clear marks playback as idle.
func (g *Guard) Clear() { g.active.Store(false) }

// Active reports whether playback is in progress.
func (g *Guard) Active() bool { return g.active.Load() }

// Config tunes the pipeline queues and VAD padding.
type Config struct {
	// PreSpeechFrames is the number of frames buffered while silent and
	// flushed ahead of the first speech frame, so speech onsets are not
	// clipped.
	PreSpeechFrames int

	// TrailingSilenceFrames is the number of frames forwarded after a
	// speech segment ends, so speech tails are not clipped.
	TrailingSilenceFrames int

	// InboundQueueSize bounds the capture→transmit queue.
	InboundQueueSize int

	// OutboundQueueSize bounds the receive→playback queue. Model audio
	// arrives in bursts, so this is typically larger than the inbound
	// queue.
	OutboundQueueSize int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		PreSpeechFrames:       3,
		TrailingSilenceFrames: 5,
		InboundQueueSize:      64,
		OutboundQueueSize:     256,
	}
}

// Pipeline runs one voice session over an already-connected live session.
type Pipeline struct {
	cfg       Config
	inCfg     audio.StreamConfig
	outCfg    audio.StreamConfig
	device    audio.Device
	detector  *vad.Detector
	session   live.SessionHandle
	router    ToolRouter
	emitter   *events.Emitter
	metrics   *observe.Metrics
	log       *slog.Logger
	sessionID string

	inbound  *audio.FrameQueue
	outbound *audio.FrameQueue
	guard    Guard
}

// New assembles a Pipeline. The session must already be connected; the
// caller keeps ownership of it and closes it after Run returns.
func New(
	cfg Config,
	inCfg, outCfg audio.StreamConfig,
	device audio.Device,
	detector *vad.Detector,
	session live.SessionHandle,
	router ToolRouter,
	emitter *events.Emitter,
	metrics *observe.Metrics,
	log *slog.Logger,
	sessionID string,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		inCfg:     inCfg,
		outCfg:    outCfg,
		device:    device,
		detector:  detector,
		session:   session,
		router:    router,
		emitter:   emitter,
		metrics:   metrics,
		log:       log,
		sessionID: sessionID,
		inbound:   audio.NewFrameQueue(cfg.InboundQueueSize),
		outbound:  audio.NewFrameQueue(cfg.OutboundQueueSize),
	}
}

// Run opens the audio devices and drives the four loops until the context
// is cancelled, the session ends, or a loop fails. Devices are released
// exactly once on the way out; a session that ended cleanly yields nil.
func (p *Pipeline) Run(ctx context.Context) error {
	in, err := p.device.OpenInput(p.inCfg)
	if err != nil {
		return fmt.Errorf("pipeline: open input: %w", err)
	}
	out, err := p.device.OpenOutput(p.outCfg)
	if err != nil {
		cerr := in.Close()
		return errors.Join(fmt.Errorf("pipeline: open output: %w", err), cerr)
	}

	var (
		inOnce, outOnce     sync.Once
		inCloseE, outCloseE error
	)
	closeIn := func() { inOnce.Do(func() { inCloseE = in.Close() }) }
	closeOut := func() { outOnce.Do(func() { outCloseE = out.Close() }) }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.captureLoop(gctx, in) })
	g.Go(func() error { return p.transmitLoop(gctx) })
	g.Go(func() error { return p.receiveLoop(gctx) })
	g.Go(func() error { return p.playbackLoop(gctx, out) })

	// Device reads block; closing the input stream is the only way to
	// unhook the capture loop once the group winds down.
	g.Go(func() error {
		<-gctx.Done()
		closeIn()
		return nil
	})

	runErr := g.Wait()

	// Release devices exactly once; the loops never close them.
	closeIn()
	closeOut()
	closeErr := errors.Join(inCloseE, outCloseE)

	// Drain whatever the provider still has buffered so its receive
	// goroutine can exit.
	go audio.Drain(p.session.Messages())

	switch {
	case errors.Is(runErr, ErrSessionClosed):
		runErr = p.session.Err()
	case errors.Is(runErr, context.Canceled):
		runErr = nil
	}
	return errors.Join(runErr, closeErr)
}
