package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/formvoice/formvoice/internal/api"
	"github.com/formvoice/formvoice/internal/config"
	"github.com/formvoice/formvoice/internal/events"
	"github.com/formvoice/formvoice/internal/form"
	"github.com/formvoice/formvoice/internal/observe"
	"github.com/formvoice/formvoice/internal/pipeline"
	"github.com/formvoice/formvoice/pkg/audio"
	"github.com/formvoice/formvoice/pkg/provider/live"
	"github.com/formvoice/formvoice/pkg/provider/vad"
)

// connectTimeout bounds the live provider handshake during Start.
const connectTimeout = 30 * time.Second

// RunnerConfig holds all dependencies for a [VoiceRunner].
type RunnerConfig struct {
	Config *config.Config

	// Device is shared across sessions; streams are opened per session.
	Device audio.Device

	// Live establishes one session per Start call.
	Live live.Provider

	// NewClassifier builds a fresh voice-activity classifier for each
	// session from the current VAD settings. Stateful backends must not be
	// shared between sessions.
	NewClassifier func(config.VADConfig) (vad.Classifier, error)

	Emitter   *events.Emitter
	Metrics   *observe.Metrics
	Generator form.ArtifactGenerator
	Store     form.ArtifactStore
	Log       *slog.Logger
}

// VoiceRunner manages the lifecycle of voice sessions. Only one session can
// be active at a time (enforced by mutex). All exported methods are safe for
// concurrent use.
type VoiceRunner struct {
	mu  sync.Mutex
	cur *activeSession

	cfg           *config.Config
	device        audio.Device
	liveProv      live.Provider
	newClassifier func(config.VADConfig) (vad.Classifier, error)
	emitter       *events.Emitter
	metrics       *observe.Metrics
	generator     form.ArtifactGenerator
	store         form.ArtifactStore
	log           *slog.Logger
}

// activeSession bundles the per-session moving parts. Its mutex serialises
// the two writers of the form state: tool batches arriving from the voice
// pipeline and manual corrections arriving from the HTTP layer.
type activeSession struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  *form.State
	router *form.Router
}

// HandleBatch implements [pipeline.ToolRouter].
func (s *activeSession) HandleBatch(calls []live.ToolCall) []live.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.HandleBatch(calls)
}

func (s *activeSession) correct(fieldID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.Correct(fieldID, value)
}

func (s *activeSession) snapshot() form.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.TakeSnapshot()
}

// NewVoiceRunner creates a VoiceRunner with the given dependencies.
func NewVoiceRunner(cfg RunnerConfig) *VoiceRunner {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &VoiceRunner{
		cfg:           cfg.Config,
		device:        cfg.Device,
		liveProv:      cfg.Live,
		newClassifier: cfg.NewClassifier,
		emitter:       cfg.Emitter,
		metrics:       cfg.Metrics,
		generator:     cfg.Generator,
		store:         cfg.Store,
		log:           log,
	}
}

// Start begins a new voice session under the given ID. It builds a fresh
// form state, connects to the live provider, and starts the audio pipeline
// in a background goroutine.
//
// Returns [api.ErrSessionActive] if a session is already running.
func (r *VoiceRunner) Start(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil {
		return api.ErrSessionActive
	}

	classifier, err := r.newClassifier(r.cfg.VAD)
	if err != nil {
		return fmt.Errorf("runner: create classifier: %w", err)
	}

	vadCfg := r.cfg.VAD
	audioCfg := r.cfg.Audio
	detector, err := vad.NewDetector(vad.Config{
		SampleRate:        audioCfg.InputSampleRate,
		FrameDurationMs:   audioCfg.FrameSize * 1000 / audioCfg.InputSampleRate,
		Aggressiveness:    vadCfg.Aggressiveness,
		SpeechStartFrames: vadCfg.SpeechStartFrames,
		SpeechEndFrames:   vadCfg.SpeechEndFrames,
		MinSpeechDuration: vadCfg.MinSpeechDuration(),
		MaxSpeechDuration: vadCfg.MaxSpeechDuration(),
		EnergyThreshold:   vadCfg.EnergyThreshold,
	}, classifier)
	if err != nil {
		_ = classifier.Close()
		return fmt.Errorf("runner: create detector: %w", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, connectTimeout)
	defer cancelConnect()
	session, err := r.liveProv.Connect(connectCtx, live.SessionConfig{
		Model:        r.cfg.Live.Model,
		Voice:        r.cfg.Live.Voice,
		Instructions: form.SystemInstructions(),
		Tools:        form.ToolDefinitions(),
	})
	if err != nil {
		_ = detector.Close()
		return fmt.Errorf("runner: connect live session: %w", err)
	}

	state := form.NewState(form.Catalog())
	sess := &activeSession{
		id:    sessionID,
		done:  make(chan struct{}),
		state: state,
	}
	sess.router = form.NewRouter(state, r.emitter, r.generator, sessionID,
		form.WithArtifactStore(r.store),
		form.WithLogger(r.log),
	)

	pipe := pipeline.New(
		pipeline.Config{
			PreSpeechFrames:       vadCfg.PreSpeechFrames,
			TrailingSilenceFrames: vadCfg.TrailingSilenceFrames,
			InboundQueueSize:      audioCfg.InboundQueueSize,
			OutboundQueueSize:     audioCfg.OutboundQueueSize,
		},
		audio.StreamConfig{
			SampleRate: audioCfg.InputSampleRate,
			Channels:   audioCfg.Channels,
			FrameSize:  audioCfg.FrameSize,
		},
		audio.StreamConfig{
			SampleRate: audioCfg.OutputSampleRate,
			Channels:   audioCfg.Channels,
			FrameSize:  audioCfg.FrameSize,
		},
		r.device,
		detector,
		session,
		sess,
		r.emitter,
		r.metrics,
		r.log,
		sessionID,
	)

	// Session lifetime is detached from the Start request.
	sessionCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	r.cur = sess

	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(sessionCtx, 1)
	}
	r.emitter.Emit(events.Event{
		Type:      events.TypeSessionStarted,
		SessionID: sessionID,
	})
	r.log.Info("voice session started", "session_id", sessionID)

	go r.runSession(sessionCtx, sess, pipe, session, detector)

	return nil
}

// runSession drives the pipeline to completion and tears the session down,
// whether it ended via Stop, a transport failure, or a clean provider close.
func (r *VoiceRunner) runSession(ctx context.Context, sess *activeSession, pipe *pipeline.Pipeline, session live.SessionHandle, detector *vad.Detector) {
	ctx, span := observe.StartSpan(ctx, "voice.session")
	defer span.End()
	observe.Logger(ctx).Debug("session goroutine started", "session_id", sess.id)

	err := pipe.Run(ctx)
	if err != nil {
		r.log.Error("voice session ended with error", "session_id", sess.id, "err", err)
	}

	if cerr := session.Close(); cerr != nil {
		r.log.Warn("live session close error", "session_id", sess.id, "err", cerr)
	}
	if cerr := detector.Close(); cerr != nil {
		r.log.Warn("detector close error", "session_id", sess.id, "err", cerr)
	}

	r.mu.Lock()
	if r.cur == sess {
		r.cur = nil
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	data := map[string]any{}
	if err != nil {
		data["error"] = err.Error()
	}
	r.emitter.Emit(events.Event{
		Type:      events.TypeSessionStopped,
		SessionID: sess.id,
		Data:      data,
	})
	r.log.Info("voice session stopped", "session_id", sess.id)

	close(sess.done)
}

// Stop terminates the active session and blocks until it has wound down.
// Returns [api.ErrNoSession] if none is running.
func (r *VoiceRunner) Stop() error {
	r.mu.Lock()
	sess := r.cur
	r.mu.Unlock()

	if sess == nil {
		return api.ErrNoSession
	}

	sess.cancel()
	<-sess.done
	return nil
}

// SetConfig swaps the configuration used by future sessions. The running
// session, if any, keeps the settings it started with.
func (r *VoiceRunner) SetConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Running reports whether a session is active, and its ID if so.
func (r *VoiceRunner) Running() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return "", false
	}
	return r.cur.id, true
}

// Snapshot returns the form state of the running session.
func (r *VoiceRunner) Snapshot() (form.Snapshot, error) {
	r.mu.Lock()
	sess := r.cur
	r.mu.Unlock()

	if sess == nil {
		return form.Snapshot{}, api.ErrNoSession
	}
	return sess.snapshot(), nil
}

// Correct applies a manual correction of an already-collected field,
// serialised with the session's tool handling.
func (r *VoiceRunner) Correct(fieldID, value string) error {
	r.mu.Lock()
	sess := r.cur
	r.mu.Unlock()

	if sess == nil {
		return api.ErrNoSession
	}
	return sess.correct(fieldID, value)
}
