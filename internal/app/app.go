// Package app wires all Formvoice subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the control API until the context is cancelled,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithDevice, WithLiveProvider, WithClassifierFactory). When an option is
// not provided, New creates real implementations from the config registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/formvoice/formvoice/internal/api"
	"github.com/formvoice/formvoice/internal/config"
	"github.com/formvoice/formvoice/internal/events"
	"github.com/formvoice/formvoice/internal/export"
	"github.com/formvoice/formvoice/internal/form"
	"github.com/formvoice/formvoice/internal/health"
	"github.com/formvoice/formvoice/internal/observe"
	"github.com/formvoice/formvoice/pkg/audio"
	"github.com/formvoice/formvoice/pkg/audio/portaudio"
	"github.com/formvoice/formvoice/pkg/provider/live"
	"github.com/formvoice/formvoice/pkg/provider/live/gemini"
	"github.com/formvoice/formvoice/pkg/provider/live/openai"
	"github.com/formvoice/formvoice/pkg/provider/vad"
	"github.com/formvoice/formvoice/pkg/provider/vad/energy"
	"github.com/formvoice/formvoice/pkg/provider/vad/silero"
)

// App owns all subsystem lifetimes: event emitter, voice runner, and the
// HTTP control surface.
type App struct {
	cfg *config.Config

	emitter *events.Emitter
	metrics *observe.Metrics
	runner  *VoiceRunner
	server  *api.Server

	// Injectable via options; resolved from the registry otherwise.
	device        audio.Device
	liveProv      live.Provider
	newClassifier func(config.VADConfig) (vad.Classifier, error)

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDevice injects an audio device instead of creating one from config.
func WithDevice(d audio.Device) Option {
	return func(a *App) { a.device = d }
}

// WithLiveProvider injects a live provider instead of creating one from config.
func WithLiveProvider(p live.Provider) Option {
	return func(a *App) { a.liveProv = p }
}

// WithClassifierFactory injects a VAD classifier factory instead of creating
// one from config.
func WithClassifierFactory(f func(config.VADConfig) (vad.Classifier, error)) Option {
	return func(a *App) { a.newClassifier = f }
}

// WithMetrics injects a metrics bundle instead of using the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Provider backends
// are resolved by name from the config registry unless injected via Option
// functions.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	a.emitter = events.New(slog.Default())
	a.closers = append(a.closers, func() error {
		a.emitter.Close()
		return nil
	})

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metrics != nil && a.metrics.EventsDropped != nil {
		a.emitter.OnDrop(func(events.Event) {
			a.metrics.EventsDropped.Add(context.Background(), 1)
		})
	}

	reg := config.NewRegistry()
	registerBuiltins(reg, cfg)

	if err := a.initProviders(reg); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// With a template PDF configured the export fills its form fields;
	// without one an FDF sidecar is the best we can produce.
	var gen form.ArtifactGenerator = &export.FDFGenerator{}
	ext := ".fdf"
	if cfg.Export.TemplateRef != "" {
		gen = &export.PDFFormFiller{TemplatePath: cfg.Export.TemplateRef}
		ext = ".pdf"
	}

	a.runner = NewVoiceRunner(RunnerConfig{
		Config:        cfg,
		Device:        a.device,
		Live:          a.liveProv,
		NewClassifier: a.newClassifier,
		Emitter:       a.emitter,
		Metrics:       a.metrics,
		Generator:     gen,
		Store:         artifactStore(cfg.Export.OutputDir, ext),
		Log:           slog.Default(),
	})

	a.server = api.New(a.runner, a.emitter, health.New(a.checkers()...), a.metrics, slog.Default())

	return a, nil
}

// registerBuiltins registers the real provider factories. Backends that
// need settings from outside their own config section close over cfg.
func registerBuiltins(reg *config.Registry, cfg *config.Config) {
	reg.RegisterLive(config.LiveGemini, func(lc config.LiveConfig) (live.Provider, error) {
		key := os.Getenv(lc.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is not set", lc.APIKeyEnv)
		}
		var opts []gemini.Option
		if lc.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(lc.BaseURL))
		}
		return gemini.New(key, opts...), nil
	})
	reg.RegisterLive(config.LiveOpenAI, func(lc config.LiveConfig) (live.Provider, error) {
		key := os.Getenv(lc.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is not set", lc.APIKeyEnv)
		}
		var opts []openai.Option
		if lc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(lc.BaseURL))
		}
		return openai.New(key, opts...), nil
	})

	reg.RegisterVAD(config.VADSilero, func(vc config.VADConfig) (vad.Classifier, error) {
		return silero.New(silero.Config{
			ModelPath:  vc.ModelPath,
			SampleRate: cfg.Audio.InputSampleRate,
			Threshold:  silero.ThresholdForAggressiveness(vc.Aggressiveness),
		})
	})
	reg.RegisterVAD(config.VADEnergy, func(vc config.VADConfig) (vad.Classifier, error) {
		return energy.New(vc.EnergyThreshold), nil
	})

	reg.RegisterAudio(config.AudioPortAudio, func(config.AudioConfig) (audio.Device, error) {
		return portaudio.New(), nil
	})
}

// initProviders resolves the audio device, live provider, and classifier
// factory for any slot not filled by an option.
func (a *App) initProviders(reg *config.Registry) error {
	if a.device == nil {
		device, err := reg.CreateAudio(a.cfg.Audio)
		if err != nil {
			return fmt.Errorf("create audio device: %w", err)
		}
		a.device = device
		if t, ok := device.(interface{ Terminate() error }); ok {
			a.closers = append(a.closers, t.Terminate)
		}
	}

	if a.liveProv == nil {
		prov, err := reg.CreateLive(a.cfg.Live)
		if err != nil {
			return fmt.Errorf("create live provider: %w", err)
		}
		a.liveProv = prov
	}

	if a.newClassifier == nil {
		a.newClassifier = reg.CreateVAD
	}

	return nil
}

// artifactStore returns a store that writes generated artifacts into dir,
// one file per generation, named by timestamp with the given extension.
func artifactStore(dir, ext string) form.ArtifactStore {
	return func(data []byte) (string, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
		name := fmt.Sprintf("registration-%s%s", time.Now().Format("20060102-150405"), ext)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("write artifact: %w", err)
		}
		return path, nil
	}
}

// checkers builds the readiness probes: the live API key must be present
// and the audio device must open. The device probe is skipped while a
// session is running so it never steals the input stream.
func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "live",
			Check: func(context.Context) error {
				if os.Getenv(a.cfg.Live.APIKeyEnv) == "" {
					return fmt.Errorf("environment variable %s is not set", a.cfg.Live.APIKeyEnv)
				}
				return nil
			},
		},
		{
			Name: "audio",
			Check: func(context.Context) error {
				if _, running := a.runner.Running(); running {
					return nil
				}
				in, err := a.device.OpenInput(audio.StreamConfig{
					SampleRate: a.cfg.Audio.InputSampleRate,
					Channels:   a.cfg.Audio.Channels,
					FrameSize:  a.cfg.Audio.FrameSize,
				})
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				return in.Close()
			},
		},
	}
}

// Runner exposes the voice runner, mainly for config reload wiring in main.
func (a *App) Runner() *VoiceRunner { return a.runner }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the API server and blocks until ctx is cancelled or the server
// fails. Any active voice session is stopped before Run returns.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start(a.cfg.Server.ListenAddr)
	}()

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: api server: %w", err)
		}
	}

	if err := a.runner.Stop(); err != nil && !errors.Is(err, api.ErrNoSession) {
		slog.Warn("stop session on shutdown", "err", err)
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the API server and tears down all subsystems. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.runner.Stop(); err != nil && !errors.Is(err, api.ErrNoSession) {
			slog.Warn("stop session error", "err", err)
		}

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("api server shutdown error", "err", err)
		}

		// Run closers in reverse-init order.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
