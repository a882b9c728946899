package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/formvoice/formvoice/pkg/audio"
	"github.com/formvoice/formvoice/pkg/provider/live"
	"github.com/formvoice/formvoice/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider or backend name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider and backend names to their constructor functions.
// The registry itself knows nothing about concrete implementations; the
// application registers its built-ins at startup. It is safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	live  map[LiveProvider]func(LiveConfig) (live.Provider, error)
	vad   map[VADBackend]func(VADConfig) (vad.Classifier, error)
	audio map[AudioBackend]func(AudioConfig) (audio.Device, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:  make(map[LiveProvider]func(LiveConfig) (live.Provider, error)),
		vad:   make(map[VADBackend]func(VADConfig) (vad.Classifier, error)),
		audio: make(map[AudioBackend]func(AudioConfig) (audio.Device, error)),
	}
}

// RegisterLive registers a live speech provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name LiveProvider, factory func(LiveConfig) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterVAD registers a voice-activity classifier factory under name.
func (r *Registry) RegisterVAD(name VADBackend, factory func(VADConfig) (vad.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterAudio registers an audio device factory under name.
func (r *Registry) RegisterAudio(name AudioBackend, factory func(AudioConfig) (audio.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateLive instantiates a live speech provider using the factory registered
// under cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateLive(cfg LiveConfig) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateVAD instantiates a voice-activity classifier using the factory
// registered under cfg.Backend.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Classifier, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateAudio instantiates an audio device using the factory registered under
// cfg.Backend.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}
