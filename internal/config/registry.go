package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smartchat-ai/smartchat/pkg/audio"
	"github.com/smartchat-ai/smartchat/pkg/provider/stt"
	"github.com/smartchat-ai/smartchat/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stt    map[string]func(ProviderEntry) (stt.Provider, error)
	tts    map[string]func(ProviderEntry) (tts.Provider, error)
	source map[string]func(ProviderEntry) (audio.Source, error)
	sink   map[string]func(ProviderEntry) (audio.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:    make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:    make(map[string]func(ProviderEntry) (tts.Provider, error)),
		source: make(map[string]func(ProviderEntry) (audio.Source, error)),
		sink:   make(map[string]func(ProviderEntry) (audio.Sink, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterSource registers an audio capture source factory under name.
func (r *Registry) RegisterSource(name string, factory func(ProviderEntry) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source[name] = factory
}

// RegisterSink registers an audio playback sink factory under name.
func (r *Registry) RegisterSink(name string, factory func(ProviderEntry) (audio.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under
// entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSource instantiates an audio source using the factory registered
// under entry.Name.
func (r *Registry) CreateSource(entry ProviderEntry) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.source[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio-source/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSink instantiates an audio sink using the factory registered under
// entry.Name.
func (r *Registry) CreateSink(entry ProviderEntry) (audio.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sink[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio-sink/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
