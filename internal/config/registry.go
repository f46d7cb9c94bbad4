package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/pkg/provider/stt"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	corpus map[string]func(ProviderEntry) (corpus.Store, error)
	tts    map[string]func(ProviderEntry) (tts.Provider, error)
	stt    map[string]func(ProviderEntry) (stt.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		corpus: make(map[string]func(ProviderEntry) (corpus.Store, error)),
		tts:    make(map[string]func(ProviderEntry) (tts.Provider, error)),
		stt:    make(map[string]func(ProviderEntry) (stt.Provider, error)),
	}
}

// RegisterCorpus registers a corpus store factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCorpus(name string, factory func(ProviderEntry) (corpus.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corpus[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateCorpus instantiates a corpus store using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if none matches.
func (r *Registry) CreateCorpus(entry ProviderEntry) (corpus.Store, error) {
	r.mu.RLock()
	factory, ok := r.corpus[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: corpus/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted names registered for kind ("corpus", "tts" or
// "stt"). Unknown kinds return nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch kind {
	case "corpus":
		for n := range r.corpus {
			names = append(names, n)
		}
	case "tts":
		for n := range r.tts {
			names = append(names, n)
		}
	case "stt":
		for n := range r.stt {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// OptString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func OptString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// OptInt extracts an integer value from a provider Options map. YAML decodes
// integers as int; floats are truncated. Returns 0 when absent.
func OptInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
