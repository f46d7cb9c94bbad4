// Package tts defines the Provider interface for Text-to-Speech backends.
//
// voiceqa speaks one complete answer at a time, so providers synthesise a
// whole string into a single block of PCM rather than streaming fragments.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile identifies a voice offered by a TTS backend.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. An empty ID selects the
	// backend's default voice.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 tag the voice speaks, when known.
	Language string

	// Metadata holds provider-specific voice attributes.
	Metadata map[string]string
}

// Audio is a block of little-endian signed 16-bit PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the playback length of a.
func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	return float64(len(a.PCM)) / float64(2*a.Channels*a.SampleRate)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice. It returns an error if the
	// backend cannot be reached, rejects the request, or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (Audio, error)

	// ListVoices returns the voices currently offered by the backend.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
