package resilience

import (
	"context"

	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across several TTS
// backends, each behind its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS provider.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Statuses reports the breaker state of every backend.
func (f *TTSFallback) Statuses() []EntryStatus { return f.group.Statuses() }

// Synthesize renders text with the first healthy backend. A cancelled ctx is
// returned directly instead of tripping breakers down the chain.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	if err := ctx.Err(); err != nil {
		return tts.Audio{}, err
	}
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
