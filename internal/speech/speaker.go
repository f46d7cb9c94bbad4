// Package speech turns answers into audio and hands the audio to a sink.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/voiceqa/internal/observe"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

// ErrEmptyText is returned by [Speaker.Speak] for blank input.
var ErrEmptyText = errors.New("speech: nothing to say")

// FormatAnswer builds the phrase spoken for a matched question.
func FormatAnswer(question, answer string) string {
	return fmt.Sprintf("Question: %s. Answer: %s", question, answer)
}

// Sink receives synthesised audio.
type Sink interface {
	Play(ctx context.Context, text string, audio tts.Audio) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, text string, audio tts.Audio) error

// Play calls f.
func (f SinkFunc) Play(ctx context.Context, text string, audio tts.Audio) error {
	return f(ctx, text, audio)
}

// Option configures a [Speaker].
type Option func(*Speaker)

// WithVoice selects the voice passed to the provider. Default: the
// provider's default voice.
func WithVoice(v tts.VoiceProfile) Option {
	return func(s *Speaker) { s.voice = v }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// Speaker synthesises text with a TTS provider and plays it on a sink.
type Speaker struct {
	provider tts.Provider
	sink     Sink
	voice    tts.VoiceProfile
	metrics  *observe.Metrics
}

// NewSpeaker returns a Speaker using p for synthesis and sink for playback.
func NewSpeaker(p tts.Provider, sink Sink, opts ...Option) *Speaker {
	s := &Speaker{provider: p, sink: sink}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Voice returns the configured voice.
func (s *Speaker) Voice() tts.VoiceProfile { return s.voice }

// Speak synthesises text and plays the result.
func (s *Speaker) Speak(ctx context.Context, text string) (err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	ctx, span := observe.StartSpan(ctx, "speech.speak")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	audio, err := s.provider.Synthesize(ctx, text, s.voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	observe.Logger(ctx).Debug("speech: synthesized",
		"chars", len(text), "audio_seconds", audio.Duration(), "voice", s.voice.ID)

	if err := s.sink.Play(ctx, text, audio); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}
