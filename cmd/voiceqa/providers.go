package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voiceqa/internal/app"
	"github.com/MrWong99/voiceqa/internal/config"
	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/corpus/pgstore"
	"github.com/MrWong99/voiceqa/internal/corpus/sqlitestore"
	"github.com/MrWong99/voiceqa/internal/resilience"
	"github.com/MrWong99/voiceqa/pkg/provider/stt"
	"github.com/MrWong99/voiceqa/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
	"github.com/MrWong99/voiceqa/pkg/provider/tts/coqui"
)

// registerBuiltinProviders wires all built-in factories into reg. Database
// stores connect during creation, bounded by ctx.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── Corpus ────────────────────────────────────────────────────────────────

	reg.RegisterCorpus("http", func(entry config.ProviderEntry) (corpus.Store, error) {
		return corpus.NewHTTPSource(entry.BaseURL)
	})

	reg.RegisterCorpus("file", func(entry config.ProviderEntry) (corpus.Store, error) {
		return corpus.NewFileSource(entry.Path)
	})

	reg.RegisterCorpus("sqlite", func(entry config.ProviderEntry) (corpus.Store, error) {
		return sqlitestore.Open(ctx, entry.Path)
	})

	reg.RegisterCorpus("postgres", func(entry config.ProviderEntry) (corpus.Store, error) {
		return pgstore.Open(ctx, entry.DSN)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := config.OptInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := config.OptString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := config.OptInt(entry.Options, "output_sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"corpus", "stt", "tts"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildOptions selects which optional providers are instantiated.
type buildOptions struct {
	tts bool
	stt bool
}

// buildProviders instantiates the providers named in cfg using the registry.
// Corpus sources are required; speech providers whose name is not
// registered are skipped with a debug log.
func buildProviders(cfg *config.Config, reg *config.Registry, bo buildOptions) (*app.Providers, error) {
	ps := &app.Providers{}

	writerEntry, hasWriter := cfg.Corpus.WriterEntry()
	for _, entry := range cfg.Corpus.Sources {
		s, err := reg.CreateCorpus(entry)
		if err != nil {
			closeSources(ps.Sources)
			return nil, fmt.Errorf("create corpus source %q: %w", entry.Name, err)
		}
		ps.Sources = append(ps.Sources, s)
		if hasWriter && ps.Writer == nil && entry.Name == writerEntry.Name {
			ps.Writer = s
		}
		slog.Info("provider created", "kind", "corpus", "name", entry.Name)
	}

	if bo.tts && cfg.Speech.TTS.Name != "" {
		p, err := buildTTS(cfg.Speech, reg)
		if err != nil {
			closeSources(ps.Sources)
			return nil, err
		}
		ps.TTS = p
	}

	if name := cfg.Speech.STT.Name; bo.stt && name != "" {
		p, err := reg.CreateSTT(cfg.Speech.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "stt", "name", name)
		} else if err != nil {
			closeSources(ps.Sources)
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	return ps, nil
}

// buildTTS creates the primary TTS provider and chains the fallbacks behind
// circuit breakers. Without fallbacks the primary is returned unwrapped.
func buildTTS(sc config.SpeechConfig, reg *config.Registry) (tts.Provider, error) {
	primary, err := reg.CreateTTS(sc.TTS)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Debug("provider not registered, skipping", "kind", "tts", "name", sc.TTS.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", sc.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", sc.TTS.Name)
	if len(sc.TTSFallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewTTSFallback(primary, sc.TTS.Name, resilience.FallbackConfig{})
	for _, entry := range sc.TTSFallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			slog.Warn("skipping tts fallback", "name", entry.Name, "err", err)
			continue
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "tts_fallback", "name", entry.Name)
	}
	return fb, nil
}

// closeSources releases stores opened before a later provider failed.
func closeSources(sources []corpus.Store) {
	for _, s := range sources {
		switch c := s.(type) {
		case interface{ Close() error }:
			_ = c.Close()
		case interface{ Close() }:
			c.Close()
		}
	}
}
