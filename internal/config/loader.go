package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/voiceqa/internal/history"
	"github.com/MrWong99/voiceqa/internal/match"
	"github.com/MrWong99/voiceqa/internal/qa"
	"gopkg.in/yaml.v3"
)

// Defaults filled in by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultLanguage        = "en-US"
	DefaultSampleRate      = 16000
	DefaultServiceName     = "voiceqa"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"corpus": {"http", "file", "sqlite", "postgres"},
	"tts":    {"coqui"},
	"stt":    {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default. Explicit values,
// including explicit zeros on pointer fields, are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Matcher.Scorer == "" {
		cfg.Matcher.Scorer = match.ScorerSubstring
	}
	if cfg.Matcher.Threshold == nil {
		t := match.DefaultThreshold
		cfg.Matcher.Threshold = &t
	}
	if cfg.Matcher.Category == "" {
		cfg.Matcher.Category = qa.AllCategories
	}

	if cfg.History.Capacity == nil {
		c := history.DefaultCapacity
		cfg.History.Capacity = &c
	}
	if cfg.History.Policy == "" {
		cfg.History.Policy = string(history.PolicyWindow)
	}
	if cfg.History.Window == nil {
		w := history.DefaultWindow
		cfg.History.Window = &w
	}

	if cfg.Speech.Language == "" {
		cfg.Speech.Language = DefaultLanguage
	}
	if cfg.Speech.SampleRate == 0 {
		cfg.Speech.SampleRate = DefaultSampleRate
	}

	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, console", cfg.Server.LogFormat))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Corpus
	if len(cfg.Corpus.Sources) == 0 {
		errs = append(errs, errors.New("corpus.sources requires at least one entry"))
	}
	for i, src := range cfg.Corpus.Sources {
		prefix := fmt.Sprintf("corpus.sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName("corpus", src.Name)
		switch src.Name {
		case "http":
			if src.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s.base_url is required for the http source", prefix))
			}
		case "file", "sqlite":
			if src.Path == "" {
				errs = append(errs, fmt.Errorf("%s.path is required for the %s source", prefix, src.Name))
			}
		case "postgres":
			if src.DSN == "" {
				errs = append(errs, fmt.Errorf("%s.dsn is required for the postgres source", prefix))
			}
		}
	}
	if cfg.Corpus.Writer != "" {
		if _, ok := cfg.Corpus.WriterEntry(); !ok {
			errs = append(errs, fmt.Errorf("corpus.writer %q does not name a configured source", cfg.Corpus.Writer))
		}
	}
	if cfg.Corpus.ReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("corpus.reload_interval %s must not be negative", cfg.Corpus.ReloadInterval))
	}

	// Matcher
	if _, err := match.ScorerByName(cfg.Matcher.Scorer); err != nil {
		errs = append(errs, fmt.Errorf("matcher.scorer %q is invalid; valid values: substring, token, phonetic", cfg.Matcher.Scorer))
	}
	if t := cfg.Matcher.Threshold; t != nil && (*t < 0 || *t >= 100) {
		errs = append(errs, fmt.Errorf("matcher.threshold %.2f is out of range [0, 100)", *t))
	}

	// History
	if c := cfg.History.Capacity; c != nil && *c < 1 {
		errs = append(errs, fmt.Errorf("history.capacity %d must be at least 1", *c))
	}
	if p := history.Policy(cfg.History.Policy); p != "" && !p.IsValid() {
		errs = append(errs, fmt.Errorf("history.policy %q is invalid; valid values: window, log, session", cfg.History.Policy))
	}
	if w := cfg.History.Window; w != nil && *w < 0 {
		errs = append(errs, fmt.Errorf("history.window %s must not be negative", *w))
	}
	if cfg.History.Policy == string(history.PolicyWindow) && cfg.History.Window != nil && *cfg.History.Window == 0 {
		slog.Warn("history.window is zero; repeats are detected by log membership instead")
	}

	// Speech
	validateProviderName("tts", cfg.Speech.TTS.Name)
	for i, fb := range cfg.Speech.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("speech.tts_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.Speech.TTSFallbacks) > 0 && cfg.Speech.TTS.Name == "" {
		errs = append(errs, errors.New("speech.tts_fallbacks requires speech.tts"))
	}
	validateProviderName("stt", cfg.Speech.STT.Name)
	if cfg.Speech.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d must not be negative", cfg.Speech.SampleRate))
	}
	if cfg.Speech.TTS.Name == "" && cfg.Speech.SpeakEnabled() {
		slog.Warn("speech.enabled is set but no speech.tts provider is configured; answers will not be spoken")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
