// Package config provides the configuration schema, loader, and provider
// registry for the voiceqa assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	// LogFormatText writes logfmt-style lines.
	LogFormatText LogFormat = "text"

	// LogFormatJSON writes one JSON object per line.
	LogFormatJSON LogFormat = "json"

	// LogFormatConsole writes coloured, human-oriented lines for terminals.
	LogFormatConsole LogFormat = "console"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatConsole:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	Matcher MatcherConfig `yaml:"matcher"`
	History HistoryConfig `yaml:"history"`
	Speech  SpeechConfig  `yaml:"speech"`
	Observe ObserveConfig `yaml:"observe"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CorpusConfig declares where question/answer records come from.
type CorpusConfig struct {
	// Sources are tried in order on every load; the first one that succeeds
	// provides the corpus. Each entry selects a source registered in the
	// [Registry] (http, file, sqlite, postgres).
	Sources []ProviderEntry `yaml:"sources"`

	// Writer names the source that receives uploaded records. Defaults to the
	// first source.
	Writer string `yaml:"writer"`

	// ReloadInterval re-loads the corpus periodically. Zero disables polling;
	// the corpus is still loaded at startup and after every upload.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// WriterEntry returns the source entry that receives uploads, or false when
// no source matches.
func (c CorpusConfig) WriterEntry() (ProviderEntry, bool) {
	if len(c.Sources) == 0 {
		return ProviderEntry{}, false
	}
	if c.Writer == "" {
		return c.Sources[0], true
	}
	for _, s := range c.Sources {
		if s.Name == c.Writer {
			return s, true
		}
	}
	return ProviderEntry{}, false
}

// MatcherConfig tunes question matching.
type MatcherConfig struct {
	// Scorer is "substring" (default), "token", or "phonetic".
	Scorer string `yaml:"scorer"`

	// Threshold is the exclusive minimum score. Default: 40.
	Threshold *float64 `yaml:"threshold"`

	// Category is the initial category filter. Default: "All".
	Category string `yaml:"category"`
}

// HistoryConfig tunes the answered-question log.
type HistoryConfig struct {
	// Capacity is the number of entries shown. Default: 3. Zero is invalid.
	Capacity *int `yaml:"capacity"`

	// Policy is "window" (default), "log", or "session".
	Policy string `yaml:"policy"`

	// Window is the repeat window for the window policy. Default: 60s. An
	// explicit zero selects the log policy.
	Window *time.Duration `yaml:"window"`
}

// SpeechConfig configures answer playback and server-side recognition.
type SpeechConfig struct {
	// Enabled turns spoken answers on at startup. Default: true.
	Enabled *bool `yaml:"enabled"`

	// SpeakRepeats also speaks answers to repeated questions.
	SpeakRepeats bool `yaml:"speak_repeats"`

	// TTS selects the text-to-speech provider. Empty disables playback.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when the primary TTS provider fails.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	// Voice is the provider-specific voice (speaker) identifier.
	Voice string `yaml:"voice"`

	// STT selects the streaming recogniser used by the /api/listen socket.
	// Empty disables server-side recognition.
	STT ProviderEntry `yaml:"stt"`

	// Language is the BCP-47 recognition language. Default: "en-US".
	Language string `yaml:"language"`

	// SampleRate of PCM streamed to the recogniser in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`
}

// SpeakEnabled reports the effective value of Enabled.
func (s SpeechConfig) SpeakEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	// ServiceName is reported in telemetry resources. Default: "voiceqa".
	ServiceName string `yaml:"service_name"`

	// DisableMetrics removes the /metrics endpoint.
	DisableMetrics bool `yaml:"disable_metrics"`
}

// ProviderEntry is the common configuration block shared by corpus sources
// and speech providers. The Name field is used to look up the constructor in
// the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "http", "coqui").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL is the endpoint of HTTP-based providers.
	BaseURL string `yaml:"base_url"`

	// Path is a filesystem path for file-backed providers.
	Path string `yaml:"path"`

	// DSN is a database connection string.
	DSN string `yaml:"dsn"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}
