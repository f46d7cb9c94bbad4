// Package app wires all voiceqa subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and polls the corpus until the context ends,
// and Shutdown releases backing stores.
//
// For testing, inject doubles via functional options (WithSink,
// WithListener, WithMetrics). Corpus stores and speech providers always come
// from the Providers struct that main.go fills via the config registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voiceqa/internal/assistant"
	"github.com/MrWong99/voiceqa/internal/config"
	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/health"
	"github.com/MrWong99/voiceqa/internal/history"
	"github.com/MrWong99/voiceqa/internal/match"
	"github.com/MrWong99/voiceqa/internal/observe"
	"github.com/MrWong99/voiceqa/internal/qa"
	"github.com/MrWong99/voiceqa/internal/resilience"
	"github.com/MrWong99/voiceqa/internal/speech"
	"github.com/MrWong99/voiceqa/internal/upload"
	"github.com/MrWong99/voiceqa/internal/web"
	"github.com/MrWong99/voiceqa/pkg/provider/stt"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// ErrNoSources is returned by [New] when Providers holds no corpus store.
var ErrNoSources = errors.New("app: no corpus sources configured")

// Providers holds the instantiated backends. Populated by main.go via the
// config registry.
type Providers struct {
	// Sources are tried in order on every corpus load. At least one is
	// required.
	Sources []corpus.Store

	// Writer receives uploads. Nil makes the corpus read-only.
	Writer corpus.Store

	// TTS speaks answers. Nil disables playback.
	TTS tts.Provider

	// STT backs the /api/listen socket. Nil disables server-side recognition.
	STT stt.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	sink           speech.Sink
	listener       net.Listener

	corpus    *qa.Corpus
	source    *corpus.Fallback
	reloader  *corpus.Reloader
	assistant *assistant.Assistant
	uploads   *upload.Service
	handler   http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the instruments every subsystem records into. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler exposes h as GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithSink plays synthesized answers through s instead of streaming them to
// websocket subscribers.
func WithSink(s speech.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithListener serves HTTP on ln instead of listening on the configured
// address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together and performs the
// initial corpus load. A failed initial load is logged, not returned: the
// server starts with an empty corpus and /readyz reports the failure until a
// later reload succeeds.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		corpus:    qa.NewCorpus(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Corpus ────────────────────────────────────────────────────────
	if err := a.initCorpus(); err != nil {
		return nil, err
	}

	// ── 2. Matcher + history ─────────────────────────────────────────────
	matcher, err := buildMatcher(cfg.Matcher)
	if err != nil {
		return nil, fmt.Errorf("app: init matcher: %w", err)
	}
	log, err := history.New(historyOptions(cfg.History)...)
	if err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 3. Assistant + speech ────────────────────────────────────────────
	a.initAssistant(matcher, log)

	// ── 4. Reloader + uploads ────────────────────────────────────────────
	a.reloader = corpus.NewReloader(a.source, a.corpus,
		corpus.WithInterval(cfg.Corpus.ReloadInterval),
		corpus.WithMetrics(a.metrics),
	)
	a.reloader.OnChange(a.assistant.CorpusChanged)
	if _, err := a.reloader.Reload(ctx); err != nil {
		slog.Warn("initial corpus load failed, starting empty", "source", a.source.Name(), "err", err)
	}
	a.uploads = upload.New(a.source, a.corpus,
		upload.WithRefresher(a.reloader),
		upload.WithMetrics(a.metrics),
	)

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	slog.Info("app initialised",
		"source", a.source.Name(),
		"records", a.corpus.Len(),
		"scorer", matcher.ScorerName(),
		"history_policy", log.Policy(),
	)
	return a, nil
}

func (a *App) initCorpus() error {
	srcs := a.providers.Sources
	if len(srcs) == 0 {
		return ErrNoSources
	}
	rest := make([]corpus.Source, 0, len(srcs)-1)
	for _, s := range srcs[1:] {
		rest = append(rest, s)
	}
	a.source = corpus.NewFallback(resilience.FallbackConfig{}, a.providers.Writer, srcs[0], rest...)

	for _, s := range srcs {
		switch c := s.(type) {
		case io.Closer:
			a.closers = append(a.closers, c.Close)
		case interface{ Close() }:
			a.closers = append(a.closers, func() error { c.Close(); return nil })
		}
	}
	return nil
}

func (a *App) initAssistant(matcher *match.Matcher, log *history.Log) {
	opts := []assistant.Option{
		assistant.WithSpeak(a.cfg.Speech.SpeakEnabled()),
		assistant.WithSpeakRepeats(a.cfg.Speech.SpeakRepeats),
		assistant.WithCategory(a.cfg.Matcher.Category),
		assistant.WithMetrics(a.metrics),
	}
	var sp *speech.Speaker
	if a.providers.TTS != nil {
		// The speaker needs the assistant's sink and the assistant needs the
		// speaker, so the sink is bound late.
		sink := speech.SinkFunc(func(ctx context.Context, text string, audio tts.Audio) error {
			return a.sink.Play(ctx, text, audio)
		})
		sp = speech.NewSpeaker(a.providers.TTS, sink,
			speech.WithVoice(tts.VoiceProfile{ID: a.cfg.Speech.Voice, Language: a.cfg.Speech.Language}),
			speech.WithMetrics(a.metrics),
		)
		opts = append(opts, assistant.WithSpeaker(sp))
	}
	a.assistant = assistant.New(a.corpus, matcher, log, opts...)
	if a.sink == nil {
		a.sink = a.assistant.AudioSink()
	}
}

func (a *App) initHTTP() {
	checkers := []health.Checker{
		health.CorpusLoaded(a.corpus),
		health.LastError("corpus_reload", a.reloader.LastError),
	}
	for _, s := range a.providers.Sources {
		if p, ok := s.(health.Pinger); ok {
			checkers = append(checkers, health.Ping(s.Name(), p))
		}
	}

	h := web.NewHandler(web.Config{
		Assistant: a.assistant,
		Uploads:   a.uploads,
		Reloader:  a.reloader,
		Corpus:    a.corpus,
		STT:       a.providers.STT,
		Stream: stt.StreamConfig{
			SampleRate: a.cfg.Speech.SampleRate,
			Channels:   1,
			Language:   a.cfg.Speech.Language,
		},
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
	})
	a.handler = web.NewRouter(h, health.New(checkers...))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Assistant returns the question answering core.
func (a *App) Assistant() *assistant.Assistant { return a.assistant }

// Uploads returns the question upload service.
func (a *App) Uploads() *upload.Service { return a.uploads }

// Reloader returns the corpus reloader.
func (a *App) Reloader() *corpus.Reloader { return a.reloader }

// Corpus returns the live record set.
func (a *App) Corpus() *qa.Corpus { return a.corpus }

// SourceName lists the chained corpus sources, e.g. "http>file".
func (a *App) SourceName() string { return a.source.Name() }

// Handler returns the HTTP router.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and polls the corpus, blocking until ctx is cancelled or
// the server fails. On cancellation the server is drained within the
// configured shutdown timeout and ctx.Err() is returned.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr); err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.reloader.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes backing stores in order. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func buildMatcher(mc config.MatcherConfig) (*match.Matcher, error) {
	var opts []match.Option
	if mc.Scorer != "" {
		s, err := match.ScorerByName(mc.Scorer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, match.WithScorer(s))
	}
	if mc.Threshold != nil {
		opts = append(opts, match.WithThreshold(*mc.Threshold))
	}
	return match.New(opts...), nil
}

func historyOptions(hc config.HistoryConfig) []history.Option {
	var opts []history.Option
	if hc.Capacity != nil {
		opts = append(opts, history.WithCapacity(*hc.Capacity))
	}
	if hc.Policy != "" {
		opts = append(opts, history.WithPolicy(history.Policy(hc.Policy)))
	}
	if hc.Window != nil {
		opts = append(opts, history.WithWindow(*hc.Window))
	}
	return opts
}
