package app_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/voiceqa/internal/app"
	"github.com/MrWong99/voiceqa/internal/config"
	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/observe"
	"github.com/MrWong99/voiceqa/internal/qa"
	"github.com/MrWong99/voiceqa/internal/speech"
	"github.com/MrWong99/voiceqa/internal/upload"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voiceqa/pkg/provider/tts/mock"
)

// testConfig returns a validated config with defaults applied.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(`
server: {shutdown_timeout: 2s}
corpus:
  sources: [{name: file, path: questions.yaml}]
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// seededSource returns a file store holding two records.
func seededSource(t *testing.T) *corpus.FileSource {
	t.Helper()
	fs, err := corpus.NewFileSource(filepath.Join(t.TempDir(), "questions.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, rec := range []qa.Record{
		{Category: "Science", Question: "Why is the sky blue?", Answer: "Rayleigh scattering."},
		{Category: "General", Question: "What is the capital of France?", Answer: "Paris."},
	} {
		if err := fs.Add(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return fs
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNew_NoSources(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(t), &app.Providers{}, app.WithMetrics(testMetrics(t)))
	if !errors.Is(err, app.ErrNoSources) {
		t.Fatalf("New() error = %v, want ErrNoSources", err)
	}
}

func TestNew_UnknownScorer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Matcher.Scorer = "levenshtein"
	fs := seededSource(t)

	_, err := app.New(context.Background(), cfg, &app.Providers{Sources: []corpus.Store{fs}},
		app.WithMetrics(testMetrics(t)))
	if err == nil || !strings.Contains(err.Error(), "matcher") {
		t.Fatalf("New() error = %v, want matcher error", err)
	}
}

func TestNew_LoadsCorpusAndAnswers(t *testing.T) {
	t.Parallel()

	fs := seededSource(t)
	a, err := app.New(context.Background(), testConfig(t),
		&app.Providers{Sources: []corpus.Store{fs}, Writer: fs},
		app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := a.Corpus().Len(); got != 2 {
		t.Fatalf("corpus len = %d, want 2", got)
	}
	if a.SourceName() != "file" {
		t.Errorf("SourceName() = %q", a.SourceName())
	}
	if cats := a.Assistant().Categories(); len(cats) != 3 || cats[0] != qa.AllCategories {
		t.Errorf("Categories() = %v", cats)
	}

	out, err := a.Assistant().HandleTranscript(context.Background(), "why is the sky blue")
	if err != nil {
		t.Fatalf("HandleTranscript: %v", err)
	}
	if !out.Matched || out.Match.Answer != "Rayleigh scattering." {
		t.Errorf("outcome = %+v", out)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestNew_UploadRefreshesCorpus(t *testing.T) {
	t.Parallel()

	fs := seededSource(t)
	a, err := app.New(context.Background(), testConfig(t),
		&app.Providers{Sources: []corpus.Store{fs}, Writer: fs},
		app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := a.Uploads().Submit(context.Background(), upload.Request{
		Category: "History", Question: "When did the wall fall?", Answer: "1989.",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Refreshed {
		t.Error("upload should refresh the corpus")
	}
	if a.Corpus().Len() != 3 {
		t.Errorf("corpus len = %d, want 3", a.Corpus().Len())
	}
}

func TestNew_InitialLoadFailureStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("{not: [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs, err := corpus.NewFileSource(path)
	if err != nil {
		t.Fatal(err)
	}

	a, err := app.New(context.Background(), testConfig(t),
		&app.Providers{Sources: []corpus.Store{fs}},
		app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Corpus().Len() != 0 {
		t.Errorf("corpus len = %d, want 0", a.Corpus().Len())
	}
	if a.Reloader().LastError() == nil {
		t.Error("LastError() should report the failed load")
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz status = %d, want 503", rec.Code)
	}
}

func TestNew_SpeaksThroughSink(t *testing.T) {
	t.Parallel()

	provider := &ttsmock.Provider{
		SynthesizeResult: tts.Audio{PCM: []byte{1, 0, 2, 0}, SampleRate: 16000, Channels: 1},
	}
	var (
		mu     sync.Mutex
		played []string
	)
	sink := speech.SinkFunc(func(_ context.Context, text string, _ tts.Audio) error {
		mu.Lock()
		defer mu.Unlock()
		played = append(played, text)
		return nil
	})

	fs := seededSource(t)
	a, err := app.New(context.Background(), testConfig(t),
		&app.Providers{Sources: []corpus.Store{fs}, TTS: provider},
		app.WithMetrics(testMetrics(t)), app.WithSink(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := a.Assistant().HandleTranscript(context.Background(), "capital of france")
	if err != nil {
		t.Fatalf("HandleTranscript: %v", err)
	}
	if !out.Spoken {
		t.Fatalf("outcome not spoken: %+v", out)
	}

	want := speech.FormatAnswer("What is the capital of France?", "Paris.")
	mu.Lock()
	defer mu.Unlock()
	if len(played) != 1 || played[0] != want {
		t.Errorf("played = %q, want [%q]", played, want)
	}
	if texts := provider.Texts(); len(texts) != 1 || texts[0] != want {
		t.Errorf("synthesized = %q", texts)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	fs := seededSource(t)
	a, err := app.New(context.Background(), testConfig(t),
		&app.Providers{Sources: []corpus.Store{fs}},
		app.WithMetrics(testMetrics(t)), app.WithListener(ln))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
