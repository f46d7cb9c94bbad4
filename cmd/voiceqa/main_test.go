package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/voiceqa/internal/config"
	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/qa"
	"github.com/MrWong99/voiceqa/internal/resilience"
	"github.com/MrWong99/voiceqa/pkg/provider/tts/coqui"
)

// writeFixture seeds a YAML corpus and a config pointing at it. It returns
// the config path and the corpus path.
func writeFixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	qpath := filepath.Join(dir, "questions.yaml")
	fs, err := corpus.NewFileSource(qpath)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range []qa.Record{
		{Category: "Science", Question: "Why is the sky blue?", Answer: "Rayleigh scattering."},
		{Category: "General", Question: "What is the capital of France?", Answer: "Paris."},
	} {
		if err := fs.Add(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	cpath := filepath.Join(dir, "voiceqa.yaml")
	cfg := fmt.Sprintf("corpus:\n  sources:\n    - name: file\n      path: %q\n", qpath)
	if err := os.WriteFile(cpath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return cpath, qpath
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := newLogger(&buf, config.LogWarn, config.LogFormatJSON)
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("json handler output: %v", err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	newLogger(&buf, config.LogDebug, config.LogFormatText).Debug("text line")
	if !strings.Contains(buf.String(), "msg=\"text line\"") {
		t.Errorf("text handler output = %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, config.LogInfo, config.LogFormatConsole).Info("console line")
	if !strings.Contains(buf.String(), "console line") {
		t.Errorf("console handler output = %q", buf.String())
	}
}

func TestBuildProviders_Writer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := config.LoadFromReader(strings.NewReader(fmt.Sprintf(`
corpus:
  sources:
    - {name: file, path: %q}
    - {name: sqlite, path: %q}
  writer: sqlite
`, filepath.Join(dir, "q.json"), filepath.Join(dir, "q.db"))))
	if err != nil {
		t.Fatal(err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(context.Background(), reg)
	ps, err := buildProviders(cfg, reg, buildOptions{})
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	defer closeSources(ps.Sources)

	if len(ps.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(ps.Sources))
	}
	if ps.Writer != ps.Sources[1] || ps.Writer.Name() != "sqlite" {
		t.Errorf("writer = %v, want the sqlite source", ps.Writer)
	}
	if ps.TTS != nil || ps.STT != nil {
		t.Error("speech providers should not be built")
	}
}

func TestBuildProviders_UnregisteredSource(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(`corpus: {sources: [{name: file, path: q.yaml}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buildProviders(cfg, config.NewRegistry(), buildOptions{}); err == nil {
		t.Fatal("expected error for unregistered corpus source")
	}
}

func TestBuildProviders_TTS(t *testing.T) {
	t.Parallel()

	base := `
corpus: {sources: [{name: file, path: q.yaml}]}
speech:
  tts: {name: coqui, base_url: "http://localhost:5002"}
`
	tests := []struct {
		name  string
		yaml  string
		build bool
		check func(t *testing.T, got any)
	}{
		{
			name:  "disabled",
			yaml:  base,
			build: false,
			check: func(t *testing.T, got any) {
				if got != nil {
					t.Errorf("TTS = %T, want nil", got)
				}
			},
		},
		{
			name:  "primary only",
			yaml:  base,
			build: true,
			check: func(t *testing.T, got any) {
				if _, ok := got.(*coqui.Provider); !ok {
					t.Errorf("TTS = %T, want *coqui.Provider", got)
				}
			},
		},
		{
			name:  "with fallbacks",
			yaml:  base + `  tts_fallbacks: [{name: coqui, base_url: "http://backup:5002"}]` + "\n",
			build: true,
			check: func(t *testing.T, got any) {
				fb, ok := got.(*resilience.TTSFallback)
				if !ok {
					t.Fatalf("TTS = %T, want *resilience.TTSFallback", got)
				}
				if n := len(fb.Statuses()); n != 2 {
					t.Errorf("fallback entries = %d, want 2", n)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err != nil {
				t.Fatal(err)
			}
			reg := config.NewRegistry()
			registerBuiltinProviders(context.Background(), reg)
			ps, err := buildProviders(cfg, reg, buildOptions{tts: tc.build})
			if err != nil {
				t.Fatalf("buildProviders: %v", err)
			}
			var got any
			if ps.TTS != nil {
				got = ps.TTS
			}
			tc.check(t, got)
		})
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(`
corpus: {sources: [{name: http, base_url: "https://example.com/exec"}, {name: file, path: q.yaml}]}
`))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	printStartupSummary(&buf, cfg)
	out := buf.String()
	for _, want := range []string{"Source 1", "http", "Source 2", "file", "(not configured)", "substring > 40", "window, 3 shown"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

// The command tests below replace the default slog logger and run serially.

func TestAskCommand(t *testing.T) {
	cpath, _ := writeFixture(t)

	out, err := execute(t, "", "--config", cpath, "ask", "why", "is", "the", "sky", "blue")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "Heard: why is the sky blue") || !strings.Contains(out, "A: Rayleigh scattering.") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "", "--config", cpath, "ask", "--category", "General", "why is the sky blue")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "No match found") {
		t.Errorf("category filter output = %q", out)
	}
}

func TestAskCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "ask", "hi")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestConsoleCommand(t *testing.T) {
	cpath, _ := writeFixture(t)

	stdin := strings.Join([]string{
		"capital of france",
		"capital of france",
		":categories",
		":category Nope",
		":clear",
		"tell me a joke",
	}, "\n")
	out, err := execute(t, stdin, "--config", cpath, "console")
	if err != nil {
		t.Fatalf("console: %v", err)
	}
	for _, want := range []string{
		"2 questions loaded",
		"A: Paris.",
		"(already answered)",
		"All, Science, General",
		"Error: assistant: unknown category",
		"History cleared.",
		"No match found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestUploadCommand(t *testing.T) {
	cpath, qpath := writeFixture(t)

	out, err := execute(t, "", "--config", cpath, "upload",
		"--category", "History", "--question", "When did the wall fall?", "--answer", "1989.")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out, "Added to 'History': When did the wall fall?") {
		t.Errorf("output = %q", out)
	}

	fs, err := corpus.NewFileSource(qpath)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := fs.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || recs[2].Category != "History" {
		t.Errorf("records = %+v", recs)
	}

	_, err = execute(t, "", "--config", cpath, "upload",
		"--category", "History", "--question", "when did the wall fall?", "--answer", "1989.")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("duplicate upload err = %v", err)
	}

	_, err = execute(t, "", "--config", cpath, "upload", "--question", "Only a question")
	if err == nil || !strings.Contains(err.Error(), "fill all fields") {
		t.Errorf("incomplete upload err = %v", err)
	}
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	_, qpath := writeFixture(t)
	cfg, err := config.LoadFromReader(strings.NewReader(fmt.Sprintf(`
server: {listen_addr: "127.0.0.1:0", shutdown_timeout: 2s}
corpus:
  sources: [{name: file, path: %q}]
`, qpath)))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(&out)

	if err := runServe(cmd, cfg); err != nil {
		t.Fatalf("runServe: %v", err)
	}
	if !strings.Contains(out.String(), "startup summary") {
		t.Errorf("startup summary not printed:\n%s", out.String())
	}
}
