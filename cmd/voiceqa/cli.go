package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voiceqa/internal/app"
	"github.com/MrWong99/voiceqa/internal/assistant"
	"github.com/MrWong99/voiceqa/internal/config"
	"github.com/MrWong99/voiceqa/internal/speech"
	"github.com/MrWong99/voiceqa/internal/upload"
)

// newLocalApp builds an App for one-shot commands. Answers are only
// synthesized when wavDir is set; the files land there.
func newLocalApp(ctx context.Context, cfg *config.Config, wavDir string) (*app.App, *speech.WAVSink, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg, buildOptions{tts: wavDir != ""})
	if err != nil {
		return nil, nil, err
	}

	var (
		opts []app.Option
		sink *speech.WAVSink
	)
	if wavDir != "" {
		if sink, err = speech.NewWAVSink(wavDir); err != nil {
			closeSources(providers.Sources)
			return nil, nil, err
		}
		opts = append(opts, app.WithSink(sink))
	}

	a, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		closeSources(providers.Sources)
		return nil, nil, err
	}
	return a, sink, nil
}

// ── ask ───────────────────────────────────────────────────────────────────────

func newAskCmd(flags *rootFlags) *cobra.Command {
	var (
		category string
		wavDir   string
	)
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Match a single question against the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			ctx := assistant.WithSource(cmd.Context(), assistant.SourceConsole)

			a, sink, err := newLocalApp(ctx, cfg, wavDir)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(ctx))

			if category != "" {
				if err := a.Assistant().SetCategory(category); err != nil {
					return err
				}
			}
			out, err := a.Assistant().HandleTranscript(ctx, strings.Join(args, " "))
			printOutcome(cmd.OutOrStdout(), out)
			if sink != nil && out.Spoken {
				fmt.Fprintf(cmd.OutOrStdout(), "Audio: %s\n", sink.LastPath())
			}
			return err
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "restrict matching to one category")
	cmd.Flags().StringVar(&wavDir, "wav-dir", "", "synthesize the answer into a WAV file in this directory")
	return cmd
}

// ── console ───────────────────────────────────────────────────────────────────

func newConsoleCmd(flags *rootFlags) *cobra.Command {
	var wavDir string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Answer questions typed on standard input, one per line",
		Long: `Reads questions line by line and prints the answer history after each one.

Lines starting with ":" are commands:
  :category <name>   select a category ("All" clears the filter)
  :categories        list categories
  :clear             clear the answer history
  :reload            reload the corpus`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			ctx := assistant.WithSource(cmd.Context(), assistant.SourceConsole)

			a, _, err := newLocalApp(ctx, cfg, wavDir)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(ctx))

			return runConsole(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&wavDir, "wav-dir", "", "synthesize answers into WAV files in this directory")
	return cmd
}

func runConsole(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	as := a.Assistant()
	sc := bufio.NewScanner(in)
	fmt.Fprintf(out, "%d questions loaded. Type a question, or :categories.\n", a.Corpus().Len())
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if cmdLine, ok := strings.CutPrefix(line, ":"); ok {
			name, arg, _ := strings.Cut(cmdLine, " ")
			switch name {
			case "category":
				if err := as.SetCategory(strings.TrimSpace(arg)); err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
					continue
				}
				fmt.Fprintf(out, "Category: %s\n", as.Category())
			case "categories":
				fmt.Fprintln(out, strings.Join(as.Categories(), ", "))
			case "clear":
				as.ClearHistory()
				fmt.Fprintln(out, "History cleared.")
			case "reload":
				changed, err := a.Reloader().Reload(ctx)
				if err != nil {
					fmt.Fprintf(out, "Failed to load questions: %v\n", err)
					continue
				}
				fmt.Fprintf(out, "%d questions loaded (changed: %t).\n", a.Corpus().Len(), changed)
			default:
				fmt.Fprintf(out, "Unknown command %q\n", name)
			}
			continue
		}

		res, err := as.HandleTranscript(ctx, line)
		printOutcome(out, res)
		if err != nil {
			fmt.Fprintf(out, "Speech failed: %v\n", err)
		}
	}
	return sc.Err()
}

// printOutcome renders an outcome the way the page shows it: the heard text,
// then either the no-match message or the history newest first.
func printOutcome(w io.Writer, out assistant.Outcome) {
	fmt.Fprintf(w, "Heard: %s\n", out.Heard)
	if !out.Matched {
		fmt.Fprintln(w, out.Message)
		return
	}
	if out.Plan.WasRepeat {
		fmt.Fprintln(w, "(already answered)")
	}
	for _, e := range out.Plan.Entries {
		fmt.Fprintf(w, "Q: %s\nA: %s\n", e.Question, e.Answer)
	}
}

// ── upload ────────────────────────────────────────────────────────────────────

func newUploadCmd(flags *rootFlags) *cobra.Command {
	var req upload.Request
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Add a question to the configured writer store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, _, err := newLocalApp(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(ctx))

			res, err := a.Uploads().Submit(ctx, req)
			switch {
			case errors.Is(err, upload.ErrMissingFields):
				return errors.New("please fill all fields")
			case errors.Is(err, upload.ErrDuplicate):
				return errors.New("this question already exists")
			case err != nil:
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Line)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Category, "category", "", "category of the new question")
	cmd.Flags().StringVar(&req.Question, "question", "", "question text")
	cmd.Flags().StringVar(&req.Answer, "answer", "", "answer text")
	return cmd
}
