// Package assistant is the listening side of voiceqa. It receives final
// transcripts, matches them against the loaded corpus, records answered
// questions in the history log, speaks fresh answers, and publishes every
// state change to subscribers.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voiceqa/internal/history"
	"github.com/MrWong99/voiceqa/internal/match"
	"github.com/MrWong99/voiceqa/internal/observe"
	"github.com/MrWong99/voiceqa/internal/qa"
	"github.com/MrWong99/voiceqa/internal/speech"
	"github.com/MrWong99/voiceqa/pkg/provider/stt"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

// NoMatchMessage is reported for utterances without a match.
const NoMatchMessage = "No match found"

// Transcript sources used for metrics and logs.
const (
	SourceHTTP    = "http"
	SourceListen  = "listen"
	SourceConsole = "console"
)

// ErrUnknownCategory is returned by [Assistant.SetCategory] for a category
// that is not in the corpus.
var ErrUnknownCategory = errors.New("assistant: unknown category")

// Speaker speaks text aloud. [speech.Speaker] satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Outcome is the result of handling one transcript.
type Outcome struct {
	Heard   string        `json:"heard"`
	Matched bool          `json:"matched"`
	Match   *match.Result `json:"match,omitempty"`
	Message string        `json:"message,omitempty"`

	// Plan is only set for matches.
	Plan *history.RenderPlan `json:"plan,omitempty"`

	Spoken     bool   `json:"spoken"`
	SpeakError string `json:"speak_error,omitempty"`
}

// Option configures an [Assistant].
type Option func(*Assistant)

// WithSpeaker enables spoken answers.
func WithSpeaker(s Speaker) Option {
	return func(a *Assistant) { a.speaker = s }
}

// WithSpeakRepeats also speaks answers to repeated questions.
func WithSpeakRepeats(v bool) Option {
	return func(a *Assistant) { a.speakRepeats = v }
}

// WithSpeak sets the initial state of the speak toggle. Default: true.
func WithSpeak(v bool) Option {
	return func(a *Assistant) { a.speak = v }
}

// WithCategory sets the initial category filter. Default: [qa.AllCategories].
func WithCategory(c string) Option {
	return func(a *Assistant) { a.category = c }
}

// WithClock overrides the time source for history entries.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) { a.now = now }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// Assistant holds the listening state. It is safe for concurrent use.
type Assistant struct {
	corpus       *qa.Corpus
	matcher      *match.Matcher
	history      *history.Log
	speaker      Speaker
	speakRepeats bool
	now          func() time.Time
	metrics      *observe.Metrics
	hub          *hub

	mu       sync.Mutex
	category string
	speak    bool
}

// New returns an Assistant matching against corpus with m and recording
// answers in log.
func New(corpus *qa.Corpus, m *match.Matcher, log *history.Log, opts ...Option) *Assistant {
	a := &Assistant{
		corpus:   corpus,
		matcher:  m,
		history:  log,
		now:      time.Now,
		hub:      newHub(),
		category: qa.AllCategories,
		speak:    true,
	}
	for _, o := range opts {
		o(a)
	}
	if a.category == "" {
		a.category = qa.AllCategories
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

type sourceKey struct{}

// WithSource tags ctx with the surface a transcript came from.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return "unknown"
}

// HandleTranscript matches heard against the corpus within the selected
// category. A match is recorded in the history and, unless it is a repeat,
// spoken when speech is enabled. The outcome is published to subscribers.
//
// The returned error is non-nil only when speaking failed. The outcome is
// valid in that case and the history has already been updated.
func (a *Assistant) HandleTranscript(ctx context.Context, heard string) (out Outcome, err error) {
	ctx, span := observe.StartSpan(ctx, "assistant.ask")
	defer func() { observe.EndSpan(span, err) }()

	a.metrics.RecordUtterance(ctx, sourceFrom(ctx))
	category, speak := a.Category(), a.Speak()

	res, ok := a.matcher.Match(heard, a.corpus.Records(), category)
	if !ok {
		a.metrics.RecordMiss(ctx)
		out = Outcome{Heard: heard, Message: NoMatchMessage}
		observe.Logger(ctx).Debug("assistant: no match", "heard", heard, "category", category)
		a.hub.publish(Event{Kind: EventOutcome, Outcome: &out})
		return out, nil
	}

	plan := a.history.Record(heard, res.Question, res.Answer, a.now())
	a.metrics.RecordMatch(ctx, res.Category, res.Score, plan.WasRepeat)
	out = Outcome{Heard: heard, Matched: true, Match: &res, Plan: &plan}

	observe.Logger(ctx).Info("assistant: matched",
		"heard", heard, "question", res.Question, "score", res.Score, "repeat", plan.WasRepeat)

	if a.speaker != nil && speak && (!plan.WasRepeat || a.speakRepeats) {
		if serr := a.speaker.Speak(ctx, speech.FormatAnswer(res.Question, res.Answer)); serr != nil {
			out.SpeakError = serr.Error()
			err = fmt.Errorf("assistant: speak: %w", serr)
			observe.Logger(ctx).Warn("assistant: speaking failed", "err", serr)
		} else {
			out.Spoken = true
		}
	}

	a.hub.publish(Event{Kind: EventOutcome, Outcome: &out})
	return out, err
}

// Category returns the selected category filter.
func (a *Assistant) Category() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.category
}

// SetCategory selects the category filter. An empty category selects
// [qa.AllCategories]. Categories not present in the corpus are rejected.
func (a *Assistant) SetCategory(c string) error {
	if c == "" {
		c = qa.AllCategories
	}
	if !slices.Contains(a.Categories(), c) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	a.mu.Lock()
	a.category = c
	a.mu.Unlock()

	a.hub.publish(Event{Kind: EventCategory, Category: c})
	return nil
}

// Speak reports whether answers are spoken.
func (a *Assistant) Speak() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speak
}

// SetSpeak toggles spoken answers.
func (a *Assistant) SetSpeak(v bool) {
	a.mu.Lock()
	a.speak = v
	a.mu.Unlock()

	a.hub.publish(Event{Kind: EventSpeak, Speak: &v})
}

// Categories returns [qa.AllCategories] followed by the corpus categories in
// first-seen order.
func (a *Assistant) Categories() []string {
	return append([]string{qa.AllCategories}, a.corpus.Categories()...)
}

// History returns the answered questions, newest first.
func (a *Assistant) History() []history.Entry {
	return a.history.Entries()
}

// ClearHistory empties the history and its repeat tracking.
func (a *Assistant) ClearHistory() {
	a.history.Clear()
	a.hub.publish(Event{Kind: EventHistoryCleared})
}

// CorpusChanged publishes the new category list. Register it with
// corpus.Reloader.OnChange.
func (a *Assistant) CorpusChanged(_ []qa.Record) {
	a.hub.publish(Event{Kind: EventCorpus, Categories: a.Categories()})
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (a *Assistant) Subscribe() (<-chan Event, func()) {
	return a.hub.subscribe()
}

// Subscribers returns the number of active subscriptions.
func (a *Assistant) Subscribers() int { return a.hub.len() }

// AudioSink returns a [speech.Sink] that publishes synthesised speech as
// [EventAudio] events.
func (a *Assistant) AudioSink() speech.Sink {
	return speech.SinkFunc(func(_ context.Context, text string, audio tts.Audio) error {
		a.hub.publish(Event{Kind: EventAudio, Text: text, Audio: &audio})
		return nil
	})
}

// Listen feeds the finals of sess into [Assistant.HandleTranscript] and
// publishes partials until the session's finals channel closes or ctx ends.
// The caller owns sess and must close it.
func (a *Assistant) Listen(ctx context.Context, sess stt.SessionHandle) error {
	ctx = WithSource(ctx, SourceListen)
	partials, finals := sess.Partials(), sess.Finals()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			a.hub.publish(Event{Kind: EventPartial, Text: t.Text})
		case t, ok := <-finals:
			if !ok {
				return nil
			}
			if _, err := a.HandleTranscript(ctx, t.Text); err != nil {
				observe.Logger(ctx).Warn("assistant: transcript handling failed", "err", err)
			}
		}
	}
}
