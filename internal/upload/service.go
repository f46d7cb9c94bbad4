// Package upload adds question records to the corpus store.
//
// A submission is trimmed, validated, checked against the loaded corpus for
// duplicates, written through a [corpus.Writer], and followed by a corpus
// refresh so the new record becomes matchable. Accepted submissions are kept
// in a short newest-first log for display.
package upload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/observe"
	"github.com/MrWong99/voiceqa/internal/qa"
)

// NewCategory is the category value that selects Request.NewCategory.
const NewCategory = "__new__"

// MaxRecent is the number of lines kept by [Service.Recent].
const MaxRecent = 5

var (
	// ErrMissingFields is returned when category, question or answer is
	// empty after trimming.
	ErrMissingFields = errors.New("upload: please fill all fields")

	// ErrDuplicate is returned when the question already exists.
	ErrDuplicate = errors.New("upload: this question already exists")
)

// Request is a record submission as entered in the upload form.
type Request struct {
	Category    string `json:"category"`
	NewCategory string `json:"new_category,omitempty"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
}

// Result describes an accepted submission.
type Result struct {
	Record qa.Record `json:"record"`

	// Line is the entry added to the upload log.
	Line string `json:"line"`

	// Refreshed reports whether the corpus reload after the write succeeded.
	// A failed refresh does not undo the upload.
	Refreshed bool `json:"refreshed"`
}

// submission is the resolved, trimmed form of a [Request].
type submission struct {
	Category string `validate:"required"`
	Question string `validate:"required"`
	Answer   string `validate:"required"`
}

// Refresher reloads the corpus after a write. [corpus.Reloader] satisfies it.
type Refresher interface {
	Reload(ctx context.Context) (bool, error)
}

// Option configures a [Service].
type Option func(*Service)

// WithRefresher sets the corpus refresher called after each write.
func WithRefresher(r Refresher) Option {
	return func(s *Service) { s.refresher = r }
}

// WithClock overrides the time source for upload log lines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service accepts record submissions. It is safe for concurrent use.
type Service struct {
	writer    corpus.Writer
	corpus    *qa.Corpus
	refresher Refresher
	validate  *validator.Validate
	now       func() time.Time
	metrics   *observe.Metrics

	mu     sync.Mutex
	recent []string // newest first
}

// New returns a Service writing to w and checking duplicates against c.
func New(w corpus.Writer, c *qa.Corpus, opts ...Option) *Service {
	s := &Service{
		writer:   w,
		corpus:   c,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Submit validates req and writes it to the store.
//
// It returns [ErrMissingFields] or [ErrDuplicate] without touching the store
// when the submission is rejected. Store failures are wrapped and returned
// as is.
func (s *Service) Submit(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := observe.StartSpan(ctx, "upload.submit")
	defer func() { observe.EndSpan(span, err) }()

	sub := resolve(req)
	if err := s.validate.StructCtx(ctx, sub); err != nil {
		s.metrics.RecordUpload(ctx, observe.StatusRejected)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return Result{}, fmt.Errorf("%w: missing %s", ErrMissingFields, strings.Join(fields, ", "))
		}
		return Result{}, fmt.Errorf("upload: validate: %w", err)
	}

	if s.corpus.Contains(sub.Question) {
		s.metrics.RecordUpload(ctx, observe.StatusRejected)
		return Result{}, ErrDuplicate
	}

	rec := qa.Record{Category: sub.Category, Question: sub.Question, Answer: sub.Answer}
	if err := s.writer.Add(ctx, rec); err != nil {
		switch {
		case errors.Is(err, corpus.ErrDuplicate):
			s.metrics.RecordUpload(ctx, observe.StatusRejected)
			return Result{}, fmt.Errorf("%w: %w", ErrDuplicate, err)
		case errors.Is(err, corpus.ErrIncomplete):
			s.metrics.RecordUpload(ctx, observe.StatusRejected)
			return Result{}, fmt.Errorf("%w: %w", ErrMissingFields, err)
		}
		s.metrics.RecordUpload(ctx, observe.StatusError)
		return Result{}, fmt.Errorf("upload: write: %w", err)
	}
	s.metrics.RecordUpload(ctx, observe.StatusOK)

	res = Result{Record: rec, Line: s.logLine(rec)}
	if s.refresher != nil {
		if _, rerr := s.refresher.Reload(ctx); rerr != nil {
			observe.Logger(ctx).Warn("upload: corpus refresh after write failed", "err", rerr)
		} else {
			res.Refreshed = true
		}
	}

	observe.Logger(ctx).Info("upload: record added",
		"category", rec.Category, "question", rec.Question, "refreshed", res.Refreshed)
	return res, nil
}

// Recent returns the upload log, newest first.
func (s *Service) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recent)
}

// Categories returns the sorted corpus categories followed by [NewCategory],
// the options of the upload form.
func (s *Service) Categories() []string {
	return append(qa.SortedCategories(s.corpus.Records()), NewCategory)
}

func (s *Service) logLine(rec qa.Record) string {
	line := fmt.Sprintf("%s | Added to '%s': %s", s.now().Format(time.TimeOnly), rec.Category, rec.Question)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = slices.Insert(s.recent, 0, line)
	if len(s.recent) > MaxRecent {
		s.recent = s.recent[:MaxRecent]
	}
	return line
}

func resolve(req Request) submission {
	category := req.Category
	if category == NewCategory {
		category = req.NewCategory
	}
	return submission{
		Category: strings.TrimSpace(category),
		Question: strings.TrimSpace(req.Question),
		Answer:   strings.TrimSpace(req.Answer),
	}
}
