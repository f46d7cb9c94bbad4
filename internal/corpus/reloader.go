package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voiceqa/internal/observe"
	"github.com/MrWong99/voiceqa/internal/qa"
)

// ReloadFunc is called after a reload that changed the corpus content.
type ReloadFunc func(records []qa.Record)

// Reloader loads a [Source] into a [qa.Corpus], on demand and optionally on
// a fixed interval. A load that fails leaves the current corpus in place.
type Reloader struct {
	source   Source
	corpus   *qa.Corpus
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *observe.Metrics

	mu       sync.Mutex
	loaded   bool
	lastHash [sha256.Size]byte
	lastErr  error
	onChange []ReloadFunc
}

// ReloaderOption configures a [Reloader].
type ReloaderOption func(*Reloader)

// WithInterval enables periodic reloads in [Reloader.Run].
func WithInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.interval = d }
}

// WithClock overrides the timestamp source used for [qa.Corpus.Replace].
func WithClock(now func() time.Time) ReloaderOption {
	return func(r *Reloader) { r.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ReloaderOption {
	return func(r *Reloader) { r.logger = l }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) ReloaderOption {
	return func(r *Reloader) { r.metrics = m }
}

// NewReloader returns a Reloader that fills corpus from source.
func NewReloader(source Source, corpus *qa.Corpus, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		source: source,
		corpus: corpus,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// OnChange registers fn to run after every reload that changed the content.
func (r *Reloader) OnChange(fn ReloadFunc) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// Source returns the source being loaded.
func (r *Reloader) Source() Source { return r.source }

// Reload loads the source once and swaps the result into the corpus. It
// reports whether the content differed from the previous load. Change
// callbacks run after the swap, outside the reloader's lock.
func (r *Reloader) Reload(ctx context.Context) (changed bool, err error) {
	ctx, span := observe.StartSpan(ctx, "corpus.reload")
	defer func() { observe.EndSpan(span, err) }()

	records, err := r.source.Load(ctx)
	if err == nil {
		var sum [sha256.Size]byte
		if sum, err = hashRecords(records); err == nil {
			changed = r.apply(records, sum)
			status := observe.StatusUnchanged
			if changed {
				status = observe.StatusOK
			}
			r.metrics.RecordReload(ctx, status, len(records))
			return changed, nil
		}
	}

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	r.metrics.RecordReload(ctx, observe.StatusError, 0)
	r.logger.Warn("corpus: reload failed, keeping previous records",
		"source", r.source.Name(), "err", err)
	return false, fmt.Errorf("corpus: reload %s: %w", r.source.Name(), err)
}

func (r *Reloader) apply(records []qa.Record, sum [sha256.Size]byte) bool {
	r.mu.Lock()
	r.lastErr = nil
	r.corpus.Replace(records, r.now())
	if r.loaded && sum == r.lastHash {
		r.mu.Unlock()
		return false
	}
	r.loaded = true
	r.lastHash = sum
	fns := slices.Clone(r.onChange)
	r.mu.Unlock()

	r.logger.Info("corpus: loaded", "source", r.source.Name(), "records", len(records))
	for _, fn := range fns {
		fn(records)
	}
	return true
}

// LastError returns the error of the most recent reload, or nil.
func (r *Reloader) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Run reloads every interval until ctx is done. Without an interval it
// returns immediately. Errors are logged, never returned.
func (r *Reloader) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = r.Reload(ctx)
		}
	}
}

func hashRecords(records []qa.Record) ([sha256.Size]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("corpus: hash records: %w", err)
	}
	return sha256.Sum256(data), nil
}
