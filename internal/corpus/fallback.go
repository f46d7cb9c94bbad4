package corpus

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/voiceqa/internal/qa"
	"github.com/MrWong99/voiceqa/internal/resilience"
)

// ErrReadOnly is returned by [Fallback.Add] when no writer was configured.
var ErrReadOnly = errors.New("corpus: no writable source configured")

// Fallback loads from the first healthy source in a chain and sends writes to
// one designated store. Each source sits behind its own circuit breaker.
type Fallback struct {
	group  *resilience.FallbackGroup[Source]
	names  []string
	writer Store
}

var _ Store = (*Fallback)(nil)

// NewFallback chains sources in order. writer may be nil for a read-only
// corpus.
func NewFallback(cfg resilience.FallbackConfig, writer Store, primary Source, rest ...Source) *Fallback {
	f := &Fallback{
		group:  resilience.NewFallbackGroup(primary, primary.Name(), cfg),
		names:  []string{primary.Name()},
		writer: writer,
	}
	for _, s := range rest {
		f.group.AddFallback(s.Name(), s)
		f.names = append(f.names, s.Name())
	}
	return f
}

// Name lists the chained sources, e.g. "http>file".
func (f *Fallback) Name() string { return strings.Join(f.names, ">") }

// Load returns the records of the first source that loads successfully.
func (f *Fallback) Load(ctx context.Context) ([]qa.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return resilience.ExecuteWithResult(f.group, func(s Source) ([]qa.Record, error) {
		return s.Load(ctx)
	})
}

// Add forwards rec to the writer.
func (f *Fallback) Add(ctx context.Context, rec qa.Record) error {
	if f.writer == nil {
		return ErrReadOnly
	}
	return f.writer.Add(ctx, rec)
}

// Statuses reports the breaker state of every source.
func (f *Fallback) Statuses() []resilience.EntryStatus { return f.group.Statuses() }
