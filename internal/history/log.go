// Package history keeps the short, newest-first log of answered questions and
// decides when a question is a repeat.
//
// A [Log] holds at most its capacity of entries. What counts as a repeat is a
// named [Policy]:
//
//   - [PolicyWindow]: the question was recorded less than the window ago. The
//     window runs from the time the entry was inserted and is not extended by
//     repeats. Eviction does not end the window.
//   - [PolicyLog]: the question is among the entries currently held.
//   - [PolicySession]: the question was recorded at any point since the log
//     was created or last cleared.
//
// A repeat never inserts a new entry. The retained entry, when it is still in
// the log, is flagged instead.
//
// Time is always supplied by the caller, which keeps every transition
// deterministic.
package history

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Defaults applied by [New].
const (
	DefaultCapacity = 3
	DefaultWindow   = 60 * time.Second
)

// ErrInvalidCapacity is returned by [New] when the capacity is below one.
var ErrInvalidCapacity = errors.New("history: capacity must be at least 1")

// Policy names a repeat detection strategy.
type Policy string

const (
	PolicyWindow  Policy = "window"
	PolicyLog     Policy = "log"
	PolicySession Policy = "session"
)

// IsValid reports whether p is a recognised policy.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyWindow, PolicyLog, PolicySession:
		return true
	}
	return false
}

// Entry is one answered question.
type Entry struct {
	Question  string    `json:"question"`
	HeardText string    `json:"heard_text"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
	IsRepeat  bool      `json:"is_repeat"`
}

// RenderPlan is what a presentation layer needs after a [Log.Record]: the
// entries newest first and whether the call was a repeat.
type RenderPlan struct {
	Entries   []Entry `json:"entries"`
	WasRepeat bool    `json:"was_repeat"`
}

// Option is a functional option for configuring a [Log].
type Option func(*Log)

// WithCapacity sets the maximum number of entries. Default: 3.
func WithCapacity(n int) Option {
	return func(l *Log) {
		l.capacity = n
	}
}

// WithPolicy selects the repeat detection policy. Default: [PolicyWindow].
func WithPolicy(p Policy) Option {
	return func(l *Log) {
		l.policy = p
	}
}

// WithWindow sets the recency window used by [PolicyWindow]. A zero window
// turns the window policy into [PolicyLog]. Default: 60s.
func WithWindow(d time.Duration) Option {
	return func(l *Log) {
		l.window = d
	}
}

// Log is a fixed-capacity history of answered questions. It is safe for
// concurrent use.
type Log struct {
	capacity int
	policy   Policy
	window   time.Duration

	mu       sync.Mutex
	entries  []Entry              // newest first
	inserted map[string]time.Time // PolicyWindow: question -> insertion time
	asked    map[string]struct{}  // PolicySession: every question recorded
}

// New returns an empty [Log]. It fails with [ErrInvalidCapacity] for a
// capacity below one and rejects unknown policies.
func New(opts ...Option) (*Log, error) {
	l := &Log{
		capacity: DefaultCapacity,
		policy:   PolicyWindow,
		window:   DefaultWindow,
	}
	for _, o := range opts {
		o(l)
	}
	if l.capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, l.capacity)
	}
	if !l.policy.IsValid() {
		return nil, fmt.Errorf("history: unknown policy %q", l.policy)
	}
	if l.window < 0 {
		return nil, fmt.Errorf("history: window must not be negative, got %s", l.window)
	}
	if l.policy == PolicyWindow && l.window == 0 {
		l.policy = PolicyLog
	}
	l.reset()
	return l, nil
}

// Capacity returns the maximum number of entries.
func (l *Log) Capacity() int { return l.capacity }

// Policy returns the effective repeat policy.
func (l *Log) Policy() Policy { return l.policy }

// Window returns the recency window. It is only meaningful for [PolicyWindow].
func (l *Log) Window() time.Duration { return l.window }

// Record adds an answered question heard at now and returns the resulting
// render plan.
//
// Under [PolicyWindow] a question evicted by capacity but still inside its
// window is a repeat with no flagged entry: WasRepeat is true and Entries
// holds only the other questions.
func (l *Log) Record(heard, question, answer string, now time.Time) RenderPlan {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRepeat(question, now) {
		if i := l.indexOf(question); i >= 0 {
			l.entries[i].IsRepeat = true
		}
		return RenderPlan{Entries: l.snapshot(), WasRepeat: true}
	}

	e := Entry{
		Question:  question,
		HeardText: heard,
		Answer:    answer,
		Timestamp: now,
	}
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}

	switch l.policy {
	case PolicyWindow:
		l.pruneWindow(now)
		l.inserted[question] = now
	case PolicySession:
		l.asked[question] = struct{}{}
	}

	return RenderPlan{Entries: l.snapshot()}
}

// Entries returns the current entries, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear removes all entries and forgets every question seen. Calling it on an
// empty log is a no-op.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// isRepeat must be called with l.mu held.
func (l *Log) isRepeat(question string, now time.Time) bool {
	switch l.policy {
	case PolicyWindow:
		at, ok := l.inserted[question]
		return ok && now.Sub(at) < l.window
	case PolicySession:
		_, ok := l.asked[question]
		return ok
	default:
		return l.indexOf(question) >= 0
	}
}

// pruneWindow forgets insertion times that can no longer cause a repeat.
func (l *Log) pruneWindow(now time.Time) {
	for q, at := range l.inserted {
		if now.Sub(at) >= l.window {
			delete(l.inserted, q)
		}
	}
}

func (l *Log) indexOf(question string) int {
	for i := range l.entries {
		if l.entries[i].Question == question {
			return i
		}
	}
	return -1
}

func (l *Log) snapshot() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) reset() {
	l.entries = make([]Entry, 0, l.capacity+1)
	l.inserted = make(map[string]time.Time)
	l.asked = make(map[string]struct{})
}
