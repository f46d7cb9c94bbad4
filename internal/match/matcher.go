// Package match finds the corpus record that best answers a recognised
// utterance.
//
// Matching is a linear scan. Each candidate question is scored against the
// utterance by a [Scorer]; the highest score wins, ties keep the record that
// appears first, and the winner is only returned when its score strictly
// exceeds the acceptance threshold.
//
// The default scorer, [SubstringScorer], reproduces the word-overlap rule the
// assistant has always used:
//
//	score = 200 * common / (len(words(utterance)) + len(words(question)))
//
// where a word of the utterance is common when the question contains it as a
// substring. Short words therefore match inside longer ones ("a" inside
// "answer"). [TokenScorer] and [PhoneticScorer] are stricter alternatives.
package match

import (
	"github.com/MrWong99/voiceqa/internal/qa"
)

// DefaultThreshold is the exclusive minimum score a match must exceed.
const DefaultThreshold = 40.0

// Result is the best match for an utterance.
type Result struct {
	Score    float64 `json:"score"`
	Category string  `json:"category"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithScorer replaces the default [SubstringScorer].
func WithScorer(s Scorer) Option {
	return func(m *Matcher) {
		if s != nil {
			m.scorer = s
		}
	}
}

// WithThreshold sets the exclusive acceptance threshold. Default: 40.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// Matcher scores utterances against a corpus. It holds no mutable state and is
// safe for concurrent use.
type Matcher struct {
	scorer    Scorer
	threshold float64
}

// New returns a [Matcher] with the default scorer and threshold unless
// overridden by opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		scorer:    SubstringScorer{},
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Threshold returns the acceptance threshold in use.
func (m *Matcher) Threshold() float64 { return m.threshold }

// ScorerName returns the name of the configured scorer.
func (m *Matcher) ScorerName() string { return m.scorer.Name() }

// Match returns the best record for utterance among corpus, restricted to
// category unless category is empty or [qa.AllCategories]. The category
// comparison is exact and case-sensitive.
//
// ok is false when the utterance is empty, no candidate remains after
// filtering, or the best score does not exceed the threshold. Records missing
// a question or an answer score zero.
func (m *Matcher) Match(utterance string, corpus []qa.Record, category string) (res Result, ok bool) {
	u := qa.Normalize(utterance)
	if u == "" {
		return Result{}, false
	}
	filter := category != "" && category != qa.AllCategories

	best := -1
	var bestScore float64
	for i, r := range corpus {
		if filter && r.Category != category {
			continue
		}
		if !r.Complete() {
			continue
		}
		score := m.scorer.Score(u, qa.Normalize(r.Question))
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore <= m.threshold {
		return Result{}, false
	}
	r := corpus[best]
	return Result{
		Score:    bestScore,
		Category: r.Category,
		Question: r.Question,
		Answer:   r.Answer,
	}, true
}
