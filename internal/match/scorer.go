package match

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// Scorer computes a similarity score in the range the assistant compares
// against its threshold. Both arguments are already normalized.
type Scorer interface {
	Name() string
	Score(utterance, question string) float64
}

// Scorer names accepted by [ScorerByName].
const (
	ScorerSubstring = "substring"
	ScorerToken     = "token"
	ScorerPhonetic  = "phonetic"
)

// ScorerByName returns the built-in scorer registered under name. An empty
// name selects [SubstringScorer].
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "", ScorerSubstring:
		return SubstringScorer{}, nil
	case ScorerToken:
		return TokenScorer{}, nil
	case ScorerPhonetic:
		return NewPhoneticScorer(), nil
	default:
		return nil, fmt.Errorf("match: unknown scorer %q", name)
	}
}

// words splits s into whitespace-separated tokens, keeping repeats.
func words(s string) []string {
	return strings.Fields(s)
}

// dice turns a common-word count into the symmetric overlap score.
func dice(common, a, b int) float64 {
	if a+b == 0 {
		return 0
	}
	return 200 * float64(common) / float64(a+b)
}

// SubstringScorer counts an utterance word as common when the question
// contains it anywhere, including inside a longer word. Repeated utterance
// words are counted once per occurrence, so the score can exceed 100.
type SubstringScorer struct{}

// Name implements [Scorer].
func (SubstringScorer) Name() string { return ScorerSubstring }

// Score implements [Scorer].
func (SubstringScorer) Score(utterance, question string) float64 {
	uw, qw := words(utterance), words(question)
	if len(uw) == 0 || len(qw) == 0 {
		return 0
	}
	common := 0
	for _, w := range uw {
		if strings.Contains(question, w) {
			common++
		}
	}
	return dice(common, len(uw), len(qw))
}

// TokenScorer counts an utterance word as common only when it equals a word
// of the question.
type TokenScorer struct{}

// Name implements [Scorer].
func (TokenScorer) Name() string { return ScorerToken }

// Score implements [Scorer].
func (TokenScorer) Score(utterance, question string) float64 {
	uw, qw := words(utterance), words(question)
	if len(uw) == 0 || len(qw) == 0 {
		return 0
	}
	common := 0
	for _, w := range uw {
		if slices.Contains(qw, w) {
			common++
		}
	}
	return dice(common, len(uw), len(qw))
}

const defaultPhoneticSimilarity = 0.70

// PhoneticScorer treats an utterance word as common when it equals a question
// word or shares a Double Metaphone code with one whose Jaro-Winkler
// similarity reaches the configured minimum. It tolerates recogniser
// misspellings such as "wright" for "right".
type PhoneticScorer struct {
	minSimilarity float64
}

// PhoneticOption configures a [PhoneticScorer].
type PhoneticOption func(*PhoneticScorer)

// WithMinSimilarity sets the Jaro-Winkler floor for phonetic word matches.
// Default: 0.70.
func WithMinSimilarity(v float64) PhoneticOption {
	return func(p *PhoneticScorer) {
		p.minSimilarity = v
	}
}

// NewPhoneticScorer returns a [PhoneticScorer].
func NewPhoneticScorer(opts ...PhoneticOption) PhoneticScorer {
	p := PhoneticScorer{minSimilarity: defaultPhoneticSimilarity}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// Name implements [Scorer].
func (PhoneticScorer) Name() string { return ScorerPhonetic }

// Score implements [Scorer].
func (p PhoneticScorer) Score(utterance, question string) float64 {
	uw, qw := words(utterance), words(question)
	if len(uw) == 0 || len(qw) == 0 {
		return 0
	}
	qcodes := make([][2]string, len(qw))
	for i, w := range qw {
		a, b := matchr.DoubleMetaphone(w)
		qcodes[i] = [2]string{a, b}
	}

	common := 0
	for _, w := range uw {
		if p.matchesAny(w, qw, qcodes) {
			common++
		}
	}
	return dice(common, len(uw), len(qw))
}

func (p PhoneticScorer) matchesAny(w string, qw []string, qcodes [][2]string) bool {
	a, b := matchr.DoubleMetaphone(w)
	for i, q := range qw {
		if q == w {
			return true
		}
		if !codesShared([2]string{a, b}, qcodes[i]) {
			continue
		}
		if matchr.JaroWinkler(w, q, false) >= p.minSimilarity {
			return true
		}
	}
	return false
}

func codesShared(x, y [2]string) bool {
	for _, a := range x {
		if a == "" {
			continue
		}
		for _, b := range y {
			if a == b {
				return true
			}
		}
	}
	return false
}
