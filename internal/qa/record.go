// Package qa defines the question/answer record model and [Corpus], the
// owned snapshot of records that the matcher reads from.
//
// A corpus is never mutated record by record. Every reload replaces the whole
// slice, so readers always observe a consistent set.
package qa

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
)

// AllCategories is the category selection that disables filtering.
const AllCategories = "All"

// Record is a single category/question/answer triple. The JSON keys match the
// capitalised field names used by the remote sheet store.
type Record struct {
	Category string `json:"Category" yaml:"category"`
	Question string `json:"Question" yaml:"question"`
	Answer   string `json:"Answer"   yaml:"answer"`
}

// Complete reports whether the record carries both a question and an answer.
func (r Record) Complete() bool {
	return r.Question != "" && r.Answer != ""
}

// Normalize lowercases s and trims surrounding whitespace. Utterances and
// questions are compared in this form.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Corpus holds the currently loaded records. It is safe for concurrent use.
type Corpus struct {
	mu       sync.RWMutex
	records  []Record
	loadedAt time.Time
}

// NewCorpus returns a corpus initialised with a copy of records.
func NewCorpus(records ...Record) *Corpus {
	c := &Corpus{}
	if len(records) > 0 {
		c.Replace(records, time.Time{})
	}
	return c
}

// Replace swaps in a copy of records as the new corpus content.
func (c *Corpus) Replace(records []Record, at time.Time) {
	cp := slices.Clone(records)
	c.mu.Lock()
	c.records = cp
	c.loadedAt = at
	c.mu.Unlock()
}

// Records returns a copy of the current records in load order.
func (c *Corpus) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.records)
}

// Len returns the number of loaded records.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// LoadedAt returns the time passed to the last [Corpus.Replace].
func (c *Corpus) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Categories returns the distinct non-empty categories in the order they first
// appear in the corpus.
func (c *Corpus) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(c.records))
	var out []string
	for _, r := range c.records {
		if r.Category == "" {
			continue
		}
		if _, ok := seen[r.Category]; ok {
			continue
		}
		seen[r.Category] = struct{}{}
		out = append(out, r.Category)
	}
	return out
}

// Contains reports whether a record with the same normalized question exists.
func (c *Corpus) Contains(question string) bool {
	want := Normalize(question)
	if want == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.ContainsFunc(c.records, func(r Record) bool {
		return Normalize(r.Question) == want
	})
}

// SortedCategories returns the distinct non-empty categories of records in
// lexical order.
func SortedCategories(records []Record) []string {
	cats := pie.Map(records, func(r Record) string { return r.Category })
	cats = pie.Filter(cats, func(s string) bool { return s != "" })
	return pie.Sort(pie.Unique(cats))
}
