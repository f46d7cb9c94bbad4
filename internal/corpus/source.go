// Package corpus loads question/answer records from backing stores and keeps a
// [qa.Corpus] current.
//
// A [Source] returns the full record set on every Load. Stores that also accept
// new records implement [Writer]. The concrete backends live in this package
// (HTTP, file) and in the sqlitestore and pgstore subpackages.
package corpus

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/voiceqa/internal/qa"
)

var (
	// ErrDuplicate is returned by [Writer.Add] when a record with the same
	// normalized question already exists.
	ErrDuplicate = errors.New("corpus: question already exists")

	// ErrIncomplete is returned by [Writer.Add] for a record without a
	// question or answer.
	ErrIncomplete = errors.New("corpus: record requires question and answer")
)

// Source produces the complete record set.
type Source interface {
	// Name identifies the backend in logs and health output.
	Name() string

	// Load returns every record in store order.
	Load(ctx context.Context) ([]qa.Record, error)
}

// Writer appends records.
type Writer interface {
	Add(ctx context.Context, rec qa.Record) error
}

// Store is a Source that also accepts new records.
type Store interface {
	Source
	Writer
}

// CheckRecord trims the fields of rec and rejects it with [ErrIncomplete]
// when the question or answer is empty. Every Writer applies it before
// storing a record.
func CheckRecord(rec qa.Record) (qa.Record, error) {
	rec.Category = strings.TrimSpace(rec.Category)
	rec.Question = strings.TrimSpace(rec.Question)
	rec.Answer = strings.TrimSpace(rec.Answer)
	if !rec.Complete() {
		return rec, ErrIncomplete
	}
	return rec, nil
}

// containsQuestion reports whether records hold question, compared in
// normalized form.
func containsQuestion(records []qa.Record, question string) bool {
	return qa.NewCorpus(records...).Contains(question)
}
