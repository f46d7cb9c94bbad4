package sqlitestore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/corpus/sqlitestore"
	"github.com/MrWong99/voiceqa/internal/qa"
)

func openTemp(t *testing.T) (*sqlitestore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "voiceqa.db")
	s, err := sqlitestore.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_AddLoad(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	ctx := context.Background()

	records, err := s.Load(ctx)
	if err != nil || len(records) != 0 {
		t.Fatalf("empty Load = %v, %v", records, err)
	}

	want := []qa.Record{
		{Category: "General", Question: "What is your name", Answer: "I am Q"},
		{Category: "Science", Question: "Why is the sky blue", Answer: "Rayleigh scattering"},
		{Category: "General", Question: "How old are you", Answer: "Brand new"},
	}
	for _, r := range want {
		if err := s.Add(ctx, r); err != nil {
			t.Fatalf("Add(%q): %v", r.Question, err)
		}
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record[%d] = %+v, want %+v (insertion order)", i, got[i], want[i])
		}
	}
	if n, err := s.Count(ctx); err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
	if s.Name() != "sqlite" {
		t.Errorf("Name() = %q", s.Name())
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestStore_Duplicate(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	ctx := context.Background()

	if err := s.Add(ctx, qa.Record{Question: "What is your name", Answer: "Q"}); err != nil {
		t.Fatal(err)
	}
	err := s.Add(ctx, qa.Record{Question: "  what IS your NAME ", Answer: "other"})
	if !errors.Is(err, corpus.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
	if err := s.Add(ctx, qa.Record{Question: "", Answer: "x"}); !errors.Is(err, corpus.ErrIncomplete) {
		t.Errorf("incomplete: err = %v, want ErrIncomplete", err)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()
	s, path := openTemp(t)
	ctx := context.Background()

	if err := s.Add(ctx, qa.Record{Category: "A", Question: "q", Answer: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	again, err := sqlitestore.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	records, err := again.Load(ctx)
	if err != nil || len(records) != 1 {
		t.Fatalf("Load after reopen = %v, %v", records, err)
	}
}

func TestStore_InMemory(t *testing.T) {
	t.Parallel()
	s, err := sqlitestore.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Add(context.Background(), qa.Record{Question: "q", Answer: "a"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(context.Background()); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
