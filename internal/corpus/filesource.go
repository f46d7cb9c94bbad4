package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voiceqa/internal/qa"
)

// FileSource keeps records in a local YAML or JSON document, selected by the
// file extension (.yaml, .yml or .json). A missing file is an empty corpus
// and is created on the first Add.
type FileSource struct {
	path   string
	isJSON bool

	mu sync.Mutex // serialises read-modify-write in Add
}

var _ Store = (*FileSource)(nil)

// NewFileSource returns a source backed by path.
func NewFileSource(path string) (*FileSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return &FileSource{path: path, isJSON: true}, nil
	case ".yaml", ".yml":
		return &FileSource{path: path}, nil
	default:
		return nil, fmt.Errorf("corpus: file: unsupported extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// Name implements [Source].
func (s *FileSource) Name() string { return "file" }

// Path returns the backing file path.
func (s *FileSource) Path() string { return s.path }

// Load reads and decodes the whole file.
func (s *FileSource) Load(_ context.Context) ([]qa.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("corpus: file does not exist yet, starting empty", "path", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: file: %w", err)
	}
	return s.decode(data)
}

// Add appends rec and rewrites the file atomically.
func (s *FileSource) Add(ctx context.Context, rec qa.Record) error {
	rec, err := CheckRecord(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if containsQuestion(records, rec.Question) {
		return ErrDuplicate
	}
	records = append(records, rec)

	data, err := s.encode(records)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

func (s *FileSource) decode(data []byte) ([]qa.Record, error) {
	var records []qa.Record
	var err error
	if s.isJSON {
		err = json.Unmarshal(data, &records)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&records); errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: file: decode %s: %w", s.path, err)
	}
	return records, nil
}

func (s *FileSource) encode(records []qa.Record) ([]byte, error) {
	var data []byte
	var err error
	if s.isJSON {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = yaml.Marshal(records)
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: file: encode: %w", err)
	}
	return data, nil
}

// writeFileAtomic writes data to a temporary sibling of path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("corpus: file: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("corpus: file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("corpus: file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("corpus: file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("corpus: file: rename: %w", err)
	}
	return nil
}
