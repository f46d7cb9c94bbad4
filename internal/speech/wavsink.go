package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/MrWong99/voiceqa/pkg/audio/wav"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

// WAVSink writes every played answer to its own WAV file in a directory.
// File names are ULIDs, so a directory listing sorts by time.
type WAVSink struct {
	dir string

	mu   sync.Mutex
	last string
}

var _ Sink = (*WAVSink)(nil)

// NewWAVSink creates dir if needed and returns a sink writing into it.
func NewWAVSink(dir string) (*WAVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: wav sink: %w", err)
	}
	return &WAVSink{dir: dir}, nil
}

// Play writes audio as a 16-bit PCM WAV file.
func (s *WAVSink) Play(_ context.Context, _ string, audio tts.Audio) error {
	path := filepath.Join(s.dir, ulid.Make().String()+".wav")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("speech: wav sink: %w", err)
	}
	werr := wav.Write(f, audio.PCM, wav.Format{SampleRate: audio.SampleRate, Channels: audio.Channels})
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("speech: wav sink: write %s: %w", path, werr)
	}

	s.mu.Lock()
	s.last = path
	s.mu.Unlock()
	return nil
}

// LastPath returns the file written by the most recent successful Play.
func (s *WAVSink) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
