// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider opens a streaming session that accepts raw PCM frames and emits
// two streams of Transcript values: low-latency partials for display and
// authoritative finals that are handed to the matcher.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz, typically 16000.
	SampleRate int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Language is the BCP-47 tag for recognition (e.g. "en-US"). Empty lets the
	// provider pick its default.
	Language string

	// Keywords raise the recognition probability of uncommon words, such as
	// terms that appear in the question corpus.
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session. Callers must call Close when
// done. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM matching the StreamConfig. It returns
	// [ErrSessionClosed] after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Close flushes pending audio and releases resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming session ready to accept audio.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
