package stt

import "time"

// Transcript is a speech-to-text result. Partial and final results share
// this type.
type Transcript struct {
	Text string

	// IsFinal reports whether the provider has committed to this result.
	IsFinal bool

	// Confidence is in [0, 1]. Zero when the provider does not report it.
	Confidence float64

	// Words holds per-word detail when the provider supplies it.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word timing.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a recognition hint.
type KeywordBoost struct {
	Keyword string

	// Boost is the provider-specific intensity.
	Boost float64
}
