package assistant

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

// EventKind identifies the payload of an [Event].
type EventKind string

const (
	EventOutcome        EventKind = "outcome"
	EventPartial        EventKind = "partial"
	EventCategory       EventKind = "category"
	EventSpeak          EventKind = "speak"
	EventHistoryCleared EventKind = "history_cleared"
	EventCorpus         EventKind = "corpus"
	// EventAudio carries synthesised speech in Audio. It is not part of the
	// JSON form.
	EventAudio EventKind = "audio"
)

// subscriberBuffer is the channel depth per subscriber. Slow subscribers
// lose events instead of blocking the assistant.
const subscriberBuffer = 32

// Event is a state change published to subscribers.
type Event struct {
	Kind       EventKind  `json:"kind"`
	Outcome    *Outcome   `json:"outcome,omitempty"`
	Text       string     `json:"text,omitempty"`
	Category   string     `json:"category,omitempty"`
	Speak      *bool      `json:"speak,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Audio      *tts.Audio `json:"-"`
}

type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("assistant: subscriber lagging, event dropped", "subscriber", id, "kind", ev.Kind)
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
