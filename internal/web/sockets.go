package web

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voiceqa/internal/assistant"
	"github.com/MrWong99/voiceqa/internal/observe"
)

const (
	// writeTimeout bounds a single websocket write.
	writeTimeout = 5 * time.Second

	// listenFlushTimeout is how long /api/listen waits for the recogniser to
	// deliver its last finals after the client disconnects.
	listenFlushTimeout = 5 * time.Second
)

// audioHeader precedes every binary PCM frame on /api/events.
type audioHeader struct {
	Kind       assistant.EventKind `json:"kind"`
	Text       string              `json:"text"`
	SampleRate int                 `json:"sample_rate"`
	Channels   int                 `json:"channels"`
	Bytes      int                 `json:"bytes"`
}

// Events handles GET /api/events. Every assistant event is sent as a JSON
// text frame. Audio events are a JSON header frame followed by one binary
// frame of 16-bit PCM.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("web: events accept failed", "err", err)
		return
	}
	defer c.CloseNow()

	events, unsubscribe := h.cfg.Assistant.Subscribe()
	defer unsubscribe()

	// Clients only listen; CloseRead handles their close frames.
	ctx := c.CloseRead(r.Context())

	hello := assistant.Event{Kind: assistant.EventCorpus, Categories: h.cfg.Assistant.Categories()}
	if err := writeEvent(ctx, c, hello); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeEvent(ctx, c, ev); err != nil {
				observe.Logger(ctx).Debug("web: events client gone", "err", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, c *websocket.Conn, ev assistant.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if ev.Kind != assistant.EventAudio || ev.Audio == nil {
		return wsjson.Write(ctx, c, ev)
	}
	hdr := audioHeader{
		Kind:       ev.Kind,
		Text:       ev.Text,
		SampleRate: ev.Audio.SampleRate,
		Channels:   ev.Audio.Channels,
		Bytes:      len(ev.Audio.PCM),
	}
	if err := wsjson.Write(ctx, c, hdr); err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageBinary, ev.Audio.PCM)
}

// Listen handles GET /api/listen. The client streams binary frames of PCM in
// the configured stream format; the server recognises them and hands finals
// to the assistant. Outcomes are delivered on /api/events.
func (h *Handler) Listen(w http.ResponseWriter, r *http.Request) {
	if h.cfg.STT == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Speech recognition is not configured.")
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("web: listen accept failed", "err", err)
		return
	}
	defer c.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx)

	sess, err := h.cfg.STT.StartStream(ctx, h.cfg.Stream)
	if err != nil {
		log.Error("web: start recognition failed", "err", err)
		c.Close(websocket.StatusInternalError, "speech recognition unavailable")
		return
	}

	listenDone := make(chan error, 1)
	go func() { listenDone <- h.cfg.Assistant.Listen(ctx, sess) }()

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if err := sess.SendAudio(data); err != nil {
			log.Warn("web: forwarding audio failed", "err", err)
			break
		}
	}

	if err := sess.Close(); err != nil {
		log.Warn("web: closing recognition session", "err", err)
	}
	select {
	case <-listenDone:
	case <-time.After(listenFlushTimeout):
		cancel()
		<-listenDone
	}
	c.Close(websocket.StatusNormalClosure, "")
}
