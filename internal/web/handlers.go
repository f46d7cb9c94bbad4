package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/voiceqa/internal/assistant"
	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/history"
	"github.com/MrWong99/voiceqa/internal/observe"
	"github.com/MrWong99/voiceqa/internal/qa"
	"github.com/MrWong99/voiceqa/internal/upload"
	"github.com/MrWong99/voiceqa/pkg/provider/stt"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// Reloader refreshes the corpus on demand. [corpus.Reloader] satisfies it.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Config wires the HTTP surface to the application.
type Config struct {
	Assistant *assistant.Assistant
	Uploads   *upload.Service
	Reloader  Reloader
	Corpus    *qa.Corpus

	// STT enables the /api/listen socket. Nil answers 503.
	STT    stt.Provider
	Stream stt.StreamConfig

	Metrics *observe.Metrics

	// MetricsHandler serves /metrics. Nil leaves the route out.
	MetricsHandler http.Handler
}

// Handler implements the API handlers.
type Handler struct {
	cfg Config
}

// NewHandler returns a Handler for cfg.
func NewHandler(cfg Config) *Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Handler{cfg: cfg}
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
	Selected   string   `json:"selected"`
	Speak      bool     `json:"speak"`
}

// Categories handles GET /api/categories.
func (h *Handler) Categories(w http.ResponseWriter, _ *http.Request) {
	a := h.cfg.Assistant
	writeJSON(w, http.StatusOK, categoriesResponse{
		Categories: a.Categories(),
		Selected:   a.Category(),
		Speak:      a.Speak(),
	})
}

// SetCategory handles PUT /api/category.
func (h *Handler) SetCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.cfg.Assistant.SetCategory(req.Category); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown category %q", req.Category))
		return
	}
	h.Categories(w, r)
}

// SetSpeak handles PUT /api/speak.
func (h *Handler) SetSpeak(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		WriteProblem(w, r, http.StatusBadRequest, "enabled is required")
		return
	}
	h.cfg.Assistant.SetSpeak(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// Ask handles POST /api/ask with a final transcript from the browser.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteProblem(w, r, http.StatusBadRequest, "text is required")
		return
	}

	ctx := assistant.WithSource(r.Context(), assistant.SourceHTTP)
	out, err := h.cfg.Assistant.HandleTranscript(ctx, req.Text)
	if err != nil {
		// Speaking failed; the outcome still carries the answer.
		observe.Logger(ctx).Warn("web: ask answered without speech", "err", err)
	}
	writeJSON(w, http.StatusOK, out)
}

type historyResponse struct {
	Entries []history.Entry `json:"entries"`
}

// History handles GET /api/history.
func (h *Handler) History(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, historyResponse{Entries: h.cfg.Assistant.History()})
}

// ClearHistory handles DELETE /api/history.
func (h *Handler) ClearHistory(w http.ResponseWriter, _ *http.Request) {
	h.cfg.Assistant.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// AddQuestion handles POST /api/questions.
func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var req upload.Request
	if !decode(w, r, &req) {
		return
	}
	res, err := h.cfg.Uploads.Submit(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, res)
	case errors.Is(err, upload.ErrMissingFields):
		WriteProblem(w, r, http.StatusBadRequest, "Please fill all fields.")
	case errors.Is(err, upload.ErrDuplicate):
		WriteProblem(w, r, http.StatusConflict, "This question already exists.")
	case errors.Is(err, corpus.ErrReadOnly):
		WriteProblem(w, r, http.StatusServiceUnavailable, "No writable question store is configured.")
	default:
		observe.Logger(r.Context()).Error("web: upload failed", "err", err)
		WriteProblem(w, r, http.StatusBadGateway, "Upload failed.")
	}
}

type uploadsResponse struct {
	Recent     []string `json:"recent"`
	Categories []string `json:"categories"`
}

// Uploads handles GET /api/uploads: the upload log and the form categories.
func (h *Handler) Uploads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, uploadsResponse{
		Recent:     h.cfg.Uploads.Recent(),
		Categories: h.cfg.Uploads.Categories(),
	})
}

type reloadResponse struct {
	Changed bool `json:"changed"`
	Records int  `json:"records"`
}

// Reload handles POST /api/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	changed, err := h.cfg.Reloader.Reload(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("web: reload failed", "err", err)
		WriteProblem(w, r, http.StatusBadGateway, "Failed to load questions.")
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Changed: changed, Records: h.cfg.Corpus.Len()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}
