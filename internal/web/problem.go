package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Problem is an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

const problemBase = "https://voiceqa.dev/errors/"

var problemTypes = map[int]struct {
	slug  string
	title string
}{
	http.StatusBadRequest:            {"bad-request", "Bad Request"},
	http.StatusNotFound:              {"not-found", "Not Found"},
	http.StatusConflict:              {"conflict", "Conflict"},
	http.StatusRequestEntityTooLarge: {"too-large", "Request Entity Too Large"},
	http.StatusInternalServerError:   {"internal-error", "Internal Server Error"},
	http.StatusBadGateway:            {"upstream-error", "Bad Gateway"},
	http.StatusServiceUnavailable:    {"service-unavailable", "Service Unavailable"},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	p := Problem{
		Type:     problemBase + "unknown",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	if pt, ok := problemTypes[status]; ok {
		p.Type = problemBase + pt.slug
		p.Title = pt.title
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("web: failed to encode problem response", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("web: failed to encode response", "err", err)
	}
}
