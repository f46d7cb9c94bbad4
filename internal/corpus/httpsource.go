package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/voiceqa/internal/qa"
)

const (
	defaultHTTPTimeout = 15 * time.Second

	// maxResponseBytes caps the size of a corpus document.
	maxResponseBytes = 16 << 20
)

// HTTPSource reads and appends records through a spreadsheet web app. GET on
// the endpoint returns a JSON array of {"Category","Question","Answer"}
// objects; POST with one such object appends a row.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

var _ Store = (*HTTPSource)(nil)

// HTTPOption configures an [HTTPSource].
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// NewHTTPSource returns a source for the web app at endpoint.
func NewHTTPSource(endpoint string, opts ...HTTPOption) (*HTTPSource, error) {
	if endpoint == "" {
		return nil, errors.New("corpus: http source requires an endpoint")
	}
	s := &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name implements [Source].
func (s *HTTPSource) Name() string { return "http" }

// Load fetches the full record list.
func (s *HTTPSource) Load(ctx context.Context) ([]qa.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("corpus: http: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := s.do(req)
	if err != nil {
		return nil, err
	}
	var records []qa.Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("corpus: http: decode records: %w", err)
	}
	return records, nil
}

// Add posts rec as a new row. The web app does not enforce uniqueness, so
// callers check for duplicates against the loaded corpus first.
func (s *HTTPSource) Add(ctx context.Context, rec qa.Record) error {
	rec, err := CheckRecord(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("corpus: http: encode record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("corpus: http: build request: %w", err)
	}
	// Apps Script web apps reject preflighted content types.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	_, err = s.do(req)
	return err
}

func (s *HTTPSource) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("corpus: http: %s: %w", req.Method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("corpus: http: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("corpus: http: %s returned status %d", req.Method, resp.StatusCode)
	}
	return body, nil
}
