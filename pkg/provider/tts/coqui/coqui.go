// Package coqui provides a tts.Provider backed by a Coqui TTS server.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with query
//     parameters; the voice catalogue comes from GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is
//     POST /tts_to_audio/ with a JSON body; voices come from GET /studio_speakers.
//
// Both servers answer with a WAV file per request. The header is stripped and
// the PCM optionally resampled before it is returned.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	audio, err := p.Synthesize(ctx, "Question: why? Answer: because.", tts.VoiceProfile{})
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/voiceqa/pkg/audio/wav"
	"github.com/MrWong99/voiceqa/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	xttsEndpoint           = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode selects the server API. Defaults to [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithOutputSampleRate resamples mono output to rate. Zero keeps the model's
// native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// WithHTTPClient replaces the HTTP client. The configured timeout is kept
// unless c sets its own.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c.Timeout == 0 {
			c.Timeout = p.httpClient.Timeout
		}
		p.httpClient = c
	}
}

// Provider implements tts.Provider against a Coqui server. It is safe for
// concurrent use.
type Provider struct {
	serverURL  string
	language   string
	apiMode    APIMode
	outputRate int
	httpClient *http.Client
}

// New creates a Provider that targets the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the body of GET /details. Speakers is empty for
// single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders text in one request and returns the decoded PCM.
// XTTS mode requires a voice ID; standard mode falls back to the model's
// default speaker when voice.ID is empty.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errors.New("coqui: text must not be empty")
	}

	var req *http.Request
	var err error
	switch p.apiMode {
	case APIModeXTTS:
		if voice.ID == "" {
			return tts.Audio{}, errors.New("coqui: xtts mode requires a voice ID")
		}
		body, merr := json.Marshal(xttsRequest{Text: text, SpeakerWav: voice.ID, Language: p.language})
		if merr != nil {
			return tts.Audio{}, fmt.Errorf("coqui: marshal tts request: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		params := url.Values{}
		params.Set("text", text)
		if voice.ID != "" {
			params.Set("speaker_id", voice.ID)
		}
		if p.language != "" {
			params.Set("language_id", p.language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	body, err := p.do(req)
	if err != nil {
		return tts.Audio{}, err
	}

	pcm, f, err := wav.PCM(body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: decode response: %w", err)
	}
	rate := f.SampleRate
	if p.outputRate > 0 && rate != p.outputRate && f.Channels == 1 {
		pcm = wav.ResampleMono16(pcm, rate, p.outputRate)
		rate = p.outputRate
	}
	return tts.Audio{PCM: pcm, SampleRate: rate, Channels: f.Channels}, nil
}

// ListVoices returns the server's voice catalogue sorted by ID. For a
// single-speaker standard model one profile named after the model is
// returned.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeXTTS {
		return p.listVoicesXTTS(ctx)
	}
	return p.listVoicesStandard(ctx)
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.VoiceProfile, error) {
	var raw map[string]json.RawMessage
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Language: p.language,
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return profiles, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.VoiceProfile, error) {
	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}

	if len(details.Speakers) == 0 {
		name := details.ModelName
		if name == "" {
			name = "default"
		}
		return []tts.VoiceProfile{{
			Name:     name,
			Provider: "coqui",
			Language: details.Language,
			Metadata: map[string]string{"type": "single-speaker", "model_name": name},
		}}, nil
	}

	speakers := slices.Clone(details.Speakers)
	slices.Sort(speakers)
	profiles := make([]tts.VoiceProfile, 0, len(speakers))
	for _, spk := range speakers {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       spk,
			Name:     spk,
			Provider: "coqui",
			Language: details.Language,
			Metadata: map[string]string{"type": "speaker", "model_name": details.ModelName},
		})
	}
	return profiles, nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	body, err := p.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("coqui: decode %s response: %w", endpoint, err)
	}
	return nil
}

func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read response: %w", err)
	}
	return body, nil
}
