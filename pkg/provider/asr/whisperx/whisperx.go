// Package whisperx provides an ASR provider backed by a self-hosted WhisperX
// transcription service.
//
// The service exposes a small REST API: POST /transcribe accepts a multipart
// audio upload with recognition parameters and GET /health reports model and
// device state. The server manages its own GPU recovery (VRAM clearing and
// model restarts between attempts), so the client keeps its retry loop short
// and bounds every attempt with the request context.
//
// Usage:
//
//	p, err := whisperx.New("http://localhost:5000",
//	    whisperx.WithLanguage("de"),
//	    whisperx.WithSpeedMode("precision"),
//	)
//	res, err := p.Transcribe(ctx, audio, "audio/wav", asr.Hints{})
package whisperx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/skribent/skribent/pkg/provider/asr"
)

const (
	defaultLanguage  = "de"
	defaultSpeedMode = "precision"
	defaultAttempts  = 3
	defaultTimeout   = 5 * time.Minute
)

// formatPrompt is always included in the initial prompt so the model keeps
// dictated punctuation and brackets instead of dropping them.
const formatPrompt = "Klammern (so wie diese) und Satzzeichen wie Punkt, Komma, Doppelpunkt und Semikolon sind wichtig."

// Provider implements [asr.Provider] against a WhisperX service.
type Provider struct {
	baseURL   string
	client    *http.Client
	language  string
	speedMode string
	align     bool
	attempts  int
}

var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the recognition language code sent to the service.
// Defaults to "de".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeedMode selects "turbo" (lowest latency, no alignment) or
// "precision" (full WhisperX pipeline with word alignment). Defaults to
// "precision" — dictation is an offline batch workload.
func WithSpeedMode(mode string) Option {
	return func(p *Provider) {
		p.speedMode = mode
	}
}

// WithAlignment toggles word-level alignment in precision mode. Defaults to
// true.
func WithAlignment(align bool) Option {
	return func(p *Provider) {
		p.align = align
	}
}

// WithAttempts sets how many times a failed transcription request is retried
// against the service before giving up. Defaults to 3, matching the
// service's own recovery cycle.
func WithAttempts(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithHTTPClient replaces the default HTTP client (5 minute timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// New creates a Provider for the WhisperX service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("whisperx: baseURL must not be empty")
	}

	p := &Provider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: defaultTimeout},
		language:  defaultLanguage,
		speedMode: defaultSpeedMode,
		align:     true,
		attempts:  defaultAttempts,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ID implements asr.Provider.
func (p *Provider) ID() string { return "whisperx" }

// transcribeResponse is the service's success payload.
type transcribeResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Mode     string  `json:"mode"`
	Duration float64 `json:"duration"`
}

// errorResponse is the service's failure payload.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Transcribe implements asr.Provider. The request is retried up to the
// configured attempt count; the service restarts its models between failed
// attempts on its side, so immediate retries are worthwhile.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string, hints asr.Hints) (*asr.Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("whisperx: empty audio")
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := p.transcribeOnce(ctx, audio, mimeType, hints)
		if err == nil {
			return res, nil
		}
		lastErr = err

		// Rejections will not heal with a retry.
		if errors.Is(err, asr.ErrRejected) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("whisperx: all %d attempts failed: %w", p.attempts, lastErr)
}

func (p *Provider) transcribeOnce(ctx context.Context, audio []byte, mimeType string, hints asr.Hints) (*asr.Result, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	fw, err := w.CreateFormFile("file", "dictation"+extensionFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("whisperx: build multipart: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("whisperx: build multipart: %w", err)
	}

	lang := p.language
	if hints.Language != "" {
		lang = hints.Language
	}
	fields := map[string]string{
		"language":       lang,
		"align":          fmt.Sprintf("%t", p.align),
		"speed_mode":     p.speedMode,
		"initial_prompt": buildInitialPrompt(hints),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisperx: build multipart: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("whisperx: build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("whisperx: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisperx: %w: %w", asr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("whisperx: %w: read response: %w", asr.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var tr transcribeResponse
		if err := json.Unmarshal(data, &tr); err != nil {
			return nil, fmt.Errorf("whisperx: decode response: %w", err)
		}
		return &asr.Result{Text: strings.TrimSpace(tr.Text), ProviderID: p.ID()}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("whisperx: %w: %s", asr.ErrRejected, errorDetail(data, resp.StatusCode))

	default:
		return nil, fmt.Errorf("whisperx: %w: %s", asr.ErrUnavailable, errorDetail(data, resp.StatusCode))
	}
}

// Health probes the service's /health endpoint. A nil return means the
// service is reachable and reports itself healthy.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("whisperx: build health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("whisperx: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whisperx: health: status %d", resp.StatusCode)
	}

	var h struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("whisperx: health: decode: %w", err)
	}
	if h.Status != "healthy" {
		return fmt.Errorf("whisperx: health: service reports %q", h.Status)
	}
	return nil
}

// buildInitialPrompt combines the fixed format hint, the caller's prompt, and
// the dictionary vocabulary into the service's initial_prompt field.
func buildInitialPrompt(hints asr.Hints) string {
	parts := []string{formatPrompt}
	if hints.InitialPrompt != "" {
		parts = append(parts, hints.InitialPrompt)
	}
	if len(hints.Vocabulary) > 0 {
		parts = append(parts, "Fachbegriffe: "+strings.Join(hints.Vocabulary, ", ")+".")
	}
	return strings.Join(parts, " ")
}

// errorDetail extracts the service's error message from a failure payload,
// falling back to the bare status code.
func errorDetail(data []byte, status int) string {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && (er.Error != "" || er.Message != "") {
		return strings.TrimSpace(strings.Join([]string{er.Error, er.Message}, " "))
	}
	return fmt.Sprintf("status %d", status)
}

// extensionFor picks a filename extension the service can use to sniff the
// container format.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/flac":
		return ".flac"
	default:
		return ".wav"
	}
}
