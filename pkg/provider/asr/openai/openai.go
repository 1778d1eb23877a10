// Package openai provides an ASR provider backed by the OpenAI audio
// transcription API (whisper-1, gpt-4o-transcribe).
//
// It serves as the second engine for double-precision dictations and as the
// fallback when the self-hosted WhisperX service is down.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/skribent/skribent/pkg/provider/asr"
)

// Provider implements asr.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

var _ asr.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	timeout  time.Duration
	language string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL (for compatible
// gateways).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Defaults to 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLanguage sets the default recognition language code. Hints override it
// per call.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// New constructs an OpenAI ASR Provider. model is an audio transcription
// model identifier such as "whisper-1".
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai asr: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai asr: model must not be empty")
	}

	cfg := &config{timeout: 5 * time.Minute}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// ID implements asr.Provider.
func (p *Provider) ID() string { return "openai" }

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string, hints asr.Hints) (*asr.Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai asr: empty audio")
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(audio), "dictation"+extensionFor(mimeType), mimeType),
		Model: oai.AudioModel(p.model),
	}
	lang := p.language
	if hints.Language != "" {
		lang = hints.Language
	}
	if lang != "" {
		params.Language = param.NewOpt(lang)
	}
	if prompt := buildPrompt(hints); prompt != "" {
		params.Prompt = param.NewOpt(prompt)
	}

	tr, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	return &asr.Result{Text: strings.TrimSpace(tr.Text), ProviderID: p.ID()}, nil
}

// buildPrompt folds the caller's prompt and dictionary vocabulary into the
// Whisper prompt field, which biases recognition towards the listed terms.
func buildPrompt(hints asr.Hints) string {
	parts := make([]string, 0, 2)
	if hints.InitialPrompt != "" {
		parts = append(parts, hints.InitialPrompt)
	}
	if len(hints.Vocabulary) > 0 {
		parts = append(parts, strings.Join(hints.Vocabulary, ", "))
	}
	return strings.Join(parts, " ")
}

// classify maps SDK errors onto the asr sentinel kinds: API-reported 4xx
// statuses are rejections, everything else (network, timeout, 5xx) is a
// retryable outage.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return fmt.Errorf("openai asr: %w: %w", asr.ErrRejected, err)
	}
	return fmt.Errorf("openai asr: %w: %w", asr.ErrUnavailable, err)
}

func extensionFor(mimeType string) string {
	switch mimeType {
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
