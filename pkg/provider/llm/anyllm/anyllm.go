// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// local llama.cpp servers.
//
// Usage:
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	p, err := anyllm.New("ollama", "qwen2.5:14b")
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/skribent/skribent/pkg/provider/llm"
)

// localBackends run on the caller's hardware and constrain input by tokens
// rather than characters.
var localBackends = map[string]bool{
	"ollama":    true,
	"llamacpp":  true,
	"llamafile": true,
}

// jsonModeHint is appended to the system prompt when the request asks for
// JSON output; the unified any-llm layer has no response-format switch.
const jsonModeHint = "\n\nRespond with exactly one JSON object and nothing else — no markdown fences, no prose."

// Provider implements [llm.Provider] by wrapping any-llm-go.
type Provider struct {
	backend     anyllmlib.Provider
	backendName string
	model       string
	limit       llm.InputLimit
}

var _ llm.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithInputLimit overrides the derived input budget. Use it when a deployment
// runs a model with a non-default context configuration.
func WithInputLimit(limit llm.InputLimit) Option {
	return func(p *Provider) {
		p.limit = limit
	}
}

// New creates a Provider for the named backend.
//
// backendName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". model is the
// concrete model identifier. backendOpts are any-llm-go options such as
// anyllmlib.WithAPIKey or anyllmlib.WithBaseURL; without an API key option
// the backend falls back to its conventional environment variable.
func New(backendName, model string, backendOpts []anyllmlib.Option, opts ...Option) (*Provider, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backendName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(backendName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}

	p := &Provider{
		backend:     backend,
		backendName: strings.ToLower(backendName),
		model:       model,
		limit:       defaultLimit(strings.ToLower(backendName), model),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(backendName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(backendName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", backendName)
	}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	sysPrompt := req.SystemPrompt
	if req.JSONMode {
		sysPrompt += jsonModeHint
	}

	var messages []anyllmlib.Message
	if sysPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: sysPrompt,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.UserPrompt,
	})

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.ContentString(),
		Model:   p.model,
	}, nil
}

// CountTokens implements llm.Provider with a local approximation.
// ~4 characters per token holds for most current tokenisers; rounding up
// keeps the estimate on the conservative side.
func (p *Provider) CountTokens(text string) int {
	return (len(text) + 3) / 4
}

// InputLimit implements llm.Provider.
func (p *Provider) InputLimit() llm.InputLimit { return p.limit }

// Name implements llm.Provider.
func (p *Provider) Name() string { return "anyllm/" + p.backendName }

// defaultLimit derives an input budget from the backend kind and the model
// family. Local backends are constrained in tokens; cloud backends in
// characters (the correction engine splits on whichever budget applies).
func defaultLimit(backendName, model string) llm.InputLimit {
	if localBackends[backendName] {
		// Leave room for the system prompt and the completion within a
		// typical 8k local context.
		return llm.InputLimit{MaxTokens: 4_096}
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-3.5"):
		return llm.InputLimit{MaxChars: 40_000}
	case strings.HasPrefix(lower, "gpt-"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		return llm.InputLimit{MaxChars: 300_000}
	case strings.HasPrefix(lower, "claude"):
		return llm.InputLimit{MaxChars: 500_000}
	case strings.HasPrefix(lower, "gemini"):
		return llm.InputLimit{MaxChars: 500_000}
	default:
		return llm.InputLimit{MaxChars: 40_000}
	}
}
