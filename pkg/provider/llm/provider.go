// Package llm defines the Provider interface for the language-model backends
// used by the merge and correction stages.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Ollama,
// llama.cpp, …) behind a uniform single-turn completion call. Providers also
// expose their input-size limit so the correction engine can compute chunk
// boundaries: cloud APIs constrain input by characters, local runtimes by
// tokens.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// CompletionRequest carries one single-turn completion.
type CompletionRequest struct {
	// SystemPrompt is the instruction injected before the user content. The
	// correction engine sends an identical system prompt for every chunk of
	// one document so providers with prompt caching can reuse it.
	SystemPrompt string

	// UserPrompt is the user-role content. Untrusted dictation text inside
	// it should be wrapped with [WrapData] so the model treats it as data.
	UserPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// JSONMode asks the model to emit a single JSON object. Providers
	// without a native JSON output switch enforce it via instruction.
	JSONMode bool
}

// CompletionResponse is the result of [Provider.Complete].
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Model is the concrete model identifier that served the request, used
	// for correction log attribution.
	Model string
}

// InputLimit describes how much input a provider accepts per request.
// Exactly one of the fields is non-zero.
type InputLimit struct {
	// MaxChars is the input budget in characters (cloud providers).
	MaxChars int

	// MaxTokens is the input budget in model tokens (local providers).
	MaxTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens text consumes in the model's
	// context window. The estimate need not be exact but must not
	// undercount by more than a small margin.
	CountTokens(text string) int

	// InputLimit returns the provider's per-request input budget.
	InputLimit() InputLimit

	// Name identifies the backend for logs and correction log attribution
	// (e.g. "anyllm/ollama").
	Name() string
}
