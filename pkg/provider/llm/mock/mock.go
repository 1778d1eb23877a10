// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts the pipeline sends and to
// feed controlled responses without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "fixed text", Model: "test-model"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/skribent/skribent/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete. May be nil (returns an
	// empty response).
	CompleteResponse *llm.CompletionResponse

	// CompleteFunc, when set, is consulted instead of CompleteResponse so a
	// test can vary output per request.
	CompleteFunc func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// Limit is returned by InputLimit. Zero value means a 40 000 character
	// budget.
	Limit llm.InputLimit

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req})
	fn := p.CompleteFunc
	resp, err := p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.CompletionResponse{Model: p.Name()}, nil
	}
	return resp, nil
}

// CountTokens implements llm.Provider using the same 4-chars-per-token
// approximation as real providers.
func (p *Provider) CountTokens(text string) int {
	return (len(text) + 3) / 4
}

// InputLimit implements llm.Provider.
func (p *Provider) InputLimit() llm.InputLimit {
	if p.Limit == (llm.InputLimit{}) {
		return llm.InputLimit{MaxChars: 40_000}
	}
	return p.Limit
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Calls returns a snapshot of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}
