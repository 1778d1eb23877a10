// Package mock provides a test double for the asr.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/skribent/skribent/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Audio    []byte
	MimeType string
	Hints    asr.Hints
}

// Provider is a mock implementation of asr.Provider.
// Zero values cause Transcribe to return an empty result and nil error.
type Provider struct {
	mu sync.Mutex

	// Text is returned as the transcription result.
	Text string

	// ProviderID is returned by ID and stamped on results. Defaults to
	// "mock".
	ProviderID string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

var _ asr.Provider = (*Provider)(nil)

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(_ context.Context, audio []byte, mimeType string, hints asr.Hints) (*asr.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: audio, MimeType: mimeType, Hints: hints})
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	return &asr.Result{Text: p.Text, ProviderID: p.ID()}, nil
}

// ID implements asr.Provider.
func (p *Provider) ID() string {
	if p.ProviderID == "" {
		return "mock"
	}
	return p.ProviderID
}

// CallCount returns how many times Transcribe has been invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}
