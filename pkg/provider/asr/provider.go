// Package asr defines the Provider interface for automatic speech recognition
// backends.
//
// A provider accepts one complete recording and returns one transcription.
// Unlike streaming dictation front-ends, the pipeline works on finished audio,
// so the contract is a single batch call with recognition hints. Double
// precision runs two providers on the same recording and reconciles the
// results downstream.
//
// Implementations must be safe for concurrent use.
package asr

import "context"

// Hints carries optional recognition guidance for a transcription call.
type Hints struct {
	// Language is the expected language code (e.g. "de", "en"). Empty lets
	// the provider auto-detect.
	Language string

	// InitialPrompt biases recognition towards a formatting and vocabulary
	// style (provider support varies; Whisper-family models honour it).
	InitialPrompt string

	// Vocabulary lists domain terms drawn from the user dictionary that
	// should be recognised preferentially. Providers fold it into whatever
	// biasing mechanism they have.
	Vocabulary []string
}

// Result is the immutable output of one transcription call.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// ProviderID names the backend that produced Text.
	ProviderID string
}

// Provider is the abstraction over any ASR backend.
type Provider interface {
	// Transcribe converts audio (a complete recording in the container
	// format named by mimeType) into text. The call is bounded by ctx;
	// implementations must return promptly on cancellation.
	Transcribe(ctx context.Context, audio []byte, mimeType string, hints Hints) (*Result, error)

	// ID returns the stable provider identifier used in transcription
	// results and correction log attribution.
	ID() string
}
