package dictation

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for the pipeline. Stages classify failures into one of these
// sentinel kinds so that the dispatcher and operators can tell retryable
// outages apart from permanent rejections.
var (
	// ErrValidation marks bad input. Not retryable.
	ErrValidation = errors.New("validation error")

	// ErrProviderUnavailable marks a network failure or timeout talking to an
	// external provider. Operator-retryable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejected marks a provider-side rejection (bad credentials,
	// unsupported input). Surfaced to operators, never auto-retried.
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrParse marks structured LLM output that could not be parsed. Stages
	// fall back to their input text instead of failing the item.
	ErrParse = errors.New("unparsable provider output")

	// ErrPersistence marks a store write failure. Fatal for the item and
	// never silently dropped.
	ErrPersistence = errors.New("persistence error")
)

// ProviderError carries the diagnostic context required by the error handling
// design: which provider failed, how long the call ran, and (for chunked
// correction) which chunk was in flight. It wraps one of the sentinel kinds
// above so callers can classify it with [errors.Is].
type ProviderError struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Provider names the external backend (e.g. "whisperx", "openai").
	Provider string

	// Op is the failed operation (e.g. "transcribe", "complete").
	Op string

	// Duration is how long the call ran before failing.
	Duration time.Duration

	// Chunk is the zero-based chunk index for chunked correction calls, or -1
	// when the call was not chunked.
	Chunk int

	// Err is the underlying cause.
	Err error
}

// NewProviderError builds a [ProviderError] with Chunk set to -1.
func NewProviderError(kind error, provider, op string, duration time.Duration, err error) *ProviderError {
	return &ProviderError{
		Kind:     kind,
		Provider: provider,
		Op:       op,
		Duration: duration,
		Chunk:    -1,
		Err:      err,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Chunk >= 0 {
		return fmt.Sprintf("%s: %s (chunk %d, after %s): %v", e.Provider, e.Op, e.Chunk, e.Duration.Round(time.Millisecond), e.Err)
	}
	return fmt.Sprintf("%s: %s (after %s): %v", e.Provider, e.Op, e.Duration.Round(time.Millisecond), e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports whether target matches the error's classification kind, enabling
// errors.Is(err, dictation.ErrProviderUnavailable) across wrapping layers.
func (e *ProviderError) Is(target error) bool { return target == e.Kind }
