package resilience

import (
	"context"
	"errors"

	"github.com/skribent/skribent/pkg/provider/asr"
)

// ASRFallback implements [asr.Provider] with automatic failover across
// multiple transcription backends. Each backend has its own circuit breaker.
//
// A rejection ([asr.ErrRejected]) means the audio itself is the problem;
// another backend would reject it too, so rejections surface immediately
// without failover and without penalising the backend.
type ASRFallback struct {
	group *FallbackGroup[asr.Provider]
	id    string
}

var _ asr.Provider = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred
// backend.
func NewASRFallback(primary asr.Provider, cfg FallbackConfig) *ASRFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool {
			return errors.Is(err, asr.ErrRejected)
		}
	}
	return &ASRFallback{
		group: NewFallbackGroup(primary, primary.ID(), cfg),
		id:    primary.ID(),
	}
}

// AddFallback registers an additional transcription backend.
func (f *ASRFallback) AddFallback(provider asr.Provider) {
	f.group.AddFallback(provider.ID(), provider)
}

// Transcribe runs the request against the first healthy backend. The result
// carries the ID of the backend that actually produced it, so the correction
// log attributes the text to the right engine even after a failover.
func (f *ASRFallback) Transcribe(ctx context.Context, audio []byte, mimeType string, hints asr.Hints) (*asr.Result, error) {
	return ExecuteWithResult(f.group, func(p asr.Provider) (*asr.Result, error) {
		return p.Transcribe(ctx, audio, mimeType, hints)
	})
}

// ID implements [asr.Provider]. It reports the primary backend's ID; per-call
// attribution comes from the result.
func (f *ASRFallback) ID() string {
	return f.id
}
