package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skribent/skribent/internal/dictation"
)

// Recovery exposes the operator-facing repair operations: retrying a failed
// dictation, re-running the correction stages from logged transcripts, and
// requeueing items orphaned in processing by a crash. None of these run
// automatically; every call is an explicit operator decision.
type Recovery struct {
	store  dictation.Store
	logs   dictation.LogStore
	worker *Worker
}

// NewRecovery creates a Recovery sharing the pipeline's store and worker.
func NewRecovery(store dictation.Store, logs dictation.LogStore, worker *Worker) *Recovery {
	return &Recovery{store: store, logs: logs, worker: worker}
}

// Retry moves a failed dictation back to pending so the next dispatch run
// picks it up from the start, including transcription. Only failed items are
// eligible; retrying anything else is a caller mistake.
func (r *Recovery) Retry(ctx context.Context, id uuid.UUID) error {
	d, _, err := r.store.Get(ctx, id, false)
	if err != nil {
		return fmt.Errorf("pipeline: retry: %w", err)
	}
	if d.Status != dictation.StatusFailed {
		return fmt.Errorf("pipeline: %w: dictation %s is %s, only failed dictations can be retried",
			dictation.ErrValidation, id, d.Status)
	}
	return r.store.SetStatus(ctx, id, dictation.StatusPending, "")
}

// Recorrect re-runs the correction stages (preprocessing, reconciliation,
// LLM pass, scoring) from the logged transcripts without touching the audio
// or the transcription engines. The double-precision source transcript is
// recovered from the correction log, so the merge replays too.
//
// The dictation must be in a terminal status; items in flight belong to the
// dispatcher.
func (r *Recovery) Recorrect(ctx context.Context, id uuid.UUID) error {
	d, _, err := r.store.Get(ctx, id, false)
	if err != nil {
		return fmt.Errorf("pipeline: recorrect: %w", err)
	}
	if d.Status != dictation.StatusCompleted && d.Status != dictation.StatusFailed {
		return fmt.Errorf("pipeline: %w: dictation %s is %s, recorrect needs a finished dictation",
			dictation.ErrValidation, id, d.Status)
	}
	if d.RawTranscript == "" {
		return fmt.Errorf("pipeline: %w: dictation %s has no stored transcript to recorrect from",
			dictation.ErrValidation, id)
	}

	first, second, err := r.loggedTranscripts(ctx, d)
	if err != nil {
		return err
	}

	if err := r.store.SetStatus(ctx, id, dictation.StatusProcessing, ""); err != nil {
		return fmt.Errorf("pipeline: recorrect: claim: %w", err)
	}

	entries := r.worker.loadDictionary(ctx, d.UserID)
	final, score, corrErr := r.worker.runCorrection(ctx, id, first, second, entries)

	// A failed recorrection keeps its best text but must not pass through
	// completed before the failed write.
	if corrErr != nil {
		if perr := r.store.PersistText(ctx, id, d.RawTranscript, final, score); perr != nil {
			return fmt.Errorf("pipeline: %w: persist recorrection: %v", dictation.ErrPersistence, perr)
		}
		if serr := r.store.SetStatus(ctx, id, dictation.StatusFailed, corrErr.Error()); serr != nil {
			return fmt.Errorf("pipeline: recorrect: mark failed: %w", serr)
		}
		return corrErr
	}
	if perr := r.store.PersistResult(ctx, id, d.RawTranscript, final, score); perr != nil {
		return fmt.Errorf("pipeline: %w: persist recorrection: %v", dictation.ErrPersistence, perr)
	}
	return nil
}

// loggedTranscripts reconstructs the transcription-side inputs from the
// stored raw transcript and the most recent double-precision log entry,
// which carries the second engine's verbatim output and both attributions.
func (r *Recovery) loggedTranscripts(ctx context.Context, d *dictation.Dictation) (dictation.TranscriptionResult, *dictation.TranscriptionResult, error) {
	first := dictation.TranscriptionResult{Text: d.RawTranscript}
	if r.worker.primary != nil {
		first.ProviderID = r.worker.primary.ID()
	}

	entries, err := r.logs.ByDictation(ctx, d.ID)
	if err != nil {
		return first, nil, fmt.Errorf("pipeline: recorrect: read correction log: %w", err)
	}

	var second *dictation.TranscriptionResult
	for _, e := range entries {
		if e.Stage != dictation.StageDoublePrecision {
			continue
		}
		// Later entries win: a previous recorrection may have re-merged.
		second = &dictation.TranscriptionResult{
			Text:       e.SourceText2,
			ProviderID: e.SourceProvider2,
		}
		if e.Provider != "" {
			first.ProviderID = e.Provider
		}
	}
	return first, second, nil
}

// RequeueStale moves dictations stuck in processing for longer than
// olderThan back to pending. Returns the number of requeued items.
func (r *Recovery) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := r.store.RequeueStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("pipeline: requeue stale: %w", err)
	}
	return n, nil
}
