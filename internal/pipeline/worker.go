package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/skribent/skribent/internal/changescore"
	"github.com/skribent/skribent/internal/correct"
	"github.com/skribent/skribent/internal/dictation"
	"github.com/skribent/skribent/internal/dictionary"
	"github.com/skribent/skribent/internal/observe"
	"github.com/skribent/skribent/internal/preprocess"
	"github.com/skribent/skribent/internal/reconcile"
	"github.com/skribent/skribent/pkg/provider/asr"
)

// Worker processes one dictation end-to-end: transcription, preprocessing,
// optional double-precision reconciliation, LLM correction, change scoring,
// and persistence. Each stage boundary that changes the text appends a
// correction log entry.
//
// Formatting and reconciliation fail soft: their errors fall back to the
// previous stage's text. A failed final correction still persists the best
// available text before the error is surfaced, so the item is never lost.
type Worker struct {
	store           dictation.Store
	logs            dictation.LogStore
	primary         asr.Provider
	secondary       asr.Provider
	recon           *reconcile.Reconciler
	engine          *correct.Engine
	dict            dictionary.Provider
	language        string
	terminologyOnly bool
	metrics         *observe.Metrics
}

// WorkerOption is a functional option for configuring a [Worker].
type WorkerOption func(*Worker)

// WithSecondaryASR sets the second transcription engine used for
// double-precision dictations. Without one, double-precision items fail
// validation.
func WithSecondaryASR(p asr.Provider) WorkerOption {
	return func(w *Worker) {
		w.secondary = p
	}
}

// WithReconciler sets the double-precision merge stage.
func WithReconciler(r *reconcile.Reconciler) WorkerOption {
	return func(w *Worker) {
		w.recon = r
	}
}

// WithDictionary sets the per-user dictionary source. A load failure is
// logged and processing continues without dictionary support.
func WithDictionary(p dictionary.Provider) WorkerOption {
	return func(w *Worker) {
		w.dict = p
	}
}

// WithLanguage sets the language hint passed to the transcription engines.
// Default: "de".
func WithLanguage(lang string) WorkerOption {
	return func(w *Worker) {
		w.language = lang
	}
}

// WithTerminologyOnly switches the final pass to the terminology-only
// correction, which fixes misrecognised terms under the similarity guard and
// leaves the dictated wording alone.
func WithTerminologyOnly() WorkerOption {
	return func(w *Worker) {
		w.terminologyOnly = true
	}
}

// WithWorkerMetrics sets the metrics instance. Nil disables recording.
func WithWorkerMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker creates a Worker with the required collaborators.
func NewWorker(store dictation.Store, logs dictation.LogStore, primary asr.Provider, engine *correct.Engine, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:    store,
		logs:     logs,
		primary:  primary,
		engine:   engine,
		language: "de",
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Process runs the full pipeline for one claimed dictation. The caller (the
// dispatcher) owns the status transitions around this call: the item is
// already marked processing, and a returned error moves it to failed.
func (w *Worker) Process(ctx context.Context, item dictation.Dictation) error {
	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()
	start := time.Now()

	d, audio, err := w.store.Get(ctx, item.ID, true)
	if err != nil {
		return fmt.Errorf("pipeline: load dictation: %w", err)
	}
	if len(audio) == 0 {
		return fmt.Errorf("pipeline: %w: dictation %s has no audio", dictation.ErrValidation, d.ID)
	}

	entries := w.loadDictionary(ctx, d.UserID)

	first, second, err := w.transcribe(ctx, d, audio, entries)
	if err != nil {
		return err
	}

	final, score, corrErr := w.runCorrection(ctx, d.ID, first, second, entries)

	// The best available text survives a failed correction, but the item must
	// never pass through completed on its way to failed: the status-free write
	// keeps it in processing until the dispatcher marks it failed.
	if corrErr != nil {
		if perr := w.store.PersistText(ctx, d.ID, first.Text, final, score); perr != nil {
			return fmt.Errorf("pipeline: %w: persist text: %v", dictation.ErrPersistence, perr)
		}
		return corrErr
	}
	if perr := w.store.PersistResult(ctx, d.ID, first.Text, final, score); perr != nil {
		return fmt.Errorf("pipeline: %w: persist result: %v", dictation.ErrPersistence, perr)
	}

	if w.metrics != nil {
		w.metrics.ItemDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

// loadDictionary fetches the user's dictionary entries, failing soft to no
// entries.
func (w *Worker) loadDictionary(ctx context.Context, userID string) []dictionary.Entry {
	if w.dict == nil {
		return nil
	}
	entries, err := w.dict.Load(ctx, userID)
	if err != nil {
		observe.Logger(ctx).Warn("dictionary load failed, continuing without entries",
			"user", userID, "err", err)
		return nil
	}
	return entries
}

// transcribe produces the raw transcript(s). Double-precision items run both
// engines concurrently; either failing fails the item, since the merge needs
// both texts.
func (w *Worker) transcribe(ctx context.Context, d *dictation.Dictation, audio []byte, entries []dictionary.Entry) (first dictation.TranscriptionResult, second *dictation.TranscriptionResult, err error) {
	hints := asr.Hints{
		Language:   w.language,
		Vocabulary: dictionary.Vocabulary(entries),
	}

	if !d.DoublePrecision {
		res, terr := w.callASR(ctx, w.primary, audio, d.MimeType, hints)
		if terr != nil {
			return first, nil, terr
		}
		return *res, nil, nil
	}

	if w.secondary == nil {
		return first, nil, fmt.Errorf("pipeline: %w: double precision requested but no secondary engine is configured", dictation.ErrValidation)
	}

	var r1, r2 *dictation.TranscriptionResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var terr error
		r1, terr = w.callASR(gctx, w.primary, audio, d.MimeType, hints)
		return terr
	})
	g.Go(func() error {
		var terr error
		r2, terr = w.callASR(gctx, w.secondary, audio, d.MimeType, hints)
		return terr
	})
	if err := g.Wait(); err != nil {
		return first, nil, err
	}
	return *r1, r2, nil
}

// callASR invokes one transcription backend and maps its errors into the
// pipeline taxonomy with provider and duration attached.
func (w *Worker) callASR(ctx context.Context, p asr.Provider, audio []byte, mimeType string, hints asr.Hints) (*dictation.TranscriptionResult, error) {
	start := time.Now()
	res, err := p.Transcribe(ctx, audio, mimeType, hints)
	dur := time.Since(start)

	if w.metrics != nil {
		w.metrics.ASRDuration.Record(ctx, dur.Seconds(),
			metric.WithAttributes(observe.Attr("provider", p.ID())))
		status := "ok"
		if err != nil {
			status = "error"
		}
		w.metrics.RecordProviderRequest(ctx, p.ID(), "asr", status)
	}
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordProviderError(ctx, p.ID(), "asr")
		}
		kind := dictation.ErrProviderUnavailable
		if errors.Is(err, asr.ErrRejected) {
			kind = dictation.ErrProviderRejected
		}
		return nil, dictation.NewProviderError(kind, p.ID(), "transcribe", dur, err)
	}
	return &dictation.TranscriptionResult{Text: res.Text, ProviderID: res.ProviderID}, nil
}

// runCorrection executes the correction-side stages on already-available
// transcripts: preprocessing, optional reconciliation, and the final LLM
// pass. It returns the best available text and its change score against the
// raw transcript even when the final pass errored.
func (w *Worker) runCorrection(ctx context.Context, id uuid.UUID, first dictation.TranscriptionResult, second *dictation.TranscriptionResult, entries []dictionary.Entry) (string, int, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.correct")
	defer span.End()

	norm := preprocess.New(entries)
	current := first.Text

	// Formatting: deterministic, fails only on the log write.
	formatted := norm.Normalize(current)
	if formatted != current {
		entry := dictation.LogEntry{
			DictationID: id,
			Stage:       dictation.StageFormatting,
			TextBefore:  current,
			TextAfter:   formatted,
			ChangeScore: changescore.Score(current, formatted),
		}
		if err := w.appendLog(ctx, entry); err != nil {
			return formatted, changescore.Score(first.Text, formatted), err
		}
		current = formatted
	}

	// Double precision: reconcile the two formatted transcripts. A merge
	// failure falls back to the first transcript; both source texts are
	// logged verbatim so the merge can be replayed without audio.
	if second != nil && w.recon != nil {
		formatted2 := norm.Normalize(second.Text)
		mergeStart := time.Now()
		merged, err := w.recon.Reconcile(ctx,
			dictation.TranscriptionResult{Text: current, ProviderID: first.ProviderID},
			dictation.TranscriptionResult{Text: formatted2, ProviderID: second.ProviderID},
			reconcile.Context{Dictionary: dictionary.PromptEntries(entries)},
		)
		if w.metrics != nil {
			w.metrics.MergeDuration.Record(ctx, time.Since(mergeStart).Seconds())
		}
		if err != nil {
			observe.Logger(ctx).Warn("reconciliation failed, keeping first transcript",
				"dictation", id, "err", err)
		} else {
			entry := dictation.LogEntry{
				DictationID:     id,
				Stage:           dictation.StageDoublePrecision,
				TextBefore:      current,
				TextAfter:       merged.MergedText,
				ChangeScore:     changescore.Score(current, merged.MergedText),
				Model:           merged.Model,
				Provider:        first.ProviderID,
				SourceText2:     second.Text,
				SourceProvider2: second.ProviderID,
			}
			if err := w.appendLog(ctx, entry); err != nil {
				return current, changescore.Score(first.Text, current), err
			}
			current = merged.MergedText
		}
	}

	// Final correction: errors surface, but the pre-stage text survives.
	correctFn := w.engine.Correct
	if w.terminologyOnly {
		correctFn = w.engine.CorrectTerminology
	}
	corrStart := time.Now()
	res, err := correctFn(ctx, current, entries)
	if w.metrics != nil {
		w.metrics.CorrectionDuration.Record(ctx, time.Since(corrStart).Seconds())
	}
	if err != nil {
		return current, changescore.Score(first.Text, current), err
	}
	if w.metrics != nil {
		w.metrics.CorrectionChunks.Add(ctx, int64(res.Chunks))
		if res.Guarded > 0 {
			w.metrics.GuardRejections.Add(ctx, int64(res.Guarded))
		}
	}

	if res.Text != current {
		entry := dictation.LogEntry{
			DictationID: id,
			Stage:       dictation.StageLLM,
			TextBefore:  current,
			TextAfter:   res.Text,
			ChangeScore: changescore.Score(current, res.Text),
			Model:       res.Model,
		}
		if err := w.appendLog(ctx, entry); err != nil {
			return current, changescore.Score(first.Text, current), err
		}
		current = res.Text
	}

	return current, changescore.Score(first.Text, current), nil
}

// appendLog writes one correction log entry. The log is the audit trail, so
// a failed write is a persistence error that fails the item.
func (w *Worker) appendLog(ctx context.Context, entry dictation.LogEntry) error {
	if err := w.logs.Append(ctx, entry); err != nil {
		return fmt.Errorf("pipeline: %w: append %s log entry: %v", dictation.ErrPersistence, entry.Stage, err)
	}
	return nil
}
