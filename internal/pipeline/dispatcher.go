package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skribent/skribent/internal/dictation"
	"github.com/skribent/skribent/internal/observe"
)

const defaultBatchSize = 10

// Summary reports the outcome of one dispatch run.
type Summary struct {
	// Processed is the number of dictations that completed.
	Processed int `json:"processed"`

	// Errors is the number of dictations that moved to failed.
	Errors int `json:"errors"`

	// Remaining is the pending count observed after the run, capped at the
	// batch size. A non-zero value means another run has work waiting.
	Remaining int `json:"remaining"`
}

// Dispatcher drains the pending queue in single-flight batches. Items are
// processed sequentially; one item failing never aborts the rest of the
// batch.
type Dispatcher struct {
	store     dictation.Store
	worker    *Worker
	flight    Flight
	batchSize int
	metrics   *observe.Metrics
}

// DispatcherOption is a functional option for configuring a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithBatchSize sets how many pending dictations one run claims. Default: 10.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithDispatcherMetrics sets the metrics instance. Nil disables recording.
func WithDispatcherMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher draining store through worker.
func NewDispatcher(store dictation.Store, worker *Worker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		worker:    worker,
		batchSize: defaultBatchSize,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch runs one batch. If a run is already in flight it returns
// [ErrBusy] immediately instead of waiting; overlapping triggers from a
// timer and a manual kick must not double-process.
func (d *Dispatcher) Dispatch(ctx context.Context) (Summary, error) {
	if !d.flight.TryAcquire() {
		return Summary{}, ErrBusy
	}
	defer d.flight.Release()

	if d.metrics != nil {
		d.metrics.ActiveDispatches.Add(ctx, 1)
		defer d.metrics.ActiveDispatches.Add(ctx, -1)
	}

	batch, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: fetch pending: %w", err)
	}
	if d.metrics != nil {
		d.metrics.QueueDepth.Add(ctx, int64(len(batch)))
		defer d.metrics.QueueDepth.Add(ctx, -int64(len(batch)))
	}

	var sum Summary
	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("pipeline: dispatch aborted: %w", err)
		}

		// Claim before any network call so a crash leaves a visible
		// processing row instead of a silently re-runnable pending one.
		if err := d.store.SetStatus(ctx, item.ID, dictation.StatusProcessing, ""); err != nil {
			slog.Error("claim failed, skipping dictation", "id", item.ID, "err", err)
			sum.Errors++
			continue
		}

		if err := d.worker.Process(ctx, item); err != nil {
			sum.Errors++
			slog.Error("dictation failed", "id", item.ID, "err", err)
			if serr := d.store.SetStatus(ctx, item.ID, dictation.StatusFailed, err.Error()); serr != nil {
				slog.Error("could not mark dictation failed", "id", item.ID, "err", serr)
			}
			if d.metrics != nil {
				d.metrics.RecordDictation(ctx, string(dictation.StatusFailed))
			}
			continue
		}

		sum.Processed++
		slog.Info("dictation completed", "id", item.ID)
		if d.metrics != nil {
			d.metrics.RecordDictation(ctx, string(dictation.StatusCompleted))
		}
	}

	if rest, err := d.store.FetchPending(ctx, d.batchSize); err == nil {
		sum.Remaining = len(rest)
	}
	return sum, nil
}

// Run dispatches on every tick until ctx is cancelled. A busy signal means a
// previous run is still draining and is skipped silently; other errors are
// logged and the loop keeps going.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := d.Dispatch(ctx)
			switch {
			case errors.Is(err, ErrBusy):
				// previous run still draining
			case err != nil:
				slog.Error("dispatch run failed", "err", err)
			case sum.Processed > 0 || sum.Errors > 0:
				slog.Info("dispatch run finished",
					"processed", sum.Processed,
					"errors", sum.Errors,
					"remaining", sum.Remaining)
			}
		}
	}
}
