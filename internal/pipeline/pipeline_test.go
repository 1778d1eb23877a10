package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skribent/skribent/internal/correct"
	"github.com/skribent/skribent/internal/dictation"
	"github.com/skribent/skribent/internal/reconcile"
	asrmock "github.com/skribent/skribent/pkg/provider/asr/mock"
	"github.com/skribent/skribent/pkg/provider/llm"
	llmmock "github.com/skribent/skribent/pkg/provider/llm/mock"
)

// memStore is an in-memory dictation.Store keeping insertion order for
// FetchPending.
type memStore struct {
	mu      sync.Mutex
	order   []uuid.UUID
	items   map[uuid.UUID]*dictation.Dictation
	audio   map[uuid.UUID][]byte
	history map[uuid.UUID][]dictation.Status

	requeued int
	stale    time.Duration
}

var _ dictation.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		items:   make(map[uuid.UUID]*dictation.Dictation),
		audio:   make(map[uuid.UUID][]byte),
		history: make(map[uuid.UUID][]dictation.Status),
	}
}

func (s *memStore) add(d dictation.Dictation, audio []byte) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = dictation.StatusPending
	}
	s.order = append(s.order, d.ID)
	s.items[d.ID] = &d
	s.audio[d.ID] = audio
	return d.ID
}

func (s *memStore) FetchPending(_ context.Context, limit int) ([]dictation.Dictation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dictation.Dictation
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		if d := s.items[id]; d.Status == dictation.StatusPending {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID, withAudio bool) (*dictation.Dictation, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return nil, nil, fmt.Errorf("memstore: %w: no dictation %s", dictation.ErrValidation, id)
	}
	cp := *d
	if withAudio {
		return &cp, s.audio[id], nil
	}
	return &cp, nil, nil
}

func (s *memStore) SetStatus(_ context.Context, id uuid.UUID, status dictation.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return fmt.Errorf("memstore: %w: no dictation %s", dictation.ErrValidation, id)
	}
	d.Status = status
	s.history[id] = append(s.history[id], status)
	if status == dictation.StatusProcessing {
		d.Attempts++
	}
	if status == dictation.StatusFailed {
		d.ErrorMessage = errMsg
	} else {
		d.ErrorMessage = ""
	}
	return nil
}

func (s *memStore) PersistResult(_ context.Context, id uuid.UUID, transcript, correctedText string, changeScore int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return fmt.Errorf("memstore: %w: no dictation %s", dictation.ErrValidation, id)
	}
	d.Status = dictation.StatusCompleted
	s.history[id] = append(s.history[id], dictation.StatusCompleted)
	d.RawTranscript = transcript
	d.CorrectedText = correctedText
	d.ChangeScore = changeScore
	d.ErrorMessage = ""
	return nil
}

func (s *memStore) PersistText(_ context.Context, id uuid.UUID, transcript, correctedText string, changeScore int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return fmt.Errorf("memstore: %w: no dictation %s", dictation.ErrValidation, id)
	}
	d.RawTranscript = transcript
	d.CorrectedText = correctedText
	d.ChangeScore = changeScore
	return nil
}

func (s *memStore) statuses(t *testing.T, id uuid.UUID) []dictation.Status {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dictation.Status(nil), s.history[id]...)
}

func (s *memStore) RequeueStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = olderThan
	return s.requeued, nil
}

func (s *memStore) get(t *testing.T, id uuid.UUID) dictation.Dictation {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		t.Fatalf("dictation %s not in store", id)
	}
	return *d
}

// memLogs is an in-memory dictation.LogStore.
type memLogs struct {
	mu        sync.Mutex
	entries   []dictation.LogEntry
	appendErr error
}

var _ dictation.LogStore = (*memLogs)(nil)

func (l *memLogs) Append(_ context.Context, entry dictation.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memLogs) ByDictation(_ context.Context, id uuid.UUID) ([]dictation.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []dictation.LogEntry
	for _, e := range l.entries {
		if e.DictationID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLogs) byStage(id uuid.UUID, stage dictation.Stage) []dictation.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []dictation.LogEntry
	for _, e := range l.entries {
		if e.DictationID == id && e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// echoEngine corrects by returning the chunk text unchanged.
func echoEngine() *correct.Engine {
	return correct.New(&llmmock.Provider{
		CompleteFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{
				Content: llm.StripSentinels(req.UserPrompt),
				Model:   "echo-model",
			}, nil
		},
	})
}

func TestDispatchDoublePrecisionEndToEnd(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}
	id := store.add(dictation.Dictation{
		UserID:          "u1",
		MimeType:        "audio/wav",
		DoublePrecision: true,
	}, []byte("wav-bytes"))

	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Heart rate 80 comma stable"}
	secondary := &asrmock.Provider{ProviderID: "openai", Text: "Heart rate 90 comma stable"}

	merger := reconcile.New(&llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Heart rate 90, stable", Model: "merge-model"},
	})
	engine := correct.New(&llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Heart rate 90, stable.", Model: "fix-model"},
	})

	worker := NewWorker(store, logs, primary, engine,
		WithSecondaryASR(secondary),
		WithReconciler(merger),
	)
	d := NewDispatcher(store, worker)

	sum, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Processed != 1 || sum.Errors != 0 || sum.Remaining != 0 {
		t.Fatalf("summary = %+v, want processed 1", sum)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Fatalf("asr calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}

	got := store.get(t, id)
	if got.Status != dictation.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.RawTranscript != "Heart rate 80 comma stable" {
		t.Errorf("raw transcript = %q", got.RawTranscript)
	}
	if got.CorrectedText != "Heart rate 90, stable." {
		t.Errorf("corrected = %q", got.CorrectedText)
	}
	if got.ChangeScore <= 0 {
		t.Errorf("change score = %d, want > 0", got.ChangeScore)
	}

	if n := len(logs.byStage(id, dictation.StageFormatting)); n != 1 {
		t.Errorf("formatting entries = %d, want 1", n)
	}
	dp := logs.byStage(id, dictation.StageDoublePrecision)
	if len(dp) != 1 {
		t.Fatalf("doublePrecision entries = %d, want 1", len(dp))
	}
	// The second source is logged verbatim, before preprocessing, so the
	// merge can be replayed later.
	if dp[0].SourceText2 != "Heart rate 90 comma stable" || dp[0].SourceProvider2 != "openai" {
		t.Errorf("second source = %q from %q", dp[0].SourceText2, dp[0].SourceProvider2)
	}
	if dp[0].TextBefore != "Heart rate 80, stable" || dp[0].TextAfter != "Heart rate 90, stable" {
		t.Errorf("merge logged %q -> %q", dp[0].TextBefore, dp[0].TextAfter)
	}
	fix := logs.byStage(id, dictation.StageLLM)
	if len(fix) != 1 {
		t.Fatalf("llm entries = %d, want 1", len(fix))
	}
	if fix[0].Model != "fix-model" {
		t.Errorf("llm entry model = %q", fix[0].Model)
	}
}

func TestDispatchSingleEngineSkipsSecondary(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}
	id := store.add(dictation.Dictation{UserID: "u1", MimeType: "audio/wav"}, []byte("a"))

	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Befund unauffällig"}
	secondary := &asrmock.Provider{ProviderID: "openai", Text: "unused"}

	worker := NewWorker(store, logs, primary, echoEngine(),
		WithSecondaryASR(secondary),
		WithReconciler(reconcile.New(&llmmock.Provider{})),
	)

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil || sum.Processed != 1 {
		t.Fatalf("Dispatch = %+v, %v", sum, err)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times for a single-engine dictation", secondary.CallCount())
	}
	if got := store.get(t, id); got.CorrectedText != "Befund unauffällig" {
		t.Errorf("corrected = %q", got.CorrectedText)
	}
	if n := len(logs.byStage(id, dictation.StageDoublePrecision)); n != 0 {
		t.Errorf("doublePrecision entries = %d for a single-engine run", n)
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}

	var ids []uuid.UUID
	for i := 1; i <= 5; i++ {
		audio := []byte("audio")
		if i == 3 {
			audio = nil // fails validation inside Process
		}
		ids = append(ids, store.add(dictation.Dictation{UserID: "u1", MimeType: "audio/wav"}, audio))
	}

	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Text"}
	worker := NewWorker(store, logs, primary, echoEngine())

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Processed != 4 || sum.Errors != 1 {
		t.Fatalf("summary = %+v, want {processed:4 errors:1}", sum)
	}

	for i, id := range ids {
		got := store.get(t, id)
		if i == 2 {
			if got.Status != dictation.StatusFailed {
				t.Errorf("item 3 status = %s, want failed", got.Status)
			}
			if got.ErrorMessage == "" {
				t.Error("item 3 has no error message")
			}
			continue
		}
		if got.Status != dictation.StatusCompleted {
			t.Errorf("item %d status = %s, want completed", i+1, got.Status)
		}
	}
}

func TestDispatchBusy(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	worker := NewWorker(store, &memLogs{}, &asrmock.Provider{}, echoEngine())
	d := NewDispatcher(store, worker)

	if !d.flight.TryAcquire() {
		t.Fatal("could not acquire idle flight")
	}
	defer d.flight.Release()

	if _, err := d.Dispatch(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Dispatch during a held run = %v, want ErrBusy", err)
	}
}

func TestDispatchEmptyQueue(t *testing.T) {
	t.Parallel()

	worker := NewWorker(newMemStore(), &memLogs{}, &asrmock.Provider{}, echoEngine())
	sum, err := NewDispatcher(newMemStore(), worker).Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum != (Summary{}) {
		t.Fatalf("summary = %+v, want zero", sum)
	}
}

func TestDispatchRemainingReportsQueueBacklog(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	for i := 0; i < 3; i++ {
		store.add(dictation.Dictation{UserID: "u1", MimeType: "audio/wav"}, []byte("a"))
	}

	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Text"}
	worker := NewWorker(store, &memLogs{}, primary, echoEngine())
	d := NewDispatcher(store, worker, WithBatchSize(2))

	sum, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Processed != 2 || sum.Remaining != 1 {
		t.Fatalf("summary = %+v, want processed 2 remaining 1", sum)
	}
}

func TestDispatchTranscriptionFailureMarksFailed(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.add(dictation.Dictation{UserID: "u1", MimeType: "audio/wav"}, []byte("a"))

	primary := &asrmock.Provider{ProviderID: "whisperx", Err: errors.New("engine down")}
	worker := NewWorker(store, &memLogs{}, primary, echoEngine())

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Errors != 1 {
		t.Fatalf("summary = %+v, want one error", sum)
	}
	got := store.get(t, id)
	if got.Status != dictation.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "whisperx") {
		t.Errorf("error message %q does not name the provider", got.ErrorMessage)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
}

func TestDispatchDoublePrecisionWithoutSecondaryFails(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.add(dictation.Dictation{
		UserID:          "u1",
		MimeType:        "audio/wav",
		DoublePrecision: true,
	}, []byte("a"))

	worker := NewWorker(store, &memLogs{}, &asrmock.Provider{Text: "T"}, echoEngine())

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Errors != 1 {
		t.Fatalf("summary = %+v, want one error", sum)
	}
	if got := store.get(t, id); got.Status != dictation.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestProcessKeepsBestTextWhenCorrectionFails(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}
	id := store.add(dictation.Dictation{UserID: "u1", MimeType: "audio/wav"}, []byte("a"))

	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Befund comma unauffällig"}
	broken := correct.New(&llmmock.Provider{CompleteErr: errors.New("model offline")})
	worker := NewWorker(store, logs, primary, broken)

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Errors != 1 {
		t.Fatalf("summary = %+v, want one error", sum)
	}

	got := store.get(t, id)
	if got.Status != dictation.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	// The preprocessed text survives the failed LLM pass.
	if got.CorrectedText != "Befund, unauffällig" {
		t.Errorf("corrected = %q, want the preprocessed text", got.CorrectedText)
	}
	if got.RawTranscript != "Befund comma unauffällig" {
		t.Errorf("raw transcript = %q", got.RawTranscript)
	}
	// The item goes processing -> failed; completed is reserved for successful
	// corrections and explicit recorrects.
	for _, st := range store.statuses(t, id) {
		if st == dictation.StatusCompleted {
			t.Fatalf("status history %v passes through completed for a failed item", store.statuses(t, id))
		}
	}
}

func TestRecorrectFailureNeverCompletes(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}
	id := store.add(dictation.Dictation{
		UserID:        "u1",
		Status:        dictation.StatusCompleted,
		RawTranscript: "Befund comma unauffällig",
		CorrectedText: "old output",
	}, nil)

	broken := correct.New(&llmmock.Provider{CompleteErr: errors.New("model offline")})
	worker := NewWorker(store, logs, &asrmock.Provider{ProviderID: "whisperx"}, broken)
	rec := NewRecovery(store, logs, worker)

	if err := rec.Recorrect(context.Background(), id); err == nil {
		t.Fatal("Recorrect with a broken engine returned nil")
	}

	got := store.get(t, id)
	if got.Status != dictation.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.CorrectedText != "Befund, unauffällig" {
		t.Errorf("corrected = %q, want the preprocessed text", got.CorrectedText)
	}
	hist := store.statuses(t, id)
	want := []dictation.Status{dictation.StatusProcessing, dictation.StatusFailed}
	if len(hist) != len(want) || hist[0] != want[0] || hist[1] != want[1] {
		t.Errorf("status history = %v, want %v", hist, want)
	}
}

func TestProcessTerminologyOnlyMode(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}
	id := store.add(dictation.Dictation{UserID: "u1", MimeType: "audio/wav"}, []byte("a"))

	prov := &llmmock.Provider{
		CompleteFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{
				Content: llm.StripSentinels(req.UserPrompt),
				Model:   "term-model",
			}, nil
		},
	}
	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Sinus tachycardia noted"}
	worker := NewWorker(store, logs, primary, correct.New(prov), WithTerminologyOnly())

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil || sum.Processed != 1 {
		t.Fatalf("Dispatch = %+v, %v", sum, err)
	}
	if got := store.get(t, id); got.Status != dictation.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	calls := prov.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(calls))
	}
	sys := calls[0].Req.SystemPrompt
	if !strings.Contains(sys, "misrecognised medical terminology in dictated text") {
		t.Errorf("system prompt %q is not the terminology pass", sys)
	}
	if strings.Contains(sys, "Fix grammar") {
		t.Errorf("system prompt %q still requests the full rewrite", sys)
	}
}

func TestProcessReconcileFailureFallsBack(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}
	id := store.add(dictation.Dictation{
		UserID:          "u1",
		MimeType:        "audio/wav",
		DoublePrecision: true,
	}, []byte("a"))

	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Herzfrequenz 80"}
	secondary := &asrmock.Provider{ProviderID: "openai", Text: "Herzfrequenz 90"}
	brokenMerge := reconcile.New(&llmmock.Provider{CompleteErr: errors.New("merge model offline")})

	worker := NewWorker(store, logs, primary, echoEngine(),
		WithSecondaryASR(secondary),
		WithReconciler(brokenMerge),
	)

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil || sum.Processed != 1 {
		t.Fatalf("Dispatch = %+v, %v", sum, err)
	}
	got := store.get(t, id)
	if got.Status != dictation.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.CorrectedText != "Herzfrequenz 80" {
		t.Errorf("corrected = %q, want the first transcript", got.CorrectedText)
	}
	if n := len(logs.byStage(id, dictation.StageDoublePrecision)); n != 0 {
		t.Errorf("doublePrecision entries = %d after a failed merge", n)
	}
}

func TestProcessLogAppendFailureFailsItem(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{appendErr: errors.New("disk full")}
	id := store.add(dictation.Dictation{UserID: "u1", MimeType: "audio/wav"}, []byte("a"))

	// "comma" forces a formatting change, which must be logged.
	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "Befund comma unauffällig"}
	worker := NewWorker(store, logs, primary, echoEngine())

	sum, err := NewDispatcher(store, worker).Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Errors != 1 {
		t.Fatalf("summary = %+v, want one error", sum)
	}
	got := store.get(t, id)
	if got.Status != dictation.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "formatting") {
		t.Errorf("error message %q does not name the stage", got.ErrorMessage)
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	failed := store.add(dictation.Dictation{Status: dictation.StatusFailed, ErrorMessage: "boom"}, nil)
	done := store.add(dictation.Dictation{Status: dictation.StatusCompleted}, nil)

	rec := NewRecovery(store, &memLogs{}, NewWorker(store, &memLogs{}, &asrmock.Provider{}, echoEngine()))

	if err := rec.Retry(context.Background(), failed); err != nil {
		t.Fatalf("Retry(failed): %v", err)
	}
	got := store.get(t, failed)
	if got.Status != dictation.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message = %q, want cleared", got.ErrorMessage)
	}

	if err := rec.Retry(context.Background(), done); !errors.Is(err, dictation.ErrValidation) {
		t.Fatalf("Retry(completed) = %v, want ErrValidation", err)
	}
}

func TestRecorrectReplaysWithoutTranscription(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	logs := &memLogs{}
	id := store.add(dictation.Dictation{
		UserID:          "u1",
		Status:          dictation.StatusCompleted,
		RawTranscript:   "Herzfrequenz 80 comma stabil",
		CorrectedText:   "old output",
		DoublePrecision: true,
	}, []byte("audio-not-to-be-read"))

	if err := logs.Append(context.Background(), dictation.LogEntry{
		DictationID:     id,
		Stage:           dictation.StageDoublePrecision,
		TextBefore:      "Herzfrequenz 80, stabil",
		TextAfter:       "Herzfrequenz 90, stabil",
		Provider:        "whisperx",
		SourceText2:     "Herzfrequenz 90 comma stabil",
		SourceProvider2: "openai",
	}); err != nil {
		t.Fatal(err)
	}

	primary := &asrmock.Provider{ProviderID: "whisperx", Text: "must not be called"}
	secondary := &asrmock.Provider{ProviderID: "openai", Text: "must not be called"}
	merger := reconcile.New(&llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Herzfrequenz 90, stabil", Model: "merge-model"},
	})
	engine := correct.New(&llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Herzfrequenz 90, stabil.", Model: "fix-model"},
	})

	worker := NewWorker(store, logs, primary, engine,
		WithSecondaryASR(secondary),
		WithReconciler(merger),
	)
	rec := NewRecovery(store, logs, worker)

	if err := rec.Recorrect(context.Background(), id); err != nil {
		t.Fatalf("Recorrect: %v", err)
	}

	if primary.CallCount() != 0 || secondary.CallCount() != 0 {
		t.Fatalf("asr calls = %d/%d, want none", primary.CallCount(), secondary.CallCount())
	}
	got := store.get(t, id)
	if got.Status != dictation.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.CorrectedText != "Herzfrequenz 90, stabil." {
		t.Errorf("corrected = %q", got.CorrectedText)
	}
	if got.RawTranscript != "Herzfrequenz 80 comma stabil" {
		t.Errorf("raw transcript = %q, must stay the original", got.RawTranscript)
	}

	// The replay appended fresh log entries on top of the old ones.
	dp := logs.byStage(id, dictation.StageDoublePrecision)
	if len(dp) != 2 {
		t.Fatalf("doublePrecision entries = %d, want 2 after replay", len(dp))
	}
	if dp[1].SourceText2 != "Herzfrequenz 90 comma stabil" {
		t.Errorf("replayed second source = %q", dp[1].SourceText2)
	}
}

func TestRecorrectRejectsInFlight(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.add(dictation.Dictation{Status: dictation.StatusProcessing, RawTranscript: "t"}, nil)

	rec := NewRecovery(store, &memLogs{}, NewWorker(store, &memLogs{}, &asrmock.Provider{}, echoEngine()))
	if err := rec.Recorrect(context.Background(), id); !errors.Is(err, dictation.ErrValidation) {
		t.Fatalf("Recorrect(processing) = %v, want ErrValidation", err)
	}
}

func TestRecorrectRejectsMissingTranscript(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.add(dictation.Dictation{Status: dictation.StatusFailed}, nil)

	rec := NewRecovery(store, &memLogs{}, NewWorker(store, &memLogs{}, &asrmock.Provider{}, echoEngine()))
	if err := rec.Recorrect(context.Background(), id); !errors.Is(err, dictation.ErrValidation) {
		t.Fatalf("Recorrect without transcript = %v, want ErrValidation", err)
	}
}

func TestRequeueStale(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.requeued = 3

	rec := NewRecovery(store, &memLogs{}, NewWorker(store, &memLogs{}, &asrmock.Provider{}, echoEngine()))
	n, err := rec.RequeueStale(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	if n != 3 {
		t.Errorf("requeued = %d, want 3", n)
	}
	if store.stale != 30*time.Minute {
		t.Errorf("threshold passed to store = %v", store.stale)
	}
}

func TestFlight(t *testing.T) {
	t.Parallel()

	var f Flight
	if !f.TryAcquire() {
		t.Fatal("first acquire failed")
	}
	if f.TryAcquire() {
		t.Fatal("second acquire succeeded while held")
	}
	f.Release()
	if !f.TryAcquire() {
		t.Fatal("acquire after release failed")
	}
}
