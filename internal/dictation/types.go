// Package dictation defines the core domain model of the Skribent correction
// pipeline: dictation records, transcription results, the double-precision
// merge artefact, and the append-only correction log.
//
// The package also declares the two narrow storage contracts ([Store] and
// [LogStore]) through which the pipeline talks to the persistence layer, and
// the error taxonomy shared by all pipeline stages. It has no dependencies on
// any concrete provider or storage engine.
package dictation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a dictation in the processing queue.
type Status string

const (
	// StatusPending marks a dictation waiting to be claimed by the dispatcher.
	StatusPending Status = "pending"

	// StatusProcessing marks a dictation currently owned by a worker
	// execution. At most one worker processes a dictation at a time.
	StatusProcessing Status = "processing"

	// StatusCompleted marks a dictation whose corrected text has been
	// persisted. Re-entered only via an explicit recorrect.
	StatusCompleted Status = "completed"

	// StatusFailed marks a dictation whose processing aborted with an error.
	// Transitions back to pending only via an explicit operator retry.
	StatusFailed Status = "failed"
)

// IsValid reports whether s is a recognised status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Stage identifies which pipeline stage produced a correction log entry.
type Stage string

const (
	// StageFormatting is the deterministic preprocessing stage (spoken
	// formatting directives and dictionary substitutions).
	StageFormatting Stage = "formatting"

	// StageDoublePrecision is the dual-transcription reconciliation stage.
	StageDoublePrecision Stage = "doublePrecision"

	// StageLLM is the final LLM-based linguistic correction stage.
	StageLLM Stage = "llm"

	// StageManual records an edit made by a human reviewer.
	StageManual Stage = "manual"
)

// IsValid reports whether s is a recognised stage value.
func (s Stage) IsValid() bool {
	switch s {
	case StageFormatting, StageDoublePrecision, StageLLM, StageManual:
		return true
	}
	return false
}

// Dictation is one dictated document moving through the pipeline.
//
// The status and error fields are mutated only by the dispatcher; transcript,
// corrected text, and change score are written once when the pipeline
// finalises the item.
type Dictation struct {
	// ID uniquely identifies the dictation.
	ID uuid.UUID

	// UserID is the owning user.
	UserID string

	// AudioRef is an opaque reference to the raw audio (object key or path).
	// The store resolves it to bytes on demand via [Store.Get] with audio.
	AudioRef string

	// MimeType is the audio container MIME type (e.g. "audio/wav").
	MimeType string

	// Status is the current queue state.
	Status Status

	// RawTranscript is the unprocessed ASR output. For double-precision runs
	// this is the first provider's text.
	RawTranscript string

	// CorrectedText is the final pipeline output.
	CorrectedText string

	// ChangeScore quantifies how much CorrectedText differs from
	// RawTranscript, in [0, 100].
	ChangeScore int

	// ErrorMessage holds the failure reason when Status is failed.
	ErrorMessage string

	// Attempts counts how many worker executions have claimed this item.
	// Retries are not capped, but the count is tracked for operators.
	Attempts int

	// DoublePrecision requests dual-provider transcription with
	// reconciliation for this dictation.
	DoublePrecision bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TranscriptionResult is the immutable output of one ASR provider call.
type TranscriptionResult struct {
	// Text is the transcribed speech content.
	Text string

	// ProviderID names the ASR backend that produced Text (e.g. "whisperx",
	// "openai").
	ProviderID string
}

// MergedTranscription is the artefact of one double-precision reconciliation
// attempt. Both source texts are retained verbatim so the merge can be
// replayed later under a different model without re-transcribing audio.
type MergedTranscription struct {
	// Text1 and Provider1 are the first transcription, verbatim.
	Text1     string
	Provider1 string

	// Text2 and Provider2 are the second transcription, verbatim.
	Text2     string
	Provider2 string

	// MarkedText is the single combined string in which every divergent
	// region is wrapped in paired, provider-attributed markers.
	MarkedText string

	// HasDifferences reports whether any region diverged. When false, Text1
	// is used verbatim and no LLM merge call is made.
	HasDifferences bool

	// MergedText is the LLM-resolved text. Equals Text1 when
	// HasDifferences is false.
	MergedText string

	// Model names the LLM used for the merge, empty when no call was made.
	Model string
}

// LogEntry is one append-only record of a stage transition.
//
// For a given dictation, entries compose: TextAfter of entry N equals
// TextBefore of entry N+1, so the end-to-end diff from raw transcript to
// final text is reconstructible by walking the ordered entries.
type LogEntry struct {
	ID          uuid.UUID
	DictationID uuid.UUID

	// Stage identifies the producing pipeline stage.
	Stage Stage

	// TextBefore and TextAfter bracket the transformation.
	TextBefore string
	TextAfter  string

	// ChangeScore is the [0, 100] change metric between TextBefore and
	// TextAfter.
	ChangeScore int

	// Model and Provider attribute machine edits; User attributes manual
	// edits. Exactly one attribution style is set per entry.
	Model    string
	Provider string
	User     string

	// SourceText2 and SourceProvider2 are set only for doublePrecision
	// entries: the second transcription, verbatim, alongside TextBefore
	// holding the first. Retained for recorrect replay.
	SourceText2     string
	SourceProvider2 string

	CreatedAt time.Time
}
