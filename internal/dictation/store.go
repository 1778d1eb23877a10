package dictation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the narrow read/write contract the pipeline holds against the
// dictation record storage. The storage engine behind it (schema, indexing,
// archival) is an external concern.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// FetchPending returns up to limit dictations in status pending, ordered
	// by submission time (oldest first). It does not change their status;
	// claiming is a separate SetStatus call so the claim write is visible in
	// the store before any network call is made.
	FetchPending(ctx context.Context, limit int) ([]Dictation, error)

	// Get returns the dictation with the given id. When withAudio is true the
	// raw audio bytes referenced by AudioRef are loaded and returned
	// alongside; otherwise audio is nil.
	Get(ctx context.Context, id uuid.UUID, withAudio bool) (*Dictation, []byte, error)

	// SetStatus transitions the dictation to status. errMsg is stored when
	// status is failed and cleared otherwise. The attempt counter is
	// incremented when status moves to processing.
	SetStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error

	// PersistResult writes the final transcript, corrected text, and change
	// score, and marks the dictation completed.
	PersistResult(ctx context.Context, id uuid.UUID, transcript, correctedText string, changeScore int) error

	// PersistText writes the transcript, best available corrected text, and
	// change score without touching the status or error message. It is the
	// write used when correction fails partway: the item keeps its processing
	// status and the caller decides the terminal transition.
	PersistText(ctx context.Context, id uuid.UUID, transcript, correctedText string, changeScore int) error

	// RequeueStale moves dictations that have sat in status processing for
	// longer than olderThan back to pending. It is an explicit operator
	// action for recovering from a process crash, never run automatically.
	// Returns the number of requeued items.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// LogStore is the append-only correction audit trail contract.
//
// Implementations must be safe for concurrent use.
type LogStore interface {
	// Append writes entry to the log. Entries are never updated or deleted.
	Append(ctx context.Context, entry LogEntry) error

	// ByDictation returns all entries for the given dictation, ordered by
	// creation time (oldest first).
	ByDictation(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}
