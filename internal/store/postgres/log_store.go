package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skribent/skribent/internal/dictation"
)

// LogStoreImpl is the append-only correction log backed by the
// correction_log table.
//
// Obtain one via [Store.Log] rather than constructing directly. All methods
// are safe for concurrent use.
type LogStoreImpl struct {
	pool *pgxpool.Pool
}

// Append implements [dictation.LogStore]. Entries are insert-only; there is
// no update or delete path.
func (l *LogStoreImpl) Append(ctx context.Context, entry dictation.LogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if !entry.Stage.IsValid() {
		return fmt.Errorf("postgres: append log: %w: unknown stage %q", dictation.ErrValidation, entry.Stage)
	}

	const q = `
		INSERT INTO correction_log
		    (id, dictation_id, stage, text_before, text_after, change_score,
		     model, provider, edited_by, source_text2, source_provider2)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := l.pool.Exec(ctx, q,
		entry.ID,
		entry.DictationID,
		string(entry.Stage),
		entry.TextBefore,
		entry.TextAfter,
		entry.ChangeScore,
		entry.Model,
		entry.Provider,
		entry.User,
		entry.SourceText2,
		entry.SourceProvider2,
	)
	if err != nil {
		return fmt.Errorf("postgres: append log: %w", err)
	}
	return nil
}

// ByDictation implements [dictation.LogStore].
func (l *LogStoreImpl) ByDictation(ctx context.Context, id uuid.UUID) ([]dictation.LogEntry, error) {
	const q = `
		SELECT id, dictation_id, stage, text_before, text_after, change_score,
		       model, provider, edited_by, source_text2, source_provider2, created_at
		FROM   correction_log
		WHERE  dictation_id = $1
		ORDER  BY created_at, id`

	rows, err := l.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: log by dictation: %w", err)
	}
	return collectLogEntries(rows)
}

func collectLogEntries(rows pgx.Rows) ([]dictation.LogEntry, error) {
	defer rows.Close()

	var out []dictation.LogEntry
	for rows.Next() {
		var e dictation.LogEntry
		var stage string
		err := rows.Scan(
			&e.ID, &e.DictationID, &stage, &e.TextBefore, &e.TextAfter,
			&e.ChangeScore, &e.Model, &e.Provider, &e.User,
			&e.SourceText2, &e.SourceProvider2, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan log entry: %w", err)
		}
		e.Stage = dictation.Stage(stage)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate log entries: %w", err)
	}
	return out, nil
}
