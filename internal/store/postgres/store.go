package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skribent/skribent/internal/dictation"
)

var (
	_ dictation.Store    = (*Store)(nil)
	_ dictation.LogStore = (*LogStoreImpl)(nil)
)

// Store is the PostgreSQL dictation queue. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
	log  *LogStoreImpl
}

// New connects to the database at dsn, verifies the connection, and runs
// [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		pool: pool,
		log:  &LogStoreImpl{pool: pool},
	}, nil
}

// Log returns the correction log implementation sharing this store's pool.
func (s *Store) Log() *LogStoreImpl { return s.log }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

const dictationColumns = `
	id, user_id, audio_ref, mime_type, status, raw_transcript,
	corrected_text, change_score, error_message, attempts,
	double_precision, created_at, updated_at`

// Create enqueues a new dictation in status pending. When audio is non-empty
// it is stored as a blob and the dictation's AudioRef points at it.
func (s *Store) Create(ctx context.Context, d dictation.Dictation, audio []byte) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = dictation.StatusPending
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: create dictation: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(audio) > 0 {
		if d.AudioRef == "" {
			d.AudioRef = d.ID.String()
		}
		const qa = `INSERT INTO audio_blobs (ref, data) VALUES ($1, $2)
		            ON CONFLICT (ref) DO UPDATE SET data = EXCLUDED.data`
		if _, err := tx.Exec(ctx, qa, d.AudioRef, audio); err != nil {
			return fmt.Errorf("postgres: create dictation: store audio: %w", err)
		}
	}

	const q = `
		INSERT INTO dictations
		    (id, user_id, audio_ref, mime_type, status, double_precision)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, q, d.ID, d.UserID, d.AudioRef, d.MimeType, string(d.Status), d.DoublePrecision); err != nil {
		return fmt.Errorf("postgres: create dictation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: create dictation: commit: %w", err)
	}
	return nil
}

// FetchPending implements [dictation.Store].
func (s *Store) FetchPending(ctx context.Context, limit int) ([]dictation.Dictation, error) {
	const q = `
		SELECT` + dictationColumns + `
		FROM   dictations
		WHERE  status = 'pending'
		ORDER  BY created_at
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch pending: %w", err)
	}
	return collectDictations(rows)
}

// Get implements [dictation.Store].
func (s *Store) Get(ctx context.Context, id uuid.UUID, withAudio bool) (*dictation.Dictation, []byte, error) {
	const q = `
		SELECT` + dictationColumns + `
		FROM   dictations
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: get dictation: %w", err)
	}
	items, err := collectDictations(rows)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("postgres: get dictation %s: %w", id, dictation.ErrValidation)
	}
	d := items[0]

	if !withAudio || d.AudioRef == "" {
		return &d, nil, nil
	}

	var audio []byte
	const qa = `SELECT data FROM audio_blobs WHERE ref = $1`
	if err := s.pool.QueryRow(ctx, qa, d.AudioRef).Scan(&audio); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("postgres: audio %q for dictation %s not found: %w", d.AudioRef, id, dictation.ErrValidation)
		}
		return nil, nil, fmt.Errorf("postgres: load audio: %w", err)
	}
	return &d, audio, nil
}

// SetStatus implements [dictation.Store]. The attempt counter increments on
// the transition to processing; the error message persists only on failed.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status dictation.Status, errMsg string) error {
	if !status.IsValid() {
		return fmt.Errorf("postgres: set status: %w: unknown status %q", dictation.ErrValidation, status)
	}
	if status != dictation.StatusFailed {
		errMsg = ""
	}

	const q = `
		UPDATE dictations
		SET    status        = $2,
		       error_message = $3,
		       attempts      = attempts + CASE WHEN $2 = 'processing' THEN 1 ELSE 0 END,
		       updated_at    = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("postgres: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set status: dictation %s not found: %w", id, dictation.ErrValidation)
	}
	return nil
}

// PersistResult implements [dictation.Store].
func (s *Store) PersistResult(ctx context.Context, id uuid.UUID, transcript, correctedText string, changeScore int) error {
	const q = `
		UPDATE dictations
		SET    status         = 'completed',
		       raw_transcript = $2,
		       corrected_text = $3,
		       change_score   = $4,
		       error_message  = '',
		       updated_at     = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, transcript, correctedText, changeScore)
	if err != nil {
		return fmt.Errorf("postgres: persist result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: persist result: dictation %s not found: %w", id, dictation.ErrValidation)
	}
	return nil
}

// PersistText implements [dictation.Store]. Unlike PersistResult it leaves
// status and error_message untouched.
func (s *Store) PersistText(ctx context.Context, id uuid.UUID, transcript, correctedText string, changeScore int) error {
	const q = `
		UPDATE dictations
		SET    raw_transcript = $2,
		       corrected_text = $3,
		       change_score   = $4,
		       updated_at     = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, transcript, correctedText, changeScore)
	if err != nil {
		return fmt.Errorf("postgres: persist text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: persist text: dictation %s not found: %w", id, dictation.ErrValidation)
	}
	return nil
}

// RequeueStale implements [dictation.Store].
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	const q = `
		UPDATE dictations
		SET    status     = 'pending',
		       updated_at = now()
		WHERE  status     = 'processing'
		  AND  updated_at < now() - ($1::bigint * interval '1 microsecond')`

	tag, err := s.pool.Exec(ctx, q, olderThan.Microseconds())
	if err != nil {
		return 0, fmt.Errorf("postgres: requeue stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// collectDictations drains rows into dictation values.
func collectDictations(rows pgx.Rows) ([]dictation.Dictation, error) {
	defer rows.Close()

	var out []dictation.Dictation
	for rows.Next() {
		var d dictation.Dictation
		var status string
		err := rows.Scan(
			&d.ID, &d.UserID, &d.AudioRef, &d.MimeType, &status,
			&d.RawTranscript, &d.CorrectedText, &d.ChangeScore,
			&d.ErrorMessage, &d.Attempts, &d.DoublePrecision,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan dictation: %w", err)
		}
		d.Status = dictation.Status(status)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate dictations: %w", err)
	}
	return out, nil
}
