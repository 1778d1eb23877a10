// Package postgres provides the PostgreSQL-backed implementation of the
// dictation queue ([dictation.Store]) and the append-only correction log
// ([dictation.LogStore]).
//
// Both share a single [pgxpool.Pool]. [New] runs [Migrate] so the required
// tables and indexes exist before the first query.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	pending, _ := store.FetchPending(ctx, 10)
//	_ = store.Log().Append(ctx, entry)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDictations = `
CREATE TABLE IF NOT EXISTS dictations (
    id               UUID         PRIMARY KEY,
    user_id          TEXT         NOT NULL,
    audio_ref        TEXT         NOT NULL DEFAULT '',
    mime_type        TEXT         NOT NULL DEFAULT '',
    status           TEXT         NOT NULL DEFAULT 'pending',
    raw_transcript   TEXT         NOT NULL DEFAULT '',
    corrected_text   TEXT         NOT NULL DEFAULT '',
    change_score     INTEGER      NOT NULL DEFAULT 0,
    error_message    TEXT         NOT NULL DEFAULT '',
    attempts         INTEGER      NOT NULL DEFAULT 0,
    double_precision BOOLEAN      NOT NULL DEFAULT false,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dictations_status_created
    ON dictations (status, created_at);

CREATE INDEX IF NOT EXISTS idx_dictations_user_id
    ON dictations (user_id);
`

const ddlAudioBlobs = `
CREATE TABLE IF NOT EXISTS audio_blobs (
    ref         TEXT         PRIMARY KEY,
    data        BYTEA        NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlCorrectionLog = `
CREATE TABLE IF NOT EXISTS correction_log (
    id                UUID         PRIMARY KEY,
    dictation_id      UUID         NOT NULL,
    stage             TEXT         NOT NULL,
    text_before       TEXT         NOT NULL DEFAULT '',
    text_after        TEXT         NOT NULL DEFAULT '',
    change_score      INTEGER      NOT NULL DEFAULT 0,
    model             TEXT         NOT NULL DEFAULT '',
    provider          TEXT         NOT NULL DEFAULT '',
    edited_by         TEXT         NOT NULL DEFAULT '',
    source_text2      TEXT         NOT NULL DEFAULT '',
    source_provider2  TEXT         NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_correction_log_dictation
    ON correction_log (dictation_id, created_at);
`

// Migrate creates all tables and indexes if they do not exist. Safe to run on
// every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlDictations, ddlAudioBlobs, ddlCorrectionLog} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
