// Package storage persists round judgments and scored submissions in an
// embedded sqlite database. The file is shared by every concurrently-running
// team; each logical writer opens its own Store so no handle is shared
// across goroutines, and WAL journaling keeps readers off the writers' backs.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ostraka/arena/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS round_status (
	execution_id     TEXT    NOT NULL,
	team_id          TEXT    NOT NULL,
	team_name        TEXT    NOT NULL,
	round_number     INTEGER NOT NULL,
	should_continue  INTEGER,
	reasoning        TEXT    NOT NULL DEFAULT '',
	confidence_score REAL    NOT NULL DEFAULT 0,
	round_started_at TEXT    NOT NULL,
	round_ended_at   TEXT,
	created_at       TEXT    NOT NULL,
	updated_at       TEXT    NOT NULL,
	UNIQUE (execution_id, team_id, round_number)
);

CREATE TABLE IF NOT EXISTS leader_board (
	execution_id       TEXT    NOT NULL,
	team_id            TEXT    NOT NULL,
	team_name          TEXT    NOT NULL,
	round_number       INTEGER NOT NULL,
	submission_content TEXT    NOT NULL,
	submission_format  TEXT    NOT NULL DEFAULT 'md',
	score              REAL    NOT NULL CHECK (score >= 0 AND score <= 100),
	score_details      TEXT    NOT NULL DEFAULT '{}',
	final_submission   INTEGER NOT NULL DEFAULT 0,
	exit_reason        TEXT,
	created_at         TEXT    NOT NULL,
	updated_at         TEXT    NOT NULL,
	UNIQUE (execution_id, team_id, round_number)
);

CREATE INDEX IF NOT EXISTS idx_leader_board_ranking
	ON leader_board (execution_id, score DESC, round_number DESC);
`

// Store is one writer's session against the shared database file. It is not
// safe for concurrent use; open one Store per round controller.
type Store struct {
	db    *sql.DB
	log   zerolog.Logger
	retry retry.Policy
}

// Open opens (and if needed bootstraps) the database at path. Every Open
// call returns an isolated session with its own connection.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// One connection per store: each logical writer is a single session.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, log: logger, retry: retry.Default()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// transient reports whether err looks like lock contention worth retrying.
// Constraint violations and shutdown errors are permanent.
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withTx runs fn in an explicit transaction, retrying lock contention with
// the fixed backoff policy. Exhausted retries surface as a team-fatal error
// to the caller.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.retry.Do(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if transient(err) {
				return err
			}
			return retry.Permanent(err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			if transient(err) {
				s.log.Warn().Err(err).Msg("storage write contended, retrying")
				return err
			}
			return retry.Permanent(err)
		}
		if err := tx.Commit(); err != nil {
			if transient(err) {
				s.log.Warn().Err(err).Msg("storage commit contended, retrying")
				return err
			}
			return retry.Permanent(err)
		}
		return nil
	})
}
