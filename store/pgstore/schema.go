package pgstore

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		category    TEXT NOT NULL,
		full_marks  DOUBLE PRECISION NOT NULL,
		pass_marks  DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attempts (
		attempt_key         TEXT PRIMARY KEY,
		exam_name           TEXT NOT NULL,
		session             TEXT NOT NULL,
		exam_group          TEXT NOT NULL DEFAULT '',
		institution_id      TEXT NOT NULL DEFAULT '',
		institution_name    TEXT NOT NULL DEFAULT '',
		board_id            TEXT NOT NULL DEFAULT '',
		board_name          TEXT NOT NULL DEFAULT '',
		registration_number TEXT NOT NULL,
		student_name        TEXT NOT NULL DEFAULT '',
		father_name         TEXT NOT NULL DEFAULT '',
		mother_name         TEXT NOT NULL DEFAULT '',
		date_of_birth       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS attempts_registration_idx ON attempts (registration_number, exam_name, session)`,
	`CREATE TABLE IF NOT EXISTS exam_marks (
		attempt_key    TEXT NOT NULL REFERENCES attempts (attempt_key),
		subject_id     TEXT NOT NULL REFERENCES subjects (id),
		marks_obtained DOUBLE PRECISION NOT NULL,
		grade          TEXT NOT NULL DEFAULT '',
		grade_point    DOUBLE PRECISION NOT NULL DEFAULT 0,
		recorded_by    TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (attempt_key, subject_id)
	)`,
	`CREATE TABLE IF NOT EXISTS results (
		result_id    TEXT PRIMARY KEY,
		attempt_key  TEXT NOT NULL UNIQUE REFERENCES attempts (attempt_key),
		exam_name    TEXT NOT NULL,
		session      TEXT NOT NULL,
		total_marks  DOUBLE PRECISION NOT NULL,
		gpa          DOUBLE PRECISION NOT NULL,
		grade        TEXT NOT NULL,
		status       TEXT NOT NULL,
		published    BOOLEAN NOT NULL DEFAULT FALSE,
		published_by TEXT,
		published_at TIMESTAMPTZ,
		fingerprint  TEXT,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS results_session_idx ON results (exam_name, session)`,
	`CREATE TABLE IF NOT EXISTS result_histories (
		seq                  BIGSERIAL PRIMARY KEY,
		id                   TEXT NOT NULL UNIQUE,
		result_id            TEXT NOT NULL REFERENCES results (result_id),
		modified_by          TEXT NOT NULL,
		modification_type    TEXT NOT NULL,
		previous_data        JSONB,
		new_data             JSONB NOT NULL,
		previous_fingerprint TEXT,
		new_fingerprint      TEXT,
		recorded_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS result_histories_result_idx ON result_histories (result_id, recorded_at DESC, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS result_revalidation_requests (
		id             TEXT PRIMARY KEY,
		attempt_key    TEXT NOT NULL REFERENCES attempts (attempt_key),
		subject_id     TEXT NOT NULL REFERENCES subjects (id),
		reason         TEXT NOT NULL,
		status         TEXT NOT NULL,
		requested_by   TEXT NOT NULL,
		reviewed_by    TEXT,
		reviewed_at    TIMESTAMPTZ,
		comments       TEXT NOT NULL DEFAULT '',
		original_marks DOUBLE PRECISION NOT NULL,
		updated_marks  DOUBLE PRECISION,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin migrate: %w", err)
	}
	defer tx.Rollback()
	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: migration %d: %w", i, err)
		}
	}
	return tx.Commit()
}
