// Package pgstore is the PostgreSQL store.Store, using lib/pq.
//
// Result reads inside a transaction take a row lock (SELECT ... FOR UPDATE),
// so concurrent writers of the same Result queue behind each other.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	reader
}

var _ store.Store = (*Store)(nil)

// Open connects with a lib/pq connection string and pings the server.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return New(db), nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, reader: reader{q: db}}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{reader: reader{q: sqlTx, lock: true}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	return nil
}

type reader struct {
	q    querier
	lock bool
}

func notFound(err error, id, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.Errorf(model.KindNotFound, id, "%s not found", what)
	}
	return fmt.Errorf("pgstore: %s %s: %w", what, id, err)
}

func (r reader) Subject(ctx context.Context, id string) (model.Subject, error) {
	var s model.Subject
	var cat string
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, category, full_marks, pass_marks FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &cat, &s.FullMarks, &s.PassMarks)
	if err != nil {
		return model.Subject{}, notFound(err, id, "subject")
	}
	s.Category = model.Category(cat)
	return s, nil
}

func (r reader) Subjects(ctx context.Context) (map[string]model.Subject, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, category, full_marks, pass_marks FROM subjects`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: subjects: %w", err)
	}
	defer rows.Close()
	out := map[string]model.Subject{}
	for rows.Next() {
		var s model.Subject
		var cat string
		if err := rows.Scan(&s.ID, &s.Name, &cat, &s.FullMarks, &s.PassMarks); err != nil {
			return nil, err
		}
		s.Category = model.Category(cat)
		out[s.ID] = s
	}
	return out, rows.Err()
}

const attemptColumns = `attempt_key, exam_name, session, exam_group, institution_id, institution_name,
	board_id, board_name, registration_number, student_name, father_name, mother_name, date_of_birth`

func scanAttempt(row *sql.Row) (model.Attempt, error) {
	var a model.Attempt
	err := row.Scan(&a.Key, &a.ExamName, &a.Session, &a.Group, &a.InstitutionID, &a.InstitutionName,
		&a.BoardID, &a.BoardName, &a.Student.RegistrationNumber, &a.Student.Name,
		&a.Student.FatherName, &a.Student.MotherName, &a.Student.DateOfBirth)
	return a, err
}

func (r reader) Attempt(ctx context.Context, key string) (model.Attempt, error) {
	a, err := scanAttempt(r.q.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE attempt_key = $1`, key))
	if err != nil {
		return model.Attempt{}, notFound(err, key, "attempt")
	}
	return a, nil
}

func (r reader) AttemptByRegistration(ctx context.Context, reg, exam, session string) (model.Attempt, error) {
	a, err := scanAttempt(r.q.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE registration_number = $1 AND exam_name = $2 AND session = $3
		 ORDER BY attempt_key LIMIT 1`, reg, exam, session))
	if err != nil {
		return model.Attempt{}, notFound(err, reg, "attempt")
	}
	return a, nil
}

func (r reader) Marks(ctx context.Context, key string) ([]model.Mark, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT attempt_key, subject_id, marks_obtained, grade, grade_point, recorded_by, created_at, updated_at
		 FROM exam_marks WHERE attempt_key = $1 ORDER BY subject_id`, key)
	if err != nil {
		return nil, fmt.Errorf("pgstore: marks %s: %w", key, err)
	}
	defer rows.Close()
	var out []model.Mark
	for rows.Next() {
		var m model.Mark
		if err := rows.Scan(&m.AttemptKey, &m.SubjectID, &m.MarksObtained, &m.Grade, &m.GradePoint,
			&m.RecordedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt, m.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

const resultColumns = `result_id, attempt_key, exam_name, session, total_marks, gpa, grade, status,
	published, published_by, published_at, fingerprint, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*model.Result, error) {
	var (
		r           model.Result
		status      string
		publishedBy sql.NullString
		publishedAt sql.NullTime
		fingerprint sql.NullString
	)
	err := row.Scan(&r.ID, &r.AttemptKey, &r.ExamName, &r.Session, &r.TotalMarks, &r.GPA, &r.Grade, &status,
		&r.Published, &publishedBy, &publishedAt, &fingerprint, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	r.PublishedBy = publishedBy.String
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		r.PublishedAt = &t
	}
	r.Fingerprint = fingerprint.String
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	return &r, nil
}

func (r reader) Result(ctx context.Context, id string) (*model.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE result_id = $1`
	if r.lock {
		query += ` FOR UPDATE`
	}
	res, err := scanResult(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, id, "result")
	}
	return res, nil
}

func (r reader) ResultsBySession(ctx context.Context, exam, session string) ([]*model.Result, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE exam_name = $1 AND session = $2 ORDER BY result_id`,
		exam, session)
	if err != nil {
		return nil, fmt.Errorf("pgstore: results %s %s: %w", exam, session, err)
	}
	defer rows.Close()
	var out []*model.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r reader) Revalidation(ctx context.Context, id string) (store.Revalidation, error) {
	var (
		rv         store.Revalidation
		status     string
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
		updated    sql.NullFloat64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, attempt_key, subject_id, reason, status, requested_by, reviewed_by, reviewed_at,
		        comments, original_marks, updated_marks, created_at, updated_at
		 FROM result_revalidation_requests WHERE id = $1`, id,
	).Scan(&rv.ID, &rv.AttemptKey, &rv.SubjectID, &rv.Reason, &status, &rv.RequestedBy, &reviewedBy,
		&reviewedAt, &rv.Comments, &rv.OriginalMarks, &updated, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return store.Revalidation{}, notFound(err, id, "revalidation request")
	}
	rv.Status = store.RevalidationStatus(status)
	rv.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		rv.ReviewedAt = &t
	}
	if updated.Valid {
		v := updated.Float64
		rv.UpdatedMarks = &v
	}
	return rv, nil
}

func (r reader) ListFor(ctx context.Context, resultID string) ([]audit.Entry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT seq, id, result_id, modified_by, modification_type, previous_data, new_data,
		        previous_fingerprint, new_fingerprint, recorded_at
		 FROM result_histories WHERE result_id = $1
		 ORDER BY recorded_at DESC, seq DESC`, resultID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: audit %s: %w", resultID, err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e             audit.Entry
			kind          string
			before, after []byte
			prevFP, newFP sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.ResultID, &e.ModifiedBy, &kind, &before, &after,
			&prevFP, &newFP, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = audit.Kind(kind)
		e.Timestamp = e.Timestamp.UTC()
		if len(before) > 0 {
			e.Before = &audit.State{}
			if err := json.Unmarshal(before, e.Before); err != nil {
				return nil, fmt.Errorf("pgstore: audit %s previous_data: %w", e.ID, err)
			}
		}
		e.After = &audit.State{}
		if err := json.Unmarshal(after, e.After); err != nil {
			return nil, fmt.Errorf("pgstore: audit %s new_data: %w", e.ID, err)
		}
		e.PreviousFingerprint = nullable(prevFP)
		e.NewFingerprint = nullable(newFP)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

type tx struct {
	reader
}

func (t *tx) PutSubject(ctx context.Context, s model.Subject) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO subjects (id, name, category, full_marks, pass_marks) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
		   full_marks = EXCLUDED.full_marks, pass_marks = EXCLUDED.pass_marks`,
		s.ID, s.Name, string(s.Category), s.FullMarks, s.PassMarks)
	return wrap(err, "put subject", s.ID)
}

func (t *tx) PutAttempt(ctx context.Context, a model.Attempt) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (attempt_key) DO UPDATE SET exam_name = EXCLUDED.exam_name, session = EXCLUDED.session,
		   exam_group = EXCLUDED.exam_group, institution_id = EXCLUDED.institution_id,
		   institution_name = EXCLUDED.institution_name, board_id = EXCLUDED.board_id,
		   board_name = EXCLUDED.board_name, registration_number = EXCLUDED.registration_number,
		   student_name = EXCLUDED.student_name, father_name = EXCLUDED.father_name,
		   mother_name = EXCLUDED.mother_name, date_of_birth = EXCLUDED.date_of_birth`,
		a.Key, a.ExamName, a.Session, a.Group, a.InstitutionID, a.InstitutionName, a.BoardID, a.BoardName,
		a.Student.RegistrationNumber, a.Student.Name, a.Student.FatherName, a.Student.MotherName, a.Student.DateOfBirth)
	return wrap(err, "put attempt", a.Key)
}

func (t *tx) UpsertMark(ctx context.Context, m model.Mark) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO exam_marks (attempt_key, subject_id, marks_obtained, grade, grade_point, recorded_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (attempt_key, subject_id) DO UPDATE SET marks_obtained = EXCLUDED.marks_obtained,
		   grade = EXCLUDED.grade, grade_point = EXCLUDED.grade_point,
		   recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at`,
		m.AttemptKey, m.SubjectID, m.MarksObtained, m.Grade, m.GradePoint, m.RecordedBy, m.CreatedAt.UTC(), m.UpdatedAt.UTC())
	return wrap(err, "upsert mark", m.AttemptKey)
}

func (t *tx) DeleteMark(ctx context.Context, key, subjectID string) error {
	res, err := t.q.ExecContext(ctx,
		`DELETE FROM exam_marks WHERE attempt_key = $1 AND subject_id = $2`, key, subjectID)
	if err != nil {
		return wrap(err, "delete mark", key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Errorf(model.KindNotFound, key, "no mark for subject %s", subjectID)
	}
	return nil
}

func (t *tx) PutResult(ctx context.Context, r *model.Result) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (result_id) DO UPDATE SET total_marks = EXCLUDED.total_marks, gpa = EXCLUDED.gpa,
		   grade = EXCLUDED.grade, status = EXCLUDED.status, published = EXCLUDED.published,
		   published_by = EXCLUDED.published_by, published_at = EXCLUDED.published_at,
		   fingerprint = EXCLUDED.fingerprint, updated_at = EXCLUDED.updated_at`,
		r.ID, r.AttemptKey, r.ExamName, r.Session, r.TotalMarks, r.GPA, r.Grade, string(r.Status),
		r.Published, nullString(r.PublishedBy), nullTime(r.PublishedAt), nullString(r.Fingerprint),
		r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	return wrap(err, "put result", r.ID)
}

func (t *tx) PutRevalidation(ctx context.Context, rv store.Revalidation) error {
	var updated sql.NullFloat64
	if rv.UpdatedMarks != nil {
		updated = sql.NullFloat64{Float64: *rv.UpdatedMarks, Valid: true}
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO result_revalidation_requests (id, attempt_key, subject_id, reason, status, requested_by,
		   reviewed_by, reviewed_at, comments, original_marks, updated_marks, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, reviewed_by = EXCLUDED.reviewed_by,
		   reviewed_at = EXCLUDED.reviewed_at, comments = EXCLUDED.comments,
		   updated_marks = EXCLUDED.updated_marks, updated_at = EXCLUDED.updated_at`,
		rv.ID, rv.AttemptKey, rv.SubjectID, rv.Reason, string(rv.Status), rv.RequestedBy,
		nullString(rv.ReviewedBy), nullTime(rv.ReviewedAt), rv.Comments, rv.OriginalMarks, updated,
		rv.CreatedAt.UTC(), rv.UpdatedAt.UTC())
	return wrap(err, "put revalidation", rv.ID)
}

func (t *tx) Record(ctx context.Context, e audit.Entry) error {
	// lib/pq sends []byte as bytea, so JSONB columns get strings.
	var before sql.NullString
	if e.Before != nil {
		b, err := json.Marshal(e.Before)
		if err != nil {
			return err
		}
		before = sql.NullString{String: string(b), Valid: true}
	}
	after, err := json.Marshal(e.After)
	if err != nil {
		return err
	}
	prev, next := sql.NullString{}, sql.NullString{}
	if e.PreviousFingerprint != nil {
		prev = sql.NullString{String: *e.PreviousFingerprint, Valid: true}
	}
	if e.NewFingerprint != nil {
		next = sql.NullString{String: *e.NewFingerprint, Valid: true}
	}
	_, err = t.q.ExecContext(ctx,
		`INSERT INTO result_histories (id, result_id, modified_by, modification_type, previous_data, new_data,
		   previous_fingerprint, new_fingerprint, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ResultID, e.ModifiedBy, string(e.Kind), before, string(after), prev, next, e.Timestamp.UTC())
	return wrap(err, "record audit", e.ResultID)
}

func wrap(err error, op, id string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("pgstore: %s %s: %w", op, id, err)
}
