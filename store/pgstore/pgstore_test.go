package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/store"
)

// Set RESULTLEDGER_TEST_DATABASE_URL to a disposable database to run these.
func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("RESULTLEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RESULTLEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func seed(t *testing.T, s *Store) model.Attempt {
	t.Helper()
	ctx := context.Background()
	key := uuid.NewString()[:8]
	a := model.Attempt{Key: key, ExamName: "SSC", Session: "2024", Student: model.Student{RegistrationNumber: "R-" + key}}
	sub := model.Subject{ID: "math-" + key, Name: "Mathematics", Category: model.CategoryCompulsory, FullMarks: 100, PassMarks: 33}
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PutSubject(ctx, sub); err != nil {
			return err
		}
		return tx.PutAttempt(ctx, a)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func TestPGStore_ResultRoundTripAndAudit(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	a := seed(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	r := &model.Result{
		ID: a.ResultID(), AttemptKey: a.Key, ExamName: a.ExamName, Session: a.Session,
		TotalMarks: 85, GPA: 5, Grade: "A+", Status: model.StatusPass,
		Published: true, PublishedBy: "controller", PublishedAt: &now,
		Fingerprint: "bafk-test", CreatedAt: now, UpdatedAt: now,
	}
	entry, err := audit.NewEntry(r.ID, "controller", audit.KindPublication, nil, audit.StateOf(r), "", "bafk-test", now)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	err = s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PutResult(ctx, r); err != nil {
			return err
		}
		return tx.Record(ctx, entry)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, err := s.Result(ctx, r.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !got.Published || got.PublishedAt == nil || !got.PublishedAt.Equal(now) || got.Fingerprint != "bafk-test" {
		t.Fatalf("unexpected result: %+v", got)
	}

	trail, err := s.ListFor(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListFor: %v", err)
	}
	if len(trail) != 1 || trail[0].Before != nil || trail[0].NewFingerprint == nil || trail[0].After.Grade != "A+" {
		t.Fatalf("unexpected trail: %+v", trail)
	}
}

func TestPGStore_RollbackAndNotFound(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	a := seed(t, s)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		m := model.Mark{AttemptKey: a.Key, SubjectID: "math-" + a.Key, MarksObtained: 50, RecordedBy: "x",
			CreatedAt: time.Now(), UpdatedAt: time.Now()}
		if err := tx.UpsertMark(ctx, m); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v", err)
	}
	marks, err := s.Marks(ctx, a.Key)
	if err != nil || len(marks) != 0 {
		t.Fatalf("rolled back mark visible: %v %v", marks, err)
	}
	if _, err := s.Result(ctx, a.ResultID()); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
