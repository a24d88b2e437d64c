package revalidation

import (
	"context"
	"testing"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/ledger"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/storage/memcas"
	"xdao.co/resultledger/store"
	"xdao.co/resultledger/store/memstore"
)

func setup(t *testing.T) (*Service, *memstore.Store, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PutSubject(ctx, model.Subject{ID: "bangla", Name: "Bangla", Category: model.CategoryCompulsory, FullMarks: 100, PassMarks: 33}); err != nil {
			return err
		}
		return tx.PutAttempt(ctx, model.Attempt{Key: "3003", ExamName: "SSC", Session: "2024", Student: model.Student{RegistrationNumber: "R-3003"}})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	l, err := ledger.New(st, memcas.New(), nil, ledger.Options{})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	if _, err := l.WriteMark(ctx, "examiner", model.MarkInput{AttemptKey: "3003", SubjectID: "bangla", MarksObtained: 30}); err != nil {
		t.Fatalf("WriteMark: %v", err)
	}
	return New(st, l, nil), st, l
}

func TestApprove_RewritesMarkAndUnpublishes(t *testing.T) {
	ctx := context.Background()
	svc, st, l := setup(t)
	if _, err := l.Publish(ctx, "controller", []string{"SSC_2024_3003"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	req, err := svc.Create(ctx, "student", "3003", "bangla", "answer script not fully evaluated")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.Status != store.RevalidationPending || req.OriginalMarks != 30 {
		t.Fatalf("unexpected request: %+v", req)
	}

	marks := 41.0
	done, err := svc.Review(ctx, "board-officer", req.ID, store.RevalidationApproved, &marks, "recounted")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if done.Status != store.RevalidationApproved || done.ReviewedAt == nil || *done.UpdatedMarks != 41 {
		t.Fatalf("unexpected review: %+v", done)
	}

	r, _ := st.Result(ctx, "SSC_2024_3003")
	if r.Published || r.Status != model.StatusPass || r.TotalMarks != 41 {
		t.Fatalf("result not recomputed: %+v", r)
	}
	trail, _ := st.ListFor(ctx, "SSC_2024_3003")
	if trail[0].Kind != audit.KindMarksUpdate || trail[0].ModifiedBy != "board-officer" {
		t.Fatalf("unexpected latest entry: %+v", trail[0])
	}

	if _, err := svc.Review(ctx, "board-officer", req.ID, store.RevalidationRejected, nil, ""); !model.IsKind(err, model.KindInvalidState) {
		t.Fatalf("second review should be InvalidState, got %v", err)
	}
}

func TestReject_LeavesMarks(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := setup(t)
	req, err := svc.Create(ctx, "student", "3003", "bangla", "recheck")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Review(ctx, "board-officer", req.ID, store.RevalidationRejected, nil, "no change"); err != nil {
		t.Fatalf("Review: %v", err)
	}
	marks, _ := st.Marks(ctx, "3003")
	if marks[0].MarksObtained != 30 {
		t.Fatalf("rejected request changed marks")
	}
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	if _, err := svc.Create(ctx, "student", "3003", "physics", "recheck"); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected NotFound for subject without mark, got %v", err)
	}
	if _, err := svc.Create(ctx, "student", "3003", "bangla", " "); !model.IsKind(err, model.KindInvalid) {
		t.Fatalf("expected Invalid for empty reason, got %v", err)
	}
	if _, err := svc.Review(ctx, "officer", "nope", store.RevalidationStatus("Maybe"), nil, ""); !model.IsKind(err, model.KindInvalid) {
		t.Fatalf("expected Invalid decision, got %v", err)
	}
}
