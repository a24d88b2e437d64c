package ledger

import (
	"context"
	"log/slog"
	"time"

	"xdao.co/resultledger/aggregate"
	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/snapshot"
	"xdao.co/resultledger/store"
)

// Outcome describes what a recompute did to one Result.
type Outcome struct {
	Result      *model.Result
	Created     bool
	Unpublished bool
	// Entries are the audit entries written, in order.
	Entries []audit.Entry
}

// OnMarkMutated recomputes the attempt's Result after the mark-entry
// collaborator created, changed or deleted one of its marks.
//
// A Published Result is forced back to Draft. One marks_update entry is
// written, or initial_hash when the Result is created. With no marks and no
// Result yet, nothing is written and a KindIncompleteAggregate error is
// returned.
func (l *Ledger) OnMarkMutated(ctx context.Context, actor, attemptKey string) (Outcome, error) {
	return l.withAttempt(ctx, actor, attemptKey, func(txCtx context.Context, tx store.Tx, now time.Time) (Outcome, error) {
		return l.recomputeTx(txCtx, ctx, tx, actor, attemptKey, audit.KindMarksUpdate, false, now)
	})
}

// WriteMark records a mark and recomputes its Result in one transaction.
func (l *Ledger) WriteMark(ctx context.Context, actor string, in model.MarkInput) (Outcome, error) {
	return l.withAttempt(ctx, actor, in.AttemptKey, func(txCtx context.Context, tx store.Tx, now time.Time) (Outcome, error) {
		if _, err := tx.Attempt(txCtx, in.AttemptKey); err != nil {
			return Outcome{}, err
		}
		subject, err := tx.Subject(txCtx, in.SubjectID)
		if err != nil {
			return Outcome{}, err
		}
		m, err := model.NewMark(in, subject, actor, now)
		if err != nil {
			return Outcome{}, err
		}
		if err := tx.UpsertMark(txCtx, aggregate.Grade(l.policy, m, subject)); err != nil {
			return Outcome{}, err
		}
		return l.recomputeTx(txCtx, ctx, tx, actor, in.AttemptKey, audit.KindMarksUpdate, false, now)
	})
}

// DeleteMark removes a mark and recomputes its Result in one transaction.
func (l *Ledger) DeleteMark(ctx context.Context, actor, attemptKey, subjectID string) (Outcome, error) {
	return l.withAttempt(ctx, actor, attemptKey, func(txCtx context.Context, tx store.Tx, now time.Time) (Outcome, error) {
		if err := tx.DeleteMark(txCtx, attemptKey, subjectID); err != nil {
			return Outcome{}, err
		}
		return l.recomputeTx(txCtx, ctx, tx, actor, attemptKey, audit.KindMarksUpdate, false, now)
	})
}

// withAttempt runs fn under the attempt's lock in one transaction. A
// KindStoreUnavailable error from fn still commits. fn receives a context
// that outlives cancellation of ctx, so a started transaction always finishes.
func (l *Ledger) withAttempt(ctx context.Context, actor, attemptKey string, fn func(context.Context, store.Tx, time.Time) (Outcome, error)) (Outcome, error) {
	if err := requireActor(actor); err != nil {
		return Outcome{}, err
	}
	unlock, err := l.locks.Lock(ctx, attemptKey)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	var (
		out   Outcome
		soft  error
		now   = l.clock()
		txCtx = context.WithoutCancel(ctx)
	)
	err = l.store.WithTx(txCtx, func(tx store.Tx) error {
		o, err := fn(txCtx, tx, now)
		if err != nil && !model.IsKind(err, model.KindStoreUnavailable) {
			return err
		}
		out, soft = o, err
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, soft
}

// recomputeTx re-aggregates the attempt from its current marks and writes
// the Result and its audit entries through tx.
//
// With splitHash the data change and the fingerprint change are recorded as
// two entries: kind first, then hash_update. putCtx bounds the fingerprint
// store write; ctx is used for the transaction.
func (l *Ledger) recomputeTx(ctx, putCtx context.Context, tx store.Tx, actor, attemptKey string, kind audit.Kind, splitHash bool, now time.Time) (Outcome, error) {
	attempt, err := tx.Attempt(ctx, attemptKey)
	if err != nil {
		return Outcome{}, err
	}
	marks, err := tx.Marks(ctx, attemptKey)
	if err != nil {
		return Outcome{}, err
	}
	subjects, err := tx.Subjects(ctx)
	if err != nil {
		return Outcome{}, err
	}
	resultID := attempt.ResultID()

	prev, err := tx.Result(ctx, resultID)
	if err != nil && !model.IsKind(err, model.KindNotFound) {
		return Outcome{}, err
	}
	if err != nil {
		prev = nil
	}

	agg, aggErr := aggregate.Compute(l.policy, marks, subjects)
	if aggErr != nil && prev == nil {
		return Outcome{}, model.Wrap(model.KindIncompleteAggregate, resultID, "no marks recorded", nil)
	}

	// Keep stored grades in step with the policy.
	stored := make(map[string]model.Mark, len(marks))
	for _, m := range marks {
		stored[m.SubjectID] = m
	}
	for _, m := range agg.Marks {
		if old := stored[m.SubjectID]; m.Grade != old.Grade || m.GradePoint != old.GradePoint {
			if err := tx.UpsertMark(ctx, m); err != nil {
				return Outcome{}, err
			}
		}
	}

	out := Outcome{Created: prev == nil}
	next := &model.Result{
		ID:         resultID,
		AttemptKey: attempt.Key,
		ExamName:   attempt.ExamName,
		Session:    attempt.Session,
		CreatedAt:  now,
	}
	if prev != nil {
		next = prev.Clone()
		out.Unpublished = prev.Published
	}
	next.TotalMarks = agg.TotalMarks
	next.GPA = agg.GPA
	next.Grade = agg.Grade
	next.Status = agg.Status
	next.Published = false
	next.PublishedBy = ""
	next.PublishedAt = nil
	next.UpdatedAt = now

	if out.Created {
		kind = audit.KindInitialHash
	}

	doc, err := snapshot.NewDocument(snapshot.Build(attempt, next, agg.Marks, subjects))
	if err != nil {
		return Outcome{}, model.Wrap(model.KindInternal, resultID, "encode snapshot", err)
	}
	fp, fpErr := l.put(putCtx, string(kind), resultID, doc)

	var before *audit.State
	prevFP := ""
	if prev != nil {
		before = audit.StateOf(prev)
		prevFP = prev.Fingerprint
	}
	if fpErr == nil {
		next.Fingerprint = fp
	}

	if err := tx.PutResult(ctx, next); err != nil {
		return Outcome{}, err
	}

	after := audit.StateOf(next)
	if fpErr != nil {
		after.FingerprintError = fpErr.Error()
	}

	if splitHash {
		data := audit.StateOf(next)
		data.Fingerprint = prevFP
		first, err := audit.NewEntry(resultID, actor, kind, before, data, prevFP, "", now)
		if err != nil {
			return Outcome{}, err
		}
		second, err := audit.NewEntry(resultID, actor, audit.KindHashUpdate, data, after, prevFP, fp, now)
		if err != nil {
			return Outcome{}, err
		}
		out.Entries = []audit.Entry{first, second}
	} else {
		e, err := audit.NewEntry(resultID, actor, kind, before, after, prevFP, fp, now)
		if err != nil {
			return Outcome{}, err
		}
		out.Entries = []audit.Entry{e}
	}
	for _, e := range out.Entries {
		if err := tx.Record(ctx, e); err != nil {
			return Outcome{}, err
		}
	}

	out.Result = next
	if fpErr != nil {
		return out, fpErr
	}
	if aggErr != nil {
		l.log.Warn("result has no marks", slog.String("result_id", resultID))
	}
	return out, nil
}
