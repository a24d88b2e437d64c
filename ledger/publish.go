package ledger

import (
	"context"
	"errors"
	"time"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/snapshot"
	"xdao.co/resultledger/store"
)

var (
	errSkip        = errors.New("already in target state")
	errInterrupted = errors.New("interrupted")
)

// Publish moves every Draft Result in ids to Published.
//
// The state change for the whole batch is one transaction. Each Result gets
// a new fingerprint and one publication entry inside it; a fingerprint
// store failure is recorded on the entry and reported in Failed, while
// published=true stays committed for that id. Already Published ids are
// skipped without an entry. Results with an incomplete aggregate fail.
//
// Cancelling ctx stops the batch between items; the processed prefix is
// committed, Interrupted is set, and ctx's error is returned with the report.
func (l *Ledger) Publish(ctx context.Context, actor string, ids []string) (BatchReport, error) {
	return l.batchTx(ctx, actor, ids, l.publishOne)
}

// Unpublish moves every Published Result in ids back to Draft. The
// fingerprint is unchanged; the unpublication entry keeps the prior publish
// metadata in its before state.
func (l *Ledger) Unpublish(ctx context.Context, actor string, ids []string) (BatchReport, error) {
	return l.batchTx(ctx, actor, ids, l.unpublishOne)
}

type itemFunc func(ctx, putCtx context.Context, tx store.Tx, actor, id string, now time.Time) error

func (l *Ledger) batchTx(ctx context.Context, actor string, ids []string, fn itemFunc) (BatchReport, error) {
	if err := requireActor(actor); err != nil {
		return BatchReport{}, err
	}
	ids = dedupe(ids)
	unlock, err := l.lockAttempts(ctx, ids)
	if err != nil {
		return BatchReport{}, err
	}
	defer unlock()

	now := l.clock()
	txCtx := context.WithoutCancel(ctx)
	var report BatchReport
	err = l.store.WithTx(txCtx, func(tx store.Tx) error {
		report = BatchReport{}
		for _, id := range ids {
			if ctx.Err() != nil {
				report.Interrupted = true
				return nil
			}
			err := fn(txCtx, ctx, tx, actor, id, now)
			switch {
			case err == nil:
				report.succeed(id)
			case errors.Is(err, errSkip):
				report.skip(id)
			case errors.Is(err, errInterrupted):
				report.Interrupted = true
				return nil
			case model.IsKind(err, model.KindNotFound),
				model.IsKind(err, model.KindIncompleteAggregate),
				model.IsKind(err, model.KindStoreUnavailable):
				report.fail(id, err)
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BatchReport{}, err
	}
	if report.Interrupted {
		return report, ctx.Err()
	}
	return report, nil
}

func (l *Ledger) publishOne(ctx, putCtx context.Context, tx store.Tx, actor, id string, now time.Time) error {
	r, err := tx.Result(ctx, id)
	if err != nil {
		return err
	}
	if r.Published {
		return errSkip
	}
	if !r.Complete() {
		return model.Errorf(model.KindIncompleteAggregate, id, "result has no complete aggregate")
	}
	doc, err := l.liveSnapshot(ctx, tx, r, func(next *model.Result) {
		next.Published = true
		next.PublishedBy = actor
		next.PublishedAt = &now
		next.UpdatedAt = now
	})
	if err != nil {
		return err
	}

	fp, fpErr := l.put(putCtx, "publish", id, doc.doc)
	if fpErr != nil && putCtx.Err() != nil {
		return errInterrupted
	}
	return l.commitStamp(ctx, tx, actor, audit.KindPublication, r, doc.result, r.Fingerprint, fp, fpErr, now)
}

func (l *Ledger) unpublishOne(ctx, _ context.Context, tx store.Tx, actor, id string, now time.Time) error {
	r, err := tx.Result(ctx, id)
	if err != nil {
		return err
	}
	if !r.Published {
		return errSkip
	}
	next := r.Clone()
	next.Published = false
	next.PublishedBy = ""
	next.PublishedAt = nil
	next.UpdatedAt = now
	if err := tx.PutResult(ctx, next); err != nil {
		return err
	}
	e, err := audit.NewEntry(id, actor, audit.KindUnpublication, audit.StateOf(r), audit.StateOf(next), r.Fingerprint, next.Fingerprint, now)
	if err != nil {
		return err
	}
	return tx.Record(ctx, e)
}

type liveDoc struct {
	result *model.Result
	doc    snapshot.Document
}

// liveSnapshot builds the snapshot of r after mutate, from live data read through tx.
func (l *Ledger) liveSnapshot(ctx context.Context, tx store.Tx, r *model.Result, mutate func(*model.Result)) (liveDoc, error) {
	attempt, err := tx.Attempt(ctx, r.AttemptKey)
	if err != nil {
		return liveDoc{}, err
	}
	marks, err := tx.Marks(ctx, r.AttemptKey)
	if err != nil {
		return liveDoc{}, err
	}
	subjects, err := tx.Subjects(ctx)
	if err != nil {
		return liveDoc{}, err
	}
	next := r.Clone()
	if mutate != nil {
		mutate(next)
	}
	doc, err := snapshot.NewDocument(snapshot.Build(attempt, next, marks, subjects))
	if err != nil {
		return liveDoc{}, model.Wrap(model.KindInternal, r.ID, "encode snapshot", err)
	}
	return liveDoc{result: next, doc: doc}, nil
}

// commitStamp writes next with its new fingerprint (or the failure) and one
// entry of kind. It returns fpErr so the caller reports it.
func (l *Ledger) commitStamp(ctx context.Context, tx store.Tx, actor string, kind audit.Kind, prev, next *model.Result, prevFP, fp string, fpErr error, now time.Time) error {
	if fpErr == nil {
		next.Fingerprint = fp
	}
	if err := tx.PutResult(ctx, next); err != nil {
		return err
	}
	after := audit.StateOf(next)
	if fpErr != nil {
		after.FingerprintError = fpErr.Error()
	}
	e, err := audit.NewEntry(next.ID, actor, kind, audit.StateOf(prev), after, prevFP, fp, now)
	if err != nil {
		return err
	}
	if err := tx.Record(ctx, e); err != nil {
		return err
	}
	return fpErr
}
