package ledger

import (
	"context"
	"time"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/store"
)

// Recalculate re-aggregates each attempt from its current marks regardless
// of Result state. Publication is always cleared and a new fingerprint is
// always generated. Each attempt gets a recalculation entry followed by a
// hash_update entry and commits on its own; the report lists attempt keys.
func (l *Ledger) Recalculate(ctx context.Context, actor string, attemptKeys []string) (BatchReport, error) {
	if err := requireActor(actor); err != nil {
		return BatchReport{}, err
	}
	var report BatchReport
	for _, key := range dedupe(attemptKeys) {
		if ctx.Err() != nil {
			report.Interrupted = true
			return report, ctx.Err()
		}
		_, err := l.withAttempt(ctx, actor, key, func(txCtx context.Context, tx store.Tx, now time.Time) (Outcome, error) {
			return l.recomputeTx(txCtx, ctx, tx, actor, key, audit.KindRecalculation, true, now)
		})
		if err != nil {
			if ctx.Err() != nil && !model.IsKind(err, model.KindStoreUnavailable) {
				report.Interrupted = true
				return report, ctx.Err()
			}
			report.fail(key, err)
			continue
		}
		report.succeed(key)
	}
	return report, nil
}

// RefreshFingerprint re-stamps a Result without recomputing its aggregate:
// the snapshot is rebuilt from live data, stored, and recorded with a
// hash_update entry. Result timestamps are left alone, so an unchanged
// Result yields its existing fingerprint and the stored content is
// restored if it was lost.
func (l *Ledger) RefreshFingerprint(ctx context.Context, actor, resultID string) (Outcome, error) {
	return l.withAttempt(ctx, actor, attemptKeyOf(resultID), func(txCtx context.Context, tx store.Tx, now time.Time) (Outcome, error) {
		r, err := tx.Result(txCtx, resultID)
		if err != nil {
			return Outcome{}, err
		}
		live, err := l.liveSnapshot(txCtx, tx, r, nil)
		if err != nil {
			return Outcome{}, err
		}
		fp, fpErr := l.put(ctx, string(audit.KindHashUpdate), resultID, live.doc)
		err = l.commitStamp(txCtx, tx, actor, audit.KindHashUpdate, r, live.result, r.Fingerprint, fp, fpErr, now)
		if err != nil && !model.IsKind(err, model.KindStoreUnavailable) {
			return Outcome{}, err
		}
		return Outcome{Result: live.result}, err
	})
}

// RefreshSession runs RefreshFingerprint over every Result of one exam
// session, in result id order.
func (l *Ledger) RefreshSession(ctx context.Context, actor, examName, session string) (BatchReport, error) {
	if err := requireActor(actor); err != nil {
		return BatchReport{}, err
	}
	results, err := l.store.ResultsBySession(ctx, examName, session)
	if err != nil {
		return BatchReport{}, err
	}
	var report BatchReport
	for _, r := range results {
		if ctx.Err() != nil {
			report.Interrupted = true
			return report, ctx.Err()
		}
		if _, err := l.RefreshFingerprint(ctx, actor, r.ID); err != nil {
			report.fail(r.ID, err)
			continue
		}
		report.succeed(r.ID)
	}
	return report, nil
}
