// Package ledger owns the Result lifecycle: recompute on mark changes,
// publish, unpublish, recalculate and fingerprint maintenance.
//
// Every operation takes the acting identity explicitly and reads time from
// the injected clock. All mutations of one attempt are serialized through a
// keylock.Locker; operations on different attempts run in parallel.
//
// Relational changes and their audit entries commit together. A fingerprint
// store failure never rolls them back: the entry is written without a new
// fingerprint, the failure is logged, and the caller receives a
// model.KindStoreUnavailable error for that Result.
package ledger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"xdao.co/resultledger/grading"
	"xdao.co/resultledger/keylock"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/snapshot"
	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/store"
)

type Options struct {
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Locker defaults to an in-process keylock.Map.
	Locker keylock.Locker
	// Logger defaults to discarding output.
	Logger *slog.Logger
	// FingerprintTimeout bounds each fingerprint store write when non-zero.
	FingerprintTimeout time.Duration
}

type Ledger struct {
	store  store.Store
	cas    storage.CAS
	policy *grading.Policy

	now     func() time.Time
	locks   keylock.Locker
	log     *slog.Logger
	timeout time.Duration
}

func New(st store.Store, cas storage.CAS, policy *grading.Policy, opts Options) (*Ledger, error) {
	if st == nil || cas == nil {
		return nil, model.Errorf(model.KindInvalid, "", "ledger: store and fingerprint store are required")
	}
	if policy == nil {
		policy = grading.DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, model.Wrap(model.KindInvalid, "", "ledger: grading policy", err)
	}
	l := &Ledger{
		store:   st,
		cas:     cas,
		policy:  policy,
		now:     opts.Clock,
		locks:   opts.Locker,
		log:     opts.Logger,
		timeout: opts.FingerprintTimeout,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.locks == nil {
		l.locks = keylock.NewMap()
	}
	if l.log == nil {
		l.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l, nil
}

// Policy returns the grading policy in force.
func (l *Ledger) Policy() *grading.Policy { return l.policy }

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

// attemptKeyOf extracts the attempt key from a result id. Attempt keys never
// contain '_', so it is the last segment.
func attemptKeyOf(resultID string) string {
	if i := strings.LastIndex(resultID, "_"); i >= 0 {
		return resultID[i+1:]
	}
	return resultID
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return model.Errorf(model.KindInvalid, "", "actor is required")
	}
	return nil
}

// put stores doc and checks the returned identifier. Any failure is
// reported as KindStoreUnavailable and logged.
func (l *Ledger) put(ctx context.Context, op, resultID string, doc snapshot.Document) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	id, err := l.cas.Put(ctx, doc.Bytes)
	if err == nil && !id.Equals(doc.CID) {
		err = storage.ErrCIDMismatch
	}
	if err != nil {
		l.log.Error("fingerprint store write failed",
			slog.String("op", op),
			slog.String("result_id", resultID),
			slog.Any("err", err))
		return "", model.Wrap(model.KindStoreUnavailable, resultID, op+": fingerprint store", err)
	}
	return id.String(), nil
}

// lockAttempts locks the attempt keys behind resultIDs in sorted order.
func (l *Ledger) lockAttempts(ctx context.Context, resultIDs []string) (func(), error) {
	keys := make([]string, 0, len(resultIDs))
	for _, id := range resultIDs {
		keys = append(keys, attemptKeyOf(id))
	}
	return keylock.LockAll(ctx, l.locks, keys)
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
