// Package verify checks stored result snapshots against live data. Every
// operation is a pure read and safe to call concurrently.
package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/snapshot"
	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/store"
)

const (
	ReasonVerified       = "verified"
	ReasonNoFingerprint  = "no fingerprint"
	ReasonContentMissing = "content missing"
	ReasonContentCorrupt = "content corrupt"
	ReasonMarksMismatch  = "subject marks mismatch"
	ReasonStale          = "fingerprint not refreshed since publication"
	reasonFieldMismatch  = "field mismatch: "
)

// Verification is the outcome of Verify. A mismatch is a value, not an error.
type Verification struct {
	ResultID    string
	Verified    bool
	Reason      string
	Fingerprint string
	// Exact reports whether the live rebuild hashes to the stored fingerprint.
	Exact bool
}

type Options struct {
	// Timeout bounds each fingerprint store read when non-zero.
	Timeout time.Duration
	Logger  *slog.Logger
}

type Verifier struct {
	store   store.Reader
	cas     storage.CAS
	timeout time.Duration
	log     *slog.Logger
}

func New(st store.Reader, cas storage.CAS, opts Options) *Verifier {
	v := &Verifier{store: st, cas: cas, timeout: opts.Timeout, log: opts.Logger}
	if v.log == nil {
		v.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return v
}

// Verify compares the stored snapshot of a Result with one rebuilt from live
// data. Critical fields must match exactly and subject marks must match as a
// set on (subject id, marks obtained).
func (v *Verifier) Verify(ctx context.Context, resultID string) (Verification, error) {
	out := Verification{ResultID: resultID}
	r, err := v.store.Result(ctx, resultID)
	if err != nil {
		return out, err
	}
	if r.Fingerprint == "" {
		out.Reason = ReasonNoFingerprint
		return out, nil
	}
	out.Fingerprint = r.Fingerprint

	id, err := cidutil.Parse(r.Fingerprint)
	if err != nil {
		out.Reason = ReasonContentMissing
		return out, nil
	}
	stored, reason, err := v.fetch(ctx, resultID, id)
	if err != nil || reason != "" {
		out.Reason = reason
		return out, err
	}

	live, err := v.rebuild(ctx, r)
	if err != nil {
		return out, err
	}
	if doc, err := snapshot.NewDocument(live); err == nil {
		out.Exact = doc.CID.Equals(id)
	}

	if staleForPublication(r, stored) {
		out.Reason = ReasonStale
		return out, nil
	}
	if field := firstFieldMismatch(stored, live); field != "" {
		out.Reason = reasonFieldMismatch + field
		return out, nil
	}
	if !sameMarks(stored.SubjectMarks, live.SubjectMarks) {
		out.Reason = ReasonMarksMismatch
		return out, nil
	}
	out.Verified = true
	out.Reason = ReasonVerified
	return out, nil
}

// fetch reads and decodes a stored snapshot. A non-empty reason means the
// content is missing or unreadable; err is set only for store outages.
func (v *Verifier) fetch(ctx context.Context, resultID string, id cid.Cid) (snapshot.Snapshot, string, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	raw, err := v.cas.Get(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return snapshot.Snapshot{}, ReasonContentMissing, nil
	case errors.Is(err, storage.ErrCIDMismatch):
		return snapshot.Snapshot{}, ReasonContentCorrupt, nil
	default:
		v.log.Error("fingerprint store read failed",
			slog.String("result_id", resultID),
			slog.String("fingerprint", id.String()),
			slog.Any("err", err))
		return snapshot.Snapshot{}, "", model.Wrap(model.KindStoreUnavailable, resultID, "fingerprint store read", err)
	}
	s, err := snapshot.Decode(raw)
	if err != nil {
		return snapshot.Snapshot{}, ReasonContentCorrupt, nil
	}
	return s, "", nil
}

func (v *Verifier) rebuild(ctx context.Context, r *model.Result) (snapshot.Snapshot, error) {
	attempt, err := v.store.Attempt(ctx, r.AttemptKey)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	marks, err := v.store.Marks(ctx, r.AttemptKey)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	subjects, err := v.store.Subjects(ctx)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Build(attempt, r, marks, subjects), nil
}

// staleForPublication reports whether a published Result still points at a
// snapshot stamped before its current publication.
func staleForPublication(r *model.Result, stored snapshot.Snapshot) bool {
	if !r.Published {
		return false
	}
	return !stored.Published || stored.PublishedAt != snapshot.PublishedAtOf(r)
}

func firstFieldMismatch(a, b snapshot.Snapshot) string {
	switch {
	case a.ResultID != b.ResultID:
		return "result_id"
	case a.AttemptKey != b.AttemptKey:
		return "attempt_key"
	case a.ExamName != b.ExamName:
		return "exam_name"
	case a.Session != b.Session:
		return "session"
	case a.GPA != b.GPA:
		return "gpa"
	case a.Grade != b.Grade:
		return "grade"
	case a.TotalMarks != b.TotalMarks:
		return "total_marks"
	case a.Status != b.Status:
		return "status"
	}
	return ""
}

func sameMarks(a, b []snapshot.SubjectMark) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([]snapshot.SubjectMark(nil), a...)
	b = append([]snapshot.SubjectMark(nil), b...)
	snapshot.SortMarks(a)
	snapshot.SortMarks(b)
	for i := range a {
		if a[i].SubjectID != b[i].SubjectID || a[i].MarksObtained != b[i].MarksObtained {
			return false
		}
	}
	return true
}
