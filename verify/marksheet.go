package verify

import (
	"context"
	"time"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/snapshot"
)

type Status string

const (
	StatusVerified    Status = "VERIFIED"
	StatusOutdated    Status = "OUTDATED"
	StatusInvalid     Status = "INVALID"
	StatusUnpublished Status = "UNPUBLISHED"
	StatusError       Status = "ERROR"
)

// MarksheetCheck answers "is this printed marksheet genuine and current?".
type MarksheetCheck struct {
	Status             Status
	ResultID           string
	Presented          string
	CurrentFingerprint string
	PublishedAt        *time.Time
	// Snapshot is the stored content for the presented fingerprint, when found.
	Snapshot *snapshot.Snapshot
	// Superseded is the trail entry that replaced the presented fingerprint.
	Superseded *audit.Entry
	Message    string
}

// CheckMarksheet classifies a fingerprint printed on a marksheet for resultID:
//
//	VERIFIED     current fingerprint of a published Result, content present
//	UNPUBLISHED  current fingerprint, but the Result is not published
//	OUTDATED     a fingerprint the Result had earlier
//	INVALID      unknown to this Result
//	ERROR        the stores could not answer, or the fingerprint predates publication
func (v *Verifier) CheckMarksheet(ctx context.Context, resultID, presented string) (MarksheetCheck, error) {
	out := MarksheetCheck{ResultID: resultID, Presented: presented}
	id, err := cidutil.Parse(presented)
	if err != nil {
		out.Status, out.Message = StatusInvalid, "malformed fingerprint"
		return out, nil
	}
	r, err := v.store.Result(ctx, resultID)
	if model.IsKind(err, model.KindNotFound) {
		out.Status, out.Message = StatusInvalid, "unknown result"
		return out, nil
	}
	if err != nil {
		out.Status, out.Message = StatusError, err.Error()
		return out, err
	}
	out.CurrentFingerprint = r.Fingerprint

	if presented != r.Fingerprint {
		entries, err := v.store.ListFor(ctx, resultID)
		if err != nil {
			out.Status, out.Message = StatusError, err.Error()
			return out, err
		}
		// Oldest first: the first entry moving away from presented replaced it.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			prev, next := audit.Deref(e.PreviousFingerprint), audit.Deref(e.NewFingerprint)
			if prev != presented && next != presented {
				continue
			}
			out.Status, out.Message = StatusOutdated, "marksheet has been superseded"
			if prev == presented && next != presented {
				superseded := e
				out.Superseded = &superseded
				break
			}
		}
		if out.Status == "" {
			out.Status, out.Message = StatusInvalid, "fingerprint not issued for this result"
		}
		return out, nil
	}

	if !r.Published {
		out.Status, out.Message = StatusUnpublished, "result is not published"
		return out, nil
	}
	stored, reason, err := v.fetch(ctx, resultID, id)
	if err != nil {
		out.Status, out.Message = StatusError, err.Error()
		return out, err
	}
	if reason != "" {
		out.Status, out.Message = StatusError, reason
		return out, nil
	}
	if staleForPublication(r, stored) {
		out.Status, out.Message = StatusError, ReasonStale
		return out, nil
	}
	out.Status, out.Message = StatusVerified, "marksheet is genuine and current"
	out.PublishedAt = r.PublishedAt
	out.Snapshot = &stored
	return out, nil
}

// PublicResult is what a public certificate lookup returns.
type PublicResult struct {
	Result       *model.Result
	Snapshot     snapshot.Snapshot
	Verification Verification
}

// LookupPublic finds a published Result by the identity a student presents
// and returns its stored snapshot together with a fresh verification.
// Institution and board names the snapshot lacks are filled from live data.
func (v *Verifier) LookupPublic(ctx context.Context, attemptKey, registrationNumber, examName, session string) (PublicResult, error) {
	attempt, err := v.store.AttemptByRegistration(ctx, registrationNumber, examName, session)
	if err != nil {
		return PublicResult{}, err
	}
	if attempt.Key != attemptKey {
		return PublicResult{}, model.Errorf(model.KindNotFound, attemptKey, "no result for this roll and registration")
	}
	r, err := v.store.Result(ctx, attempt.ResultID())
	if err != nil {
		return PublicResult{}, err
	}
	if !r.Published {
		return PublicResult{}, model.Errorf(model.KindNotFound, r.ID, "result is not published")
	}
	id, err := cidutil.Parse(r.Fingerprint)
	if err != nil {
		return PublicResult{}, model.Wrap(model.KindNotFound, r.ID, "result has no usable fingerprint", err)
	}
	stored, reason, err := v.fetch(ctx, r.ID, id)
	if err != nil {
		return PublicResult{}, err
	}
	if reason != "" {
		return PublicResult{}, model.Errorf(model.KindNotFound, r.ID, "%s", reason)
	}
	if stored.Institution.Name == snapshot.Unknown && attempt.InstitutionName != "" {
		stored.Institution.Name = attempt.InstitutionName
	}
	if stored.Board.Name == snapshot.Unknown && attempt.BoardName != "" {
		stored.Board.Name = attempt.BoardName
	}
	ver, err := v.Verify(ctx, r.ID)
	if err != nil {
		return PublicResult{}, err
	}
	return PublicResult{Result: r, Snapshot: stored, Verification: ver}, nil
}
