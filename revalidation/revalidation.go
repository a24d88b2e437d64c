// Package revalidation handles requests to re-examine a subject mark.
// An approved request with new marks goes through the ledger like any other
// mark change, so the Result is recomputed, unpublished and audited.
package revalidation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"xdao.co/resultledger/ledger"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/store"
)

// MarkWriter is the part of the ledger revalidation needs.
type MarkWriter interface {
	WriteMark(ctx context.Context, actor string, in model.MarkInput) (ledger.Outcome, error)
}

type Service struct {
	store  store.Store
	ledger MarkWriter
	now    func() time.Time
}

func New(st store.Store, l MarkWriter, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: st, ledger: l, now: clock}
}

// Create records a Pending request for one subject of an attempt. The
// current mark is kept as the request's original marks.
func (s *Service) Create(ctx context.Context, actor, attemptKey, subjectID, reason string) (store.Revalidation, error) {
	if strings.TrimSpace(actor) == "" {
		return store.Revalidation{}, model.Errorf(model.KindInvalid, attemptKey, "requester is required")
	}
	if strings.TrimSpace(reason) == "" {
		return store.Revalidation{}, model.Errorf(model.KindInvalid, attemptKey, "reason is required")
	}
	var req store.Revalidation
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Attempt(ctx, attemptKey); err != nil {
			return err
		}
		marks, err := tx.Marks(ctx, attemptKey)
		if err != nil {
			return err
		}
		var current *model.Mark
		for i := range marks {
			if marks[i].SubjectID == subjectID {
				current = &marks[i]
				break
			}
		}
		if current == nil {
			return model.Errorf(model.KindNotFound, attemptKey, "no mark recorded for subject %s", subjectID)
		}
		now := s.now().UTC()
		req = store.Revalidation{
			ID:            uuid.NewString(),
			AttemptKey:    attemptKey,
			SubjectID:     subjectID,
			Reason:        strings.TrimSpace(reason),
			Status:        store.RevalidationPending,
			RequestedBy:   actor,
			OriginalMarks: current.MarksObtained,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.PutRevalidation(ctx, req)
	})
	if err != nil {
		return store.Revalidation{}, err
	}
	return req, nil
}

// Review decides a Pending request. Approving with updatedMarks writes the
// new mark through the ledger before the request is closed; a fingerprint
// store failure there still closes the request and is returned.
func (s *Service) Review(ctx context.Context, actor, id string, decision store.RevalidationStatus, updatedMarks *float64, comments string) (store.Revalidation, error) {
	if strings.TrimSpace(actor) == "" {
		return store.Revalidation{}, model.Errorf(model.KindInvalid, id, "reviewer is required")
	}
	if decision != store.RevalidationApproved && decision != store.RevalidationRejected {
		return store.Revalidation{}, model.Errorf(model.KindInvalid, id, "decision must be Approved or Rejected, got %q", decision)
	}
	if decision == store.RevalidationRejected && updatedMarks != nil {
		return store.Revalidation{}, model.Errorf(model.KindInvalid, id, "rejected requests cannot change marks")
	}

	req, err := s.store.Revalidation(ctx, id)
	if err != nil {
		return store.Revalidation{}, err
	}
	if req.Status != store.RevalidationPending {
		return store.Revalidation{}, model.Errorf(model.KindInvalidState, id, "request already %s", req.Status)
	}

	var soft error
	if decision == store.RevalidationApproved && updatedMarks != nil {
		_, err := s.ledger.WriteMark(ctx, actor, model.MarkInput{
			AttemptKey:    req.AttemptKey,
			SubjectID:     req.SubjectID,
			MarksObtained: *updatedMarks,
		})
		if err != nil && !model.IsKind(err, model.KindStoreUnavailable) {
			return store.Revalidation{}, err
		}
		soft = err
		v := *updatedMarks
		req.UpdatedMarks = &v
	}

	now := s.now().UTC()
	req.Status = decision
	req.ReviewedBy = actor
	req.ReviewedAt = &now
	req.Comments = strings.TrimSpace(comments)
	req.UpdatedAt = now
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		cur, err := tx.Revalidation(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != store.RevalidationPending {
			return model.Errorf(model.KindInvalidState, id, "request already %s", cur.Status)
		}
		return tx.PutRevalidation(ctx, req)
	})
	if err != nil {
		return store.Revalidation{}, err
	}
	return req, soft
}
