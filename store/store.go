// Package store defines the relational state the engine reads and writes:
// subjects, attempts, marks, results, revalidation requests and the audit
// trail.
//
// Writes only happen inside WithTx. A transaction commits all of its writes
// or none of them.
package store

import (
	"context"
	"time"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/model"
)

// Reader is the read side. Missing records are reported as model.KindNotFound.
type Reader interface {
	Subject(ctx context.Context, id string) (model.Subject, error)
	Subjects(ctx context.Context) (map[string]model.Subject, error)
	Attempt(ctx context.Context, attemptKey string) (model.Attempt, error)
	AttemptByRegistration(ctx context.Context, registrationNumber, examName, session string) (model.Attempt, error)
	Marks(ctx context.Context, attemptKey string) ([]model.Mark, error)
	Result(ctx context.Context, resultID string) (*model.Result, error)
	ResultsBySession(ctx context.Context, examName, session string) ([]*model.Result, error)
	Revalidation(ctx context.Context, id string) (Revalidation, error)
	audit.Reader
}

// Tx is a read-write view inside one transaction. Reads through Tx see the
// transaction's own writes. Result reads lock the row until the
// transaction ends where the backend supports it.
type Tx interface {
	Reader
	PutSubject(ctx context.Context, s model.Subject) error
	PutAttempt(ctx context.Context, a model.Attempt) error
	UpsertMark(ctx context.Context, m model.Mark) error
	DeleteMark(ctx context.Context, attemptKey, subjectID string) error
	PutResult(ctx context.Context, r *model.Result) error
	PutRevalidation(ctx context.Context, r Revalidation) error
	audit.Recorder
}

type Store interface {
	Reader
	// WithTx runs fn in a transaction. fn returning an error rolls back.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

type RevalidationStatus string

const (
	RevalidationPending  RevalidationStatus = "Pending"
	RevalidationApproved RevalidationStatus = "Approved"
	RevalidationRejected RevalidationStatus = "Rejected"
)

// Revalidation is a request to re-examine one subject mark.
type Revalidation struct {
	ID            string
	AttemptKey    string
	SubjectID     string
	Reason        string
	Status        RevalidationStatus
	RequestedBy   string
	ReviewedBy    string
	ReviewedAt    *time.Time
	Comments      string
	OriginalMarks float64
	UpdatedMarks  *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
