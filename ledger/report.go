package ledger

import (
	"fmt"

	"xdao.co/resultledger/model"
)

// ItemError is one id's failure inside a batch.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }

// Committed reports whether the id's relational change was committed despite
// the failure (a fingerprint store error after the state transition).
func (e ItemError) Committed() bool {
	return model.IsKind(e.Err, model.KindStoreUnavailable)
}

// BatchReport describes a batch operation item by item.
//
// Completed lists, in processing order, every id whose relational change was
// committed; it includes ids in Failed whose only failure was the
// fingerprint store. When Interrupted is set, ids after the last completed
// one were not touched.
type BatchReport struct {
	Succeeded   []string
	Skipped     []string
	Failed      []ItemError
	Completed   []string
	Interrupted bool
}

func (r *BatchReport) succeed(id string) {
	r.Succeeded = append(r.Succeeded, id)
	r.Completed = append(r.Completed, id)
}

func (r *BatchReport) skip(id string) {
	r.Skipped = append(r.Skipped, id)
}

func (r *BatchReport) fail(id string, err error) {
	r.Failed = append(r.Failed, ItemError{ID: id, Err: err})
	if model.IsKind(err, model.KindStoreUnavailable) {
		r.Completed = append(r.Completed, id)
	}
}

// Counts returns the number of succeeded, skipped and failed ids.
func (r BatchReport) Counts() (succeeded, skipped, failed int) {
	return len(r.Succeeded), len(r.Skipped), len(r.Failed)
}

func (r BatchReport) String() string {
	s, k, f := r.Counts()
	out := fmt.Sprintf("succeeded=%d skipped=%d failed=%d", s, k, f)
	if r.Interrupted {
		out += " (interrupted)"
	}
	return out
}
