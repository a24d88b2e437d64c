// Package audit is the append-only trail of Result transitions.
//
// Entries are only ever appended and read.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"xdao.co/resultledger/model"
)

type Kind string

const (
	KindMarksUpdate   Kind = "marks_update"
	KindPublication   Kind = "publication"
	KindUnpublication Kind = "unpublication"
	KindHashUpdate    Kind = "hash_update"
	KindRecalculation Kind = "recalculation"
	KindInitialHash   Kind = "initial_hash"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMarksUpdate, KindPublication, KindUnpublication, KindHashUpdate, KindRecalculation, KindInitialHash:
		return true
	}
	return false
}

// State is the semantic view of a Result recorded on either side of a transition.
type State struct {
	TotalMarks       float64      `json:"total_marks"`
	GPA              float64      `json:"gpa"`
	Grade            string       `json:"grade"`
	Status           model.Status `json:"status"`
	Published        bool         `json:"published"`
	PublishedBy      string       `json:"published_by,omitempty"`
	PublishedAt      *time.Time   `json:"published_at,omitempty"`
	Fingerprint      string       `json:"fingerprint,omitempty"`
	FingerprintError string       `json:"fingerprint_error,omitempty"`
}

// StateOf captures r. A nil Result yields nil.
func StateOf(r *model.Result) *State {
	if r == nil {
		return nil
	}
	s := &State{
		TotalMarks:  r.TotalMarks,
		GPA:         r.GPA,
		Grade:       r.Grade,
		Status:      r.Status,
		Published:   r.Published,
		PublishedBy: r.PublishedBy,
		Fingerprint: r.Fingerprint,
	}
	if r.PublishedAt != nil {
		t := *r.PublishedAt
		s.PublishedAt = &t
	}
	return s
}

// Entry is one immutable trail record. Before, PreviousFingerprint and
// NewFingerprint are nil when that side did not exist.
type Entry struct {
	ID                  string    `json:"id"`
	Seq                 int64     `json:"seq"`
	ResultID            string    `json:"result_id"`
	ModifiedBy          string    `json:"modified_by"`
	Kind                Kind      `json:"modification_type"`
	Before              *State    `json:"previous_data"`
	After               *State    `json:"new_data"`
	PreviousFingerprint *string   `json:"previous_fingerprint"`
	NewFingerprint      *string   `json:"new_fingerprint"`
	Timestamp           time.Time `json:"timestamp"`
}

// NewEntry validates the fields and assigns a fresh id.
func NewEntry(resultID, modifiedBy string, kind Kind, before, after *State, prevFP, newFP string, at time.Time) (Entry, error) {
	if strings.TrimSpace(resultID) == "" {
		return Entry{}, model.Errorf(model.KindInvalid, "", "audit: result id is required")
	}
	if strings.TrimSpace(modifiedBy) == "" {
		return Entry{}, model.Errorf(model.KindInvalid, resultID, "audit: modifier is required")
	}
	if !kind.Valid() {
		return Entry{}, model.Errorf(model.KindInvalid, resultID, "audit: unknown kind %q", kind)
	}
	if after == nil {
		return Entry{}, model.Errorf(model.KindInvalid, resultID, "audit: after state is required")
	}
	if at.IsZero() {
		return Entry{}, model.Errorf(model.KindInvalid, resultID, "audit: timestamp is required")
	}
	return Entry{
		ID:                  uuid.NewString(),
		ResultID:            resultID,
		ModifiedBy:          modifiedBy,
		Kind:                kind,
		Before:              before,
		After:               after,
		PreviousFingerprint: optional(prevFP),
		NewFingerprint:      optional(newFP),
		Timestamp:           at.UTC(),
	}, nil
}

// clone copies e including the states and fingerprints it points to.
func (e Entry) clone() Entry {
	e.Before = e.Before.clone()
	e.After = e.After.clone()
	e.PreviousFingerprint = copyString(e.PreviousFingerprint)
	e.NewFingerprint = copyString(e.NewFingerprint)
	return e
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.PublishedAt != nil {
		t := *s.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref renders an optional fingerprint for display.
func Deref(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s by %s (%s -> %s)",
		e.Timestamp.Format(time.RFC3339), e.ResultID, e.Kind, e.ModifiedBy,
		Deref(e.PreviousFingerprint), Deref(e.NewFingerprint))
}

// Recorder appends entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Reader lists entries for a Result, newest first. Entries sharing a
// timestamp are ordered by append order, latest first.
type Reader interface {
	ListFor(ctx context.Context, resultID string) ([]Entry, error)
}
