package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Category string

const (
	CategoryCompulsory Category = "compulsory"
	CategoryGroup      Category = "group"
)

// Subject is immutable reference data.
type Subject struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Category  Category `json:"category"`
	FullMarks float64  `json:"full_marks"`
	PassMarks float64  `json:"pass_marks"`
}

func NewSubject(id, name string, category Category, fullMarks, passMarks float64) (Subject, error) {
	s := Subject{
		ID:        strings.TrimSpace(id),
		Name:      strings.TrimSpace(name),
		Category:  category,
		FullMarks: fullMarks,
		PassMarks: passMarks,
	}
	if s.ID == "" || s.Name == "" {
		return Subject{}, Errorf(KindInvalid, s.ID, "subject id and name are required")
	}
	if s.Category == "" {
		s.Category = CategoryCompulsory
	}
	if s.Category != CategoryCompulsory && s.Category != CategoryGroup {
		return Subject{}, Errorf(KindInvalid, s.ID, "unknown subject category %q", category)
	}
	if !finite(fullMarks) || fullMarks <= 0 {
		return Subject{}, Errorf(KindInvalid, s.ID, "full marks must be positive")
	}
	if !finite(passMarks) || passMarks < 0 || passMarks > fullMarks {
		return Subject{}, Errorf(KindInvalid, s.ID, "pass marks must be within 0..%g", fullMarks)
	}
	return s, nil
}

// Mark is one subject's score for one attempt. Grade and GradePoint are
// derived by the grading policy and never set by callers.
type Mark struct {
	AttemptKey    string    `json:"attempt_key"`
	SubjectID     string    `json:"subject_id"`
	MarksObtained float64   `json:"marks_obtained"`
	Grade         string    `json:"grade"`
	GradePoint    float64   `json:"grade_point"`
	RecordedBy    string    `json:"recorded_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MarkInput is what the mark-entry collaborator submits.
type MarkInput struct {
	AttemptKey    string
	SubjectID     string
	MarksObtained float64
}

// NewMark validates in against subject and returns an ungraded Mark.
func NewMark(in MarkInput, subject Subject, recordedBy string, at time.Time) (Mark, error) {
	key := strings.TrimSpace(in.AttemptKey)
	if key == "" {
		return Mark{}, Errorf(KindInvalid, "", "attempt key is required")
	}
	if strings.TrimSpace(in.SubjectID) == "" || in.SubjectID != subject.ID {
		return Mark{}, Errorf(KindInvalid, key, "subject %q does not match %q", in.SubjectID, subject.ID)
	}
	if !finite(in.MarksObtained) || in.MarksObtained < 0 || in.MarksObtained > subject.FullMarks {
		return Mark{}, Errorf(KindInvalid, key, "marks %g for %s outside 0..%g", in.MarksObtained, subject.ID, subject.FullMarks)
	}
	if strings.TrimSpace(recordedBy) == "" {
		return Mark{}, Errorf(KindInvalid, key, "recorder is required")
	}
	at = at.UTC()
	return Mark{
		AttemptKey:    key,
		SubjectID:     subject.ID,
		MarksObtained: in.MarksObtained,
		RecordedBy:    recordedBy,
		CreatedAt:     at,
		UpdatedAt:     at,
	}, nil
}

type Student struct {
	RegistrationNumber string `json:"registration_number"`
	Name               string `json:"name"`
	FatherName         string `json:"father_name"`
	MotherName         string `json:"mother_name"`
	DateOfBirth        string `json:"date_of_birth"`
}

// Attempt is one student's participation in one exam session. It is owned
// by the registration collaborator and read-only here.
type Attempt struct {
	Key             string  `json:"attempt_key"`
	ExamName        string  `json:"exam_name"`
	Session         string  `json:"session"`
	Group           string  `json:"group"`
	InstitutionID   string  `json:"institution_id"`
	InstitutionName string  `json:"institution_name"`
	BoardID         string  `json:"board_id"`
	BoardName       string  `json:"board_name"`
	Student         Student `json:"student"`
}

// NewAttempt trims and validates a.
func NewAttempt(a Attempt) (Attempt, error) {
	a.Key = strings.TrimSpace(a.Key)
	a.ExamName = strings.TrimSpace(a.ExamName)
	a.Session = strings.TrimSpace(a.Session)
	a.Student.RegistrationNumber = strings.TrimSpace(a.Student.RegistrationNumber)
	switch {
	case a.Key == "":
		return Attempt{}, Errorf(KindInvalid, "", "attempt key is required")
	case strings.Contains(a.Key, "_"):
		return Attempt{}, Errorf(KindInvalid, a.Key, "attempt key must not contain '_'")
	case a.ExamName == "" || a.Session == "":
		return Attempt{}, Errorf(KindInvalid, a.Key, "exam name and session are required")
	case a.Student.RegistrationNumber == "":
		return Attempt{}, Errorf(KindInvalid, a.Key, "registration number is required")
	}
	return a, nil
}

// ResultID is the deterministic Result key for an attempt.
func ResultID(examName, session, attemptKey string) string {
	return examName + "_" + session + "_" + attemptKey
}

// ResultID returns the Result key for a.
func (a Attempt) ResultID() string {
	return ResultID(a.ExamName, a.Session, a.Key)
}

type Status string

const (
	StatusPass    Status = "Pass"
	StatusFail    Status = "Fail"
	StatusPending Status = "Pending"
)

type State string

const (
	StateDraft     State = "Draft"
	StatePublished State = "Published"
)

// Result is the aggregate outcome for one attempt.
type Result struct {
	ID          string     `json:"result_id"`
	AttemptKey  string     `json:"attempt_key"`
	ExamName    string     `json:"exam_name"`
	Session     string     `json:"session"`
	TotalMarks  float64    `json:"total_marks"`
	GPA         float64    `json:"gpa"`
	Grade       string     `json:"grade"`
	Status      Status     `json:"status"`
	Published   bool       `json:"published"`
	PublishedBy string     `json:"published_by,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r *Result) State() State {
	if r.Published {
		return StatePublished
	}
	return StateDraft
}

// Complete reports whether the aggregate is Pass or Fail.
func (r *Result) Complete() bool {
	return r.Status == StatusPass || r.Status == StatusFail
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.PublishedAt != nil {
		t := *r.PublishedAt
		out.PublishedAt = &t
	}
	return &out
}

func (r *Result) String() string {
	return fmt.Sprintf("%s[%s gpa=%.2f %s %s]", r.ID, r.State(), r.GPA, r.Grade, r.Status)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
