// Package snapshot builds the record that is fingerprinted and stored for a
// Result, and encodes it canonically.
//
// Encoding is deterministic: field order is fixed by the struct, subject
// marks are sorted by subject id, times are UTC RFC 3339, and the GPA is a
// fixed two-decimal string. Rebuilding from unchanged data therefore yields
// identical bytes and an identical fingerprint.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/model"
)

const (
	Format  = "resultledger-snapshot"
	Version = "1.0"
)

// Unknown is rendered for institution or board names the registry lacks.
const Unknown = "Unknown"

type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Student struct {
	RegistrationNumber string `json:"registration_number"`
	Name               string `json:"name"`
	FatherName         string `json:"father_name"`
	MotherName         string `json:"mother_name"`
	DateOfBirth        string `json:"date_of_birth"`
}

type SubjectMark struct {
	SubjectID     string  `json:"subject_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	FullMarks     float64 `json:"full_marks"`
	MarksObtained float64 `json:"marks_obtained"`
	Grade         string  `json:"grade"`
	GradePoint    float64 `json:"grade_point"`
}

type Snapshot struct {
	Format       string        `json:"format"`
	Version      string        `json:"version"`
	ResultID     string        `json:"result_id"`
	AttemptKey   string        `json:"attempt_key"`
	ExamName     string        `json:"exam_name"`
	Session      string        `json:"session"`
	Group        string        `json:"group"`
	Student      Student       `json:"student"`
	Institution  Party         `json:"institution"`
	Board        Party         `json:"board"`
	SubjectMarks []SubjectMark `json:"subject_marks"`
	TotalMarks   float64       `json:"total_marks"`
	GPA          string        `json:"gpa"`
	Grade        string        `json:"grade"`
	Status       string        `json:"status"`
	Published    bool          `json:"published"`
	PublishedBy  string        `json:"published_by"`
	PublishedAt  string        `json:"published_at"`
	StampedAt    string        `json:"stamped_at"`
}

// Build assembles the snapshot for result from live data. subjects supplies
// display metadata; a mark whose subject is missing keeps its id as name.
func Build(attempt model.Attempt, result *model.Result, marks []model.Mark, subjects map[string]model.Subject) Snapshot {
	s := Snapshot{
		Format:     Format,
		Version:    Version,
		ResultID:   result.ID,
		AttemptKey: result.AttemptKey,
		ExamName:   result.ExamName,
		Session:    result.Session,
		Group:      attempt.Group,
		Student: Student{
			RegistrationNumber: attempt.Student.RegistrationNumber,
			Name:               attempt.Student.Name,
			FatherName:         attempt.Student.FatherName,
			MotherName:         attempt.Student.MotherName,
			DateOfBirth:        attempt.Student.DateOfBirth,
		},
		Institution: Party{ID: attempt.InstitutionID, Name: orUnknown(attempt.InstitutionName)},
		Board:       Party{ID: attempt.BoardID, Name: orUnknown(attempt.BoardName)},
		TotalMarks:  result.TotalMarks,
		GPA:         FormatGPA(result.GPA),
		Grade:       result.Grade,
		Status:      string(result.Status),
		Published:   result.Published,
		PublishedBy: result.PublishedBy,
		StampedAt:   FormatTime(result.UpdatedAt),
	}
	if result.PublishedAt != nil {
		s.PublishedAt = FormatTime(*result.PublishedAt)
	}

	s.SubjectMarks = make([]SubjectMark, 0, len(marks))
	for _, m := range marks {
		sub, ok := subjects[m.SubjectID]
		sm := SubjectMark{
			SubjectID:     m.SubjectID,
			Name:          m.SubjectID,
			MarksObtained: m.MarksObtained,
			Grade:         m.Grade,
			GradePoint:    m.GradePoint,
		}
		if ok {
			sm.Name = sub.Name
			sm.Category = string(sub.Category)
			sm.FullMarks = sub.FullMarks
		}
		s.SubjectMarks = append(s.SubjectMarks, sm)
	}
	SortMarks(s.SubjectMarks)
	return s
}

// SortMarks orders marks by subject id.
func SortMarks(marks []SubjectMark) {
	sort.SliceStable(marks, func(i, j int) bool { return marks[i].SubjectID < marks[j].SubjectID })
}

// PublishedAtOf renders r's publication time as a snapshot would.
func PublishedAtOf(r *model.Result) string {
	if r.PublishedAt == nil {
		return ""
	}
	return FormatTime(*r.PublishedAt)
}

// FormatGPA renders a GPA with exactly two decimals.
func FormatGPA(gpa float64) string {
	return strconv.FormatFloat(gpa, 'f', 2, 64)
}

// FormatTime renders snapshot timestamps. The zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}

// Encode returns the canonical bytes of s.
func Encode(s Snapshot) ([]byte, error) {
	if s.Format != Format || s.Version != Version {
		return nil, fmt.Errorf("snapshot: unsupported format %q version %q", s.Format, s.Version)
	}
	marks := append([]SubjectMark(nil), s.SubjectMarks...)
	SortMarks(marks)
	s.SubjectMarks = marks
	if s.SubjectMarks == nil {
		s.SubjectMarks = []SubjectMark{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses stored snapshot bytes and checks the format tag.
func Decode(b []byte) (Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if s.Format != Format {
		return Snapshot{}, fmt.Errorf("snapshot: unexpected format %q", s.Format)
	}
	if s.Version != Version {
		return Snapshot{}, fmt.Errorf("snapshot: unsupported version %q", s.Version)
	}
	return s, nil
}

// Document is an encoded snapshot together with its fingerprint.
type Document struct {
	Snapshot Snapshot
	Bytes    []byte
	CID      cid.Cid
}

// NewDocument encodes s and derives its fingerprint.
func NewDocument(s Snapshot) (Document, error) {
	b, err := Encode(s)
	if err != nil {
		return Document{}, err
	}
	id, err := cidutil.Fingerprint(b)
	if err != nil {
		return Document{}, err
	}
	return Document{Snapshot: s, Bytes: b, CID: id}, nil
}
