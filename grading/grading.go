// Package grading holds the versioned grade policy: the mark-to-grade table
// used per subject and the GPA-to-letter table used per attempt.
package grading

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// MaxPoint is the top of the grade point scale.
const MaxPoint = 5.00

// FailLetter is the letter for a failed attempt or subject.
const FailLetter = "F"

// Band maps every value >= Min (and below the next band's Min) to Letter and Point.
type Band struct {
	Min    float64 `json:"min"`
	Letter string  `json:"letter"`
	Point  float64 `json:"point,omitempty"`
}

// Policy is one board's grading rules. It is immutable once validated and is
// passed explicitly to whoever needs it.
type Policy struct {
	Version   string `json:"version"`
	MarkBands []Band `json:"mark_bands"`
	GPABands  []Band `json:"gpa_bands"`
}

// DefaultPolicy returns the secondary-certificate grading tables.
//
// The GPA table is the one applied when a Result is refreshed after a mark
// change; bulk recalculation uses the same table.
func DefaultPolicy() *Policy {
	return &Policy{
		Version: "bd-ssc-2025.1",
		MarkBands: []Band{
			{Min: 80, Letter: "A+", Point: 5.00},
			{Min: 70, Letter: "A", Point: 4.00},
			{Min: 60, Letter: "A-", Point: 3.50},
			{Min: 50, Letter: "B", Point: 3.00},
			{Min: 40, Letter: "C", Point: 2.00},
			{Min: 33, Letter: "D", Point: 1.00},
			{Min: 0, Letter: FailLetter, Point: 0},
		},
		GPABands: []Band{
			{Min: 5.00, Letter: "A+"},
			{Min: 4.00, Letter: "A"},
			{Min: 3.50, Letter: "A-"},
			{Min: 3.00, Letter: "B+"},
			{Min: 2.50, Letter: "B"},
			{Min: 2.00, Letter: "C"},
			{Min: 1.00, Letter: "D"},
			{Min: 0, Letter: FailLetter},
		},
	}
}

// Validate checks both tables: non-empty, strictly descending cut points,
// a floor band at 0, and points within 0..MaxPoint.
func (p *Policy) Validate() error {
	if p == nil {
		return fmt.Errorf("grading: nil policy")
	}
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("grading: policy version is required")
	}
	if err := validateBands("mark_bands", p.MarkBands, true); err != nil {
		return err
	}
	return validateBands("gpa_bands", p.GPABands, false)
}

func validateBands(name string, bands []Band, withPoints bool) error {
	if len(bands) == 0 {
		return fmt.Errorf("grading: %s is empty", name)
	}
	for i, b := range bands {
		if strings.TrimSpace(b.Letter) == "" {
			return fmt.Errorf("grading: %s[%d] has no letter", name, i)
		}
		if b.Min < 0 {
			return fmt.Errorf("grading: %s[%d] min %g is negative", name, i, b.Min)
		}
		if i > 0 && b.Min >= bands[i-1].Min {
			return fmt.Errorf("grading: %s must be strictly descending at index %d", name, i)
		}
		if withPoints && (b.Point < 0 || b.Point > MaxPoint) {
			return fmt.Errorf("grading: %s[%d] point %g outside 0..%.2f", name, i, b.Point, MaxPoint)
		}
	}
	if bands[len(bands)-1].Min != 0 {
		return fmt.Errorf("grading: %s has no floor band at 0", name)
	}
	return nil
}

// LoadPolicyFile reads and validates a JSON policy. Bands may appear in any
// order in the file; they are sorted descending before validation.
func LoadPolicyFile(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Policy
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("grading: parse %s: %w", path, err)
	}
	sortBands(p.MarkBands)
	sortBands(p.GPABands)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func sortBands(bands []Band) {
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].Min > bands[j].Min })
}

// GradeForMark maps a percentage mark to a letter and grade point.
func (p *Policy) GradeForMark(marks float64) (string, float64) {
	b := lookup(p.MarkBands, marks)
	return b.Letter, b.Point
}

// GradeForMarkOutOf scales marks to a percentage of fullMarks first.
func (p *Policy) GradeForMarkOutOf(marks, fullMarks float64) (string, float64) {
	if fullMarks > 0 && fullMarks != 100 {
		marks = marks * 100 / fullMarks
	}
	return p.GradeForMark(marks)
}

// GradeForGPA maps an average grade point to the transcript letter.
func (p *Policy) GradeForGPA(gpa float64) string {
	return lookup(p.GPABands, gpa).Letter
}

func lookup(bands []Band, v float64) Band {
	for _, b := range bands {
		if v >= b.Min {
			return b
		}
	}
	if len(bands) == 0 {
		return Band{Letter: FailLetter}
	}
	return bands[len(bands)-1]
}
