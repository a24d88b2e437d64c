// Package aggregate derives an attempt's total, GPA, letter grade and
// pass/fail status from its current marks.
package aggregate

import (
	"math"
	"sort"

	"xdao.co/resultledger/grading"
	"xdao.co/resultledger/model"
)

// Aggregate is the outcome of one full recomputation.
type Aggregate struct {
	TotalMarks float64
	GPA        float64
	Grade      string
	Status     model.Status

	// Marks are the inputs with Grade and GradePoint re-derived from the
	// policy, sorted by subject id.
	Marks []model.Mark
}

// Grade sets m's grade and grade point from the policy. Marks are scaled to a
// percentage of the subject's full marks; a missing subject counts as out of 100.
func Grade(p *grading.Policy, m model.Mark, subject model.Subject) model.Mark {
	full := subject.FullMarks
	if full <= 0 {
		full = 100
	}
	m.Grade, m.GradePoint = p.GradeForMarkOutOf(m.MarksObtained, full)
	return m
}

// Compute aggregates marks under p. Stored grade points are ignored and
// re-derived, so the result always agrees with the active policy.
//
// Zero marks yields a pending Aggregate and a KindIncompleteAggregate error.
func Compute(p *grading.Policy, marks []model.Mark, subjects map[string]model.Subject) (Aggregate, error) {
	if len(marks) == 0 {
		return Aggregate{Status: model.StatusPending}, model.Errorf(model.KindIncompleteAggregate, "", "no marks recorded")
	}

	graded := make([]model.Mark, 0, len(marks))
	var total, points float64
	failed := false
	for _, m := range marks {
		g := Grade(p, m, subjects[m.SubjectID])
		graded = append(graded, g)
		total += g.MarksObtained
		points += g.GradePoint
		if g.GradePoint == 0 {
			failed = true
		}
	}
	sort.Slice(graded, func(i, j int) bool { return graded[i].SubjectID < graded[j].SubjectID })

	out := Aggregate{TotalMarks: round2(total), Marks: graded}
	if failed {
		out.Status = model.StatusFail
		out.GPA = 0
		out.Grade = grading.FailLetter
		return out, nil
	}
	out.Status = model.StatusPass
	out.GPA = math.Min(round2(points/float64(len(graded))), grading.MaxPoint)
	out.Grade = p.GradeForGPA(out.GPA)
	return out, nil
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
