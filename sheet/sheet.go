// Package sheet moves marks and results in and out of xlsx workbooks.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"xdao.co/resultledger/ledger"
	"xdao.co/resultledger/model"
)

// MarkWriter receives one mark per imported row.
type MarkWriter interface {
	WriteMark(ctx context.Context, actor string, in model.MarkInput) (ledger.Outcome, error)
}

// Column headers, matched case-insensitively on the first row.
const (
	ColAttemptKey = "attempt_key"
	ColSubjectID  = "subject_id"
	ColMarks      = "marks"
)

type RowError struct {
	Row        int
	AttemptKey string
	SubjectID  string
	Err        error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s/%s): %v", e.Row, e.AttemptKey, e.SubjectID, e.Err)
}

// ImportReport counts the rows of one import. A row whose mark was written
// but whose fingerprint could not be stored is counted as Imported and also
// listed in Warnings.
type ImportReport struct {
	Imported int
	Skipped  int
	Failed   []RowError
	Warnings []RowError
}

type ImportOptions struct {
	Sheet  string
	Logger *slog.Logger
}

// ImportMarks reads the first sheet (or opts.Sheet) of an xlsx workbook and
// writes each row through w. Blank rows are skipped. Cancelling ctx stops the
// import between rows; rows already written stay written.
func ImportMarks(ctx context.Context, r io.Reader, w MarkWriter, actor string, opts ImportOptions) (ImportReport, error) {
	var rep ImportReport
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return rep, fmt.Errorf("sheet: open workbook: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("close workbook", "err", err)
		}
	}()

	name := opts.Sheet
	if name == "" {
		name = f.GetSheetName(0)
	}
	if name == "" {
		return rep, errors.New("sheet: workbook has no sheets")
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return rep, fmt.Errorf("sheet: read %s: %w", name, err)
	}
	if len(rows) == 0 {
		return rep, fmt.Errorf("sheet: %s is empty", name)
	}
	cols, err := headerColumns(rows[0])
	if err != nil {
		return rep, err
	}

	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rowNum := i + 2
		key, subject, raw := cell(row, cols[0]), cell(row, cols[1]), cell(row, cols[2])
		if key == "" && subject == "" && raw == "" {
			rep.Skipped++
			continue
		}
		re := RowError{Row: rowNum, AttemptKey: key, SubjectID: subject}
		marks, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			re.Err = model.Errorf(model.KindInvalid, key, "marks %q is not a number", raw)
			rep.Failed = append(rep.Failed, re)
			continue
		}
		_, err = w.WriteMark(ctx, actor, model.MarkInput{AttemptKey: key, SubjectID: subject, MarksObtained: marks})
		switch {
		case err == nil:
			rep.Imported++
		case model.IsKind(err, model.KindStoreUnavailable):
			re.Err = err
			rep.Imported++
			rep.Warnings = append(rep.Warnings, re)
		default:
			re.Err = err
			rep.Failed = append(rep.Failed, re)
			logger.Info("import row failed", "row", rowNum, "attempt_key", key, "subject_id", subject, "err", err)
		}
	}
	return rep, nil
}

func headerColumns(header []string) ([3]int, error) {
	idx := [3]int{-1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case ColAttemptKey:
			idx[0] = i
		case ColSubjectID:
			idx[1] = i
		case ColMarks:
			idx[2] = i
		}
	}
	for j, name := range []string{ColAttemptKey, ColSubjectID, ColMarks} {
		if idx[j] < 0 {
			return idx, fmt.Errorf("sheet: missing %q column", name)
		}
	}
	return idx, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// ResultsSheet is the sheet name ExportResults writes.
const ResultsSheet = "Results"

var resultHeader = []interface{}{
	"result_id", "attempt_key", "exam_name", "session", "total_marks", "gpa", "grade", "status", "state", "published_at", "fingerprint",
}

// ExportResults writes results, one per row, as an xlsx workbook.
func ExportResults(w io.Writer, results []*model.Result) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), ResultsSheet); err != nil {
		return fmt.Errorf("sheet: %w", err)
	}
	if err := f.SetSheetRow(ResultsSheet, "A1", &resultHeader); err != nil {
		return fmt.Errorf("sheet: header: %w", err)
	}
	for i, r := range results {
		publishedAt := ""
		if r.PublishedAt != nil {
			publishedAt = r.PublishedAt.UTC().Format(time.RFC3339)
		}
		row := []interface{}{
			r.ID, r.AttemptKey, r.ExamName, r.Session, r.TotalMarks,
			strconv.FormatFloat(r.GPA, 'f', 2, 64), r.Grade, string(r.Status), string(r.State()), publishedAt, r.Fingerprint,
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ResultsSheet, axis, &row); err != nil {
			return fmt.Errorf("sheet: row %d: %w", i+2, err)
		}
	}
	_, err := f.WriteTo(w)
	return err
}
