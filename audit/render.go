package audit

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Render writes entries as a table.
func Render(w io.Writer, entries []Entry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Kind", "By", "Status", "GPA", "Published", "Previous", "New"})
	table.SetAutoWrapText(false)
	for _, e := range entries {
		status, gpa, published := "-", "-", "-"
		if e.After != nil {
			status = string(e.After.Status)
			gpa = strconv.FormatFloat(e.After.GPA, 'f', 2, 64)
			published = strconv.FormatBool(e.After.Published)
		}
		table.Append([]string{
			e.Timestamp.Format(time.RFC3339),
			string(e.Kind),
			e.ModifiedBy,
			status,
			gpa,
			published,
			Deref(e.PreviousFingerprint),
			Deref(e.NewFingerprint),
		})
	}
	table.Render()
}
