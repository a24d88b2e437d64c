package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"xdao.co/resultledger/ledger"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed, color.Bold)
)

func statusWord(s string) string {
	switch s {
	case "Pass", "VERIFIED", "verified", "Approved":
		return okColor.Sprint(s)
	case "Pending", "UNPUBLISHED", "OUTDATED":
		return warnColor.Sprint(s)
	default:
		return badColor.Sprint(s)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printReport renders a batch report and returns the exit code for it.
func printReport(out, errOut io.Writer, op string, rep ledger.BatchReport, err error) int {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Outcome", "Detail"})
	table.SetAutoWrapText(false)
	for _, id := range rep.Succeeded {
		table.Append([]string{id, okColor.Sprint("ok"), ""})
	}
	for _, id := range rep.Skipped {
		table.Append([]string{id, warnColor.Sprint("skipped"), ""})
	}
	for _, f := range rep.Failed {
		outcome := badColor.Sprint("failed")
		if f.Committed() {
			outcome = warnColor.Sprint("committed")
		}
		table.Append([]string{f.ID, outcome, f.Err.Error()})
	}
	table.Render()
	fmt.Fprintf(out, "%s: %s\n", op, rep.String())

	if err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", op, err)
		return 1
	}
	if len(rep.Failed) > 0 {
		return 1
	}
	return 0
}
