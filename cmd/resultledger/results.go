package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/ledger"
	"xdao.co/resultledger/verify"
)

func cmdPublish(ctx context.Context, args []string, out, errOut io.Writer, unpublish bool) int {
	name := "publish"
	if unpublish {
		name = "unpublish"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	actor := fs.String("actor", "", "Acting user id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *actor == "" || fs.NArg() == 0 {
		fmt.Fprintf(errOut, "usage: resultledger %s --actor <id> <result-id> [...]\n", name)
		return 2
	}

	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	var rep ledger.BatchReport
	if unpublish {
		rep, err = a.ledger.Unpublish(ctx, *actor, fs.Args())
	} else {
		rep, err = a.ledger.Publish(ctx, *actor, fs.Args())
	}
	return printReport(out, errOut, name, rep, err)
}

func cmdRecalculate(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("recalculate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	actor := fs.String("actor", "", "Acting user id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *actor == "" || fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: resultledger recalculate --actor <id> <attempt-key> [...]")
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()
	rep, err := a.ledger.Recalculate(ctx, *actor, fs.Args())
	return printReport(out, errOut, "recalculate", rep, err)
}

func cmdRefresh(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("refresh-hashes", flag.ContinueOnError)
	fs.SetOutput(errOut)
	actor := fs.String("actor", "", "Acting user id")
	exam := fs.String("exam", "", "Exam name (with --session, refresh the whole session)")
	session := fs.String("session", "", "Exam session")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	bySession := *exam != "" || *session != ""
	if *actor == "" || (bySession && (*exam == "" || *session == "")) || (!bySession && fs.NArg() == 0) {
		fmt.Fprintln(errOut, "usage: resultledger refresh-hashes --actor <id> (--exam <name> --session <s> | <result-id> [...])")
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	if bySession {
		rep, err := a.ledger.RefreshSession(ctx, *actor, *exam, *session)
		return printReport(out, errOut, "refresh-hashes", rep, err)
	}
	var rep ledger.BatchReport
	for _, id := range fs.Args() {
		if ctx.Err() != nil {
			rep.Interrupted = true
			return printReport(out, errOut, "refresh-hashes", rep, ctx.Err())
		}
		if _, err := a.ledger.RefreshFingerprint(ctx, *actor, id); err != nil {
			rep.Failed = append(rep.Failed, ledger.ItemError{ID: id, Err: err})
			continue
		}
		rep.Succeeded = append(rep.Succeeded, id)
	}
	return printReport(out, errOut, "refresh-hashes", rep, nil)
}

func cmdVerify(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: resultledger verify <result-id> [...]")
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	code := 0
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Result", "Verified", "Reason", "Fingerprint"})
	table.SetAutoWrapText(false)
	for _, id := range fs.Args() {
		v, err := a.verifier.Verify(ctx, id)
		if err != nil {
			table.Append([]string{id, badColor.Sprint("error"), err.Error(), ""})
			code = 1
			continue
		}
		verdict := okColor.Sprint("yes")
		if !v.Verified {
			verdict = badColor.Sprint("no")
			code = 1
		}
		table.Append([]string{id, verdict, v.Reason, orDash(v.Fingerprint)})
	}
	table.Render()
	return code
}

func cmdMarksheet(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("marksheet", flag.ContinueOnError)
	fs.SetOutput(errOut)
	resultID := fs.String("result", "", "Result id printed on the marksheet")
	fp := fs.String("fingerprint", "", "Fingerprint printed on the marksheet")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *resultID == "" || *fp == "" {
		fmt.Fprintln(errOut, "usage: resultledger marksheet --result <result-id> --fingerprint <cid>")
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	check, err := a.verifier.CheckMarksheet(ctx, *resultID, *fp)
	fmt.Fprintf(out, "%s\t%s\n", statusWord(string(check.Status)), check.ResultID)
	if check.Message != "" {
		fmt.Fprintf(out, "  %s\n", check.Message)
	}
	if check.CurrentFingerprint != "" && check.CurrentFingerprint != check.Presented {
		fmt.Fprintf(out, "  current fingerprint: %s\n", check.CurrentFingerprint)
	}
	if check.Superseded != nil {
		fmt.Fprintf(out, "  superseded by %s at %s (%s)\n", check.Superseded.ModifiedBy,
			check.Superseded.Timestamp.Format("2006-01-02 15:04:05"), check.Superseded.Kind)
	}
	if err != nil {
		fmt.Fprintf(errOut, "marksheet: %v\n", err)
		return 1
	}
	if check.Status != verify.StatusVerified {
		return 1
	}
	return 0
}

func cmdLookup(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(errOut)
	roll := fs.String("roll", "", "Attempt key (roll number)")
	reg := fs.String("registration", "", "Registration number")
	exam := fs.String("exam", "", "Exam name")
	session := fs.String("session", "", "Exam session")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *roll == "" || *reg == "" || *exam == "" || *session == "" {
		fmt.Fprintln(errOut, "usage: resultledger lookup --roll <key> --registration <no> --exam <name> --session <s>")
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	pub, err := a.verifier.LookupPublic(ctx, *roll, *reg, *exam, *session)
	if err != nil {
		fmt.Fprintf(errOut, "lookup: %v\n", err)
		return 1
	}
	s := pub.Snapshot
	fmt.Fprintf(out, "%s  %s (%s)\n", s.ResultID, s.Student.Name, s.Student.RegistrationNumber)
	fmt.Fprintf(out, "%s / %s\n", s.Institution.Name, s.Board.Name)
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Subject", "Marks", "Grade", "Point"})
	for _, m := range s.SubjectMarks {
		table.Append([]string{m.Name, fmt.Sprintf("%g", m.MarksObtained), m.Grade, fmt.Sprintf("%.2f", m.GradePoint)})
	}
	table.SetFooter([]string{"Total", fmt.Sprintf("%g", s.TotalMarks), s.Grade, s.GPA})
	table.Render()
	verdict := statusWord("verified")
	if !pub.Verification.Verified {
		verdict = badColor.Sprint(pub.Verification.Reason)
	}
	fmt.Fprintf(out, "%s  %s\n", verdict, orDash(pub.Verification.Fingerprint))
	return 0
}

func cmdAudit(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: resultledger audit <result-id>")
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()
	entries, err := a.store.ListFor(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "audit: %v\n", err)
		return 1
	}
	audit.Render(out, entries)
	return 0
}
