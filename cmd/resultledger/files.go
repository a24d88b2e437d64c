package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/olekukonko/tablewriter"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/sheet"
	"xdao.co/resultledger/storage/bundle"
	"xdao.co/resultledger/store"
)

func cmdRevalidate(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 || (args[0] != "create" && args[0] != "review") {
		fmt.Fprintln(errOut, "usage: resultledger revalidate create|review ...")
		return 2
	}
	sub := args[0]
	fs := flag.NewFlagSet("revalidate "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	actor := fs.String("actor", "", "Acting user id")
	attempt := fs.String("attempt", "", "Attempt key (create)")
	subject := fs.String("subject", "", "Subject id (create)")
	reason := fs.String("reason", "", "Reason for the request (create)")
	id := fs.String("id", "", "Request id (review)")
	decision := fs.String("decision", "", "Approved or Rejected (review)")
	marks := fs.Float64("marks", -1, "Updated marks for an approval (review)")
	comments := fs.String("comments", "", "Reviewer comments (review)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if *actor == "" || (sub == "create" && (*attempt == "" || *subject == "")) || (sub == "review" && (*id == "" || *decision == "")) {
		fmt.Fprintf(errOut, "missing required flags for revalidate %s\n", sub)
		return 2
	}

	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	var req store.Revalidation
	if sub == "create" {
		req, err = a.reval.Create(ctx, *actor, *attempt, *subject, *reason)
	} else {
		var updated *float64
		if *marks >= 0 {
			updated = marks
		}
		req, err = a.reval.Review(ctx, *actor, *id, store.RevalidationStatus(*decision), updated, *comments)
	}
	if req.ID != "" {
		fmt.Fprintf(out, "%s\t%s\t%s/%s\toriginal %g\n", req.ID, statusWord(string(req.Status)), req.AttemptKey, req.SubjectID, req.OriginalMarks)
	}
	if err != nil {
		fmt.Fprintf(errOut, "revalidate %s: %v\n", sub, err)
		return 1
	}
	return 0
}

func cmdImport(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	actor := fs.String("actor", "", "Acting user id")
	sheetName := fs.String("sheet", "", "Sheet name (default: first sheet)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *actor == "" || fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: resultledger import --actor <id> <marks.xlsx>")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read workbook: %v\n", err)
		return 1
	}
	defer f.Close()

	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	rep, err := sheet.ImportMarks(ctx, f, a.ledger, *actor, sheet.ImportOptions{Sheet: *sheetName, Logger: a.log})
	if len(rep.Failed)+len(rep.Warnings) > 0 {
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Row", "Attempt", "Subject", "Problem"})
		table.SetAutoWrapText(false)
		for _, r := range rep.Failed {
			table.Append([]string{fmt.Sprint(r.Row), r.AttemptKey, r.SubjectID, badColor.Sprint(r.Err.Error())})
		}
		for _, r := range rep.Warnings {
			table.Append([]string{fmt.Sprint(r.Row), r.AttemptKey, r.SubjectID, warnColor.Sprint(r.Err.Error())})
		}
		table.Render()
	}
	fmt.Fprintf(out, "imported=%d skipped=%d failed=%d warnings=%d\n", rep.Imported, rep.Skipped, len(rep.Failed), len(rep.Warnings))
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	if len(rep.Failed) > 0 {
		return 1
	}
	return 0
}

func cmdExport(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	exam := fs.String("exam", "", "Exam name")
	session := fs.String("session", "", "Exam session")
	outPath := fs.String("out", "", "Output workbook path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *exam == "" || *session == "" || *outPath == "" {
		fmt.Fprintln(errOut, "usage: resultledger export --exam <name> --session <s> --out <results.xlsx>")
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	results, err := a.store.ResultsBySession(ctx, *exam, *session)
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := sheet.ExportResults(f, results); err != nil {
		_ = f.Close()
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "exported %d results to %s\n", len(results), *outPath)
	return 0
}

func cmdArchive(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 || (args[0] != "export" && args[0] != "import") {
		fmt.Fprintln(errOut, "usage: resultledger archive export|import ...")
		return 2
	}
	sub := args[0]
	fs := flag.NewFlagSet("archive "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	exam := fs.String("exam", "", "Exam name (export)")
	session := fs.String("session", "", "Exam session (export)")
	outPath := fs.String("out", "", "Bundle path (export)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if sub == "export" && (*exam == "" || *session == "" || *outPath == "") {
		fmt.Fprintln(errOut, "usage: resultledger archive export --exam <name> --session <s> --out <bundle.tar>")
		return 2
	}
	if sub == "import" && fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: resultledger archive import <bundle.tar>")
		return 2
	}

	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	if sub == "import" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "archive import: %v\n", err)
			return 1
		}
		defer f.Close()
		idx, err := bundle.Import(ctx, f, a.cas, bundle.ImportOptions{})
		if err != nil {
			fmt.Fprintf(errOut, "archive import: %v\n", err)
			return 1
		}
		n := 0
		if idx != nil {
			n = len(idx.Snapshots)
		}
		fmt.Fprintf(out, "imported %d snapshots\n", n)
		return 0
	}

	results, err := a.store.ResultsBySession(ctx, *exam, *session)
	if err != nil {
		fmt.Fprintf(errOut, "archive export: %v\n", err)
		return 1
	}
	labels := map[string]cid.Cid{}
	for _, r := range results {
		if !r.Published || r.Fingerprint == "" {
			continue
		}
		id, err := cidutil.Parse(r.Fingerprint)
		if err != nil {
			fmt.Fprintf(errOut, "archive export: %s: %v\n", r.ID, err)
			return 1
		}
		labels[r.ID] = id
	}
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(errOut, "archive export: %v\n", err)
		return 1
	}
	err = bundle.Export(ctx, f, a.cas, nil, bundle.ExportOptions{Labels: labels, IncludeIndex: true})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(errOut, "archive export: %v\n", err)
		return 1
	}
	for _, id := range ids {
		fmt.Fprintf(out, "%s\t%s\n", id, labels[id])
	}
	fmt.Fprintf(out, "archived %d published results to %s\n", len(ids), *outPath)
	return 0
}

func cmdMigrate(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()
	m, ok := a.store.(migrator)
	if !ok {
		fmt.Fprintln(out, "store has no schema to migrate")
		return 0
	}
	if err := m.Migrate(ctx); err != nil {
		fmt.Fprintf(errOut, "migrate: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "schema up to date")
	return 0
}
