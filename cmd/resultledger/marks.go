package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"xdao.co/resultledger/ledger"
	"xdao.co/resultledger/model"
)

func cmdMark(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: resultledger mark set|delete ...")
		return 2
	}
	sub := args[0]
	if sub != "set" && sub != "delete" {
		fmt.Fprintf(errOut, "unknown mark subcommand: %s\n", sub)
		return 2
	}

	fs := flag.NewFlagSet("mark "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var actor, attempt, subject string
	var marks float64
	fs.StringVar(&actor, "actor", "", "Acting user id")
	fs.StringVar(&attempt, "attempt", "", "Attempt key (roll number)")
	fs.StringVar(&subject, "subject", "", "Subject id")
	if sub == "set" {
		fs.Float64Var(&marks, "marks", -1, "Marks obtained")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if actor == "" || attempt == "" || subject == "" {
		fmt.Fprintln(errOut, "missing --actor, --attempt or --subject")
		return 2
	}
	if sub == "set" && marks < 0 {
		fmt.Fprintln(errOut, "missing --marks")
		return 2
	}

	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	var o ledger.Outcome
	if sub == "set" {
		o, err = a.ledger.WriteMark(ctx, actor, model.MarkInput{AttemptKey: attempt, SubjectID: subject, MarksObtained: marks})
	} else {
		o, err = a.ledger.DeleteMark(ctx, actor, attempt, subject)
	}
	printOutcome(out, o)
	if err != nil {
		fmt.Fprintf(errOut, "mark %s: %v\n", sub, err)
		return 1
	}
	return 0
}

func printOutcome(out io.Writer, o ledger.Outcome) {
	if o.Result == nil {
		return
	}
	r := o.Result
	fmt.Fprintf(out, "%s\t%s\tGPA %.2f\t%s\t%s\n", r.ID, statusWord(string(r.Status)), r.GPA, r.Grade, orDash(r.Fingerprint))
	if o.Unpublished {
		fmt.Fprintln(out, warnColor.Sprint("result was published and has been unpublished"))
	}
}
