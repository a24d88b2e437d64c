package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "mark":
		return cmdMark(ctx, args[1:], out, errOut)
	case "publish":
		return cmdPublish(ctx, args[1:], out, errOut, false)
	case "unpublish":
		return cmdPublish(ctx, args[1:], out, errOut, true)
	case "recalculate":
		return cmdRecalculate(ctx, args[1:], out, errOut)
	case "refresh-hashes":
		return cmdRefresh(ctx, args[1:], out, errOut)
	case "verify":
		return cmdVerify(ctx, args[1:], out, errOut)
	case "marksheet":
		return cmdMarksheet(ctx, args[1:], out, errOut)
	case "lookup":
		return cmdLookup(ctx, args[1:], out, errOut)
	case "audit":
		return cmdAudit(ctx, args[1:], out, errOut)
	case "revalidate":
		return cmdRevalidate(ctx, args[1:], out, errOut)
	case "import":
		return cmdImport(ctx, args[1:], out, errOut)
	case "export":
		return cmdExport(ctx, args[1:], out, errOut)
	case "archive":
		return cmdArchive(ctx, args[1:], out, errOut)
	case "cert":
		return cmdCert(ctx, args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "migrate":
		return cmdMigrate(ctx, args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "resultledger: examination result ledger")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  resultledger mark set --actor <id> --attempt <key> --subject <id> --marks <n>")
	fmt.Fprintln(w, "  resultledger mark delete --actor <id> --attempt <key> --subject <id>")
	fmt.Fprintln(w, "  resultledger publish --actor <id> <result-id> [...]")
	fmt.Fprintln(w, "  resultledger unpublish --actor <id> <result-id> [...]")
	fmt.Fprintln(w, "  resultledger recalculate --actor <id> <attempt-key> [...]")
	fmt.Fprintln(w, "  resultledger refresh-hashes --actor <id> (--exam <name> --session <s> | <result-id> [...])")
	fmt.Fprintln(w, "  resultledger verify <result-id> [...]")
	fmt.Fprintln(w, "  resultledger marksheet --result <result-id> --fingerprint <cid>")
	fmt.Fprintln(w, "  resultledger lookup --roll <key> --registration <no> --exam <name> --session <s>")
	fmt.Fprintln(w, "  resultledger audit <result-id>")
	fmt.Fprintln(w, "  resultledger revalidate create --actor <id> --attempt <key> --subject <id> --reason <text>")
	fmt.Fprintln(w, "  resultledger revalidate review --actor <id> --id <request> --decision Approved|Rejected [--marks <n>] [--comments <text>]")
	fmt.Fprintln(w, "  resultledger import --actor <id> <marks.xlsx>")
	fmt.Fprintln(w, "  resultledger export --exam <name> --session <s> --out <results.xlsx>")
	fmt.Fprintln(w, "  resultledger archive export --exam <name> --session <s> --out <bundle.tar>")
	fmt.Fprintln(w, "  resultledger archive import <bundle.tar>")
	fmt.Fprintln(w, "  resultledger cert render --result <result-id> [--board <name> [--role <role>] [--alg ed25519|dilithium3] [--hash sha256|sha512|sha3-256]]")
	fmt.Fprintln(w, "  resultledger cert verify [--trust <public-key> ...] <certificate>")
	fmt.Fprintln(w, "  resultledger key init --board <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  resultledger key derive --board <name> --role <role> [--force]")
	fmt.Fprintln(w, "  resultledger key list")
	fmt.Fprintln(w, "  resultledger key export --board <name> [--role <role>] [--alg ed25519|dilithium3]")
	fmt.Fprintln(w, "  resultledger migrate")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - settings come from .env and RESULTLEDGER_* environment variables")
	fmt.Fprintln(w, "  - exit code 1 means at least one item failed; 2 means bad usage")
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
