// Command snapshotcli reads and writes the snapshot store directly. It is an
// operator tool for inspecting fingerprints outside the ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/snapshot"
	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casregistry"

	_ "xdao.co/resultledger/storage/grpccas"
	_ "xdao.co/resultledger/storage/ipfs"
	_ "xdao.co/resultledger/storage/localfs"
	_ "xdao.co/resultledger/storage/rediscas"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(ctx, args[1:], out, errOut)
	case "get":
		return cmdGet(ctx, args[1:], out, errOut, false)
	case "show":
		return cmdGet(ctx, args[1:], out, errOut, true)
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
	fmt.Fprintln(w, "snapshotcli: direct access to the snapshot store")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  snapshotcli put --backend localfs --localfs-dir <dir> <file>")
	fmt.Fprintln(w, "  snapshotcli get --backend localfs --localfs-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  snapshotcli show --backend grpc --grpc-target <host:port> --cid <cid>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - put refuses bytes that are not a valid snapshot")
	fmt.Fprintln(w, "  - show decodes the snapshot and prints it indented")
	fmt.Fprintln(w, "  - --list-backends prints the backends linked into this binary")
}

type commonFlags struct {
	backend      string
	listBackends bool
	values       casregistry.FlagValues
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "Snapshot store backend name")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	c.values = casregistry.BindFlags(fs, casregistry.UsageCLI)
}

func (c *commonFlags) open() (storage.CAS, func() error, error) {
	return casregistry.Open(c.backend, casregistry.UsageCLI, c.values.Config())
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func cmdPut(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: snapshotcli put [common flags] <file>")
		return 2
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	if _, err := snapshot.Decode(b); err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", filepath.Base(p), err)
		return 1
	}

	cas, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	id, err := cas.Put(ctx, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(ctx context.Context, args []string, out io.Writer, errOut io.Writer, decode bool) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	cidStr := fs.String("cid", "", "Fingerprint to fetch")
	outPath := fs.String("out", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if *cidStr == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: snapshotcli get|show [common flags] --cid <cid> [--out <file>]")
		return 2
	}
	id, err := cidutil.Parse(*cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 1
	}

	cas, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	b, err := cas.Get(ctx, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if decode {
		s, err := snapshot.Decode(b)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if b, err = json.MarshalIndent(s, "", "  "); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		b = append(b, '\n')
	}
	if *outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(*outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", *outPath, err)
		return 1
	}
	return 0
}
