package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/resultledger/certificate"
	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/keys"
	"xdao.co/resultledger/snapshot"
)

func cmdCert(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: resultledger cert render|verify ...")
		return 2
	}
	switch args[0] {
	case "render":
		return cmdCertRender(ctx, args[1:], out, errOut)
	case "verify":
		return cmdCertVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown cert subcommand: %s\n", args[0])
		return 2
	}
}

func cmdCertRender(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("cert render", flag.ContinueOnError)
	fs.SetOutput(errOut)
	resultID := fs.String("result", "", "Result id")
	board := fs.String("board", "", "Sign with this board's key")
	role := fs.String("role", "", "Sign with a derived role key")
	alg := fs.String("alg", keys.AlgEd25519, "Signature algorithm: ed25519|dilithium3")
	hashAlg := fs.String("hash", "sha256", "Hash algorithm: sha256|sha512|sha3-256")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *resultID == "" {
		fmt.Fprintln(errOut, "missing --result")
		return 2
	}

	a, err := openApp(ctx, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer a.Close()

	v, err := a.verifier.Verify(ctx, *resultID)
	if err != nil {
		fmt.Fprintf(errOut, "cert: %v\n", err)
		return 1
	}
	if !v.Verified {
		fmt.Fprintf(errOut, "cert: %s does not verify: %s\n", *resultID, v.Reason)
		return 1
	}
	id, err := cidutil.Parse(v.Fingerprint)
	if err != nil {
		fmt.Fprintf(errOut, "cert: %v\n", err)
		return 1
	}
	raw, err := a.cas.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(errOut, "cert: %v\n", err)
		return 1
	}
	snap, err := snapshot.Decode(raw)
	if err != nil {
		fmt.Fprintf(errOut, "cert: %v\n", err)
		return 1
	}
	doc, err := certificate.Render(snap, v.Fingerprint)
	if err != nil {
		fmt.Fprintf(errOut, "cert: %v\n", err)
		return 1
	}

	if *board != "" {
		ks, err := openKeys()
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return 1
		}
		signer, err := ks.Signer(*alg, *board, *role)
		if err != nil {
			fmt.Fprintf(errOut, "load signing key: %v\n", err)
			return 1
		}
		if doc, err = certificate.Sign(doc, signer, *hashAlg); err != nil {
			fmt.Fprintf(errOut, "sign: %v\n", err)
			return 1
		}
	}
	_, _ = out.Write(doc)
	return 0
}

func cmdCertVerify(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("cert verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var trusted stringList
	fs.Var(&trusted, "trust", "Trusted public key (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: resultledger cert verify [--trust <public-key> ...] <certificate>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read certificate: %v\n", err)
		return 1
	}
	c, err := certificate.VerifySignature(b, trusted...)
	if err != nil {
		fmt.Fprintf(out, "%s\n", badColor.Sprint("INVALID"))
		fmt.Fprintf(errOut, "cert verify: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s\t%s\t%s\n", okColor.Sprint("SIGNED"), c.ResultID(), c.PublicKey)
	fmt.Fprintf(out, "fingerprint: %s (check with: resultledger marksheet --result %s --fingerprint %s)\n", c.Fingerprint(), c.ResultID(), c.Fingerprint())
	return 0
}

func cmdKey(args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "resultledger key: board signing keys")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  resultledger key init --board <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  resultledger key derive --board <name> --role <role> [--force]")
	fmt.Fprintln(w, "  resultledger key list")
	fmt.Fprintln(w, "  resultledger key export --board <name> [--role <role>] [--alg ed25519|dilithium3]")
}

func cmdKeyInit(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	board := fs.String("board", "", "Board name")
	seedHex := fs.String("seed-hex", "", "Optional seed as 64 hex chars")
	force := fs.Bool("force", false, "Overwrite an existing root key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := keys.CheckBoard(*board); err != nil {
		fmt.Fprintf(errOut, "invalid --board: %v\n", err)
		return 2
	}

	var seed []byte
	if *seedHex != "" {
		var err error
		if seed, err = keys.ParseSeedHex(*seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	ks, err := openKeys()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	pub, path, err := ks.InitBoard(*board, seed, *force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created board key: %s\n", pub)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	board := fs.String("board", "", "Board name")
	role := fs.String("role", "", "Role (e.g. certificates)")
	force := fs.Bool("force", false, "Overwrite an existing role key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *board == "" || *role == "" {
		fmt.Fprintln(errOut, "missing --board or --role")
		return 2
	}
	ks, err := openKeys()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	path, err := ks.DeriveRole(*board, *role, *force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	signer, err := ks.Signer(keys.AlgEd25519, *board, *role)
	if err != nil {
		fmt.Fprintf(errOut, "load role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", signer.PublicKey())
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyExport(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	board := fs.String("board", "", "Board name")
	role := fs.String("role", "", "Optional role")
	alg := fs.String("alg", keys.AlgEd25519, "Signature algorithm: ed25519|dilithium3")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *board == "" {
		fmt.Fprintln(errOut, "missing --board")
		return 2
	}
	ks, err := openKeys()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	signer, err := ks.Signer(*alg, *board, *role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, signer.PublicKey())
	return 0
}

func cmdKeyList(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := openKeys()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Board)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}
