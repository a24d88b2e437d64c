// Command resultledger-casd serves a snapshot store backend over gRPC so
// several ledger instances can share one fingerprint store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"google.golang.org/grpc"

	"xdao.co/resultledger/storage/casregistry"
	"xdao.co/resultledger/storage/grpccas"

	_ "xdao.co/resultledger/storage/ipfs"
	_ "xdao.co/resultledger/storage/localfs"
	_ "xdao.co/resultledger/storage/memcas"
	_ "xdao.co/resultledger/storage/rediscas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("resultledger-casd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "Snapshot store backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	vals := casregistry.BindFlags(fs, casregistry.UsageDaemon)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logger := slog.New(slog.NewTextHandler(errOut, nil))
	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon, vals.Config())
	if err != nil {
		logger.Error("open backend", "backend", *backend, "err", err)
		return 2
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				logger.Warn("close backend", "err", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listen", "addr", *listen, "err", err)
		return 1
	}

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("serving snapshot store", "addr", lis.Addr().String(), "backend", *backend)
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("serve", "err", err)
		return 1
	}
	return 0
}
