package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"xdao.co/resultledger/config"
	"xdao.co/resultledger/grading"
	"xdao.co/resultledger/keylock"
	"xdao.co/resultledger/keys"
	"xdao.co/resultledger/ledger"
	"xdao.co/resultledger/revalidation"
	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casconfig"
	"xdao.co/resultledger/storage/casregistry"
	"xdao.co/resultledger/store"
	"xdao.co/resultledger/store/pgstore"
	"xdao.co/resultledger/verify"

	_ "xdao.co/resultledger/storage/grpccas"
	_ "xdao.co/resultledger/storage/ipfs"
	_ "xdao.co/resultledger/storage/localfs"
	_ "xdao.co/resultledger/storage/rediscas"
)

// app holds the opened stores and services one command works against.
type app struct {
	store    store.Store
	cas      storage.CAS
	ledger   *ledger.Ledger
	verifier *verify.Verifier
	reval    *revalidation.Service
	log      *slog.Logger
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", "err", err)
		}
	}
}

// openApp is replaced in tests.
var openApp = openFromConfig

func openFromConfig(ctx context.Context, errOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(errOut, nil))
	a := &app{log: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%s is not set", config.EnvDatabaseURL)
	}
	st, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	var closeCAS func() error
	if cfg.CASConfig != "" {
		cc, err := casconfig.LoadFile(cfg.CASConfig)
		if err != nil {
			return nil, err
		}
		a.cas, closeCAS, err = cc.Open(casregistry.UsageCLI, "")
		if err != nil {
			return nil, err
		}
	} else {
		a.cas, closeCAS, err = casregistry.Open(cfg.CASBackend, casregistry.UsageCLI, cfg.BackendConfig())
		if err != nil {
			return nil, err
		}
	}
	if closeCAS != nil {
		a.closers = append(a.closers, closeCAS)
	}

	policy := grading.DefaultPolicy()
	if cfg.GradePolicy != "" {
		if policy, err = grading.LoadPolicyFile(cfg.GradePolicy); err != nil {
			return nil, err
		}
	}

	opts := ledger.Options{Logger: logger, FingerprintTimeout: cfg.FingerprintTimeout}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, client.Close)
		opts.Locker = keylock.NewRedis(client)
	}
	if a.ledger, err = ledger.New(a.store, a.cas, policy, opts); err != nil {
		return nil, err
	}
	a.verifier = verify.New(a.store, a.cas, verify.Options{Timeout: cfg.FingerprintTimeout, Logger: logger})
	a.reval = revalidation.New(a.store, a.ledger, nil)
	ok = true
	return a, nil
}

// migrator is implemented by stores that own their schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

func openKeys() (*keys.KeyStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return keys.Open(cfg.KeyDir)
}
