package rediscas

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "redis",
		Description: "Redis key/value store (SETNX, immutable keys)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: map[string]string{
			"redis-addr":     "Redis address host:port",
			"redis-password": "Redis password",
			"redis-db":       "Redis logical database",
			"redis-prefix":   "Key prefix (default " + DefaultPrefix + ")",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			addr := strings.TrimSpace(cfg["redis-addr"])
			if addr == "" {
				return nil, nil, fmt.Errorf("missing --redis-addr")
			}
			db := 0
			if v := cfg["redis-db"]; v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid --redis-db: %w", err)
				}
				db = n
			}
			cas, err := Dial(context.Background(), addr, cfg["redis-password"], db)
			if err != nil {
				return nil, nil, err
			}
			if p := cfg["redis-prefix"]; p != "" {
				cas.Prefix = p
			}
			return cas, cas.Close, nil
		},
	})
}
