package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC client for a resultledger-casd daemon",
		Usage:       casregistry.UsageCLI,
		Options: map[string]string{
			"grpc-target":        "gRPC target host:port",
			"grpc-dial-timeout":  "Dial timeout (default 5s)",
			"grpc-timeout":       "Per-RPC timeout",
			"grpc-max-msg-bytes": "Max gRPC message size in bytes (send+recv)",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(cfg["grpc-target"])
			if target == "" {
				return nil, nil, fmt.Errorf("missing --grpc-target")
			}
			dialTimeout, err := durationOr(cfg["grpc-dial-timeout"], 5*time.Second)
			if err != nil {
				return nil, nil, err
			}
			rpcTimeout, err := durationOr(cfg["grpc-timeout"], 0)
			if err != nil {
				return nil, nil, err
			}
			maxMsg := 0
			if v := cfg["grpc-max-msg-bytes"]; v != "" {
				if maxMsg, err = strconv.Atoi(v); err != nil {
					return nil, nil, fmt.Errorf("invalid --grpc-max-msg-bytes: %w", err)
				}
			}
			client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = rpcTimeout
			return client, client.Close, nil
		},
	})
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
