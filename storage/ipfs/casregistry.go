package ipfs

import (
	"strconv"

	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Kubo (IPFS) node over its HTTP RPC API",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: map[string]string{
			"ipfs-api": "Kubo RPC base URL",
			"ipfs-pin": "Pin stored snapshots (true|false)",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			pin := true
			if v, ok := cfg["ipfs-pin"]; ok && v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, nil, err
				}
				pin = b
			}
			return New(Options{API: cfg["ipfs-api"], Pin: pin}), nil, nil
		},
	})
}
