package localfs

import (
	"fmt"

	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local content-addressed snapshot directory",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: map[string]string{
			"localfs-dir": "Snapshot directory",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			dir := cfg["localfs-dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("missing --localfs-dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
