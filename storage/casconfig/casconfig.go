// Package casconfig opens the snapshot store described by a JSON file, so a
// deployment can mirror fingerprints across several backends.
//
//	{
//	  "write_policy": "all",
//	  "timeout": "5s",
//	  "backends": [
//	    {"name":"localfs", "config":{"localfs-dir":"/var/lib/resultledger/cas"}},
//	    {"name":"ipfs", "config":{"ipfs-api":"http://127.0.0.1:5001", "ipfs-pin":"true"}}
//	  ]
//	}
//
// Backends are looked up in casregistry; the binary must link them.
package casconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casregistry"
)

const (
	// WriteFirst stores snapshots on the first backend only; reads try every
	// backend in order.
	WriteFirst = "first"
	// WriteAll stores every snapshot on every backend and requires them to
	// agree on the fingerprint.
	WriteAll = "all"
)

type Config struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	Timeout     string          `json:"timeout,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name selects the registered backend, e.g. "localfs" or "grpc".
	Name string `json:"name"`
	// ID tells two backends of the same kind apart. Defaults to Name.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func (b BackendConfig) label() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("casconfig: empty config path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("casconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	labels := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if labels[b.label()] {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.label())
		}
		labels[b.label()] = true
	}
	if _, err := c.callTimeout(); err != nil {
		return err
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	}
	return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
}

func (c Config) callTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("casconfig: invalid timeout %q", c.Timeout)
	}
	return d, nil
}

// ordered returns the backends with preferred (by name or id) moved first.
func (c Config) ordered(preferred string) ([]BackendConfig, error) {
	out := append([]BackendConfig(nil), c.Backends...)
	if preferred == "" {
		return out, nil
	}
	for i, b := range out {
		if b.Name == preferred || b.ID == preferred {
			copy(out[1:i+1], out[:i])
			out[0] = b
			return out, nil
		}
	}
	return nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferred)
}

// Open opens every backend and combines them per WritePolicy. The returned
// func closes the backends in reverse order. preferred, when set, names the
// backend that takes writes under WriteFirst.
func (c Config) Open(usage casregistry.Usage, preferred string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	backends, err := c.ordered(preferred)
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	named := make([]storage.NamedCAS, 0, len(backends))
	for _, b := range backends {
		cas, closeFn, err := casregistry.Open(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		named = append(named, storage.NamedCAS{Name: b.label(), CAS: cas})
	}

	timeout, _ := c.callTimeout()
	return storage.WithTimeout(c.combine(named), timeout), closeAll, nil
}

func (c Config) combine(named []storage.NamedCAS) storage.CAS {
	if len(named) == 1 {
		return named[0].CAS
	}
	if c.WritePolicy == WriteAll {
		return storage.ReplicatingCAS{Backends: named}
	}
	adapters := make([]storage.CAS, len(named))
	for i, n := range named {
		adapters[i] = n.CAS
	}
	return storage.MultiCAS{Adapters: adapters}
}
