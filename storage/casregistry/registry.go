package casregistry

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"sync"

	"xdao.co/resultledger/storage"
)

// Backend is a build-time plugin that can open a fingerprint store.
//
// Backends register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Options documents the config keys Open understands, keyed by name with a
	// help string. BindFlags exposes each key as a command-line flag.
	Options map[string]string

	// Open constructs the store from backend-specific config values.
	// It returns an optional close function.
	Open func(cfg map[string]string) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// FlagValues holds flag-bound config values for every registered backend.
type FlagValues map[string]*string

// BindFlags registers one string flag per backend option key matching usage.
//
// This enables single-pass flag parsing (Go's flag package rejects unknown flags).
// Keys shared by several backends are bound once.
func BindFlags(fs *flag.FlagSet, usage Usage) FlagValues {
	vals := FlagValues{}
	for _, b := range List(usage) {
		keys := make([]string, 0, len(b.Options))
		for k := range b.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := vals[k]; ok {
				continue
			}
			vals[k] = fs.String(k, "", fmt.Sprintf("%s (for --backend=%s)", b.Options[k], b.Name))
		}
	}
	return vals
}

// Config returns the non-empty flag values as a config map.
func (v FlagValues) Config() map[string]string {
	out := map[string]string{}
	for k, p := range v {
		if p != nil && strings.TrimSpace(*p) != "" {
			out[k] = strings.TrimSpace(*p)
		}
	}
	return out
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage, cfg map[string]string) (storage.CAS, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}
	if cfg == nil {
		cfg = map[string]string{}
	}
	return b.Open(cfg)
}
