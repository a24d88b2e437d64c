// Package memcas is an in-process fingerprint store for tests and dry runs.
package memcas

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "memory",
		Description: "In-memory store (lost on exit)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(map[string]string) (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}

// CAS keeps blocks in a map guarded by a RWMutex.
//
// PutHook, when set, runs before every Put; a non-nil error aborts the write.
// Tests use it to simulate an unreachable store.
type CAS struct {
	mu      sync.RWMutex
	blocks  map[string][]byte
	PutHook func(data []byte) error
}

var _ storage.CAS = (*CAS)(nil)

func New() *CAS {
	return &CAS{blocks: map[string][]byte{}}
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, storage.FromContext("memory put", err)
	}
	if c.PutHook != nil {
		if err := c.PutHook(data); err != nil {
			return cid.Undef, err
		}
	}
	id, err := cidutil.Fingerprint(data)
	if err != nil {
		return cid.Undef, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := id.KeyString()
	if existing, ok := c.blocks[key]; ok {
		if string(existing) != string(data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	c.blocks[key] = append([]byte(nil), data...)
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.FromContext("memory get", err)
	}
	c.mu.RLock()
	b, ok := c.blocks[id.KeyString()]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocks[id.KeyString()]
	return ok
}

// Delete drops a block. It exists only so tests can model lost content.
func (c *CAS) Delete(id cid.Cid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blocks, id.KeyString())
}

// Len returns the number of stored blocks.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}
