package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
)

// NamedCAS associates a CAS with a stable backend name.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// CIDs to match (otherwise ErrCIDMismatch is returned).
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes the same bytes to all backends.
//
// It returns the canonical CID (computed from bytes) and a map of backend
// name -> returned CID. The first failing backend aborts the write.
func (r ReplicatingCAS) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.Fingerprint(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		got, err := b.CAS.Put(ctx, data)
		if err != nil {
			return cid.Undef, out, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		out[b.Name] = got
		if !got.Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r ReplicatingCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	adapters := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS != nil {
			adapters = append(adapters, b.CAS)
		}
	}
	return MultiCAS{Adapters: adapters}.Get(ctx, id)
}

func (r ReplicatingCAS) Has(ctx context.Context, id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(ctx, id) {
			return true
		}
	}
	return false
}
