package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is the fingerprint store: a content-addressable store of snapshot bytes.
//
// Contract:
//   - Put MUST be idempotent and MUST return the CIDv1 raw+sha2-256 of the bytes.
//   - Stored objects MUST be immutable.
//   - Get MUST return ErrNotFound when the CID is absent.
//   - Network-backed implementations MUST honour ctx and report deadline or
//     transport failures as ErrUnavailable.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}
