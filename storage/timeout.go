package storage

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
)

// TimeoutCAS bounds every call to the wrapped store. A call that runs past the
// deadline fails with ErrUnavailable, which the ledger treats as retryable.
type TimeoutCAS struct {
	CAS     CAS
	Timeout time.Duration
}

var _ CAS = TimeoutCAS{}

// WithTimeout wraps cas so each call gets its own deadline. A non-positive d
// returns cas unchanged.
func WithTimeout(cas CAS, d time.Duration) CAS {
	if d <= 0 || cas == nil {
		return cas
	}
	return TimeoutCAS{CAS: cas, Timeout: d}
}

func (t TimeoutCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	id, err := t.CAS.Put(ctx, data)
	if err != nil {
		return cid.Undef, FromContext("put", orContext(ctx, err))
	}
	return id, nil
}

func (t TimeoutCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	b, err := t.CAS.Get(ctx, id)
	if err != nil {
		return nil, FromContext("get", orContext(ctx, err))
	}
	return b, nil
}

func (t TimeoutCAS) Has(ctx context.Context, id cid.Cid) bool {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	return t.CAS.Has(ctx, id)
}

// orContext prefers the context error when the deadline fired, since some
// backends surface it as an opaque transport error.
func orContext(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil && !IsNotFound(err) {
		return cerr
	}
	return err
}
