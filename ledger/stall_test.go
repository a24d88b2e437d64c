package ledger_test

import (
	"context"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/storage"
)

// stallingCAS blocks Put until its context ends or stall is closed.
type stallingCAS struct {
	storage.CAS
	stall chan struct{}
}

func (s *stallingCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	select {
	case <-ctx.Done():
		return cid.Undef, storage.FromContext("stall put", ctx.Err())
	case <-s.stall:
		return s.CAS.Put(ctx, data)
	}
}
