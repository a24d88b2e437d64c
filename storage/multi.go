package storage

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Hydration order is the slice order in Adapters; callers MUST supply a fixed order.
//
// Put is defined to write only to the first adapter.
type MultiCAS struct {
	Adapters []CAS
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(ctx, data)
}

// Get returns the first hit. An unavailable adapter does not stop the
// fallback, but if no adapter has the object and one of them was unavailable
// the result is ErrUnavailable rather than ErrNotFound.
func (m MultiCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	var unavailable error
	for _, cas := range m.Adapters {
		b, err := cas.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		if IsUnavailable(err) {
			if unavailable == nil {
				unavailable = err
			}
			continue
		}
		return nil, err
	}
	if unavailable != nil {
		return nil, unavailable
	}
	return nil, ErrNotFound
}

func (m MultiCAS) Has(ctx context.Context, id cid.Cid) bool {
	for _, cas := range m.Adapters {
		if cas.Has(ctx, id) {
			return true
		}
	}
	return false
}
