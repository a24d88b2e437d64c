package memcas

import (
	"context"
	"errors"
	"testing"

	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/testkit"
)

func TestMemCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS { return New() })
}

func TestMemCAS_PutHookAbortsWrite(t *testing.T) {
	cas := New()
	cas.PutHook = func([]byte) error { return storage.Unavailable("put", errors.New("offline")) }
	if _, err := cas.Put(context.Background(), []byte("x")); !storage.IsUnavailable(err) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if cas.Len() != 0 {
		t.Fatalf("hooked write must not store anything")
	}
}
