// Package testkit holds the behavior every snapshot store backend shares.
package testkit

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
)

// NewCAS opens an empty store private to t.
type NewCAS func(t *testing.T) storage.CAS

var (
	draftSnapshot     = []byte(`{"result_id":"SSC_2024_1001","published":false,"gpa":"4.50"}` + "\n")
	publishedSnapshot = []byte(`{"result_id":"SSC_2024_1001","published":true,"gpa":"4.50"}` + "\n")
)

// RunCASConformance runs the snapshot store contract against stores built by
// newCAS: a snapshot is addressed by its own fingerprint, rewriting it is a
// no-op, and lookups never invent content.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("FingerprintAddressed", func(t *testing.T) {
		cas := newCAS(t)
		for _, doc := range [][]byte{draftSnapshot, publishedSnapshot} {
			want, err := cidutil.Fingerprint(doc)
			if err != nil {
				t.Fatalf("Fingerprint: %v", err)
			}
			id, err := cas.Put(ctx, doc)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if !id.Equals(want) {
				t.Fatalf("Put returned %s, want %s", id, want)
			}
			got, err := cas.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get(%s): %v", id, err)
			}
			if !bytes.Equal(got, doc) || !cidutil.Matches(id, got) {
				t.Fatalf("Get(%s) returned different content", id)
			}
		}
	})

	t.Run("RestampIsNoop", func(t *testing.T) {
		cas := newCAS(t)
		first, err := cas.Put(ctx, draftSnapshot)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		again, err := cas.Put(ctx, append([]byte(nil), draftSnapshot...))
		if err != nil {
			t.Fatalf("second Put: %v", err)
		}
		if !first.Equals(again) {
			t.Fatalf("same snapshot stored under %s and %s", first, again)
		}
	})

	t.Run("StoredContentIsolated", func(t *testing.T) {
		cas := newCAS(t)
		doc := append([]byte(nil), publishedSnapshot...)
		id, err := cas.Put(ctx, doc)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		doc[0] = 'X'
		got, err := cas.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got[0] = 'Y'
		again, err := cas.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(again, publishedSnapshot) {
			t.Fatalf("stored snapshot changed through a caller's slice")
		}
	})

	t.Run("MissingSnapshot", func(t *testing.T) {
		cas := newCAS(t)
		id, err := cidutil.Fingerprint(draftSnapshot)
		if err != nil {
			t.Fatalf("Fingerprint: %v", err)
		}
		if cas.Has(ctx, id) {
			t.Fatalf("Has reported a snapshot never stored")
		}
		if _, err := cas.Get(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Get of missing snapshot: %v, want ErrNotFound", err)
		}
		if _, err := cas.Put(ctx, draftSnapshot); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if !cas.Has(ctx, id) {
			t.Fatalf("Has is false after Put")
		}
	})

	t.Run("UndefinedFingerprint", func(t *testing.T) {
		cas := newCAS(t)
		if cas.Has(ctx, cid.Undef) {
			t.Fatalf("Has is true for an undefined fingerprint")
		}
		if _, err := cas.Get(ctx, cid.Undef); err == nil {
			t.Fatalf("Get accepted an undefined fingerprint")
		}
	})
}
