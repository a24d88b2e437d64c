package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/storage"
	"xdao.co/resultledger/storage/memcas"
)

func seed(t *testing.T, cas storage.CAS, payloads ...string) []cid.Cid {
	t.Helper()
	ids := make([]cid.Cid, 0, len(payloads))
	for _, p := range payloads {
		id, err := cas.Put(context.Background(), []byte(p))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestExport_IsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas := memcas.New()
	ids := seed(t, cas, `{"result_id":"SSC_2024_A"}`, `{"result_id":"SSC_2024_B"}`)

	opts := ExportOptions{
		IncludeIndex: true,
		Labels:       map[string]cid.Cid{"SSC_2024_A": ids[0], "SSC_2024_B": ids[1]},
	}
	var a, b bytes.Buffer
	if err := Export(ctx, &a, cas, ids, opts); err != nil {
		t.Fatalf("Export: %v", err)
	}
	reversed := []cid.Cid{ids[1], ids[0]}
	if err := Export(ctx, &b, cas, reversed, opts); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("expected identical bundle bytes")
	}
}

func TestImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memcas.New()
	ids := seed(t, src, `{"result_id":"HSC_2024_X"}`)

	var buf bytes.Buffer
	err := Export(ctx, &buf, src, nil, ExportOptions{
		IncludeIndex: true,
		Labels:       map[string]cid.Cid{"HSC_2024_X": ids[0]},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := memcas.New()
	idx, err := Import(ctx, &buf, dst, ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !dst.Has(ctx, ids[0]) {
		t.Fatalf("snapshot not imported")
	}
	if idx == nil || idx.Labels()["HSC_2024_X"] != ids[0].String() {
		t.Fatalf("index labels not preserved: %+v", idx)
	}
}

func TestImport_RejectsFingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	src := memcas.New()
	ids := seed(t, src, "original")

	raw := makeTar(t, snapshotDir+ids[0].String(), []byte("tampered"))
	_, err := Import(ctx, bytes.NewReader(raw), memcas.New(), ImportOptions{})
	if !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestImport_UnknownEntries(t *testing.T) {
	ctx := context.Background()
	raw := makeTar(t, "notes/readme.txt", []byte("hello"))

	if _, err := Import(ctx, bytes.NewReader(raw), memcas.New(), ImportOptions{}); err == nil {
		t.Fatalf("expected unknown entry to fail")
	}
	if _, err := Import(ctx, bytes.NewReader(raw), memcas.New(), ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown: %v", err)
	}
}

func TestExport_MissingSnapshot(t *testing.T) {
	ctx := context.Background()
	cas := memcas.New()
	ids := seed(t, cas, "gone")
	cas.Delete(ids[0])

	var buf bytes.Buffer
	if err := Export(ctx, &buf, cas, ids, ExportOptions{}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func makeTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeFile(tw, name, content); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}
