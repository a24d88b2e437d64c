package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xdao.co/resultledger/model"
	"xdao.co/resultledger/snapshot"
)

func TestPutShowRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := snapshot.Build(
		model.Attempt{Key: "1001", ExamName: "SSC", Session: "2024", Student: model.Student{RegistrationNumber: "R-1001"}},
		&model.Result{ID: "SSC_2024_1001", AttemptKey: "1001", ExamName: "SSC", Session: "2024", Status: model.StatusPass, UpdatedAt: at},
		nil, nil,
	)
	doc, err := snapshot.NewDocument(s)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	path := filepath.Join(dir, "snap.json")
	if err := os.WriteFile(path, doc.Bytes, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := filepath.Join(dir, "cas")
	var out, errOut bytes.Buffer
	if code := run(ctx, []string{"put", "--localfs-dir", store, path}, &out, &errOut); code != 0 {
		t.Fatalf("put: exit %d: %s", code, errOut.String())
	}
	if got := strings.TrimSpace(out.String()); got != doc.CID.String() {
		t.Fatalf("put printed %s, want %s", got, doc.CID)
	}

	out.Reset()
	if code := run(ctx, []string{"show", "--localfs-dir", store, "--cid", doc.CID.String()}, &out, &errOut); code != 0 {
		t.Fatalf("show: exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"result_id": "SSC_2024_1001"`) {
		t.Fatalf("unexpected show output:\n%s", out.String())
	}
}

func TestPut_RejectsNonSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.txt")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"put", "--localfs-dir", filepath.Join(dir, "cas"), path}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}
