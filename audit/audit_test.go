package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"xdao.co/resultledger/model"
)

func TestNewEntry_Validates(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	after := &State{Status: model.StatusPass}

	if _, err := NewEntry("", "admin", KindPublication, nil, after, "", "", at); err == nil {
		t.Fatalf("expected error for empty result id")
	}
	if _, err := NewEntry("r", "admin", Kind("revalidation_update"), nil, after, "", "", at); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := NewEntry("r", "admin", KindPublication, nil, nil, "", "", at); err == nil {
		t.Fatalf("expected error for missing after state")
	}

	e, err := NewEntry("r", "admin", KindInitialHash, nil, after, "", "bafk-new", at)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if e.ID == "" || e.PreviousFingerprint != nil || e.NewFingerprint == nil || *e.NewFingerprint != "bafk-new" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestMemory_NewestFirstWithTies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	after := &State{Status: model.StatusPass}

	kinds := []Kind{KindInitialHash, KindRecalculation, KindHashUpdate}
	for _, k := range kinds {
		e, err := NewEntry("r1", "admin", k, nil, after, "", "", at)
		if err != nil {
			t.Fatalf("NewEntry: %v", err)
		}
		if err := m.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	later, _ := NewEntry("r1", "admin", KindPublication, nil, after, "", "", at.Add(time.Minute))
	_ = m.Record(ctx, later)
	other, _ := NewEntry("r2", "admin", KindPublication, nil, after, "", "", at)
	_ = m.Record(ctx, other)

	got, err := m.ListFor(ctx, "r1")
	if err != nil {
		t.Fatalf("ListFor: %v", err)
	}
	want := []Kind{KindPublication, KindHashUpdate, KindRecalculation, KindInitialHash}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Kind != want[i] {
			t.Fatalf("entry %d kind = %s, want %s", i, got[i].Kind, want[i])
		}
	}
	if m.Len() != 5 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestMemory_ReadersCannotRewriteHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	published := at.Add(time.Hour)
	before := &State{Status: model.StatusPass, GPA: 4.5}
	after := &State{Status: model.StatusPass, GPA: 4.5, Published: true, PublishedAt: &published}
	e, err := NewEntry("r1", "controller", KindPublication, before, after, "bafk-a", "bafk-b", at)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if err := m.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	after.GPA = 1

	got, _ := m.ListFor(ctx, "r1")
	got[0].After.GPA = 0.01
	got[0].Before.Status = model.StatusFail
	*got[0].After.PublishedAt = at
	*got[0].NewFingerprint = "bafk-forged"

	clone := m.Clone()
	cloned, _ := clone.ListFor(ctx, "r1")
	cloned[0].After.Grade = "F"

	for _, src := range []*Memory{m, clone} {
		again, _ := src.ListFor(ctx, "r1")
		e := again[0]
		if e.After.GPA != 4.5 || e.After.Grade != "" || e.Before.Status != model.StatusPass {
			t.Fatalf("stored states changed: before=%+v after=%+v", e.Before, e.After)
		}
		if !e.After.PublishedAt.Equal(published) || *e.NewFingerprint != "bafk-b" {
			t.Fatalf("stored entry changed: %s", e)
		}
	}
}

func TestRender_Table(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	e, _ := NewEntry("r1", "controller", KindPublication, nil, &State{Status: model.StatusPass, GPA: 4.5, Published: true}, "bafk-a", "bafk-b", at)

	var buf bytes.Buffer
	Render(&buf, []Entry{e})
	out := buf.String()
	for _, want := range []string{"publication", "controller", "4.50", "bafk-a", "bafk-b"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}
