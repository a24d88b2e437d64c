package ledger_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/grading"
	"xdao.co/resultledger/keylock"
	"xdao.co/resultledger/ledger"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/snapshot"
	"xdao.co/resultledger/storage/memcas"
	"xdao.co/resultledger/store"
	"xdao.co/resultledger/store/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store  *memstore.Store
	cas    *memcas.CAS
	ledger *ledger.Ledger
}

func newFixture(t *testing.T, attemptKeys ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	err := st.WithTx(ctx, func(tx store.Tx) error {
		for _, id := range []string{"english", "math", "physics"} {
			sub, err := model.NewSubject(id, id, model.CategoryCompulsory, 100, 33)
			if err != nil {
				return err
			}
			if err := tx.PutSubject(ctx, sub); err != nil {
				return err
			}
		}
		for _, key := range attemptKeys {
			a, err := model.NewAttempt(model.Attempt{
				Key: key, ExamName: "SSC", Session: "2024", Group: "Science",
				InstitutionName: "Rajshahi Collegiate School", BoardName: "Rajshahi",
				Student: model.Student{RegistrationNumber: "R-" + key, Name: "Student " + key},
			})
			if err != nil {
				return err
			}
			if err := tx.PutAttempt(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	cas := memcas.New()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	l, err := ledger.New(st, cas, grading.DefaultPolicy(), ledger.Options{Clock: clock.Now})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	return &fixture{store: st, cas: cas, ledger: l}
}

func (f *fixture) write(t *testing.T, key, subject string, marks float64) ledger.Outcome {
	t.Helper()
	out, err := f.ledger.WriteMark(context.Background(), "examiner", model.MarkInput{
		AttemptKey: key, SubjectID: subject, MarksObtained: marks,
	})
	if err != nil {
		t.Fatalf("WriteMark(%s, %s, %g): %v", key, subject, marks, err)
	}
	return out
}

func (f *fixture) result(t *testing.T, id string) *model.Result {
	t.Helper()
	r, err := f.store.Result(context.Background(), id)
	if err != nil {
		t.Fatalf("Result(%s): %v", id, err)
	}
	return r
}

func (f *fixture) trail(t *testing.T, id string) []audit.Entry {
	t.Helper()
	entries, err := f.store.ListFor(context.Background(), id)
	if err != nil {
		t.Fatalf("ListFor(%s): %v", id, err)
	}
	return entries
}

func TestWriteMark_FirstMarkCreatesResult(t *testing.T) {
	f := newFixture(t, "1001")
	out := f.write(t, "1001", "math", 85)

	if !out.Created || out.Result.ID != "SSC_2024_1001" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	trail := f.trail(t, "SSC_2024_1001")
	if len(trail) != 1 || trail[0].Kind != audit.KindInitialHash {
		t.Fatalf("expected one initial_hash entry, got %+v", trail)
	}
	if trail[0].PreviousFingerprint != nil || trail[0].Before != nil {
		t.Fatalf("initial_hash must have null previous side")
	}
	if trail[0].NewFingerprint == nil || *trail[0].NewFingerprint != out.Result.Fingerprint {
		t.Fatalf("entry fingerprint does not match result")
	}
}

func TestScenario_SingleSubjectFailure(t *testing.T) {
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)
	f.write(t, "1001", "english", 45)
	f.write(t, "1001", "physics", 20)

	r := f.result(t, "SSC_2024_1001")
	if r.Status != model.StatusFail || r.GPA != 0 || r.Grade != "F" || r.TotalMarks != 150 {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestScenario_PassAverage(t *testing.T) {
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)
	f.write(t, "1001", "english", 72)

	r := f.result(t, "SSC_2024_1001")
	if r.Status != model.StatusPass || r.GPA != 4.50 || r.Grade != "A" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestPublish_StoresSnapshotOfPublishedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)
	before := f.result(t, "SSC_2024_1001")

	report, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if s, k, fl := report.Counts(); s != 1 || k != 0 || fl != 0 {
		t.Fatalf("report = %s", report)
	}

	r := f.result(t, "SSC_2024_1001")
	if !r.Published || r.PublishedBy != "controller" || r.PublishedAt == nil {
		t.Fatalf("not published: %+v", r)
	}
	if r.Fingerprint == before.Fingerprint {
		t.Fatalf("publish did not change fingerprint")
	}

	id, err := cidutil.Parse(r.Fingerprint)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	raw, err := f.cas.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	snap, err := snapshot.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !snap.Published || snap.PublishedBy != "controller" || snap.GPA != "5.00" {
		t.Fatalf("stored snapshot does not reflect publication: %+v", snap)
	}

	trail := f.trail(t, "SSC_2024_1001")
	if trail[0].Kind != audit.KindPublication || *trail[0].PreviousFingerprint != before.Fingerprint {
		t.Fatalf("unexpected publication entry: %+v", trail[0])
	}
}

func TestMarkMutation_ForcesUnpublishWithOneEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)
	if _, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	published := f.result(t, "SSC_2024_1001")
	n := len(f.trail(t, "SSC_2024_1001"))

	out := f.write(t, "1001", "math", 65)
	if !out.Unpublished {
		t.Fatalf("outcome should report forced unpublish")
	}

	r := f.result(t, "SSC_2024_1001")
	if r.Published || r.PublishedBy != "" || r.PublishedAt != nil {
		t.Fatalf("result still published: %+v", r)
	}
	trail := f.trail(t, "SSC_2024_1001")
	if len(trail) != n+1 {
		t.Fatalf("expected exactly one new entry, got %d", len(trail)-n)
	}
	e := trail[0]
	if e.Kind != audit.KindMarksUpdate {
		t.Fatalf("kind = %s", e.Kind)
	}
	if e.PreviousFingerprint == nil || *e.PreviousFingerprint != published.Fingerprint {
		t.Fatalf("entry does not reference the published fingerprint")
	}
	if e.Before == nil || !e.Before.Published || e.Before.PublishedBy != "controller" {
		t.Fatalf("before state lost publish metadata: %+v", e.Before)
	}
}

func TestUnpublish_KeepsFingerprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)
	if _, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	published := f.result(t, "SSC_2024_1001")
	objects := f.cas.Len()

	report, err := f.ledger.Unpublish(ctx, "controller", []string{"SSC_2024_1001"})
	if err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	if len(report.Succeeded) != 1 {
		t.Fatalf("report = %s", report)
	}
	r := f.result(t, "SSC_2024_1001")
	if r.Published || r.Fingerprint != published.Fingerprint {
		t.Fatalf("unexpected result after unpublish: %+v", r)
	}
	if f.cas.Len() != objects {
		t.Fatalf("unpublish stored a new snapshot")
	}
	e := f.trail(t, "SSC_2024_1001")[0]
	if e.Kind != audit.KindUnpublication || e.Before.PublishedBy != "controller" {
		t.Fatalf("unexpected entry: %+v", e)
	}

	again, err := f.ledger.Unpublish(ctx, "controller", []string{"SSC_2024_1001"})
	if err != nil || len(again.Skipped) != 1 {
		t.Fatalf("Unpublish of draft should skip: %s %v", again, err)
	}
}

func TestPublish_SkipsAlreadyPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001", "1002")
	f.write(t, "1001", "math", 85)
	f.write(t, "1002", "math", 70)
	if _, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1002"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	n := len(f.trail(t, "SSC_2024_1002"))

	report, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001", "SSC_2024_1002"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0] != "SSC_2024_1001" {
		t.Fatalf("succeeded = %v", report.Succeeded)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "SSC_2024_1002" {
		t.Fatalf("skipped = %v", report.Skipped)
	}
	if got := len(f.trail(t, "SSC_2024_1002")); got != n {
		t.Fatalf("skipped result was re-audited")
	}
}

func TestPublish_StoreFailureForOneOfThree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001", "1002", "1003")
	for _, key := range []string{"1001", "1002", "1003"} {
		f.write(t, key, "math", 90)
	}
	draft := f.result(t, "SSC_2024_1002")

	f.cas.PutHook = func(data []byte) error {
		if bytes.Contains(data, []byte(`"result_id":"SSC_2024_1002"`)) {
			return errors.New("ipfs node unreachable")
		}
		return nil
	}

	ids := []string{"SSC_2024_1001", "SSC_2024_1002", "SSC_2024_1003"}
	report, err := f.ledger.Publish(ctx, "controller", ids)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if fmt.Sprint(report.Succeeded) != "[SSC_2024_1001 SSC_2024_1003]" {
		t.Fatalf("succeeded = %v", report.Succeeded)
	}
	if len(report.Failed) != 1 || report.Failed[0].ID != "SSC_2024_1002" {
		t.Fatalf("failed = %v", report.Failed)
	}
	if !model.IsKind(report.Failed[0].Err, model.KindStoreUnavailable) || !report.Failed[0].Committed() {
		t.Fatalf("failure kind = %v", report.Failed[0].Err)
	}
	if len(report.Completed) != 3 {
		t.Fatalf("completed = %v", report.Completed)
	}

	// The state transition committed even though fingerprinting failed.
	r := f.result(t, "SSC_2024_1002")
	if !r.Published {
		t.Fatalf("published=true should be committed for the failing id")
	}
	if r.Fingerprint != draft.Fingerprint {
		t.Fatalf("fingerprint should still be the pre-publish one")
	}
	e := f.trail(t, "SSC_2024_1002")[0]
	if e.Kind != audit.KindPublication || e.NewFingerprint != nil || e.After.FingerprintError == "" {
		t.Fatalf("publication entry should record the failure: %+v", e)
	}

	// Out-of-band retry restores a fingerprint for the published state.
	f.cas.PutHook = nil
	out, err := f.ledger.RefreshFingerprint(ctx, "operator", "SSC_2024_1002")
	if err != nil {
		t.Fatalf("RefreshFingerprint: %v", err)
	}
	if out.Result.Fingerprint == draft.Fingerprint || !out.Result.Published {
		t.Fatalf("refresh did not stamp published state: %+v", out.Result)
	}
}

func TestPublish_IncompleteAggregateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)
	if _, err := f.ledger.DeleteMark(ctx, "examiner", "1001", "math"); err != nil {
		t.Fatalf("DeleteMark: %v", err)
	}
	r := f.result(t, "SSC_2024_1001")
	if r.Status != model.StatusPending || r.TotalMarks != 0 {
		t.Fatalf("expected pending result, got %+v", r)
	}

	report, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001", "SSC_2024_9999"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(report.Failed) != 2 || len(report.Completed) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if !model.IsKind(report.Failed[0].Err, model.KindIncompleteAggregate) {
		t.Fatalf("first failure = %v", report.Failed[0].Err)
	}
	if !model.IsKind(report.Failed[1].Err, model.KindNotFound) {
		t.Fatalf("second failure = %v", report.Failed[1].Err)
	}
}

func TestOnMarkMutated_NoMarksNoResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	_, err := f.ledger.OnMarkMutated(ctx, "examiner", "1001")
	if !model.IsKind(err, model.KindIncompleteAggregate) {
		t.Fatalf("expected IncompleteAggregate, got %v", err)
	}
	if _, err := f.store.Result(ctx, "SSC_2024_1001"); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("result should not exist: %v", err)
	}
	if len(f.trail(t, "SSC_2024_1001")) != 0 || f.cas.Len() != 0 {
		t.Fatalf("nothing should be written")
	}
}

func TestOnMarkMutated_UnknownAttempt(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.OnMarkMutated(context.Background(), "examiner", "4040")
	if !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestOnMarkMutated_ExternalWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)

	err := f.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpsertMark(ctx, model.Mark{AttemptKey: "1001", SubjectID: "english", MarksObtained: 55, RecordedBy: "import"})
	})
	if err != nil {
		t.Fatalf("UpsertMark: %v", err)
	}
	out, err := f.ledger.OnMarkMutated(ctx, "importer", "1001")
	if err != nil {
		t.Fatalf("OnMarkMutated: %v", err)
	}
	if out.Result.TotalMarks != 140 || out.Result.GPA != 4.00 {
		t.Fatalf("unexpected aggregate: %+v", out.Result)
	}
	marks, _ := f.store.Marks(ctx, "1001")
	for _, m := range marks {
		if m.Grade == "" {
			t.Fatalf("externally written mark was not graded: %+v", m)
		}
	}
}

func TestRecalculate_RecordsDataAndHashEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)
	if _, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	published := f.result(t, "SSC_2024_1001")

	report, err := f.ledger.Recalculate(ctx, "operator", []string{"1001", "2002"})
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if len(report.Succeeded) != 1 || len(report.Failed) != 1 {
		t.Fatalf("report = %+v", report)
	}

	r := f.result(t, "SSC_2024_1001")
	if r.Published || r.Fingerprint == published.Fingerprint {
		t.Fatalf("recalculate must unpublish and re-fingerprint: %+v", r)
	}
	trail := f.trail(t, "SSC_2024_1001")
	if trail[0].Kind != audit.KindHashUpdate || trail[1].Kind != audit.KindRecalculation {
		t.Fatalf("expected hash_update after recalculation, got %s, %s", trail[0].Kind, trail[1].Kind)
	}
	if trail[1].NewFingerprint != nil || *trail[1].PreviousFingerprint != published.Fingerprint {
		t.Fatalf("recalculation entry should carry only the data change")
	}
	if *trail[0].PreviousFingerprint != published.Fingerprint || *trail[0].NewFingerprint != r.Fingerprint {
		t.Fatalf("hash_update entry should carry the fingerprint change")
	}
}

func TestRecalculate_AppliesNewPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 75)

	strict := grading.DefaultPolicy()
	strict.Version = "strict"
	strict.MarkBands[1].Min = 76
	strict.MarkBands[1].Letter = "A"
	l, err := ledger.New(f.store, f.cas, strict, ledger.Options{})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	if _, err := l.Recalculate(ctx, "operator", []string{"1001"}); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	r := f.result(t, "SSC_2024_1001")
	if r.GPA != 3.50 {
		t.Fatalf("GPA = %.2f, want 3.50 under the new policy", r.GPA)
	}
	marks, _ := f.store.Marks(ctx, "1001")
	if marks[0].Grade != "A-" {
		t.Fatalf("stored grade not updated: %+v", marks[0])
	}
}

func TestRefreshFingerprint_RestoresLostContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	out := f.write(t, "1001", "math", 85)
	id, _ := cidutil.Parse(out.Result.Fingerprint)
	f.cas.Delete(id)

	refreshed, err := f.ledger.RefreshFingerprint(ctx, "operator", "SSC_2024_1001")
	if err != nil {
		t.Fatalf("RefreshFingerprint: %v", err)
	}
	if refreshed.Result.Fingerprint != out.Result.Fingerprint {
		t.Fatalf("unchanged result should keep its fingerprint")
	}
	if !f.cas.Has(ctx, id) {
		t.Fatalf("content not restored")
	}
	if e := f.trail(t, "SSC_2024_1001")[0]; e.Kind != audit.KindHashUpdate {
		t.Fatalf("kind = %s", e.Kind)
	}
}

func TestRefreshSession_AllResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001", "1002")
	f.write(t, "1001", "math", 85)
	f.write(t, "1002", "math", 55)

	report, err := f.ledger.RefreshSession(ctx, "operator", "SSC", "2024")
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if fmt.Sprint(report.Succeeded) != "[SSC_2024_1001 SSC_2024_1002]" {
		t.Fatalf("report = %+v", report)
	}
}

func TestPublish_CancelledBetweenItems(t *testing.T) {
	f := newFixture(t, "1001", "1002", "1003")
	for _, key := range []string{"1001", "1002", "1003"} {
		f.write(t, key, "math", 90)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.cas.PutHook = func([]byte) error {
		cancel()
		return nil
	}

	report, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001", "SSC_2024_1002", "SSC_2024_1003"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if !report.Interrupted || fmt.Sprint(report.Completed) != "[SSC_2024_1001]" {
		t.Fatalf("report = %+v", report)
	}
	if !f.result(t, "SSC_2024_1001").Published {
		t.Fatalf("completed prefix not committed")
	}
	if f.result(t, "SSC_2024_1002").Published || f.result(t, "SSC_2024_1003").Published {
		t.Fatalf("ids after the interruption were touched")
	}
}

func TestFingerprintTimeoutIsStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)

	stall := make(chan struct{})
	defer close(stall)
	slow := &stallingCAS{CAS: f.cas, stall: stall}
	l, err := ledger.New(f.store, slow, nil, ledger.Options{FingerprintTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	_, err = l.WriteMark(ctx, "examiner", model.MarkInput{AttemptKey: "1001", SubjectID: "english", MarksObtained: 50})
	if !model.IsKind(err, model.KindStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
	marks, _ := f.store.Marks(ctx, "1001")
	if len(marks) != 2 {
		t.Fatalf("relational change lost on fingerprint timeout")
	}
}

func TestConcurrentMutationsKeepTrailConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001")
	f.write(t, "1001", "math", 85)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.ledger.WriteMark(ctx, "examiner", model.MarkInput{
				AttemptKey: "1001", SubjectID: "english", MarksObtained: float64(40 + i),
			})
			if err != nil {
				t.Errorf("WriteMark: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001"}); err != nil {
				t.Errorf("Publish: %v", err)
			}
		}()
	}
	wg.Wait()

	r := f.result(t, "SSC_2024_1001")
	latest := f.trail(t, "SSC_2024_1001")[0]
	if latest.After.Published != r.Published || audit.Deref(latest.NewFingerprint) != r.Fingerprint {
		t.Fatalf("latest entry %+v does not match final state %+v", latest.After, r)
	}
}

// heldLocker records which keys are held and every key ever locked.
type heldLocker struct {
	inner keylock.Locker

	mu     sync.Mutex
	held   map[string]int
	locked []string
}

func (h *heldLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlock, err := h.inner.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.held[key]++
	h.locked = append(h.locked, key)
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.held[key]--
		h.mu.Unlock()
		unlock()
	}, nil
}

func (h *heldLocker) isHeld(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.held[key] > 0
}

func TestMutationsCommitUnderAttemptLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001", "1002")
	locker := &heldLocker{inner: keylock.NewMap(), held: map[string]int{}}
	clock := &fakeClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	l, err := ledger.New(f.store, f.cas, grading.DefaultPolicy(), ledger.Options{Clock: clock.Now, Locker: locker})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}

	var want []string
	f.store.CommitHook = func() error {
		for _, key := range want {
			if !locker.isHeld(key) {
				t.Errorf("commit without holding lock for %s", key)
			}
		}
		return nil
	}

	want = []string{"1001"}
	if _, err := l.WriteMark(ctx, "examiner", model.MarkInput{AttemptKey: "1001", SubjectID: "math", MarksObtained: 70}); err != nil {
		t.Fatalf("WriteMark: %v", err)
	}
	want = []string{"1002"}
	if _, err := l.WriteMark(ctx, "examiner", model.MarkInput{AttemptKey: "1002", SubjectID: "math", MarksObtained: 55}); err != nil {
		t.Fatalf("WriteMark: %v", err)
	}
	want = []string{"1001", "1002"}
	if _, err := l.Publish(ctx, "controller", []string{"SSC_2024_1002", "SSC_2024_1001"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := l.Unpublish(ctx, "controller", []string{"SSC_2024_1001", "SSC_2024_1002"}); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	want = []string{"1001"}
	if _, err := l.Recalculate(ctx, "controller", []string{"1001"}); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if _, err := l.RefreshFingerprint(ctx, "operator", "SSC_2024_1001"); err != nil {
		t.Fatalf("RefreshFingerprint: %v", err)
	}
	want = []string{"1002"}
	if _, err := l.DeleteMark(ctx, "examiner", "1002", "math"); err != nil {
		t.Fatalf("DeleteMark: %v", err)
	}

	f.store.CommitHook = nil
	if locker.isHeld("1001") || locker.isHeld("1002") {
		t.Fatalf("locks leaked: %v", locker.held)
	}
	got := fmt.Sprint(locker.locked)
	if got != "[1001 1002 1001 1002 1001 1002 1001 1001 1002]" {
		t.Fatalf("lock sequence = %s", got)
	}
}

func TestPublish_RelationalFailureRollsBackBatchAfterPuts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1001", "1002")
	f.write(t, "1001", "math", 80)
	f.write(t, "1002", "math", 60)
	stored := f.cas.Len()
	entries := len(f.trail(t, "SSC_2024_1001"))

	f.store.CommitHook = func() error { return errors.New("connection reset") }
	if _, err := f.ledger.Publish(ctx, "controller", []string{"SSC_2024_1001", "SSC_2024_1002"}); err == nil {
		t.Fatalf("expected the relational error")
	}
	f.store.CommitHook = nil

	for _, id := range []string{"SSC_2024_1001", "SSC_2024_1002"} {
		if f.result(t, id).Published {
			t.Fatalf("%s published despite rollback", id)
		}
	}
	if got := len(f.trail(t, "SSC_2024_1001")); got != entries {
		t.Fatalf("trail grew to %d after rollback", got)
	}
	// Snapshots are written before the batch commits; unreferenced ones stay.
	if got := f.cas.Len(); got != stored+2 {
		t.Fatalf("stored snapshots = %d, want %d", got, stored+2)
	}
}

func TestActorRequired(t *testing.T) {
	f := newFixture(t, "1001")
	if _, err := f.ledger.Publish(context.Background(), " ", []string{"x"}); !model.IsKind(err, model.KindInvalid) {
		t.Fatalf("expected Invalid, got %v", err)
	}
}
