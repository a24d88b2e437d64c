// Package memstore is an in-process store.Store for tests and dry runs.
//
// Transactions work on a private copy of the state and swap it in on
// commit. One transaction runs at a time.
package memstore

import (
	"context"
	"sort"
	"sync"

	"xdao.co/resultledger/audit"
	"xdao.co/resultledger/model"
	"xdao.co/resultledger/store"
)

type state struct {
	subjects map[string]model.Subject
	attempts map[string]model.Attempt
	marks    map[string]map[string]model.Mark
	results  map[string]*model.Result
	revals   map[string]store.Revalidation
	trail    *audit.Memory
}

func newState() *state {
	return &state{
		subjects: map[string]model.Subject{},
		attempts: map[string]model.Attempt{},
		marks:    map[string]map[string]model.Mark{},
		results:  map[string]*model.Result{},
		revals:   map[string]store.Revalidation{},
		trail:    audit.NewMemory(),
	}
}

func (s *state) clone() *state {
	out := &state{
		subjects: make(map[string]model.Subject, len(s.subjects)),
		attempts: make(map[string]model.Attempt, len(s.attempts)),
		marks:    make(map[string]map[string]model.Mark, len(s.marks)),
		results:  make(map[string]*model.Result, len(s.results)),
		revals:   make(map[string]store.Revalidation, len(s.revals)),
		trail:    s.trail.Clone(),
	}
	for k, v := range s.subjects {
		out.subjects[k] = v
	}
	for k, v := range s.attempts {
		out.attempts[k] = v
	}
	for k, v := range s.marks {
		m := make(map[string]model.Mark, len(v))
		for sk, sv := range v {
			m[sk] = sv
		}
		out.marks[k] = m
	}
	for k, v := range s.results {
		out.results[k] = v.Clone()
	}
	for k, v := range s.revals {
		out.revals[k] = v
	}
	return out
}

// Store is safe for concurrent use.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	cur  *state

	// CommitHook, when set, runs before a transaction is swapped in; a
	// non-nil error aborts the commit.
	CommitHook func() error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{cur: newState()}
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.snapshot().clone()
	if err := fn(&tx{view{work}}); err != nil {
		return err
	}
	if s.CommitHook != nil {
		if err := s.CommitHook(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cur = work
	s.mu.Unlock()
	return nil
}

func (s *Store) Subject(ctx context.Context, id string) (model.Subject, error) {
	return s.view().Subject(ctx, id)
}

func (s *Store) Subjects(ctx context.Context) (map[string]model.Subject, error) {
	return s.view().Subjects(ctx)
}

func (s *Store) Attempt(ctx context.Context, key string) (model.Attempt, error) {
	return s.view().Attempt(ctx, key)
}

func (s *Store) AttemptByRegistration(ctx context.Context, reg, exam, session string) (model.Attempt, error) {
	return s.view().AttemptByRegistration(ctx, reg, exam, session)
}

func (s *Store) Marks(ctx context.Context, key string) ([]model.Mark, error) {
	return s.view().Marks(ctx, key)
}

func (s *Store) Result(ctx context.Context, id string) (*model.Result, error) {
	return s.view().Result(ctx, id)
}

func (s *Store) ResultsBySession(ctx context.Context, exam, session string) ([]*model.Result, error) {
	return s.view().ResultsBySession(ctx, exam, session)
}

func (s *Store) Revalidation(ctx context.Context, id string) (store.Revalidation, error) {
	return s.view().Revalidation(ctx, id)
}

func (s *Store) ListFor(ctx context.Context, resultID string) ([]audit.Entry, error) {
	return s.view().ListFor(ctx, resultID)
}

// view reads a committed state. Committed states are never mutated, so no
// lock is held while reading one.
func (s *Store) view() view {
	return view{s.snapshot()}
}

type view struct{ st *state }

func (v view) Subject(_ context.Context, id string) (model.Subject, error) {
	sub, ok := v.st.subjects[id]
	if !ok {
		return model.Subject{}, model.Errorf(model.KindNotFound, id, "subject not found")
	}
	return sub, nil
}

func (v view) Subjects(context.Context) (map[string]model.Subject, error) {
	out := make(map[string]model.Subject, len(v.st.subjects))
	for k, sub := range v.st.subjects {
		out[k] = sub
	}
	return out, nil
}

func (v view) Attempt(_ context.Context, key string) (model.Attempt, error) {
	a, ok := v.st.attempts[key]
	if !ok {
		return model.Attempt{}, model.Errorf(model.KindNotFound, key, "attempt not found")
	}
	return a, nil
}

func (v view) AttemptByRegistration(_ context.Context, reg, exam, session string) (model.Attempt, error) {
	keys := make([]string, 0, len(v.st.attempts))
	for k := range v.st.attempts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a := v.st.attempts[k]
		if a.Student.RegistrationNumber == reg && a.ExamName == exam && a.Session == session {
			return a, nil
		}
	}
	return model.Attempt{}, model.Errorf(model.KindNotFound, reg, "no attempt for registration in %s %s", exam, session)
}

func (v view) Marks(_ context.Context, key string) ([]model.Mark, error) {
	src := v.st.marks[key]
	out := make([]model.Mark, 0, len(src))
	for _, m := range src {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

func (v view) Result(_ context.Context, id string) (*model.Result, error) {
	r, ok := v.st.results[id]
	if !ok {
		return nil, model.Errorf(model.KindNotFound, id, "result not found")
	}
	return r.Clone(), nil
}

func (v view) ResultsBySession(_ context.Context, exam, session string) ([]*model.Result, error) {
	var out []*model.Result
	for _, r := range v.st.results {
		if r.ExamName == exam && r.Session == session {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v view) Revalidation(_ context.Context, id string) (store.Revalidation, error) {
	r, ok := v.st.revals[id]
	if !ok {
		return store.Revalidation{}, model.Errorf(model.KindNotFound, id, "revalidation request not found")
	}
	return r, nil
}

func (v view) ListFor(ctx context.Context, resultID string) ([]audit.Entry, error) {
	return v.st.trail.ListFor(ctx, resultID)
}

type tx struct{ view }

func (t *tx) PutSubject(_ context.Context, sub model.Subject) error {
	t.st.subjects[sub.ID] = sub
	return nil
}

func (t *tx) PutAttempt(_ context.Context, a model.Attempt) error {
	t.st.attempts[a.Key] = a
	return nil
}

func (t *tx) UpsertMark(_ context.Context, m model.Mark) error {
	byKey := t.st.marks[m.AttemptKey]
	if byKey == nil {
		byKey = map[string]model.Mark{}
		t.st.marks[m.AttemptKey] = byKey
	}
	if prev, ok := byKey[m.SubjectID]; ok {
		m.CreatedAt = prev.CreatedAt
	}
	byKey[m.SubjectID] = m
	return nil
}

func (t *tx) DeleteMark(_ context.Context, key, subjectID string) error {
	if _, ok := t.st.marks[key][subjectID]; !ok {
		return model.Errorf(model.KindNotFound, key, "no mark for subject %s", subjectID)
	}
	delete(t.st.marks[key], subjectID)
	return nil
}

func (t *tx) PutResult(_ context.Context, r *model.Result) error {
	t.st.results[r.ID] = r.Clone()
	return nil
}

func (t *tx) PutRevalidation(_ context.Context, r store.Revalidation) error {
	t.st.revals[r.ID] = r
	return nil
}

func (t *tx) Record(ctx context.Context, e audit.Entry) error {
	return t.st.trail.Record(ctx, e)
}
