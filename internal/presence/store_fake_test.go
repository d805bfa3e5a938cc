package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

type rowKey struct {
	subject domain.SubjectID
	scope   domain.ScopeID
}

// fakeStore is an in-memory PresenceStore with fault injection knobs.
type fakeStore struct {
	mu   sync.Mutex
	rows map[rowKey]domain.PresenceRecord

	upserts int
	deletes int
	scans   int

	// failAll is returned by every operation when set.
	failAll error
	// rejectAttrs simulates columns the schema does not have.
	rejectAttrs map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[rowKey]domain.PresenceRecord)}
}

func (s *fakeStore) Upsert(_ context.Context, rec domain.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failAll != nil {
		return s.failAll
	}
	// Deterministic rejection order, like a column list in a schema.
	names := make([]string, 0, len(rec.Flags))
	for name := range rec.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s.rejectAttrs[name] {
			return &UnknownAttributeError{Name: name}
		}
	}
	s.rows[rowKey{rec.SubjectID, rec.ScopeID}] = rec
	return nil
}

func (s *fakeStore) Delete(_ context.Context, subject domain.SubjectID, scope domain.ScopeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failAll != nil {
		return s.failAll
	}
	if scope == "" {
		for k := range s.rows {
			if k.subject == subject {
				delete(s.rows, k)
			}
		}
		return nil
	}
	delete(s.rows, rowKey{subject, scope})
	return nil
}

func (s *fakeStore) Scan(_ context.Context, scope domain.ScopeID) ([]domain.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	if s.failAll != nil {
		return nil, s.failAll
	}
	var out []domain.PresenceRecord
	for k, rec := range s.rows {
		if k.scope == scope {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) row(subject domain.SubjectID, scope domain.ScopeID) (domain.PresenceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[rowKey{subject, scope}]
	return rec, ok
}

func (s *fakeStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}
