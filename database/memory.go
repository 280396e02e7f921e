package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"opsconsole-backend/workflow"
)

// MemoryStore is a process-local Store. Every method works on deep copies so
// callers never share state with the stored records.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[workflow.Kind]map[string]*workflow.Request
	active  map[workflow.RateKey]string
}

func NewMemoryStore() *MemoryStore {
	records := make(map[workflow.Kind]map[string]*workflow.Request, len(workflow.Kinds))
	for _, k := range workflow.Kinds {
		records[k] = make(map[string]*workflow.Request)
	}
	return &MemoryStore{records: records, active: make(map[workflow.RateKey]string)}
}

func (s *MemoryStore) Create(_ context.Context, r *workflow.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.records[r.Kind]
	if !ok {
		return fmt.Errorf("no collection for kind %q", r.Kind)
	}
	if _, exists := byID[r.ID]; exists {
		return fmt.Errorf("%s request %s already exists", r.Kind, r.ID)
	}
	byID[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, kind workflow.Kind, id string) (*workflow.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[kind][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", workflow.ErrNotFound, kind, id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ConditionalUpdate(_ context.Context, kind workflow.Kind, id string, expected workflow.State, m workflow.Mutation) (*workflow.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[kind][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", workflow.ErrNotFound, kind, id)
	}
	if current.Status != expected {
		return nil, fmt.Errorf("%w: %s request %s is %s, expected %s", workflow.ErrConflict, kind, id, current.Status, expected)
	}
	next := current.Clone()
	pub, err := m(next)
	if err != nil {
		return nil, err
	}
	if len(next.StageNotes) < len(current.StageNotes) {
		return nil, errors.New("stage notes may only grow")
	}
	if pub != nil {
		s.upsertLocked(pub)
	}
	s.records[kind][id] = next.Clone()
	return next, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p *workflow.Publication) (*workflow.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(p).Clone(), nil
}

func (s *MemoryStore) upsertLocked(p *workflow.Publication) *workflow.Request {
	rates := s.records[workflow.KindRateUpdate]
	key := p.Key()
	var existing *workflow.Request
	if id, ok := s.active[key]; ok {
		existing = rates[id]
	}
	next := p.Apply(existing)
	rates[next.ID] = next
	s.active[key] = next.ID
	return next
}

func (s *MemoryStore) Query(_ context.Context, kind workflow.Kind, f workflow.Filter) ([]*workflow.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Request, 0)
	for _, r := range s.records[kind] {
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*workflow.Request{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

var _ workflow.Store = (*MemoryStore)(nil)
