package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/okian/broutes/internal/domain/model"
)

const defaultCapacity = 256

// MemoryStore is an in-memory Store safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]model.Outcome
	capacity int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	s.byID = make(map[string]model.Outcome, s.capacity)
	return s
}

func (s *MemoryStore) Put(_ context.Context, o model.Outcome) error {
	if o.JobID == "" {
		return ErrMissingJobID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[o.JobID] = o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[jobID]
	if !ok {
		return model.Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return o, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]model.Outcome, error) {
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, f.Limit)
	}

	s.mu.RLock()
	out := make([]model.Outcome, 0, len(s.byID))
	for _, o := range s.byID {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Route != "" && o.Route != f.Route {
			continue
		}
		out = append(out, o)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Outcome) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.JobID, b.JobID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Summary(_ context.Context) model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := model.Summary{ByStatus: make(map[string]int)}
	for _, o := range s.byID {
		sum.Add(o)
	}
	return sum
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *MemoryStore) Reset(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]model.Outcome, s.capacity)
}
