package requests

import (
	"context"
	"sort"
	"sync"

	"peermesh/pkg/domain"
	"peermesh/pkg/platform/sentinel"
)

// InMemoryStore keeps local requests in a map, returning copies so callers
// cannot mutate stored state behind the engine's back.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.RequestID]*LocalRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[domain.RequestID]*LocalRequest)}
}

func (s *InMemoryStore) Save(_ context.Context, request *LocalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.ID] = request.clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.RequestID) (*LocalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if request, ok := s.requests[id]; ok {
		return request.clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.requests, id)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*LocalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*LocalRequest
	for _, request := range s.requests {
		if filter.Matches(request) {
			result = append(result, request.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
