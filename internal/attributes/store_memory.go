package attributes

import (
	"context"
	"sort"
	"sync"

	"peermesh/pkg/domain"
	"peermesh/pkg/platform/sentinel"
)

// InMemoryStore keeps attributes in a map. It intentionally favors clarity
// over performance and is the reference implementation for the query
// semantics.
type InMemoryStore struct {
	mu         sync.RWMutex
	attributes map[domain.AttributeID]*Attribute
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attributes: make(map[domain.AttributeID]*Attribute)}
}

func (s *InMemoryStore) Save(_ context.Context, attribute *Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[attribute.ID] = attribute.clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.AttributeID) (*Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if attribute, ok := s.attributes[id]; ok {
		return attribute.clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.AttributeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attributes[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.attributes, id)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, query Query) ([]*Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Attribute
	for _, attribute := range s.attributes {
		if query.Matches(attribute) {
			result = append(result, attribute.clone())
		}
	}
	// Deterministic order: creation time, then id.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
