package relationships

import (
	"context"
	"sync"

	"peermesh/pkg/domain"
	"peermesh/pkg/platform/sentinel"
)

type Store interface {
	Save(ctx context.Context, relationship *Relationship) error
	Get(ctx context.Context, id domain.RelationshipID) (*Relationship, error)
	GetByPeer(ctx context.Context, peer domain.Address) (*Relationship, error)
}

// InMemoryStore keeps relationships in maps keyed by id and peer. One
// relationship per peer.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[domain.RelationshipID]*Relationship
	byPeer map[domain.Address]*Relationship
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[domain.RelationshipID]*Relationship),
		byPeer: make(map[domain.Address]*Relationship),
	}
}

func (s *InMemoryStore) Save(_ context.Context, relationship *Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *relationship
	s.byID[relationship.ID] = &copied
	s.byPeer[relationship.Peer] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.RelationshipID) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if relationship, ok := s.byID[id]; ok {
		copied := *relationship
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) GetByPeer(_ context.Context, peer domain.Address) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if relationship, ok := s.byPeer[peer]; ok {
		copied := *relationship
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}
