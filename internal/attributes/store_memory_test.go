package attributes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"peermesh/pkg/domain"
	"peermesh/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) save(a *Attribute) *Attribute {
	s.Require().NoError(s.store.Save(s.ctx, a))
	return a
}

func (s *InMemoryStoreSuite) sharedWith(peer domain.Address, valueType domain.ValueType, value string) *Attribute {
	requestRef := domain.NewRequestID()
	source := domain.NewAttributeID()
	return &Attribute{
		ID:   domain.NewAttributeID(),
		Role: RoleOwnShared,
		Content: Content{
			Kind:  KindIdentity,
			Owner: "did:mesh:alice",
			Value: Value{Type: valueType, Value: value},
		},
		CreatedAt: time.Now(),
		ShareInfo: &ShareInfo{
			Peer:             peer,
			RequestReference: &requestRef,
			SharedAt:         time.Now(),
			SourceAttribute:  &source,
		},
	}
}

func (s *InMemoryStoreSuite) TestGet() {
	s.Run("returns saved attribute", func() {
		saved := s.save(repositoryAttribute())
		loaded, err := s.store.Get(s.ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal(saved.ID, loaded.ID)
		s.Equal(saved.Content, loaded.Content)
	})

	s.Run("unknown id returns not found", func() {
		_, err := s.store.Get(s.ctx, domain.NewAttributeID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned attribute is a copy", func() {
		saved := s.save(repositoryAttribute())
		loaded, err := s.store.Get(s.ctx, saved.ID)
		s.Require().NoError(err)
		loaded.Content.Value.Value = "mutated"
		reloaded, err := s.store.Get(s.ctx, saved.ID)
		s.Require().NoError(err)
		s.NotEqual("mutated", reloaded.Content.Value.Value)
	})

	s.Run("share info of a returned copy is not aliased with the store", func() {
		saved := s.save(s.sharedWith("did:mesh:dave", domain.ValueTypeGivenName, "Petra"))
		loaded, err := s.store.Get(s.ctx, saved.ID)
		s.Require().NoError(err)
		loaded.ShareInfo.DeletionInfo = &DeletionInfo{Status: DeletionRequestSent, Date: time.Now()}
		reloaded, err := s.store.Get(s.ctx, saved.ID)
		s.Require().NoError(err)
		s.Nil(reloaded.ShareInfo.DeletionInfo)
	})

	s.Run("mutating the saved attribute does not reach the store", func() {
		saved := s.save(s.sharedWith("did:mesh:dave", domain.ValueTypeSurname, "Pan"))
		saved.ShareInfo.DeletionInfo = &DeletionInfo{Status: DeletionRequestSent, Date: time.Now()}
		reloaded, err := s.store.Get(s.ctx, saved.ID)
		s.Require().NoError(err)
		s.Nil(reloaded.ShareInfo.DeletionInfo)
	})
}

func (s *InMemoryStoreSuite) TestDelete() {
	saved := s.save(repositoryAttribute())
	s.Require().NoError(s.store.Delete(s.ctx, saved.ID))
	_, err := s.store.Get(s.ctx, saved.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Run("deleting twice returns not found", func() {
		s.Require().ErrorIs(s.store.Delete(s.ctx, saved.ID), sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestListQueries() {
	repo := s.save(repositoryAttribute())
	bobShare := s.save(s.sharedWith("did:mesh:bob", domain.ValueTypeGivenName, "Petra"))
	carolShare := s.save(s.sharedWith("did:mesh:carol", domain.ValueTypeSurname, "Pan"))

	deleted := s.sharedWith("did:mesh:bob", domain.ValueTypeSurname, "Pan")
	deleted.ShareInfo.DeletionInfo = &DeletionInfo{Status: DeletionRequestSent, Date: time.Now()}
	s.save(deleted)

	s.Run("equality on peer", func() {
		result, err := s.store.List(s.ctx, Query{Eq(FieldPeer, "did:mesh:bob")})
		s.Require().NoError(err)
		s.Len(result, 2)
	})

	s.Run("set membership on value type", func() {
		result, err := s.store.List(s.ctx, Query{
			In(FieldValueType, "GivenName", "Surname"),
			Eq(FieldRole, string(RoleOwnShared)),
		})
		s.Require().NoError(err)
		s.Len(result, 3)
	})

	s.Run("absence of deletion status", func() {
		result, err := s.store.List(s.ctx, Query{
			Eq(FieldPeer, "did:mesh:bob"),
			Absent(FieldDeletionStatus),
		})
		s.Require().NoError(err)
		s.Require().Len(result, 1)
		s.Equal(bobShare.ID, result[0].ID)
	})

	s.Run("negated set membership", func() {
		result, err := s.store.List(s.ctx, Query{
			NotIn(FieldPeer, "did:mesh:bob"),
		})
		s.Require().NoError(err)
		s.Require().Len(result, 1)
		s.Equal(carolShare.ID, result[0].ID)
	})

	s.Run("conjunction across fields", func() {
		result, err := s.store.List(s.ctx, Query{
			Eq(FieldRole, string(RoleRepository)),
			Eq(FieldValueType, "GivenName"),
		})
		s.Require().NoError(err)
		s.Require().Len(result, 1)
		s.Equal(repo.ID, result[0].ID)
	})

	s.Run("empty query returns everything", func() {
		result, err := s.store.List(s.ctx, Query{})
		s.Require().NoError(err)
		s.Len(result, 4)
	})
}
