//go:build integration

package requests_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"peermesh/internal/requests"
	"peermesh/pkg/domain"
	"peermesh/pkg/platform/sentinel"
	"peermesh/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *requests.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetPostgres(s.T())
	s.Require().NoError(s.postgres.ApplySchema(s.ctx, requests.Schema))
	s.store = requests.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "local_requests"))
}

func (s *PostgresStoreSuite) localRequest(peer domain.Address, direction requests.Direction, status requests.Status) *requests.LocalRequest {
	id := domain.NewRequestID()
	return &requests.LocalRequest{
		ID:        id,
		Direction: direction,
		Peer:      peer,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Status:    status,
		Content: requests.Request{
			ID: &id,
			Items: []requests.RequestNode{
				&requests.RequestItem{Kind: requests.KindFreeText, Text: "hello", MustBeAccepted: true},
				&requests.RequestItemGroup{
					Title:          "identity",
					MustBeAccepted: true,
					Items: []*requests.RequestItem{
						{Kind: requests.KindConsent, Text: "terms", MustBeAccepted: true},
					},
				},
			},
		},
	}
}

func (s *PostgresStoreSuite) save(r *requests.LocalRequest) *requests.LocalRequest {
	s.Require().NoError(s.store.Save(s.ctx, r))
	return r
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	expiresAt := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	saved := s.localRequest("did:mesh:bob", requests.DirectionOutgoing, requests.StatusOpen)
	saved.Content.ExpiresAt = &expiresAt
	saved.Source = &requests.Source{Type: requests.SourceMessage, Reference: "msg-1", Incoming: false}
	s.save(saved)

	loaded, err := s.store.Get(s.ctx, saved.ID)
	s.Require().NoError(err)
	s.Equal(saved.ID, loaded.ID)
	s.Equal(requests.DirectionOutgoing, loaded.Direction)
	s.Equal(saved.Peer, loaded.Peer)
	s.Equal(requests.StatusOpen, loaded.Status)
	s.Require().NotNil(loaded.Content.ID)
	s.Equal(saved.ID, *loaded.Content.ID)
	s.Require().NotNil(loaded.Content.ExpiresAt)
	s.True(expiresAt.Equal(*loaded.Content.ExpiresAt))
	s.Require().NotNil(loaded.Source)
	s.Equal(*saved.Source, *loaded.Source)

	s.Run("item tree keeps its shape and kinds", func() {
		s.Require().Len(loaded.Content.Items, 2)
		item, ok := loaded.Content.Items[0].(*requests.RequestItem)
		s.Require().True(ok)
		s.Equal(requests.KindFreeText, item.Kind)
		s.True(item.MustBeAccepted)
		group, ok := loaded.Content.Items[1].(*requests.RequestItemGroup)
		s.Require().True(ok)
		s.Require().Len(group.Items, 1)
		s.Equal(requests.KindConsent, group.Items[0].Kind)
	})

	s.Run("unknown id returns not found", func() {
		_, err := s.store.Get(s.ctx, domain.NewRequestID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestResponseRoundTrip() {
	saved := s.localRequest("did:mesh:bob", requests.DirectionOutgoing, requests.StatusCompleted)
	attributeID := domain.NewAttributeID()
	saved.Response = &requests.ResponseSource{
		Response: requests.Response{
			RequestID: saved.ID,
			Items: []requests.ResponseNode{
				&requests.ResponseItem{
					Result:      requests.ResultAccepted,
					Accept:      requests.AcceptAttribute,
					AttributeID: &attributeID,
				},
				&requests.ResponseItemGroup{Items: []*requests.ResponseItem{
					{Result: requests.ResultRejected, Code: "error.consumption.requests.invalidRequestItem", Message: "nope"},
				}},
			},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Reference: "msg-2",
	}
	s.save(saved)

	loaded, err := s.store.Get(s.ctx, saved.ID)
	s.Require().NoError(err)
	s.Require().NotNil(loaded.Response)
	s.Equal("msg-2", loaded.Response.Reference)
	s.Equal(saved.ID, loaded.Response.Response.RequestID)
	s.Require().Len(loaded.Response.Response.Items, 2)
	item, ok := loaded.Response.Response.Items[0].(*requests.ResponseItem)
	s.Require().True(ok)
	s.Equal(requests.AcceptAttribute, item.Accept)
	s.Require().NotNil(item.AttributeID)
	s.Equal(attributeID, *item.AttributeID)
	group, ok := loaded.Response.Response.Items[1].(*requests.ResponseItemGroup)
	s.Require().True(ok)
	s.Require().Len(group.Items, 1)
	s.Equal(requests.ResultRejected, group.Items[0].Result)
}

func (s *PostgresStoreSuite) TestSaveIsUpsert() {
	saved := s.localRequest("did:mesh:bob", requests.DirectionOutgoing, requests.StatusDraft)
	s.save(saved)
	saved.Status = requests.StatusOpen
	saved.Source = &requests.Source{Type: requests.SourceMessage, Reference: "msg-1"}
	s.save(saved)

	loaded, err := s.store.Get(s.ctx, saved.ID)
	s.Require().NoError(err)
	s.Equal(requests.StatusOpen, loaded.Status)
	s.Require().NotNil(loaded.Source)

	result, err := s.store.List(s.ctx, requests.Filter{})
	s.Require().NoError(err)
	s.Len(result, 1)
}

func (s *PostgresStoreSuite) TestDelete() {
	saved := s.save(s.localRequest("did:mesh:bob", requests.DirectionOutgoing, requests.StatusDraft))
	s.Require().NoError(s.store.Delete(s.ctx, saved.ID))
	_, err := s.store.Get(s.ctx, saved.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Delete(s.ctx, saved.ID), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListFilters() {
	s.save(s.localRequest("did:mesh:bob", requests.DirectionOutgoing, requests.StatusDraft))
	open := s.save(s.localRequest("did:mesh:bob", requests.DirectionOutgoing, requests.StatusOpen))
	incoming := s.localRequest("did:mesh:carol", requests.DirectionIncoming, requests.StatusOpen)
	incoming.Source = &requests.Source{Type: requests.SourceMessage, Reference: "msg-1", Incoming: true}
	s.save(incoming)

	s.Run("by status set", func() {
		result, err := s.store.List(s.ctx, requests.Filter{Status: []requests.Status{requests.StatusOpen}})
		s.Require().NoError(err)
		s.Len(result, 2)
	})

	s.Run("by peer", func() {
		result, err := s.store.List(s.ctx, requests.Filter{Peer: "did:mesh:carol"})
		s.Require().NoError(err)
		s.Require().Len(result, 1)
		s.Equal(incoming.ID, result[0].ID)
	})

	s.Run("by direction", func() {
		result, err := s.store.List(s.ctx, requests.Filter{Direction: requests.DirectionOutgoing})
		s.Require().NoError(err)
		s.Len(result, 2)
	})

	s.Run("by source reference", func() {
		result, err := s.store.List(s.ctx, requests.Filter{SourceReference: "msg-1"})
		s.Require().NoError(err)
		s.Require().Len(result, 1)
		s.Equal(incoming.ID, result[0].ID)
	})

	s.Run("combined filters", func() {
		result, err := s.store.List(s.ctx, requests.Filter{
			Status:    []requests.Status{requests.StatusOpen},
			Direction: requests.DirectionOutgoing,
		})
		s.Require().NoError(err)
		s.Require().Len(result, 1)
		s.Equal(open.ID, result[0].ID)
	})

	s.Run("empty filter returns everything", func() {
		result, err := s.store.List(s.ctx, requests.Filter{})
		s.Require().NoError(err)
		s.Len(result, 3)
	})
}
