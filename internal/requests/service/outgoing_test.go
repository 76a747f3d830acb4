package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peermesh/internal/attributes"
	attrmetrics "peermesh/internal/attributes/metrics"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/events"
	"peermesh/internal/notifications"
	"peermesh/internal/requests"
	"peermesh/internal/requests/metrics"
	"peermesh/internal/requests/processors"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

const (
	alice = domain.Address("did:mesh:alice")
	bob   = domain.Address("did:mesh:bob")
	carol = domain.Address("did:mesh:carol")
)

// Metrics register with the default registry, once per test binary.
var (
	testRequestMetrics = metrics.New()
	testAttrMetrics    = attrmetrics.New()
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, *notifications.Notification) error { return nil }

// identity bundles everything one side of a negotiation needs.
type identity struct {
	address  domain.Address
	attrs    *attrservice.Service
	outgoing *OutgoingController
	incoming *IncomingController
}

func newIdentity(address domain.Address) *identity {
	logger := slog.New(slog.DiscardHandler)
	attrs := attrservice.NewService(address, attributes.NewInMemoryStore(), nopDispatcher{},
		events.NopPublisher{}, testAttrMetrics, logger)
	outgoing, incoming := NewControllers(address, requests.NewInMemoryStore(),
		processors.NewRegistry(attrs), events.NopPublisher{}, testRequestMetrics, logger)
	return &identity{address: address, attrs: attrs, outgoing: outgoing, incoming: incoming}
}

func freeTextRequest() requests.Request {
	return requests.Request{Items: []requests.RequestNode{
		&requests.RequestItem{Kind: requests.KindFreeText, Text: "hello", MustBeAccepted: true},
	}}
}

func acceptedFreeTextResponse(id domain.RequestID) requests.ResponseSource {
	return requests.ResponseSource{
		Response: requests.Response{
			RequestID: id,
			Items:     []requests.ResponseNode{requests.AcceptedItem()},
		},
		CreatedAt: time.Now(),
	}
}

func messageSource(reference string) requests.Source {
	return requests.Source{Type: requests.SourceMessage, Reference: reference}
}

func TestOutgoingLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("draft to open to completed", func(t *testing.T) {
		me := newIdentity(alice)
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: freeTextRequest()})
		require.NoError(t, err)
		assert.Equal(t, requests.StatusDraft, created.Status)
		assert.Equal(t, requests.DirectionOutgoing, created.Direction)

		sent, err := me.outgoing.Sent(ctx, created.ID, messageSource("msg-1"))
		require.NoError(t, err)
		assert.Equal(t, requests.StatusOpen, sent.Status)

		completed, err := me.outgoing.Complete(ctx, created.ID, acceptedFreeTextResponse(created.ID))
		require.NoError(t, err)
		assert.Equal(t, requests.StatusCompleted, completed.Status)
		require.NotNil(t, completed.Response)
	})

	t.Run("a draft can be sent at most once", func(t *testing.T) {
		me := newIdentity(alice)
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: freeTextRequest()})
		require.NoError(t, err)
		_, err = me.outgoing.Sent(ctx, created.ID, messageSource("msg-1"))
		require.NoError(t, err)

		_, err = me.outgoing.Sent(ctx, created.ID, messageSource("msg-2"))
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, requests.CodeWrongRequestStatus))
		assert.Contains(t, err.Error(), "Local Request has to be in status 'Draft'.")
	})

	t.Run("completing twice fails naming the required status", func(t *testing.T) {
		me := newIdentity(alice)
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: freeTextRequest()})
		require.NoError(t, err)
		_, err = me.outgoing.Sent(ctx, created.ID, messageSource("msg-1"))
		require.NoError(t, err)
		_, err = me.outgoing.Complete(ctx, created.ID, acceptedFreeTextResponse(created.ID))
		require.NoError(t, err)

		_, err = me.outgoing.Complete(ctx, created.ID, acceptedFreeTextResponse(created.ID))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Local Request has to be in status 'Open/Expired'.")
	})

	t.Run("sending requires a concrete outgoing source", func(t *testing.T) {
		me := newIdentity(alice)
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: freeTextRequest()})
		require.NoError(t, err)

		_, err = me.outgoing.Sent(ctx, created.ID, requests.Source{Type: requests.SourceMessage})
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, requests.CodeInvalidSource))

		incoming := messageSource("msg-1")
		incoming.Incoming = true
		_, err = me.outgoing.Sent(ctx, created.ID, incoming)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, requests.CodeInvalidSource))
	})

	t.Run("unknown id fails with not found", func(t *testing.T) {
		me := newIdentity(alice)
		_, err := me.outgoing.GetRequest(ctx, domain.NewRequestID())
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
	})
}

func TestOutgoingCanCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("self addressed requests are rejected", func(t *testing.T) {
		me := newIdentity(alice)
		result, err := me.outgoing.CanCreate(ctx, CreateParams{Peer: alice, Content: freeTextRequest()})
		require.NoError(t, err)
		require.True(t, result.IsError())
		assert.Equal(t, CodeSelfAddressed, result.Code)
	})

	t.Run("a past expiration date is rejected", func(t *testing.T) {
		me := newIdentity(alice)
		expired := time.Now().Add(-time.Hour)
		content := freeTextRequest()
		content.ExpiresAt = &expired
		result, err := me.outgoing.CanCreate(ctx, CreateParams{Peer: bob, Content: content})
		require.NoError(t, err)
		require.True(t, result.IsError())
		assert.Equal(t, requests.CodeRequestExpired, result.Code)
	})

	t.Run("item errors surface index aligned", func(t *testing.T) {
		me := newIdentity(alice)
		content := requests.Request{Items: []requests.RequestNode{
			&requests.RequestItem{Kind: requests.KindFreeText, Text: "fine"},
			&requests.RequestItem{Kind: requests.KindCreateAttribute, Attribute: &attributes.Content{
				Kind:  attributes.KindIdentity,
				Owner: carol,
				Value: attributes.Value{Type: domain.ValueTypeGivenName, Value: "Petra"},
			}},
		}}
		result, err := me.outgoing.CanCreate(ctx, CreateParams{Peer: bob, Content: content})
		require.NoError(t, err)
		require.True(t, result.IsError())
		assert.Equal(t, requests.CodeInheritedFromItem, result.Code)
		require.Len(t, result.Items, 2)
		assert.True(t, result.Items[0].IsSuccess())
		assert.Equal(t, requests.CodeInvalidRequestItem, result.Items[1].Code)
	})

	t.Run("creating with item errors throws the pre-flight hint", func(t *testing.T) {
		me := newIdentity(alice)
		content := requests.Request{Items: []requests.RequestNode{
			&requests.RequestItem{Kind: requests.KindCreateAttribute, Attribute: &attributes.Content{
				Kind:  attributes.KindIdentity,
				Owner: carol,
				Value: attributes.Value{Type: domain.ValueTypeGivenName, Value: "Petra"},
			}},
		}}
		_, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: content})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Some child items have errors. Call canCreate to get more information.")
	})
}

func relationshipItem(owner domain.Address, key string) *requests.RequestItem {
	return &requests.RequestItem{
		Kind: requests.KindCreateAttribute,
		Attribute: &attributes.Content{
			Kind:  attributes.KindRelationship,
			Owner: owner,
			Value: attributes.Value{Type: domain.ValueTypeProprietaryString, Value: "gold"},
			Key:   key,
		},
	}
}

func TestOutgoingKeyUniqueness(t *testing.T) {
	ctx := context.Background()

	t.Run("two items with the same owner, key and value type are rejected", func(t *testing.T) {
		me := newIdentity(alice)
		content := requests.Request{Items: []requests.RequestNode{
			relationshipItem(bob, "customerTier"),
			relationshipItem(bob, "customerTier"),
		}}
		result, err := me.outgoing.CanCreate(ctx, CreateParams{Peer: bob, Content: content})
		require.NoError(t, err)
		require.True(t, result.IsError())
		assert.Equal(t, processors.CodeKeyUniqueness, result.Code)
	})

	t.Run("a different key makes it pass", func(t *testing.T) {
		me := newIdentity(alice)
		content := requests.Request{Items: []requests.RequestNode{
			relationshipItem(bob, "customerTier"),
			relationshipItem(bob, "supportTier"),
		}}
		result, err := me.outgoing.CanCreate(ctx, CreateParams{Peer: bob, Content: content})
		require.NoError(t, err)
		assert.True(t, result.IsSuccess())
	})

	t.Run("a different owner makes it pass", func(t *testing.T) {
		me := newIdentity(alice)
		content := requests.Request{Items: []requests.RequestNode{
			relationshipItem(alice, "customerTier"),
			relationshipItem(bob, "customerTier"),
		}}
		result, err := me.outgoing.CanCreate(ctx, CreateParams{Peer: bob, Content: content})
		require.NoError(t, err)
		assert.True(t, result.IsSuccess())
	})

	t.Run("an already persisted attribute blocks the item", func(t *testing.T) {
		me := newIdentity(alice)
		requestRef := domain.NewRequestID()
		_, err := me.attrs.CreateSharedCopy(ctx, attrservice.CreateSharedCopyParams{
			Role: attributes.RoleOwnShared,
			Content: attributes.Content{
				Kind:  attributes.KindRelationship,
				Owner: bob,
				Value: attributes.Value{Type: domain.ValueTypeProprietaryString, Value: "gold"},
				Key:   "customerTier",
			},
			Peer:             bob,
			RequestReference: &requestRef,
		})
		require.NoError(t, err)

		content := requests.Request{Items: []requests.RequestNode{relationshipItem(bob, "customerTier")}}
		result, err := me.outgoing.CanCreate(ctx, CreateParams{Peer: bob, Content: content})
		require.NoError(t, err)
		require.True(t, result.IsError())
		assert.Equal(t, processors.CodeKeyUniqueness, result.Items[0].Code)
	})
}

func TestOutgoingLazyExpiry(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*identity, *requests.LocalRequest, time.Time) {
		me := newIdentity(alice)
		expires := time.Now().Add(time.Hour)
		content := freeTextRequest()
		content.ExpiresAt = &expires
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: content})
		require.NoError(t, err)
		_, err = me.outgoing.Sent(ctx, created.ID, messageSource("msg-1"))
		require.NoError(t, err)
		return me, created, expires
	}

	t.Run("reading past the deadline expires and persists", func(t *testing.T) {
		me, created, expires := setup(t)
		me.outgoing.now = func() time.Time { return expires.Add(time.Minute) }

		loaded, err := me.outgoing.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, requests.StatusExpired, loaded.Status)

		// The upgrade is persisted, not recomputed per read.
		me.outgoing.now = func() time.Time { return expires.Add(-time.Minute) }
		reloaded, err := me.outgoing.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, requests.StatusExpired, reloaded.Status)
	})

	t.Run("requests without a deadline never expire", func(t *testing.T) {
		me := newIdentity(alice)
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: freeTextRequest()})
		require.NoError(t, err)
		me.outgoing.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

		loaded, err := me.outgoing.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, requests.StatusDraft, loaded.Status)
	})

	t.Run("an expired request completes with a response from before the deadline", func(t *testing.T) {
		me, created, expires := setup(t)
		me.outgoing.now = func() time.Time { return expires.Add(time.Minute) }

		response := acceptedFreeTextResponse(created.ID)
		response.CreatedAt = expires.Add(-time.Minute)
		completed, err := me.outgoing.Complete(ctx, created.ID, response)
		require.NoError(t, err)
		assert.Equal(t, requests.StatusCompleted, completed.Status)
	})

	t.Run("a response created after the deadline is rejected", func(t *testing.T) {
		me, created, expires := setup(t)
		me.outgoing.now = func() time.Time { return expires.Add(time.Minute) }

		response := acceptedFreeTextResponse(created.ID)
		response.CreatedAt = expires.Add(time.Minute)
		_, err := me.outgoing.Complete(ctx, created.ID, response)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, requests.CodeRequestExpired))
	})
}

func TestOutgoingDiscard(t *testing.T) {
	ctx := context.Background()

	t.Run("drafts can be discarded", func(t *testing.T) {
		me := newIdentity(alice)
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: freeTextRequest()})
		require.NoError(t, err)
		require.NoError(t, me.outgoing.Discard(ctx, created.ID))

		_, err = me.outgoing.GetRequest(ctx, created.ID)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
	})

	t.Run("sent requests cannot be discarded", func(t *testing.T) {
		me := newIdentity(alice)
		created, err := me.outgoing.Create(ctx, CreateParams{Peer: bob, Content: freeTextRequest()})
		require.NoError(t, err)
		_, err = me.outgoing.Sent(ctx, created.ID, messageSource("msg-1"))
		require.NoError(t, err)

		err = me.outgoing.Discard(ctx, created.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Local Request has to be in status 'Draft'.")
	})
}

func TestCreateFromRelationshipTemplateResponse(t *testing.T) {
	ctx := context.Background()
	me := newIdentity(alice)

	requestID := domain.NewRequestID()
	params := TemplateResponseParams{
		Peer:    bob,
		Content: freeTextRequest(),
		Source:  requests.Source{Type: requests.SourceRelationshipTemplate, Reference: "tpl-1"},
		Response: requests.ResponseSource{
			Response: requests.Response{
				RequestID: requestID,
				Items:     []requests.ResponseNode{requests.AcceptedItem()},
			},
			CreatedAt: time.Now(),
		},
	}
	created, err := me.outgoing.CreateFromRelationshipTemplateResponse(ctx, params)
	require.NoError(t, err)

	// The local request takes the id embedded in the response.
	assert.Equal(t, requestID, created.ID)
	assert.Equal(t, requests.StatusCompleted, created.Status)
	require.NotNil(t, created.Response)
	require.NotNil(t, created.Source)
	assert.Equal(t, requests.SourceRelationshipTemplate, created.Source.Type)
}
