package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peermesh/internal/attributes"
	"peermesh/internal/attributes/metrics"
	"peermesh/internal/events"
	"peermesh/internal/notifications"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

const (
	alice = domain.Address("did:mesh:alice")
	bob   = domain.Address("did:mesh:bob")
	carol = domain.Address("did:mesh:carol")
)

// testMetrics is shared: promauto registers with the default registry and
// must only do so once per test binary.
var testMetrics = metrics.New()

type capturingDispatcher struct {
	sent []*notifications.Notification
}

func (d *capturingDispatcher) Dispatch(_ context.Context, notification *notifications.Notification) error {
	d.sent = append(d.sent, notification)
	return nil
}

func (d *capturingDispatcher) last() *notifications.Notification {
	if len(d.sent) == 0 {
		return nil
	}
	return d.sent[len(d.sent)-1]
}

func newTestService(address domain.Address) (*Service, *capturingDispatcher) {
	dispatcher := &capturingDispatcher{}
	svc := NewService(address, attributes.NewInMemoryStore(), dispatcher,
		events.NopPublisher{}, testMetrics, slog.New(slog.DiscardHandler))
	return svc, dispatcher
}

func givenName(value string) attributes.Value {
	return attributes.Value{Type: domain.ValueTypeGivenName, Value: value}
}

func TestCreateRepositoryAttribute(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(alice)

	t.Run("creates an identity fact owned by the local identity", func(t *testing.T) {
		attribute, err := svc.CreateRepositoryAttribute(ctx, CreateRepositoryAttributeParams{
			Value: givenName("Petra Pan"),
		})
		require.NoError(t, err)
		assert.Equal(t, attributes.RoleRepository, attribute.Role)
		assert.Equal(t, alice, attribute.Content.Owner)
		assert.Nil(t, attribute.ShareInfo)
		assert.True(t, attribute.IsLatest())
	})

	t.Run("complex value types decompose into children", func(t *testing.T) {
		parent, err := svc.CreateRepositoryAttribute(ctx, CreateRepositoryAttributeParams{
			Value: attributes.Value{Type: domain.ValueTypeStreetAddress, Value: "Heimstr. 42, 12345 Neverland"},
			Children: []attributes.Value{
				{Type: domain.ValueTypeStreet, Value: "Heimstr."},
				{Type: domain.ValueTypeHouseNumber, Value: "42"},
				{Type: domain.ValueTypeZipCode, Value: "12345"},
				{Type: domain.ValueTypeCity, Value: "Neverland"},
			},
		})
		require.NoError(t, err)

		children, err := svc.GetAttributes(ctx, attributes.Query{
			attributes.Eq(attributes.FieldParentID, parent.ID.String()),
		})
		require.NoError(t, err)
		assert.Len(t, children, 4)
	})

	t.Run("children on a simple value type are rejected", func(t *testing.T) {
		_, err := svc.CreateRepositoryAttribute(ctx, CreateRepositoryAttributeParams{
			Value:    givenName("Petra"),
			Children: []attributes.Value{{Type: domain.ValueTypeStreet, Value: "Heimstr."}},
		})
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
	})

	t.Run("child of a foreign value type is rejected", func(t *testing.T) {
		_, err := svc.CreateRepositoryAttribute(ctx, CreateRepositoryAttributeParams{
			Value:    attributes.Value{Type: domain.ValueTypeStreetAddress, Value: "somewhere"},
			Children: []attributes.Value{{Type: domain.ValueTypeGivenName, Value: "Petra"}},
		})
		require.Error(t, err)
	})
}

func TestShareRepositoryAttribute(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Service, *attributes.Attribute) {
		svc, _ := newTestService(alice)
		attribute, err := svc.CreateRepositoryAttribute(ctx, CreateRepositoryAttributeParams{
			Value: givenName("Petra Pan"),
		})
		require.NoError(t, err)
		return svc, attribute
	}

	t.Run("creates an own shared copy with provenance", func(t *testing.T) {
		svc, repo := setup(t)
		requestRef := domain.NewRequestID()
		copy, err := svc.ShareRepositoryAttribute(ctx, repo.ID, bob, requestRef, nil)
		require.NoError(t, err)
		assert.Equal(t, attributes.RoleOwnShared, copy.Role)
		assert.Equal(t, repo.Content, copy.Content)
		require.NotNil(t, copy.ShareInfo)
		assert.Equal(t, bob, copy.ShareInfo.Peer)
		require.NotNil(t, copy.ShareInfo.SourceAttribute)
		assert.Equal(t, repo.ID, *copy.ShareInfo.SourceAttribute)
		require.NotNil(t, copy.ShareInfo.RequestReference)
		assert.Equal(t, requestRef, *copy.ShareInfo.RequestReference)
		assert.Nil(t, copy.ShareInfo.NotificationReference)
	})

	t.Run("sharing twice with the same peer is rejected", func(t *testing.T) {
		svc, repo := setup(t)
		_, err := svc.ShareRepositoryAttribute(ctx, repo.ID, bob, domain.NewRequestID(), nil)
		require.NoError(t, err)

		_, err = svc.ShareRepositoryAttribute(ctx, repo.ID, bob, domain.NewRequestID(), nil)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, attributes.CodeAlreadySharedWithPeer))
	})

	t.Run("sharing any other version of the chain is rejected too", func(t *testing.T) {
		svc, repo := setup(t)
		_, err := svc.ShareRepositoryAttribute(ctx, repo.ID, bob, domain.NewRequestID(), nil)
		require.NoError(t, err)

		result, err := svc.SucceedRepositoryAttribute(ctx, repo.ID, givenName("Tina Turner"))
		require.NoError(t, err)

		_, err = svc.ShareRepositoryAttribute(ctx, result.Successor.ID, bob, domain.NewRequestID(), nil)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, attributes.CodeAlreadySharedWithPeer))
	})

	t.Run("sharing with a different peer succeeds independently", func(t *testing.T) {
		svc, repo := setup(t)
		_, err := svc.ShareRepositoryAttribute(ctx, repo.ID, bob, domain.NewRequestID(), nil)
		require.NoError(t, err)

		_, err = svc.ShareRepositoryAttribute(ctx, repo.ID, carol, domain.NewRequestID(), nil)
		require.NoError(t, err)
	})

	t.Run("sharing a shared copy is rejected", func(t *testing.T) {
		svc, repo := setup(t)
		copy, err := svc.ShareRepositoryAttribute(ctx, repo.ID, bob, domain.NewRequestID(), nil)
		require.NoError(t, err)

		_, err = svc.ShareRepositoryAttribute(ctx, copy.ID, carol, domain.NewRequestID(), nil)
		require.Error(t, err)
	})

	t.Run("unknown attribute fails with not found", func(t *testing.T) {
		svc, _ := newTestService(alice)
		_, err := svc.ShareRepositoryAttribute(ctx, domain.NewAttributeID(), bob, domain.NewRequestID(), nil)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
	})
}

func TestGetVersionsOfAttribute(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(alice)

	first, err := svc.CreateRepositoryAttribute(ctx, CreateRepositoryAttributeParams{
		Value: givenName("v1"),
	})
	require.NoError(t, err)
	second, err := svc.SucceedRepositoryAttribute(ctx, first.ID, givenName("v2"))
	require.NoError(t, err)
	third, err := svc.SucceedRepositoryAttribute(ctx, second.Successor.ID, givenName("v3"))
	require.NoError(t, err)

	t.Run("returns the full chain oldest first from any version", func(t *testing.T) {
		for _, id := range []domain.AttributeID{first.ID, second.Successor.ID, third.Successor.ID} {
			versions, err := svc.GetVersionsOfAttribute(ctx, id)
			require.NoError(t, err)
			require.Len(t, versions, 3)
			assert.Equal(t, "v1", versions[0].Content.Value.Value)
			assert.Equal(t, "v2", versions[1].Content.Value.Value)
			assert.Equal(t, "v3", versions[2].Content.Value.Value)
		}
	})

	t.Run("exactly one version has no successor", func(t *testing.T) {
		versions, err := svc.GetVersionsOfAttribute(ctx, first.ID)
		require.NoError(t, err)
		latest := 0
		for _, version := range versions {
			if version.IsLatest() {
				latest++
			}
		}
		assert.Equal(t, 1, latest)
	})
}

func TestCreateAndShareRelationshipAttribute(t *testing.T) {
	ctx := context.Background()

	params := CreateAndShareRelationshipAttributeParams{
		Key:   "customerId",
		Value: attributes.Value{Type: domain.ValueTypeProprietaryString, Value: "C-1"},
		Peer:  bob,
	}

	t.Run("creates the own shared copy and announces it", func(t *testing.T) {
		svc, dispatcher := newTestService(alice)
		attribute, notificationID, err := svc.CreateAndShareRelationshipAttribute(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, attributes.RoleOwnShared, attribute.Role)
		assert.Equal(t, attributes.KindRelationship, attribute.Content.Kind)
		assert.Equal(t, alice, attribute.Content.Owner)
		require.NotNil(t, attribute.ShareInfo)
		assert.Equal(t, bob, attribute.ShareInfo.Peer)
		require.NotNil(t, attribute.ShareInfo.NotificationReference)
		assert.Equal(t, notificationID, *attribute.ShareInfo.NotificationReference)

		notification := dispatcher.last()
		require.NotNil(t, notification)
		assert.Equal(t, notificationID, notification.ID)
		assert.Equal(t, bob, notification.Peer)
		require.Len(t, notification.Items, 1)
		assert.Equal(t, notifications.ItemShared, notification.Items[0].Kind)
		assert.Equal(t, attribute.ID, notification.Items[0].AttributeID)
	})

	t.Run("duplicate key for the same peer is rejected", func(t *testing.T) {
		svc, _ := newTestService(alice)
		_, _, err := svc.CreateAndShareRelationshipAttribute(ctx, params)
		require.NoError(t, err)

		_, _, err = svc.CreateAndShareRelationshipAttribute(ctx, params)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, attributes.CodeRelationshipAttributeKeyExists))
	})

	t.Run("missing peer is rejected", func(t *testing.T) {
		svc, _ := newTestService(alice)
		broken := params
		broken.Peer = ""
		_, _, err := svc.CreateAndShareRelationshipAttribute(ctx, broken)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
	})

	t.Run("the peer records its copy under the agreed id", func(t *testing.T) {
		sender, senderDispatcher := newTestService(alice)
		recipient, _ := newTestService(bob)

		attribute, notificationID, err := sender.CreateAndShareRelationshipAttribute(ctx, params)
		require.NoError(t, err)

		item := senderDispatcher.last().Items[0]
		require.NoError(t, recipient.ApplyPeerShared(ctx, alice, notificationID, item.AttributeID, *item.Content))

		copy, err := recipient.GetAttribute(ctx, attribute.ID)
		require.NoError(t, err)
		assert.Equal(t, attributes.RolePeerShared, copy.Role)
		assert.Equal(t, alice, copy.Content.Owner)
		require.NotNil(t, copy.ShareInfo)
		assert.Equal(t, alice, copy.ShareInfo.Peer)
		require.NotNil(t, copy.ShareInfo.NotificationReference)
		assert.Equal(t, notificationID, *copy.ShareInfo.NotificationReference)

		t.Run("applying the same share twice is rejected", func(t *testing.T) {
			err := recipient.ApplyPeerShared(ctx, alice, notificationID, item.AttributeID, *item.Content)
			require.Error(t, err)
			assert.True(t, derrors.HasCode(err, attributes.CodeRelationshipAttributeKeyExists))
		})
	})
}

func TestHasRelationshipAttribute(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(alice)
	requestRef := domain.NewRequestID()

	_, err := svc.CreateSharedCopy(ctx, CreateSharedCopyParams{
		Role: attributes.RoleOwnShared,
		Content: attributes.Content{
			Kind:  attributes.KindRelationship,
			Owner: alice,
			Value: attributes.Value{Type: domain.ValueTypeProprietaryString, Value: "gold"},
			Key:   "customerTier",
		},
		Peer:             bob,
		RequestReference: &requestRef,
	})
	require.NoError(t, err)

	exists, err := svc.HasRelationshipAttribute(ctx, alice, "customerTier", domain.ValueTypeProprietaryString, bob)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.HasRelationshipAttribute(ctx, alice, "otherKey", domain.ValueTypeProprietaryString, bob)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = svc.HasRelationshipAttribute(ctx, alice, "customerTier", domain.ValueTypeProprietaryString, carol)
	require.NoError(t, err)
	assert.False(t, exists)
}
