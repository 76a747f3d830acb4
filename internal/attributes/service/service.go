// Package service implements the attribute lifecycle: creation, sharing,
// succession and cooperative deletion. It is strictly sequential business
// logic over the store; callers serialize access per identity.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"peermesh/internal/attributes"
	"peermesh/internal/attributes/metrics"
	"peermesh/internal/events"
	"peermesh/internal/notifications"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
	"peermesh/pkg/platform/sentinel"
)

var tracer = otel.Tracer("peermesh/internal/attributes/service")

// NotificationDispatcher hands outbound notifications to the notification
// outbox. Declared here so tests can capture notifications without wiring
// the full outbox.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification *notifications.Notification) error
}

type Service struct {
	address    domain.Address
	store      attributes.Store
	dispatcher NotificationDispatcher
	publisher  events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(address domain.Address, store attributes.Store, dispatcher NotificationDispatcher,
	publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		address:    address,
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Address returns the local identity's address.
func (s *Service) Address() domain.Address { return s.address }

// CreateRepositoryAttributeParams carries the content of a new repository
// attribute plus, for complex value types, the child values it decomposes
// into.
type CreateRepositoryAttributeParams struct {
	Value    attributes.Value
	Children []attributes.Value
}

// CreateRepositoryAttribute creates a local identity fact owned by this
// identity. Complex value types decompose into child attributes linked via
// ParentID.
func (s *Service) CreateRepositoryAttribute(ctx context.Context, params CreateRepositoryAttributeParams) (*attributes.Attribute, error) {
	ctx, span := tracer.Start(ctx, "attributes.CreateRepositoryAttribute")
	defer span.End()

	attribute := &attributes.Attribute{
		ID:   domain.NewAttributeID(),
		Role: attributes.RoleRepository,
		Content: attributes.Content{
			Kind:  attributes.KindIdentity,
			Owner: s.address,
			Value: params.Value,
		},
		CreatedAt: s.now(),
	}
	if err := attribute.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateChildren(params); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, attribute); err != nil {
		return nil, err
	}
	for _, child := range params.Children {
		parentID := attribute.ID
		childAttribute := &attributes.Attribute{
			ID:   domain.NewAttributeID(),
			Role: attributes.RoleRepository,
			Content: attributes.Content{
				Kind:  attributes.KindIdentity,
				Owner: s.address,
				Value: child,
			},
			CreatedAt: s.now(),
			ParentID:  &parentID,
		}
		if err := s.store.Save(ctx, childAttribute); err != nil {
			return nil, err
		}
	}
	s.metrics.IncCreated(string(attributes.RoleRepository))
	s.publisher.Publish(events.New(events.AttributeCreated, map[string]string{
		"attributeId": attribute.ID.String(),
		"role":        string(attribute.Role),
	}))
	return attribute, nil
}

func (s *Service) validateChildren(params CreateRepositoryAttributeParams) error {
	if !params.Value.Type.IsComplex() {
		if len(params.Children) > 0 {
			return derrors.Newf(derrors.CodeInvalidInput,
				"value type '%s' does not decompose into children", params.Value.Type)
		}
		return nil
	}
	allowed := make(map[domain.ValueType]bool)
	for _, t := range params.Value.Type.ChildTypes() {
		allowed[t] = true
	}
	for _, child := range params.Children {
		if !allowed[child.Type] {
			return derrors.Newf(derrors.CodeInvalidInput,
				"'%s' is not a child type of '%s'", child.Type, params.Value.Type)
		}
	}
	return nil
}

// CreateSharedCopyParams describes a shared copy to materialize. Exactly one
// of RequestReference and NotificationReference must be set. When ID is set
// the copy is created under that identifier, so both peers agree on ids
// embedded in response items.
type CreateSharedCopyParams struct {
	ID                    *domain.AttributeID
	Role                  attributes.Role
	Content               attributes.Content
	Peer                  domain.Address
	SourceAttribute       *domain.AttributeID
	RequestReference      *domain.RequestID
	NotificationReference *domain.NotificationID
}

// CreateSharedCopy materializes a shared copy with provenance. For identity
// facts it enforces that no other version of the source chain is already
// shared with the peer.
func (s *Service) CreateSharedCopy(ctx context.Context, params CreateSharedCopyParams) (*attributes.Attribute, error) {
	ctx, span := tracer.Start(ctx, "attributes.CreateSharedCopy")
	defer span.End()

	id := domain.NewAttributeID()
	if params.ID != nil {
		id = *params.ID
	}
	attribute := &attributes.Attribute{
		ID:        id,
		Role:      params.Role,
		Content:   params.Content,
		CreatedAt: s.now(),
		ShareInfo: &attributes.ShareInfo{
			Peer:                  params.Peer,
			RequestReference:      params.RequestReference,
			NotificationReference: params.NotificationReference,
			SharedAt:              s.now(),
			SourceAttribute:       params.SourceAttribute,
		},
	}
	if err := attribute.Validate(); err != nil {
		return nil, err
	}
	if params.SourceAttribute != nil {
		if err := s.ensureChainNotSharedWithPeer(ctx, *params.SourceAttribute, params.Peer); err != nil {
			return nil, err
		}
	}
	if err := s.store.Save(ctx, attribute); err != nil {
		return nil, err
	}
	s.metrics.IncCreated(string(params.Role))
	s.publisher.Publish(events.New(events.AttributeCreated, map[string]string{
		"attributeId": attribute.ID.String(),
		"role":        string(attribute.Role),
		"peer":        params.Peer.String(),
	}))
	return attribute, nil
}

// ShareRepositoryAttribute creates the sender-side shared copy of a
// repository attribute for a peer, referencing the request that carried it.
func (s *Service) ShareRepositoryAttribute(ctx context.Context, attributeID domain.AttributeID,
	peer domain.Address, requestReference domain.RequestID, agreedID *domain.AttributeID) (*attributes.Attribute, error) {
	source, err := s.GetAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	if source.Role != attributes.RoleRepository {
		return nil, derrors.Newf(derrors.CodeInvalidInput,
			"attribute '%s' is not a repository attribute", attributeID)
	}
	return s.CreateSharedCopy(ctx, CreateSharedCopyParams{
		ID:               agreedID,
		Role:             attributes.RoleOwnShared,
		Content:          source.Content,
		Peer:             peer,
		SourceAttribute:  &source.ID,
		RequestReference: &requestReference,
	})
}

// CreateAndShareRelationshipAttributeParams carries the content of a new
// relationship attribute and the peer it is shared with.
type CreateAndShareRelationshipAttributeParams struct {
	Key   string
	Value attributes.Value
	Peer  domain.Address
}

// CreateAndShareRelationshipAttribute creates an own shared relationship
// attribute and announces it to the peer outside a full negotiation. The
// peer records its copy under the same id.
func (s *Service) CreateAndShareRelationshipAttribute(ctx context.Context,
	params CreateAndShareRelationshipAttributeParams) (*attributes.Attribute, domain.NotificationID, error) {
	ctx, span := tracer.Start(ctx, "attributes.CreateAndShareRelationshipAttribute")
	defer span.End()

	if params.Peer.IsEmpty() {
		return nil, domain.NotificationID{}, derrors.New(derrors.CodeInvalidInput, "a peer is required")
	}
	exists, err := s.HasRelationshipAttribute(ctx, s.address, params.Key, params.Value.Type, params.Peer)
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	if exists {
		return nil, domain.NotificationID{}, attributes.ErrRelationshipAttributeKeyExists(params.Key)
	}

	content := attributes.Content{
		Kind:  attributes.KindRelationship,
		Owner: s.address,
		Value: params.Value,
		Key:   params.Key,
	}
	notificationID := domain.NewNotificationID()
	attribute, err := s.CreateSharedCopy(ctx, CreateSharedCopyParams{
		Role:                  attributes.RoleOwnShared,
		Content:               content,
		Peer:                  params.Peer,
		NotificationReference: &notificationID,
	})
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	notification := notifications.Notification{
		ID:        notificationID,
		Peer:      params.Peer,
		Items:     []notifications.Item{{Kind: notifications.ItemShared, AttributeID: attribute.ID, Content: &content}},
		CreatedAt: s.now(),
	}
	if err := s.dispatcher.Dispatch(ctx, &notification); err != nil {
		return nil, domain.NotificationID{}, err
	}
	return attribute, notificationID, nil
}

// ApplyPeerShared records an attribute a peer shared via notification as a
// peer-shared copy under the agreed id.
func (s *Service) ApplyPeerShared(ctx context.Context, peer domain.Address,
	notificationID domain.NotificationID, attributeID domain.AttributeID, content attributes.Content) error {
	ctx, span := tracer.Start(ctx, "attributes.ApplyPeerShared")
	defer span.End()

	if content.Kind == attributes.KindRelationship {
		exists, err := s.HasRelationshipAttribute(ctx, content.Owner, content.Key, content.Value.Type, peer)
		if err != nil {
			return err
		}
		if exists {
			return attributes.ErrRelationshipAttributeKeyExists(content.Key)
		}
	}
	_, err := s.CreateSharedCopy(ctx, CreateSharedCopyParams{
		ID:                    &attributeID,
		Role:                  attributes.RolePeerShared,
		Content:               content,
		Peer:                  peer,
		NotificationReference: &notificationID,
	})
	return err
}

// GetAttribute loads one attribute, translating store misses into the
// uniform not-found error.
func (s *Service) GetAttribute(ctx context.Context, id domain.AttributeID) (*attributes.Attribute, error) {
	attribute, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.NotFound("Attribute", id.String())
		}
		return nil, err
	}
	return attribute, nil
}

// GetAttributes lists attributes matching the query.
func (s *Service) GetAttributes(ctx context.Context, query attributes.Query) ([]*attributes.Attribute, error) {
	return s.store.List(ctx, query)
}

// GetVersionsOfAttribute returns every version of the attribute's chain,
// oldest first.
func (s *Service) GetVersionsOfAttribute(ctx context.Context, id domain.AttributeID) ([]*attributes.Attribute, error) {
	attribute, err := s.GetAttribute(ctx, id)
	if err != nil {
		return nil, err
	}
	// Walk back to the root, then forward to the latest version.
	root := attribute
	for root.Succeeds != nil {
		root, err = s.GetAttribute(ctx, *root.Succeeds)
		if err != nil {
			return nil, err
		}
	}
	versions := []*attributes.Attribute{root}
	current := root
	for current.SucceededBy != nil {
		current, err = s.GetAttribute(ctx, *current.SucceededBy)
		if err != nil {
			return nil, err
		}
		versions = append(versions, current)
	}
	return versions, nil
}

// GetSharedVersionsOfRepositoryAttribute returns the own-shared copies taken
// from any version of the repository attribute's chain, optionally filtered
// by peer.
func (s *Service) GetSharedVersionsOfRepositoryAttribute(ctx context.Context, id domain.AttributeID,
	peer domain.Address) ([]*attributes.Attribute, error) {
	versions, err := s.GetVersionsOfAttribute(ctx, id)
	if err != nil {
		return nil, err
	}
	chainIDs := make([]string, 0, len(versions))
	for _, version := range versions {
		chainIDs = append(chainIDs, version.ID.String())
	}
	query := attributes.Query{
		attributes.Eq(attributes.FieldRole, string(attributes.RoleOwnShared)),
		attributes.In(attributes.FieldSourceAttribute, chainIDs...),
	}
	if !peer.IsEmpty() {
		query = append(query, attributes.Eq(attributes.FieldPeer, peer.String()))
	}
	return s.store.List(ctx, query)
}

// HasRelationshipAttribute reports whether a non-deleted relationship
// attribute with the same (owner, key, value type) already exists for the
// peer. The key uniqueness invariant of relationship attributes.
func (s *Service) HasRelationshipAttribute(ctx context.Context, owner domain.Address, key string,
	valueType domain.ValueType, peer domain.Address) (bool, error) {
	query := attributes.Query{
		attributes.Eq(attributes.FieldKind, string(attributes.KindRelationship)),
		attributes.Eq(attributes.FieldOwner, owner.String()),
		attributes.Eq(attributes.FieldKey, key),
		attributes.Eq(attributes.FieldValueType, valueType.String()),
		attributes.Eq(attributes.FieldPeer, peer.String()),
		attributes.Absent(attributes.FieldDeletionStatus),
	}
	matches, err := s.store.List(ctx, query)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// ensureChainNotSharedWithPeer rejects sharing when any version of the
// source chain already has a non-deleted shared copy for the peer.
func (s *Service) ensureChainNotSharedWithPeer(ctx context.Context, sourceID domain.AttributeID, peer domain.Address) error {
	shared, err := s.GetSharedVersionsOfRepositoryAttribute(ctx, sourceID, peer)
	if err != nil {
		return err
	}
	for _, copy := range shared {
		if !copy.InDeletion() {
			return attributes.ErrAlreadySharedWithPeer(sourceID, peer)
		}
	}
	return nil
}
