package service

import (
	"context"

	"peermesh/internal/attributes"
	"peermesh/internal/events"
	"peermesh/internal/notifications"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// SuccessionResult is the predecessor/successor pair after a completed
// succession.
type SuccessionResult struct {
	Predecessor *attributes.Attribute
	Successor   *attributes.Attribute
}

// SucceedRepositoryAttribute replaces a repository attribute with a new
// version. The predecessor must be the latest version of its chain and the
// successor's value type must match the predecessor's.
func (s *Service) SucceedRepositoryAttribute(ctx context.Context, predecessorID domain.AttributeID,
	value attributes.Value) (*SuccessionResult, error) {
	ctx, span := tracer.Start(ctx, "attributes.SucceedRepositoryAttribute")
	defer span.End()

	predecessor, err := s.GetAttribute(ctx, predecessorID)
	if err != nil {
		return nil, err
	}
	if predecessor.Role != attributes.RoleRepository {
		return nil, derrors.Newf(derrors.CodeInvalidInput,
			"attribute '%s' is not a repository attribute", predecessorID)
	}
	successor := &attributes.Attribute{
		ID:   domain.NewAttributeID(),
		Role: attributes.RoleRepository,
		Content: attributes.Content{
			Kind:  attributes.KindIdentity,
			Owner: predecessor.Content.Owner,
			Value: value,
		},
		CreatedAt: s.now(),
	}
	return s.succeed(ctx, predecessor, successor)
}

// SucceedRelationshipAttributeAndNotifyPeer replaces a shared relationship
// attribute with a new version and announces the succession to the peer.
func (s *Service) SucceedRelationshipAttributeAndNotifyPeer(ctx context.Context,
	predecessorID domain.AttributeID, value attributes.Value) (*SuccessionResult, domain.NotificationID, error) {
	ctx, span := tracer.Start(ctx, "attributes.SucceedRelationshipAttributeAndNotifyPeer")
	defer span.End()

	predecessor, err := s.GetAttribute(ctx, predecessorID)
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	if predecessor.Role != attributes.RoleOwnShared || predecessor.Content.Kind != attributes.KindRelationship {
		return nil, domain.NotificationID{}, derrors.Newf(derrors.CodeInvalidInput,
			"attribute '%s' is not an own shared relationship attribute", predecessorID)
	}
	successorContent := predecessor.Content
	successorContent.Value = value

	notification := notifications.New(predecessor.ShareInfo.Peer)
	notificationID := notification.ID
	successor := &attributes.Attribute{
		ID:        domain.NewAttributeID(),
		Role:      attributes.RoleOwnShared,
		Content:   successorContent,
		CreatedAt: s.now(),
		ShareInfo: &attributes.ShareInfo{
			Peer:                  predecessor.ShareInfo.Peer,
			NotificationReference: &notificationID,
			SharedAt:              s.now(),
		},
	}
	result, err := s.succeed(ctx, predecessor, successor)
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	notification.Items = []notifications.Item{{
		Kind:             notifications.ItemSuccession,
		AttributeID:      result.Predecessor.ID,
		SuccessorID:      &result.Successor.ID,
		SuccessorContent: &result.Successor.Content,
	}}
	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		return nil, domain.NotificationID{}, err
	}
	return result, notificationID, nil
}

// NotifyPeerAboutRepositoryAttributeSuccession announces to a peer that the
// repository attribute it received a copy of has a newer version. The peer
// must already hold an earlier version; re-notifying an already announced
// version is rejected.
func (s *Service) NotifyPeerAboutRepositoryAttributeSuccession(ctx context.Context,
	attributeID domain.AttributeID, peer domain.Address) (*SuccessionResult, domain.NotificationID, error) {
	ctx, span := tracer.Start(ctx, "attributes.NotifyPeerAboutRepositoryAttributeSuccession")
	defer span.End()

	version, err := s.GetAttribute(ctx, attributeID)
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	if version.Role != attributes.RoleRepository {
		return nil, domain.NotificationID{}, derrors.Newf(derrors.CodeInvalidInput,
			"attribute '%s' is not a repository attribute", attributeID)
	}
	versions, err := s.GetVersionsOfAttribute(ctx, attributeID)
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	chainIndex := make(map[domain.AttributeID]int, len(versions))
	for i, v := range versions {
		chainIndex[v.ID] = i
	}

	shared, err := s.GetSharedVersionsOfRepositoryAttribute(ctx, attributeID, peer)
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	// The latest shared copy is the one to walk forward from.
	var predecessorShared *attributes.Attribute
	predecessorIndex := -1
	for _, copy := range shared {
		if copy.InDeletion() {
			continue
		}
		index := chainIndex[*copy.ShareInfo.SourceAttribute]
		if index > predecessorIndex {
			predecessorIndex = index
			predecessorShared = copy
		}
	}
	if predecessorShared == nil {
		return nil, domain.NotificationID{}, attributes.ErrNoPreviousVersionShared(attributeID, peer)
	}
	requestedIndex := chainIndex[attributeID]
	if predecessorIndex == requestedIndex {
		return nil, domain.NotificationID{}, attributes.ErrAlreadySharedWithPeer(attributeID, peer)
	}
	if predecessorIndex > requestedIndex {
		return nil, domain.NotificationID{}, attributes.ErrSuccessorDoesNotSucceedPredecessor(
			attributeID, *predecessorShared.ShareInfo.SourceAttribute)
	}
	if predecessorShared.SucceededBy != nil {
		return nil, domain.NotificationID{}, attributes.ErrSuccessionAlreadyApplied(predecessorShared.ID)
	}

	notification := notifications.New(peer)
	notificationID := notification.ID
	sourceID := version.ID
	successor := &attributes.Attribute{
		ID:        domain.NewAttributeID(),
		Role:      attributes.RoleOwnShared,
		Content:   version.Content,
		CreatedAt: s.now(),
		ShareInfo: &attributes.ShareInfo{
			Peer:                  peer,
			NotificationReference: &notificationID,
			SharedAt:              s.now(),
			SourceAttribute:       &sourceID,
		},
	}
	result, err := s.succeed(ctx, predecessorShared, successor)
	if err != nil {
		return nil, domain.NotificationID{}, err
	}
	notification.Items = []notifications.Item{{
		Kind:             notifications.ItemSuccession,
		AttributeID:      result.Predecessor.ID,
		SuccessorID:      &result.Successor.ID,
		SuccessorContent: &result.Successor.Content,
	}}
	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		return nil, domain.NotificationID{}, err
	}
	return result, notificationID, nil
}

// SucceedSharedCopyParams describes the successor of a shared copy whose
// succession was agreed through an exchange: the id both sides use for the
// successor, its content, and the exchange reference. A zero SuccessorID
// means a fresh id.
type SucceedSharedCopyParams struct {
	PredecessorID         domain.AttributeID
	SuccessorID           domain.AttributeID
	Content               attributes.Content
	Peer                  domain.Address
	SourceAttribute       *domain.AttributeID
	RequestReference      *domain.RequestID
	NotificationReference *domain.NotificationID
}

// SucceedSharedCopy replaces a shared copy with a new version carrying the
// given exchange reference. Re-applying an already applied succession is
// rejected, not merged, so protocol bugs surface.
func (s *Service) SucceedSharedCopy(ctx context.Context, params SucceedSharedCopyParams) (*SuccessionResult, error) {
	ctx, span := tracer.Start(ctx, "attributes.SucceedSharedCopy")
	defer span.End()

	predecessor, err := s.GetAttribute(ctx, params.PredecessorID)
	if err != nil {
		return nil, err
	}
	if predecessor.ShareInfo == nil || predecessor.ShareInfo.Peer != params.Peer {
		return nil, derrors.Newf(derrors.CodeInvalidInput,
			"attribute '%s' is not shared with peer '%s'", params.PredecessorID, params.Peer)
	}
	if predecessor.SucceededBy != nil {
		return nil, attributes.ErrSuccessionAlreadyApplied(params.PredecessorID)
	}
	successorID := params.SuccessorID
	if successorID.IsNil() {
		successorID = domain.NewAttributeID()
	}
	successor := &attributes.Attribute{
		ID:        successorID,
		Role:      predecessor.Role,
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
	return s.succeed(ctx, predecessor, successor)
}

// ApplyPeerSuccession applies a succession announced by a peer to the local
// copy. Implements notifications.Applier.
func (s *Service) ApplyPeerSuccession(ctx context.Context, peer domain.Address,
	notificationID domain.NotificationID, predecessorID, successorID domain.AttributeID,
	content attributes.Content) error {
	_, err := s.SucceedSharedCopy(ctx, SucceedSharedCopyParams{
		PredecessorID:         predecessorID,
		SuccessorID:           successorID,
		Content:               content,
		Peer:                  peer,
		NotificationReference: &notificationID,
	})
	return err
}

// succeed validates and persists one succession step: value type stability,
// unique successor, and the predecessor/successor links.
func (s *Service) succeed(ctx context.Context, predecessor, successor *attributes.Attribute) (*SuccessionResult, error) {
	if predecessor.SucceededBy != nil {
		return nil, attributes.ErrPredecessorAlreadySucceeded(predecessor.ID)
	}
	if successor.Content.Value.Type != predecessor.Content.Value.Type {
		return nil, attributes.ErrSuccessionMustNotChangeValueType(
			predecessor.Content.Value.Type, successor.Content.Value.Type)
	}
	predecessorID := predecessor.ID
	successorID := successor.ID
	successor.Succeeds = &predecessorID
	if err := successor.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, successor); err != nil {
		return nil, err
	}
	predecessor.SucceededBy = &successorID
	if err := s.store.Save(ctx, predecessor); err != nil {
		return nil, err
	}
	s.metrics.IncSuccessions()
	s.publisher.Publish(events.New(events.AttributeSucceeded, map[string]string{
		"predecessorId": predecessor.ID.String(),
		"successorId":   successor.ID.String(),
	}))
	return &SuccessionResult{Predecessor: predecessor, Successor: successor}, nil
}
