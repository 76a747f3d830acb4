package service

import (
	"context"
	"time"

	"peermesh/internal/attributes"
	"peermesh/internal/events"
	"peermesh/internal/notifications"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// SetDeletionInfo records a deletion status on a shared attribute after
// validating the transition against the attribute's role lattice and the
// acting party's entitlement. It never purges the record itself.
func (s *Service) SetDeletionInfo(ctx context.Context, attributeID domain.AttributeID,
	info attributes.DeletionInfo, actor attributes.Actor) (*attributes.Attribute, error) {
	ctx, span := tracer.Start(ctx, "attributes.SetDeletionInfo")
	defer span.End()

	attribute, err := s.GetAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	if attribute.ShareInfo == nil {
		return nil, derrors.Newf(attributes.CodeAttributeNotShared,
			"attribute '%s' is not shared, there is nothing to retract", attributeID)
	}
	if err := attributes.ValidateDeletionTransition(attribute.Role,
		attribute.ShareInfo.DeletionInfo, info, actor); err != nil {
		return nil, err
	}
	attribute.ShareInfo.DeletionInfo = &info
	if err := s.store.Save(ctx, attribute); err != nil {
		return nil, err
	}
	s.metrics.IncDeletionTransition(string(info.Status))
	s.publisher.Publish(events.New(events.AttributeDeletionStatusChanged, map[string]string{
		"attributeId": attribute.ID.String(),
		"status":      string(info.Status),
	}))
	return attribute, nil
}

// DeleteAttributeAndNotify starts the cooperative retraction of a shared
// attribute and its dependent children. Each affected copy moves to its
// role's to-be-deleted status; one notification per affected peer announces
// the mirrored status. Returns the ids of the dispatched notifications.
func (s *Service) DeleteAttributeAndNotify(ctx context.Context, attributeID domain.AttributeID) ([]domain.NotificationID, error) {
	ctx, span := tracer.Start(ctx, "attributes.DeleteAttributeAndNotify")
	defer span.End()

	attribute, err := s.GetAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	targets := []*attributes.Attribute{attribute}
	children, err := s.store.List(ctx, attributes.Query{
		attributes.Eq(attributes.FieldParentID, attributeID.String()),
	})
	if err != nil {
		return nil, err
	}
	targets = append(targets, children...)

	now := s.now()
	itemsByPeer := make(map[domain.Address][]notifications.Item)
	var peerOrder []domain.Address
	for _, target := range targets {
		localStatus, peerStatus, ok := attributes.RetractionStatus(target.Role)
		if !ok {
			return nil, derrors.Newf(attributes.CodeAttributeNotShared,
				"attribute '%s' is not shared, there is nothing to retract", target.ID)
		}
		if _, err := s.SetDeletionInfo(ctx, target.ID,
			attributes.DeletionInfo{Status: localStatus, Date: now}, attributes.ActorLocal); err != nil {
			return nil, err
		}
		peer := target.Peer()
		if _, seen := itemsByPeer[peer]; !seen {
			peerOrder = append(peerOrder, peer)
		}
		itemsByPeer[peer] = append(itemsByPeer[peer], notifications.Item{
			Kind:           notifications.ItemDeletion,
			AttributeID:    target.ID,
			DeletionStatus: peerStatus,
			DeletionDate:   now,
		})
	}

	var notificationIDs []domain.NotificationID
	for _, peer := range peerOrder {
		notification := notifications.New(peer, itemsByPeer[peer]...)
		if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
			return nil, err
		}
		notificationIDs = append(notificationIDs, notification.ID)
	}
	return notificationIDs, nil
}

// ApplyPeerDeletion records a deletion status announced by a peer on the
// local copy. Implements notifications.Applier.
func (s *Service) ApplyPeerDeletion(ctx context.Context, peer domain.Address,
	attributeID domain.AttributeID, status attributes.DeletionStatus, date time.Time) error {
	ctx, span := tracer.Start(ctx, "attributes.ApplyPeerDeletion")
	defer span.End()

	attribute, err := s.GetAttribute(ctx, attributeID)
	if err != nil {
		return err
	}
	if attribute.ShareInfo == nil || attribute.ShareInfo.Peer != peer {
		return derrors.Newf(derrors.CodeInvalidInput,
			"attribute '%s' is not shared with peer '%s'", attributeID, peer)
	}
	_, err = s.SetDeletionInfo(ctx, attributeID,
		attributes.DeletionInfo{Status: status, Date: date}, attributes.ActorRemote)
	return err
}

// DeleteRepositoryAttribute physically removes a repository attribute and
// its children. Only allowed when no non-deleted shared copy of any chain
// version remains; shared copies go through DeleteAttributeAndNotify first.
func (s *Service) DeleteRepositoryAttribute(ctx context.Context, attributeID domain.AttributeID) error {
	ctx, span := tracer.Start(ctx, "attributes.DeleteRepositoryAttribute")
	defer span.End()

	attribute, err := s.GetAttribute(ctx, attributeID)
	if err != nil {
		return err
	}
	if attribute.Role != attributes.RoleRepository {
		return derrors.Newf(derrors.CodeInvalidInput,
			"attribute '%s' is not a repository attribute", attributeID)
	}
	shared, err := s.GetSharedVersionsOfRepositoryAttribute(ctx, attributeID, "")
	if err != nil {
		return err
	}
	for _, copy := range shared {
		if !copy.InDeletion() {
			return derrors.Newf(derrors.CodeWrongState,
				"attribute '%s' still has shared copies; retract them first", attributeID)
		}
	}
	children, err := s.store.List(ctx, attributes.Query{
		attributes.Eq(attributes.FieldParentID, attributeID.String()),
	})
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.store.Delete(ctx, child.ID); err != nil {
			return err
		}
	}
	if err := s.store.Delete(ctx, attributeID); err != nil {
		return err
	}
	s.publisher.Publish(events.New(events.AttributeDeleted, map[string]string{
		"attributeId": attributeID.String(),
	}))
	return nil
}
