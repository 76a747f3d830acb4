package notifications

import (
	"context"
	"log/slog"
	"time"

	"peermesh/internal/attributes"
	"peermesh/internal/events"
	"peermesh/pkg/domain"
)

// Sender hands a notification to the transport collaborator. Delivery order
// per peer is the transport's guarantee; this core only ensures it releases
// notifications in send order.
type Sender interface {
	Send(ctx context.Context, notification *Notification) error
}

// StatusResolver reports whether the relationship with a peer is terminated.
// Satisfied by the relationships service.
type StatusResolver interface {
	IsTerminated(ctx context.Context, peer domain.Address) (bool, error)
}

// Applier executes incoming notification items against the local attribute
// model. Satisfied by the attributes service.
type Applier interface {
	ApplyPeerSuccession(ctx context.Context, peer domain.Address, notificationID domain.NotificationID,
		predecessorID, successorID domain.AttributeID, content attributes.Content) error
	ApplyPeerDeletion(ctx context.Context, peer domain.Address, attributeID domain.AttributeID,
		status attributes.DeletionStatus, date time.Time) error
	ApplyPeerShared(ctx context.Context, peer domain.Address, notificationID domain.NotificationID,
		attributeID domain.AttributeID, content attributes.Content) error
}

// Service is the outbox and inbox for one-way notifications.
type Service struct {
	sender        Sender
	queue         Queue
	relationships StatusResolver
	applier       Applier
	publisher     events.Publisher
	logger        *slog.Logger
}

func NewService(sender Sender, queue Queue, relationships StatusResolver,
	applier Applier, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		sender:        sender,
		queue:         queue,
		relationships: relationships,
		applier:       applier,
		publisher:     publisher,
		logger:        logger,
	}
}

// Dispatch sends an outbound notification, or holds it when the target
// relationship is terminated.
func (s *Service) Dispatch(ctx context.Context, notification *Notification) error {
	if err := notification.Validate(); err != nil {
		return err
	}
	terminated, err := s.relationships.IsTerminated(ctx, notification.Peer)
	if err != nil {
		return err
	}
	if terminated {
		s.logger.InfoContext(ctx, "relationship terminated, holding notification",
			"notification_id", notification.ID.String(), "peer", notification.Peer.String())
		return s.queue.Enqueue(ctx, notification)
	}
	return s.send(ctx, notification)
}

// PeerReactivated redelivers held notifications in original send order.
// Implements relationships.ReactivationListener.
func (s *Service) PeerReactivated(ctx context.Context, peer domain.Address) error {
	held, err := s.queue.Drain(ctx, peer)
	if err != nil {
		return err
	}
	for _, notification := range held {
		if err := s.send(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) send(ctx context.Context, notification *Notification) error {
	if err := s.sender.Send(ctx, notification); err != nil {
		return err
	}
	s.publisher.Publish(events.New(events.NotificationSent, map[string]string{
		"notificationId": notification.ID.String(),
		"peer":           notification.Peer.String(),
	}))
	return nil
}

// Receive applies an incoming notification. Items that cannot be applied
// (e.g. an out-of-order successor) are rejected outright rather than queued;
// the sender has to resend a corrected notification.
func (s *Service) Receive(ctx context.Context, notification *Notification) error {
	if err := notification.Validate(); err != nil {
		return err
	}
	for _, item := range notification.Items {
		var err error
		switch item.Kind {
		case ItemSuccession:
			err = s.applier.ApplyPeerSuccession(ctx, notification.Peer, notification.ID,
				item.AttributeID, *item.SuccessorID, *item.SuccessorContent)
		case ItemDeletion:
			err = s.applier.ApplyPeerDeletion(ctx, notification.Peer,
				item.AttributeID, item.DeletionStatus, item.DeletionDate)
		case ItemShared:
			err = s.applier.ApplyPeerShared(ctx, notification.Peer, notification.ID,
				item.AttributeID, *item.Content)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
