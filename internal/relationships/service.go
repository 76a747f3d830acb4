package relationships

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
	"peermesh/pkg/platform/sentinel"
)

// ReactivationListener is told when a terminated relationship becomes active
// again, so held notifications can be redelivered in original order.
type ReactivationListener interface {
	PeerReactivated(ctx context.Context, peer domain.Address) error
}

type Service struct {
	store     Store
	logger    *slog.Logger
	listeners []ReactivationListener
}

func NewService(store Store, logger *slog.Logger, listeners ...ReactivationListener) *Service {
	return &Service{store: store, logger: logger, listeners: listeners}
}

// Establish creates an active relationship with the peer. Idempotent per
// peer: an existing relationship is returned unchanged.
func (s *Service) Establish(ctx context.Context, peer domain.Address) (*Relationship, error) {
	if peer.IsEmpty() {
		return nil, derrors.New(derrors.CodeInvalidInput, "peer address is required")
	}
	if existing, err := s.store.GetByPeer(ctx, peer); err == nil {
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	relationship := &Relationship{
		ID:        domain.NewRelationshipID(),
		Peer:      peer,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
	if err := s.store.Save(ctx, relationship); err != nil {
		return nil, err
	}
	return relationship, nil
}

// Terminate moves an active relationship to terminated. Notifications sent
// while terminated are held by the outbox.
func (s *Service) Terminate(ctx context.Context, peer domain.Address) error {
	relationship, err := s.getByPeer(ctx, peer)
	if err != nil {
		return err
	}
	if relationship.Status != StatusActive {
		return errWrongStatus(StatusActive)
	}
	relationship.Status = StatusTerminated
	return s.store.Save(ctx, relationship)
}

// Reactivate moves a terminated relationship back to active and triggers
// redelivery of held notifications.
func (s *Service) Reactivate(ctx context.Context, peer domain.Address) error {
	relationship, err := s.getByPeer(ctx, peer)
	if err != nil {
		return err
	}
	if relationship.Status != StatusTerminated {
		return errWrongStatus(StatusTerminated)
	}
	relationship.Status = StatusActive
	if err := s.store.Save(ctx, relationship); err != nil {
		return err
	}
	for _, listener := range s.listeners {
		if err := listener.PeerReactivated(ctx, peer); err != nil {
			s.logger.WarnContext(ctx, "reactivation listener failed",
				"peer", peer.String(), "error", err.Error())
		}
	}
	return nil
}

// IsTerminated reports whether the relationship with the peer is currently
// terminated. Unknown peers are not terminated; the transport collaborator
// decides whether they are reachable at all.
func (s *Service) IsTerminated(ctx context.Context, peer domain.Address) (bool, error) {
	relationship, err := s.store.GetByPeer(ctx, peer)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return relationship.Status == StatusTerminated, nil
}

// AddListener registers a reactivation listener after construction. Used by
// wiring to break the relationships/notifications construction cycle.
func (s *Service) AddListener(listener ReactivationListener) {
	s.listeners = append(s.listeners, listener)
}

func (s *Service) getByPeer(ctx context.Context, peer domain.Address) (*Relationship, error) {
	relationship, err := s.store.GetByPeer(ctx, peer)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.NotFound("Relationship", peer.String())
		}
		return nil, err
	}
	return relationship, nil
}
