// Package relationships tracks the status of the connection to each peer.
// The negotiation and notification paths consult it: notifications bound for
// a terminated relationship are held and redelivered on reactivation.
package relationships

import (
	"time"

	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
)

type Relationship struct {
	ID        domain.RelationshipID
	Peer      domain.Address
	Status    Status
	CreatedAt time.Time
}

// CodeWrongRelationshipStatus is raised when an operation requires a status
// the relationship is not in.
const CodeWrongRelationshipStatus derrors.Code = "error.consumption.relationships.wrongRelationshipStatus"

func errWrongStatus(required Status) error {
	return derrors.Newf(CodeWrongRelationshipStatus,
		"Relationship has to be in status '%s'.", required)
}
