package attributes

import (
	"time"

	derrors "peermesh/pkg/domain-errors"
)

// DeletionStatus is a step in the cooperative retraction protocol. The four
// role lattices share one reachability relation; only the set of statuses
// valid per role differs, and the persisted strings stay distinct per role
// for storage compatibility.
type DeletionStatus string

const (
	DeletionRequestSent     DeletionStatus = "DeletionRequestSent"
	DeletionRequestRejected DeletionStatus = "DeletionRequestRejected"
	ToBeDeleted             DeletionStatus = "ToBeDeleted"
	ToBeDeletedByPeer       DeletionStatus = "ToBeDeletedByPeer"
	DeletedByPeer           DeletionStatus = "DeletedByPeer"
	DeletedByOwner          DeletionStatus = "DeletedByOwner"
)

// DeletionInfo records how far the retraction of a shared copy has
// progressed. Transitions are monotonic; the record is never cleared.
type DeletionInfo struct {
	Status DeletionStatus
	Date   time.Time
}

// Actor says who is driving a deletion transition: the local identity or
// the remote peer (through an incoming notification).
type Actor string

const (
	ActorLocal  Actor = "local"
	ActorRemote Actor = "remote"
)

// IsTerminal reports whether the status is a final Deleted* state. Physical
// removal only happens once a terminal status has round-tripped on both
// sides.
func (s DeletionStatus) IsTerminal() bool {
	return s == DeletedByPeer || s == DeletedByOwner
}

// entitled lists, per role and status, who may record that status on the
// local copy. Statuses missing for a role are invalid for that role.
var entitled = map[Role]map[DeletionStatus]map[Actor]bool{
	RoleOwnShared: {
		// I ask the peer to delete their copy of my attribute.
		DeletionRequestSent:     {ActorLocal: true},
		DeletionRequestRejected: {ActorRemote: true},
		ToBeDeletedByPeer:       {ActorRemote: true},
		DeletedByPeer:           {ActorRemote: true},
	},
	RolePeerShared: {
		// Either I decide to drop my copy, or the owner asks me to.
		ToBeDeleted:    {ActorLocal: true, ActorRemote: true},
		DeletedByOwner: {ActorRemote: true},
	},
	RoleThirdParty: {
		ToBeDeletedByPeer: {ActorLocal: true, ActorRemote: true},
		DeletedByPeer:     {ActorRemote: true},
	},
	RoleForwarded: {
		ToBeDeletedByPeer: {ActorLocal: true, ActorRemote: true},
		DeletedByPeer:     {ActorRemote: true},
	},
}

// reachable is the shared lattice:
// DeletionRequestSent -> {DeletionRequestRejected | ToBeDeleted*} -> Deleted*.
// Re-recording the current status is rejected so protocol bugs surface
// instead of being masked.
var reachable = map[DeletionStatus]map[DeletionStatus]bool{
	DeletionRequestSent: {
		DeletionRequestRejected: true,
		ToBeDeleted:             true,
		ToBeDeletedByPeer:       true,
		DeletedByPeer:           true,
		DeletedByOwner:          true,
	},
	DeletionRequestRejected: {},
	ToBeDeleted: {
		DeletedByOwner: true,
	},
	ToBeDeletedByPeer: {
		DeletedByPeer: true,
	},
	DeletedByPeer:  {},
	DeletedByOwner: {},
}

// Stable codes raised by the lattice.
const (
	CodeInvalidDeletionStatus derrors.Code = "error.consumption.attributes.invalidDeletionStatusOfAttribute"
	CodeCannotRegressDeletion derrors.Code = "error.consumption.attributes.cannotRegressDeletionStatus"
	CodeActorNotEntitled      derrors.Code = "error.consumption.attributes.actorNotEntitledToSetDeletionStatus"
	CodeAttributeNotShared    derrors.Code = "error.consumption.attributes.attributeIsNotShared"
)

// ValidateDeletionTransition checks that info.Status is valid for the role,
// reachable from the current status, and that actor may record it.
func ValidateDeletionTransition(role Role, current *DeletionInfo, info DeletionInfo, actor Actor) error {
	valid, ok := entitled[role]
	if !ok {
		return derrors.Newf(CodeInvalidDeletionStatus,
			"attributes with role '%s' cannot carry deletion info", role)
	}
	actors, ok := valid[info.Status]
	if !ok {
		return derrors.Newf(CodeInvalidDeletionStatus,
			"deletion status '%s' is not valid for role '%s'", info.Status, role)
	}
	if !actors[actor] {
		return derrors.Newf(CodeActorNotEntitled,
			"actor '%s' may not set deletion status '%s' on a %s attribute", actor, info.Status, role)
	}
	if current == nil {
		return nil
	}
	if !reachable[current.Status][info.Status] {
		return derrors.Newf(CodeCannotRegressDeletion,
			"deletion status cannot move from '%s' to '%s'", current.Status, info.Status)
	}
	return nil
}

// RetractionStatus returns the status deleteAndNotify records locally per
// role, plus the status the affected peer should record on its mirrored
// copy. The second return is false for roles outside cooperative deletion.
func RetractionStatus(role Role) (local DeletionStatus, forPeer DeletionStatus, ok bool) {
	switch role {
	case RoleOwnShared:
		return DeletionRequestSent, ToBeDeleted, true
	case RolePeerShared:
		return ToBeDeleted, ToBeDeletedByPeer, true
	case RoleThirdParty, RoleForwarded:
		return ToBeDeletedByPeer, ToBeDeletedByPeer, true
	default:
		return "", "", false
	}
}
