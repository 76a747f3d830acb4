package attributes

import (
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// Stable error codes raised by the attribute lifecycle. Constructor
// functions below build immutable error values; there is no process-wide
// error catalog.
const (
	CodePredecessorAlreadySucceeded        derrors.Code = "error.consumption.attributes.successorMustNotYetExist"
	CodeSuccessionMustNotChangeValueType   derrors.Code = "error.consumption.attributes.successionMustNotChangeValueType"
	CodeNoPreviousVersionShared            derrors.Code = "error.consumption.attributes.noOtherVersionOfRepositoryAttributeHasBeenSharedWithPeerBefore"
	CodeAlreadySharedWithPeer              derrors.Code = "error.consumption.attributes.repositoryAttributeHasAlreadyBeenSharedWithPeer"
	CodeSuccessorDoesNotSucceedPredecessor derrors.Code = "error.consumption.attributes.successorSourceDoesNotSucceedPredecessorSource"
	CodeSuccessionAlreadyApplied           derrors.Code = "error.consumption.attributes.successionAlreadyApplied"
	CodeRelationshipAttributeKeyExists     derrors.Code = "error.consumption.attributes.anotherRelationshipAttributeWithSameKeyExists"
)

func ErrPredecessorAlreadySucceeded(id domain.AttributeID) error {
	return derrors.Newf(CodePredecessorAlreadySucceeded,
		"attribute '%s' already has a successor; succeed the latest version instead", id)
}

func ErrSuccessionMustNotChangeValueType(predecessor, successor domain.ValueType) error {
	return derrors.Newf(CodeSuccessionMustNotChangeValueType,
		"the successor's value type '%s' does not match the predecessor's value type '%s'",
		successor, predecessor)
}

func ErrNoPreviousVersionShared(id domain.AttributeID, peer domain.Address) error {
	return derrors.Newf(CodeNoPreviousVersionShared,
		"no other version of attribute '%s' has been shared with peer '%s' before", id, peer)
}

func ErrAlreadySharedWithPeer(id domain.AttributeID, peer domain.Address) error {
	return derrors.Newf(CodeAlreadySharedWithPeer,
		"attribute '%s' or another version of it has already been shared with peer '%s'", id, peer)
}

func ErrSuccessorDoesNotSucceedPredecessor(successor, predecessor domain.AttributeID) error {
	return derrors.Newf(CodeSuccessorDoesNotSucceedPredecessor,
		"attribute '%s' does not succeed the already shared version '%s'", successor, predecessor)
}

func ErrSuccessionAlreadyApplied(id domain.AttributeID) error {
	return derrors.Newf(CodeSuccessionAlreadyApplied,
		"a succession of attribute '%s' has already been applied", id)
}

func ErrRelationshipAttributeKeyExists(key string) error {
	return derrors.Newf(CodeRelationshipAttributeKeyExists,
		"a relationship attribute with the key '%s' already exists for this peer", key)
}

func ErrAttributeNotFound(id domain.AttributeID) error {
	return derrors.NotFound("Attribute", id.String())
}
