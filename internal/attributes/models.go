// Package attributes implements the attribute data model and its
// versioning, sharing and deletion lifecycle. Attributes are either
// identity facts owned by the local identity or relationship-scoped facts
// negotiated with a peer; shared copies carry provenance back to the
// exchange that produced them.
package attributes

import (
	"time"

	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// Role says in what capacity the local identity holds an attribute. One
// struct with a role tag replaces a subclass-per-role hierarchy; code that
// cares about the role switches exhaustively over it.
type Role string

const (
	// RoleRepository is an identity fact owned locally, not yet shared.
	RoleRepository Role = "repository"
	// RoleOwnShared is the local copy of an attribute the local identity
	// shared with a peer.
	RoleOwnShared Role = "own_shared"
	// RolePeerShared is the local copy of an attribute a peer shared with
	// the local identity.
	RolePeerShared Role = "peer_shared"
	// RoleThirdParty is a relationship attribute owned by a third party,
	// known through an intermediary relationship.
	RoleThirdParty Role = "third_party"
	// RoleForwarded is an attribute relayed through an intermediary.
	RoleForwarded Role = "forwarded"
)

// ContentKind distinguishes identity facts from relationship facts.
type ContentKind string

const (
	KindIdentity     ContentKind = "identity"
	KindRelationship ContentKind = "relationship"
)

// Value is the typed payload of an attribute.
type Value struct {
	Type  domain.ValueType
	Value string
}

// Content is the fact an attribute states: who owns it and what it says.
// Key is only set for relationship facts, where (owner, key, value type)
// must be unique among non-deleted attributes of one relationship.
type Content struct {
	Kind  ContentKind
	Owner domain.Address
	Value Value
	Key   string
}

// ShareInfo records the provenance of a shared copy: which peer it was
// exchanged with and through which exchange. Exactly one of
// RequestReference and NotificationReference is set.
type ShareInfo struct {
	Peer                  domain.Address
	RequestReference      *domain.RequestID
	NotificationReference *domain.NotificationID
	SharedAt              time.Time
	// SourceAttribute points back at the repository attribute this copy was
	// taken from. Present only for shared copies of identity facts.
	SourceAttribute *domain.AttributeID
	DeletionInfo    *DeletionInfo
}

// Validate enforces the reference XOR rule.
func (s *ShareInfo) Validate() error {
	if s.Peer.IsEmpty() {
		return derrors.New(derrors.CodeInvalidInput, "share info requires a peer")
	}
	hasRequest := s.RequestReference != nil
	hasNotification := s.NotificationReference != nil
	if hasRequest == hasNotification {
		return derrors.New(derrors.CodeInvalidInput,
			"share info requires exactly one of request reference and notification reference")
	}
	return nil
}

// Attribute is one version of a fact. Succession links versions into a
// singly linked chain; at most one attribute per chain has no successor.
type Attribute struct {
	ID        domain.AttributeID
	Role      Role
	Content   Content
	CreatedAt time.Time
	// Succeeds and SucceededBy link the version chain.
	Succeeds    *domain.AttributeID
	SucceededBy *domain.AttributeID
	// ParentID groups the children of a complex attribute, e.g. the street
	// and city parts of an address.
	ParentID  *domain.AttributeID
	ShareInfo *ShareInfo
}

// IsShared reports whether this attribute is a copy exchanged with a peer.
func (a *Attribute) IsShared() bool { return a.ShareInfo != nil }

// IsLatest reports whether this is the newest version of its chain.
func (a *Attribute) IsLatest() bool { return a.SucceededBy == nil }

// InDeletion reports whether any deletion status has been recorded. The
// relationship-attribute key uniqueness rule ignores attributes in deletion.
func (a *Attribute) InDeletion() bool {
	return a.ShareInfo != nil && a.ShareInfo.DeletionInfo != nil
}

// Peer returns the peer of the share, or the empty address for repository
// attributes.
func (a *Attribute) Peer() domain.Address {
	if a.ShareInfo == nil {
		return ""
	}
	return a.ShareInfo.Peer
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}

// clone returns a deep copy, so the in-memory store can hand out records
// without sharing pointer state with the stored ones.
func (a *Attribute) clone() *Attribute {
	copied := *a
	copied.Succeeds = clonePtr(a.Succeeds)
	copied.SucceededBy = clonePtr(a.SucceededBy)
	copied.ParentID = clonePtr(a.ParentID)
	if a.ShareInfo != nil {
		shareInfo := *a.ShareInfo
		shareInfo.RequestReference = clonePtr(a.ShareInfo.RequestReference)
		shareInfo.NotificationReference = clonePtr(a.ShareInfo.NotificationReference)
		shareInfo.SourceAttribute = clonePtr(a.ShareInfo.SourceAttribute)
		shareInfo.DeletionInfo = clonePtr(a.ShareInfo.DeletionInfo)
		copied.ShareInfo = &shareInfo
	}
	return &copied
}

// Validate checks the structural rules that must hold for every persisted
// attribute, independent of lifecycle state.
func (a *Attribute) Validate() error {
	if a.ID.IsNil() {
		return derrors.New(derrors.CodeInvalidInput, "attribute requires an id")
	}
	if a.Content.Value.Type == "" {
		return derrors.New(derrors.CodeInvalidInput, "attribute requires a value type")
	}
	switch a.Content.Kind {
	case KindIdentity:
		if a.Content.Key != "" {
			return derrors.New(derrors.CodeInvalidInput, "identity facts must not carry a key")
		}
	case KindRelationship:
		if a.Content.Owner.IsEmpty() {
			return derrors.New(derrors.CodeInvalidInput, "relationship facts require an owner")
		}
	default:
		return derrors.Newf(derrors.CodeInvalidInput, "unknown content kind '%s'", a.Content.Kind)
	}
	switch a.Role {
	case RoleRepository:
		if a.ShareInfo != nil {
			return derrors.New(derrors.CodeInvalidInput, "repository attributes must not carry share info")
		}
	case RoleOwnShared, RolePeerShared, RoleThirdParty, RoleForwarded:
		if a.ShareInfo == nil {
			return derrors.Newf(derrors.CodeInvalidInput, "%s attributes require share info", a.Role)
		}
		if err := a.ShareInfo.Validate(); err != nil {
			return err
		}
		if a.Content.Kind == KindRelationship && a.ShareInfo.SourceAttribute != nil {
			return derrors.New(derrors.CodeInvalidInput,
				"relationship facts must not reference a source attribute")
		}
	default:
		return derrors.Newf(derrors.CodeInvalidInput, "unknown role '%s'", a.Role)
	}
	return nil
}
