// Package domain holds the primitive value types shared by every module:
// typed identifiers, identity addresses, and attribute value types. Values
// are constructed through Parse* functions at trust boundaries so invalid
// input never crosses into business logic.
package domain

import (
	"github.com/google/uuid"

	derrors "peermesh/pkg/domain-errors"
)

// Typed IDs prevent cross-type assignment at compile time. An AttributeID
// can never be passed where a RequestID is expected.
type (
	AttributeID    uuid.UUID
	RequestID      uuid.UUID
	NotificationID uuid.UUID
	RelationshipID uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "%s must not be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "%s is not a valid UUID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return u, nil
}

func NewAttributeID() AttributeID       { return AttributeID(uuid.New()) }
func NewRequestID() RequestID           { return RequestID(uuid.New()) }
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }
func NewRelationshipID() RelationshipID { return RelationshipID(uuid.New()) }

func ParseAttributeID(s string) (AttributeID, error) {
	u, err := parseUUID("attribute id", s)
	return AttributeID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID("request id", s)
	return RequestID(u), err
}

func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID("notification id", s)
	return NotificationID(u), err
}

func ParseRelationshipID(s string) (RelationshipID, error) {
	u, err := parseUUID("relationship id", s)
	return RelationshipID(u), err
}

func (id AttributeID) String() string    { return uuid.UUID(id).String() }
func (id RequestID) String() string      { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }
func (id RelationshipID) String() string { return uuid.UUID(id).String() }

func (id AttributeID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RelationshipID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps ids readable in JSON payloads and storage columns.

func (id AttributeID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id RequestID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id NotificationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id RelationshipID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *AttributeID) UnmarshalText(b []byte) error {
	parsed, err := ParseAttributeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *NotificationID) UnmarshalText(b []byte) error {
	parsed, err := ParseNotificationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RelationshipID) UnmarshalText(b []byte) error {
	parsed, err := ParseRelationshipID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
