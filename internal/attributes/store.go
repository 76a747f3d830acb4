package attributes

import (
	"context"

	"peermesh/pkg/domain"
)

// Queryable field paths. Stores translate these to their native
// representation (map lookups in memory, columns in PostgreSQL).
const (
	FieldID              = "id"
	FieldRole            = "role"
	FieldKind            = "content.kind"
	FieldOwner           = "content.owner"
	FieldValueType       = "content.value.type"
	FieldValue           = "content.value.value"
	FieldKey             = "content.key"
	FieldParentID        = "parentId"
	FieldSucceeds        = "succeeds"
	FieldSucceededBy     = "succeededBy"
	FieldPeer            = "shareInfo.peer"
	FieldSourceAttribute = "shareInfo.sourceAttribute"
	FieldDeletionStatus  = "deletionInfo.deletionStatus"
)

// Op is a query predicate operator.
type Op string

const (
	OpEq     Op = "eq"     // field equals the single value
	OpIn     Op = "in"     // field is one of the values
	OpNotIn  Op = "notIn"  // field is set and none of the values
	OpAbsent Op = "absent" // field has no value
)

// Condition is one predicate over a field.
type Condition struct {
	Field  string
	Op     Op
	Values []string
}

// Query is a conjunction of conditions.
type Query []Condition

func Eq(field, value string) Condition      { return Condition{Field: field, Op: OpEq, Values: []string{value}} }
func In(field string, vs ...string) Condition { return Condition{Field: field, Op: OpIn, Values: vs} }
func NotIn(field string, vs ...string) Condition {
	return Condition{Field: field, Op: OpNotIn, Values: vs}
}
func Absent(field string) Condition { return Condition{Field: field, Op: OpAbsent} }

// Store is the persistence contract for attributes. Implementations are
// pure I/O; lifecycle rules live in the service.
type Store interface {
	Save(ctx context.Context, attribute *Attribute) error
	Get(ctx context.Context, id domain.AttributeID) (*Attribute, error)
	Delete(ctx context.Context, id domain.AttributeID) error
	List(ctx context.Context, query Query) ([]*Attribute, error)
}

// fieldValue resolves a queryable field on an attribute. The second return
// reports whether the field has a value at all.
func fieldValue(a *Attribute, field string) (string, bool) {
	switch field {
	case FieldID:
		return a.ID.String(), true
	case FieldRole:
		return string(a.Role), true
	case FieldKind:
		return string(a.Content.Kind), true
	case FieldOwner:
		return a.Content.Owner.String(), !a.Content.Owner.IsEmpty()
	case FieldValueType:
		return a.Content.Value.Type.String(), true
	case FieldValue:
		return a.Content.Value.Value, true
	case FieldKey:
		return a.Content.Key, a.Content.Key != ""
	case FieldParentID:
		if a.ParentID == nil {
			return "", false
		}
		return a.ParentID.String(), true
	case FieldSucceeds:
		if a.Succeeds == nil {
			return "", false
		}
		return a.Succeeds.String(), true
	case FieldSucceededBy:
		if a.SucceededBy == nil {
			return "", false
		}
		return a.SucceededBy.String(), true
	case FieldPeer:
		if a.ShareInfo == nil {
			return "", false
		}
		return a.ShareInfo.Peer.String(), true
	case FieldSourceAttribute:
		if a.ShareInfo == nil || a.ShareInfo.SourceAttribute == nil {
			return "", false
		}
		return a.ShareInfo.SourceAttribute.String(), true
	case FieldDeletionStatus:
		if a.ShareInfo == nil || a.ShareInfo.DeletionInfo == nil {
			return "", false
		}
		return string(a.ShareInfo.DeletionInfo.Status), true
	default:
		return "", false
	}
}

// Matches evaluates the query against one attribute. Shared between the
// memory store and tests.
func (q Query) Matches(a *Attribute) bool {
	for _, c := range q {
		value, present := fieldValue(a, c.Field)
		switch c.Op {
		case OpEq:
			if !present || len(c.Values) != 1 || value != c.Values[0] {
				return false
			}
		case OpIn:
			if !present || !contains(c.Values, value) {
				return false
			}
		case OpNotIn:
			if !present || contains(c.Values, value) {
				return false
			}
		case OpAbsent:
			if present {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
