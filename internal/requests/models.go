// Package requests implements the request/response negotiation engine:
// typed request item trees, their response counterparts and the local
// request lifecycle that tracks one negotiation from draft to completion.
package requests

import (
	"time"

	"peermesh/internal/attributes"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// ItemKind is the closed set of negotiable request item kinds. Adding a
// kind means registering a processor for it; the registry refuses unknown
// kinds at construction time.
type ItemKind string

const (
	KindCreateAttribute           ItemKind = "CreateAttribute"
	KindShareAttribute            ItemKind = "ShareAttribute"
	KindProposeAttribute          ItemKind = "ProposeAttribute"
	KindReadAttribute             ItemKind = "ReadAttribute"
	KindRegisterAttributeListener ItemKind = "RegisterAttributeListener"
	KindConsent                   ItemKind = "Consent"
	KindAuthentication            ItemKind = "Authentication"
	KindFreeText                  ItemKind = "FreeText"
)

var knownKinds = map[ItemKind]bool{
	KindCreateAttribute:           true,
	KindShareAttribute:            true,
	KindProposeAttribute:          true,
	KindReadAttribute:             true,
	KindRegisterAttributeListener: true,
	KindConsent:                   true,
	KindAuthentication:            true,
	KindFreeText:                  true,
}

// RequestItem is one negotiable unit. The payload fields used depend on
// the kind; Validate checks the combination.
type RequestItem struct {
	Kind                  ItemKind
	Title                 string
	MustBeAccepted        bool
	RequireManualDecision bool

	// Attribute payload for CreateAttribute, ShareAttribute and
	// ProposeAttribute items.
	Attribute *attributes.Content
	// SourceAttribute is the repository attribute a ShareAttribute item was
	// taken from. Never sent to the peer, but carried so the sender can
	// record provenance when the response arrives.
	SourceAttribute *domain.AttributeID
	// Predecessor is the previously shared version the recipient already
	// holds, when a ShareAttribute item supersedes it.
	Predecessor *domain.AttributeID
	// Query payload for ReadAttribute and RegisterAttributeListener items.
	Query attributes.Query
	// Text payload for Consent, Authentication and FreeText items.
	Text string
}

// RequestItemGroup bundles items that belong together. A mandatory group
// must contain at least one mandatory item; a group cannot force
// acceptance of purely optional children.
type RequestItemGroup struct {
	Title          string
	MustBeAccepted bool
	Items          []*RequestItem
}

// RequestNode is either a RequestItem or a RequestItemGroup.
type RequestNode interface {
	isRequestNode()
	mandatory() bool
}

func (*RequestItem) isRequestNode()      {}
func (*RequestItemGroup) isRequestNode() {}

func (i *RequestItem) mandatory() bool      { return i.MustBeAccepted }
func (g *RequestItemGroup) mandatory() bool { return g.MustBeAccepted }

// Request is the negotiation content exchanged between two identities.
type Request struct {
	// ID is assigned by the sender when the request is created; incoming
	// requests carry the sender's id.
	ID        *domain.RequestID
	ExpiresAt *time.Time
	Items     []RequestNode
	Metadata  map[string]string
}

const (
	CodeInvalidRequestItem derrors.Code = "error.consumption.requests.invalidRequestItem"
)

// Validate checks the structural rules of the item tree.
func (r *Request) Validate() error {
	if len(r.Items) == 0 {
		return derrors.New(CodeInvalidRequestItem, "a request requires at least one item")
	}
	for _, node := range r.Items {
		switch n := node.(type) {
		case *RequestItem:
			if err := n.Validate(); err != nil {
				return err
			}
		case *RequestItemGroup:
			if len(n.Items) == 0 {
				return derrors.New(CodeInvalidRequestItem, "a request item group requires at least one item")
			}
			hasMandatory := false
			for _, item := range n.Items {
				if err := item.Validate(); err != nil {
					return err
				}
				if item.MustBeAccepted {
					hasMandatory = true
				}
			}
			if n.MustBeAccepted && !hasMandatory {
				return derrors.New(CodeInvalidRequestItem,
					"a mandatory group requires at least one mandatory item")
			}
		default:
			return derrors.New(CodeInvalidRequestItem, "unknown request node")
		}
	}
	return nil
}

// Validate checks that the payload fields match the item kind.
func (i *RequestItem) Validate() error {
	if !knownKinds[i.Kind] {
		return derrors.Newf(CodeInvalidRequestItem, "unknown request item kind '%s'", i.Kind)
	}
	switch i.Kind {
	case KindCreateAttribute, KindProposeAttribute:
		if i.Attribute == nil {
			return derrors.Newf(CodeInvalidRequestItem, "a %s item requires an attribute", i.Kind)
		}
	case KindShareAttribute:
		if i.Attribute == nil || i.SourceAttribute == nil {
			return derrors.Newf(CodeInvalidRequestItem,
				"a %s item requires an attribute and its source attribute", i.Kind)
		}
	case KindReadAttribute, KindRegisterAttributeListener:
		if len(i.Query) == 0 {
			return derrors.Newf(CodeInvalidRequestItem, "a %s item requires a query", i.Kind)
		}
	case KindConsent, KindFreeText:
		if i.Text == "" {
			return derrors.Newf(CodeInvalidRequestItem, "a %s item requires a text", i.Kind)
		}
	case KindAuthentication:
		if i.Title == "" {
			return derrors.Newf(CodeInvalidRequestItem, "an %s item requires a title", i.Kind)
		}
	}
	return nil
}
