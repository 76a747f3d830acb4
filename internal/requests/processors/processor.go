// Package processors implements the per-item-kind negotiation logic. Every
// request item kind answers the same four-phase contract: an outgoing
// pre-flight check on the sender, a pre-acceptance check and the acceptance
// itself on the recipient, and the application of the resulting response
// item back on the sender.
package processors

import (
	"context"

	"peermesh/internal/attributes"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/requests"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

const (
	CodeKeyUniqueness       derrors.Code = "error.consumption.requests.violatedKeyUniquenessOfRelationshipAttributes"
	CodeInvalidAcceptParams derrors.Code = "error.consumption.requests.invalidAcceptParameters"
)

// Processor is the four-phase contract one item kind implements.
//
// CanCreateOutgoing and CanAccept are pure pre-flight checks returning
// result trees; Accept and ApplyIncomingResponse mutate the attribute
// model and throw when a caller skipped the pre-flight phase.
type Processor interface {
	CanCreateOutgoing(ctx context.Context, item *requests.RequestItem,
		request *requests.Request, recipient domain.Address) requests.ValidationResult
	CanAccept(ctx context.Context, item *requests.RequestItem,
		params requests.AcceptParams, request *requests.LocalRequest) requests.ValidationResult
	Accept(ctx context.Context, item *requests.RequestItem,
		params requests.AcceptParams, request *requests.LocalRequest) (*requests.ResponseItem, error)
	ApplyIncomingResponse(ctx context.Context, answer *requests.ResponseItem,
		item *requests.RequestItem, request *requests.LocalRequest) error
}

// Registry dispatches items to their kind's processor. The kind set is
// closed; construction registers every kind, so a miss at runtime is a
// protocol error.
type Registry struct {
	byKind map[requests.ItemKind]Processor
}

func NewRegistry(attrs *attrservice.Service) *Registry {
	return &Registry{byKind: map[requests.ItemKind]Processor{
		requests.KindCreateAttribute:           &CreateAttributeProcessor{attrs: attrs},
		requests.KindShareAttribute:            &ShareAttributeProcessor{attrs: attrs},
		requests.KindProposeAttribute:          &ProposeAttributeProcessor{attrs: attrs},
		requests.KindReadAttribute:             &ReadAttributeProcessor{attrs: attrs},
		requests.KindRegisterAttributeListener: &RegisterAttributeListenerProcessor{},
		requests.KindConsent:                   &ConsentProcessor{},
		requests.KindAuthentication:            &AuthenticationProcessor{},
		requests.KindFreeText:                  &FreeTextProcessor{},
	}}
}

// For returns the processor for an item kind.
func (r *Registry) For(kind requests.ItemKind) (Processor, error) {
	processor, ok := r.byKind[kind]
	if !ok {
		return nil, derrors.Newf(requests.CodeInvalidRequestItem,
			"no processor registered for item kind '%s'", kind)
	}
	return processor, nil
}

// relationshipKeyTaken checks the (owner, key, value type) uniqueness rule
// for relationship facts against the persisted attributes of one
// relationship, ignoring attributes already in a deletion state.
func relationshipKeyTaken(ctx context.Context, attrs *attrservice.Service,
	content *attributes.Content, peer domain.Address) (bool, error) {
	if content.Kind != attributes.KindRelationship || peer.IsEmpty() {
		return false, nil
	}
	return attrs.HasRelationshipAttribute(ctx, content.Owner, content.Key, content.Value.Type, peer)
}

func keyUniquenessError(content *attributes.Content) requests.ValidationResult {
	return requests.ValidationError(CodeKeyUniqueness,
		"The relationship already contains an attribute with the key '"+content.Key+
			"', owner '"+content.Owner.String()+"' and value type '"+content.Value.Type.String()+"'.")
}

// resolveOwner fills an empty owner with the default for the deciding
// side.
func resolveOwner(content attributes.Content, fallback domain.Address) attributes.Content {
	if content.Owner.IsEmpty() {
		content.Owner = fallback
	}
	return content
}
