package processors

import (
	"context"

	"peermesh/internal/attributes"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/requests"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// CreateAttributeProcessor handles items asking the recipient to create an
// attribute in its own context and share it back with the sender.
type CreateAttributeProcessor struct {
	attrs *attrservice.Service
}

func (p *CreateAttributeProcessor) CanCreateOutgoing(ctx context.Context, item *requests.RequestItem,
	_ *requests.Request, recipient domain.Address) requests.ValidationResult {
	content := item.Attribute
	sender := p.attrs.Address()

	switch content.Kind {
	case attributes.KindIdentity:
		if content.Owner.IsEmpty() || content.Owner == recipient {
			break
		}
		if recipient.IsEmpty() {
			return requests.ValidationError(requests.CodeInvalidRequestItem,
				"The owner of the provided attribute can only be an empty string or the address of the recipient. Since the recipient is not known yet, make sure the owner will match it.")
		}
		return requests.ValidationError(requests.CodeInvalidRequestItem,
			"The owner of the provided attribute is not the recipient, so the recipient cannot create it.")
	case attributes.KindRelationship:
		if !content.Owner.IsEmpty() && content.Owner != sender && content.Owner != recipient {
			return requests.ValidationError(requests.CodeInvalidRequestItem,
				"The owner of the provided attribute can only be the sender, the recipient or an empty string.")
		}
		check := resolveOwner(*content, recipient)
		taken, err := relationshipKeyTaken(ctx, p.attrs, &check, recipient)
		if err != nil {
			return requests.ValidationErrorFrom(err)
		}
		if taken {
			return keyUniquenessError(&check)
		}
	}
	return requests.ValidationSuccess()
}

func (p *CreateAttributeProcessor) CanAccept(ctx context.Context, item *requests.RequestItem,
	_ requests.AcceptParams, request *requests.LocalRequest) requests.ValidationResult {
	content := resolveOwner(*item.Attribute, p.attrs.Address())
	taken, err := relationshipKeyTaken(ctx, p.attrs, &content, request.Peer)
	if err != nil {
		return requests.ValidationErrorFrom(err)
	}
	if taken {
		return keyUniquenessError(&content)
	}
	return requests.ValidationSuccess()
}

func (p *CreateAttributeProcessor) Accept(ctx context.Context, item *requests.RequestItem,
	_ requests.AcceptParams, request *requests.LocalRequest) (*requests.ResponseItem, error) {
	content := resolveOwner(*item.Attribute, p.attrs.Address())
	role := attributes.RolePeerShared
	if content.Owner == p.attrs.Address() {
		role = attributes.RoleOwnShared
	}
	requestRef := request.ID
	created, err := p.attrs.CreateSharedCopy(ctx, attrservice.CreateSharedCopyParams{
		Role:             role,
		Content:          content,
		Peer:             request.Peer,
		RequestReference: &requestRef,
	})
	if err != nil {
		return nil, err
	}
	return &requests.ResponseItem{
		Result:      requests.ResultAccepted,
		Accept:      requests.AcceptAttribute,
		AttributeID: &created.ID,
		Attribute:   &created.Content,
	}, nil
}

func (p *CreateAttributeProcessor) ApplyIncomingResponse(ctx context.Context, answer *requests.ResponseItem,
	_ *requests.RequestItem, request *requests.LocalRequest) error {
	if answer.Result != requests.ResultAccepted {
		return nil
	}
	if answer.AttributeID == nil || answer.Attribute == nil {
		return derrors.New(derrors.CodeInvalidInput,
			"the response item does not carry the created attribute")
	}
	role := attributes.RolePeerShared
	if answer.Attribute.Owner == p.attrs.Address() {
		role = attributes.RoleOwnShared
	}
	requestRef := request.ID
	_, err := p.attrs.CreateSharedCopy(ctx, attrservice.CreateSharedCopyParams{
		ID:               answer.AttributeID,
		Role:             role,
		Content:          *answer.Attribute,
		Peer:             request.Peer,
		RequestReference: &requestRef,
	})
	return err
}
