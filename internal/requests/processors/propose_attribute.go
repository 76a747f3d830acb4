package processors

import (
	"context"

	"peermesh/internal/attributes"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/requests"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// ProposeAttributeProcessor handles items proposing an attribute for the
// recipient to adopt as its own. The recipient may accept the proposal
// as-is or answer with an edited value.
type ProposeAttributeProcessor struct {
	attrs *attrservice.Service
}

func (p *ProposeAttributeProcessor) CanCreateOutgoing(_ context.Context, item *requests.RequestItem,
	_ *requests.Request, recipient domain.Address) requests.ValidationResult {
	if len(item.Query) == 0 {
		return requests.ValidationError(requests.CodeInvalidRequestItem,
			"A ProposeAttribute item requires a query describing the proposed attribute.")
	}
	owner := item.Attribute.Owner
	if !owner.IsEmpty() && owner != recipient {
		if recipient.IsEmpty() {
			return requests.ValidationError(requests.CodeInvalidRequestItem,
				"The owner of the proposed attribute can only be an empty string or the address of the recipient. Since the recipient is not known yet, make sure the owner will match it.")
		}
		return requests.ValidationError(requests.CodeInvalidRequestItem,
			"The owner of the proposed attribute must be the recipient; proposals are adopted by the recipient.")
	}
	return requests.ValidationSuccess()
}

func (p *ProposeAttributeProcessor) CanAccept(ctx context.Context, item *requests.RequestItem,
	params requests.AcceptParams, request *requests.LocalRequest) requests.ValidationResult {
	content := item.Attribute
	if params.NewAttribute != nil {
		content = params.NewAttribute
		if content.Value.Type != item.Attribute.Value.Type {
			return requests.ValidationError(CodeInvalidAcceptParams,
				"The accepted attribute must keep the proposed value type.")
		}
	}
	resolved := resolveOwner(*content, p.attrs.Address())
	if resolved.Owner != p.attrs.Address() {
		return requests.ValidationError(CodeInvalidAcceptParams,
			"The owner of the accepted attribute must be the local identity.")
	}
	taken, err := relationshipKeyTaken(ctx, p.attrs, &resolved, request.Peer)
	if err != nil {
		return requests.ValidationErrorFrom(err)
	}
	if taken {
		return keyUniquenessError(&resolved)
	}
	return requests.ValidationSuccess()
}

func (p *ProposeAttributeProcessor) Accept(ctx context.Context, item *requests.RequestItem,
	params requests.AcceptParams, request *requests.LocalRequest) (*requests.ResponseItem, error) {
	content := item.Attribute
	if params.NewAttribute != nil {
		content = params.NewAttribute
	}
	resolved := resolveOwner(*content, p.attrs.Address())
	requestRef := request.ID

	var copy *attributes.Attribute
	switch resolved.Kind {
	case attributes.KindIdentity:
		// Adopting an identity proposal creates the repository attribute and
		// the shared copy toward the sender in one step.
		repo, err := p.attrs.CreateRepositoryAttribute(ctx, attrservice.CreateRepositoryAttributeParams{
			Value: resolved.Value,
		})
		if err != nil {
			return nil, err
		}
		copy, err = p.attrs.ShareRepositoryAttribute(ctx, repo.ID, request.Peer, requestRef, nil)
		if err != nil {
			return nil, err
		}
	case attributes.KindRelationship:
		created, err := p.attrs.CreateSharedCopy(ctx, attrservice.CreateSharedCopyParams{
			Role:             attributes.RoleOwnShared,
			Content:          resolved,
			Peer:             request.Peer,
			RequestReference: &requestRef,
		})
		if err != nil {
			return nil, err
		}
		copy = created
	default:
		return nil, derrors.Newf(derrors.CodeInvalidInput, "unknown content kind '%s'", resolved.Kind)
	}
	return &requests.ResponseItem{
		Result:      requests.ResultAccepted,
		Accept:      requests.AcceptAttribute,
		AttributeID: &copy.ID,
		Attribute:   &copy.Content,
	}, nil
}

func (p *ProposeAttributeProcessor) ApplyIncomingResponse(ctx context.Context, answer *requests.ResponseItem,
	_ *requests.RequestItem, request *requests.LocalRequest) error {
	if answer.Result != requests.ResultAccepted {
		return nil
	}
	if answer.AttributeID == nil || answer.Attribute == nil {
		return derrors.New(derrors.CodeInvalidInput,
			"the response item does not carry the adopted attribute")
	}
	requestRef := request.ID
	_, err := p.attrs.CreateSharedCopy(ctx, attrservice.CreateSharedCopyParams{
		ID:               answer.AttributeID,
		Role:             attributes.RolePeerShared,
		Content:          *answer.Attribute,
		Peer:             request.Peer,
		RequestReference: &requestRef,
	})
	return err
}
