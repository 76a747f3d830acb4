package processors

import (
	"context"

	"peermesh/internal/attributes"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/requests"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// ReadAttributeProcessor handles items asking the recipient to disclose an
// attribute matching a query. The recipient chooses which attribute
// answers the query, either an existing one or a freshly created one.
type ReadAttributeProcessor struct {
	attrs *attrservice.Service
}

func (p *ReadAttributeProcessor) CanCreateOutgoing(_ context.Context, _ *requests.RequestItem,
	_ *requests.Request, _ domain.Address) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *ReadAttributeProcessor) CanAccept(ctx context.Context, _ *requests.RequestItem,
	params requests.AcceptParams, _ *requests.LocalRequest) requests.ValidationResult {
	if params.ExistingAttributeID == nil && params.NewAttribute == nil {
		return requests.ValidationError(CodeInvalidAcceptParams,
			"Accepting a ReadAttribute item requires an existing attribute id or a new attribute.")
	}
	if params.ExistingAttributeID != nil {
		attribute, err := p.attrs.GetAttribute(ctx, *params.ExistingAttributeID)
		if err != nil {
			return requests.ValidationErrorFrom(err)
		}
		if attribute.Role != attributes.RoleRepository {
			return requests.ValidationError(CodeInvalidAcceptParams,
				"Only repository attributes can answer a ReadAttribute item.")
		}
	}
	return requests.ValidationSuccess()
}

func (p *ReadAttributeProcessor) Accept(ctx context.Context, _ *requests.RequestItem,
	params requests.AcceptParams, request *requests.LocalRequest) (*requests.ResponseItem, error) {
	requestRef := request.ID

	sourceID := params.ExistingAttributeID
	if sourceID == nil {
		if params.NewAttribute == nil {
			return nil, derrors.New(CodeInvalidAcceptParams,
				"Accepting a ReadAttribute item requires an existing attribute id or a new attribute. Call canAccept to get more information.")
		}
		repo, err := p.attrs.CreateRepositoryAttribute(ctx, attrservice.CreateRepositoryAttributeParams{
			Value: params.NewAttribute.Value,
		})
		if err != nil {
			return nil, err
		}
		sourceID = &repo.ID
	}

	copy, err := p.attrs.ShareRepositoryAttribute(ctx, *sourceID, request.Peer, requestRef, nil)
	if err != nil {
		if derrors.HasCode(err, attributes.CodeAlreadySharedWithPeer) {
			return p.alreadySharedAnswer(ctx, *sourceID, request.Peer)
		}
		return nil, err
	}
	return &requests.ResponseItem{
		Result:      requests.ResultAccepted,
		Accept:      requests.AcceptAttribute,
		AttributeID: &copy.ID,
		Attribute:   &copy.Content,
	}, nil
}

// alreadySharedAnswer points the sender at the copy it already holds
// instead of failing the whole acceptance.
func (p *ReadAttributeProcessor) alreadySharedAnswer(ctx context.Context,
	sourceID domain.AttributeID, peer domain.Address) (*requests.ResponseItem, error) {
	shared, err := p.attrs.GetSharedVersionsOfRepositoryAttribute(ctx, sourceID, peer)
	if err != nil {
		return nil, err
	}
	for _, copy := range shared {
		if !copy.InDeletion() {
			return &requests.ResponseItem{
				Result:      requests.ResultAccepted,
				Accept:      requests.AcceptAlreadyShared,
				AttributeID: &copy.ID,
			}, nil
		}
	}
	return nil, attributes.ErrAttributeNotFound(sourceID)
}

func (p *ReadAttributeProcessor) ApplyIncomingResponse(ctx context.Context, answer *requests.ResponseItem,
	_ *requests.RequestItem, request *requests.LocalRequest) error {
	if answer.Result != requests.ResultAccepted || answer.Accept == requests.AcceptAlreadyShared {
		return nil
	}
	if answer.AttributeID == nil || answer.Attribute == nil {
		return derrors.New(derrors.CodeInvalidInput,
			"the response item does not carry the disclosed attribute")
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
