package processors

import (
	"context"

	"peermesh/internal/attributes"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/requests"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// ShareAttributeProcessor handles items carrying a copy of one of the
// sender's repository attributes for the recipient to adopt.
type ShareAttributeProcessor struct {
	attrs *attrservice.Service
}

func (p *ShareAttributeProcessor) CanCreateOutgoing(ctx context.Context, item *requests.RequestItem,
	_ *requests.Request, recipient domain.Address) requests.ValidationResult {
	source, err := p.attrs.GetAttribute(ctx, *item.SourceAttribute)
	if err != nil {
		return requests.ValidationErrorFrom(err)
	}
	if source.Role != attributes.RoleRepository {
		return requests.ValidationError(requests.CodeInvalidRequestItem,
			"Only repository attributes can be shared.")
	}
	if !source.IsLatest() {
		return requests.ValidationError(requests.CodeInvalidRequestItem,
			"Only the latest version of an attribute can be shared.")
	}
	if recipient.IsEmpty() {
		return requests.ValidationSuccess()
	}
	shared, err := p.attrs.GetSharedVersionsOfRepositoryAttribute(ctx, source.ID, recipient)
	if err != nil {
		return requests.ValidationErrorFrom(err)
	}
	for _, copy := range shared {
		if !copy.InDeletion() {
			return requests.ValidationErrorFrom(attributes.ErrAlreadySharedWithPeer(source.ID, recipient))
		}
	}
	return requests.ValidationSuccess()
}

func (p *ShareAttributeProcessor) CanAccept(ctx context.Context, item *requests.RequestItem,
	_ requests.AcceptParams, request *requests.LocalRequest) requests.ValidationResult {
	if item.Predecessor == nil {
		return requests.ValidationSuccess()
	}
	predecessor, err := p.attrs.GetAttribute(ctx, *item.Predecessor)
	if err != nil {
		return requests.ValidationErrorFrom(err)
	}
	if predecessor.Peer() != request.Peer {
		return requests.ValidationError(requests.CodeInvalidRequestItem,
			"The predecessor is not shared with the peer of this request.")
	}
	if !predecessor.IsLatest() {
		return requests.ValidationErrorFrom(attributes.ErrSuccessionAlreadyApplied(predecessor.ID))
	}
	return requests.ValidationSuccess()
}

func (p *ShareAttributeProcessor) Accept(ctx context.Context, item *requests.RequestItem,
	_ requests.AcceptParams, request *requests.LocalRequest) (*requests.ResponseItem, error) {
	requestRef := request.ID

	// The shared content may supersede a version the recipient already
	// holds; then the acceptance is a local succession, not a new copy.
	if item.Predecessor != nil {
		result, err := p.attrs.SucceedSharedCopy(ctx, attrservice.SucceedSharedCopyParams{
			PredecessorID:    *item.Predecessor,
			Content:          *item.Attribute,
			Peer:             request.Peer,
			RequestReference: &requestRef,
		})
		if err != nil {
			return nil, err
		}
		return &requests.ResponseItem{
			Result:           requests.ResultAccepted,
			Accept:           requests.AcceptSuccession,
			PredecessorID:    &result.Predecessor.ID,
			SuccessorID:      &result.Successor.ID,
			SuccessorContent: &result.Successor.Content,
		}, nil
	}

	existing, err := p.existingCopy(ctx, item.Attribute, request.Peer)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &requests.ResponseItem{
			Result:      requests.ResultAccepted,
			Accept:      requests.AcceptAlreadyShared,
			AttributeID: &existing.ID,
		}, nil
	}

	created, err := p.attrs.CreateSharedCopy(ctx, attrservice.CreateSharedCopyParams{
		Role:             attributes.RolePeerShared,
		Content:          *item.Attribute,
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

// existingCopy finds a non-deleted copy of the same fact already received
// from the peer, so re-sharing does not create duplicates.
func (p *ShareAttributeProcessor) existingCopy(ctx context.Context,
	content *attributes.Content, peer domain.Address) (*attributes.Attribute, error) {
	matches, err := p.attrs.GetAttributes(ctx, attributes.Query{
		attributes.Eq(attributes.FieldRole, string(attributes.RolePeerShared)),
		attributes.Eq(attributes.FieldPeer, peer.String()),
		attributes.Eq(attributes.FieldOwner, content.Owner.String()),
		attributes.Eq(attributes.FieldValueType, content.Value.Type.String()),
		attributes.Eq(attributes.FieldValue, content.Value.Value),
		attributes.Absent(attributes.FieldDeletionStatus),
	})
	if err != nil {
		return nil, err
	}
	for _, match := range matches {
		if match.IsLatest() {
			return match, nil
		}
	}
	return nil, nil
}

func (p *ShareAttributeProcessor) ApplyIncomingResponse(ctx context.Context, answer *requests.ResponseItem,
	item *requests.RequestItem, request *requests.LocalRequest) error {
	if answer.Result != requests.ResultAccepted {
		return nil
	}
	requestRef := request.ID
	switch answer.Accept {
	case requests.AcceptAlreadyShared:
		// The recipient already held a copy; the sender's own copy exists too.
		return nil
	case requests.AcceptSuccession:
		if answer.PredecessorID == nil || answer.SuccessorID == nil || answer.SuccessorContent == nil {
			return derrors.New(derrors.CodeInvalidInput,
				"the response item does not carry the succession ids")
		}
		_, err := p.attrs.SucceedSharedCopy(ctx, attrservice.SucceedSharedCopyParams{
			PredecessorID:    *answer.PredecessorID,
			SuccessorID:      *answer.SuccessorID,
			Content:          *answer.SuccessorContent,
			Peer:             request.Peer,
			SourceAttribute:  item.SourceAttribute,
			RequestReference: &requestRef,
		})
		return err
	default:
		if answer.AttributeID == nil {
			return derrors.New(derrors.CodeInvalidInput,
				"the response item does not carry the shared attribute id")
		}
		_, err := p.attrs.CreateSharedCopy(ctx, attrservice.CreateSharedCopyParams{
			ID:               answer.AttributeID,
			Role:             attributes.RoleOwnShared,
			Content:          *item.Attribute,
			Peer:             request.Peer,
			SourceAttribute:  item.SourceAttribute,
			RequestReference: &requestRef,
		})
		return err
	}
}
