package service

import (
	"context"

	"peermesh/internal/attributes"
	"peermesh/internal/requests"
	"peermesh/internal/requests/processors"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

const CodeSelfAddressed derrors.Code = "error.consumption.requests.cannotShareRequestWithYourself"

// CreateParams describes the outgoing request to create. Peer may be
// empty when the recipient is not known yet, e.g. for requests attached to
// a relationship template.
type CreateParams struct {
	Peer    domain.Address
	Content requests.Request
}

// CanCreate is the pre-flight check for Create. It returns a result tree
// with one entry per item, index-aligned with the request's items.
func (c *OutgoingController) CanCreate(ctx context.Context, params CreateParams) (requests.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "requests.CanCreate")
	defer span.End()

	if params.Peer == c.address {
		return requests.ValidationError(CodeSelfAddressed,
			"You cannot share a request with yourself."), nil
	}
	if params.Content.ExpiresAt != nil && params.Content.ExpiresAt.Before(c.now()) {
		return requests.ValidationError(requests.CodeRequestExpired,
			"The request's expiration date is in the past."), nil
	}
	if err := params.Content.Validate(); err != nil {
		return requests.ValidationErrorFrom(err), nil
	}
	if result := c.checkCrossItemKeyUniqueness(&params.Content, params.Peer); result.IsError() {
		return result, nil
	}

	var results []requests.ValidationResult
	for _, node := range params.Content.Items {
		switch n := node.(type) {
		case *requests.RequestItem:
			result, err := c.canCreateItem(ctx, n, &params.Content, params.Peer)
			if err != nil {
				return requests.ValidationResult{}, err
			}
			results = append(results, result)
		case *requests.RequestItemGroup:
			var children []requests.ValidationResult
			for _, item := range n.Items {
				result, err := c.canCreateItem(ctx, item, &params.Content, params.Peer)
				if err != nil {
					return requests.ValidationResult{}, err
				}
				children = append(children, result)
			}
			results = append(results, requests.Inherit(children))
		}
	}
	return requests.Inherit(results), nil
}

func (c *OutgoingController) canCreateItem(ctx context.Context, item *requests.RequestItem,
	request *requests.Request, recipient domain.Address) (requests.ValidationResult, error) {
	processor, err := c.registry.For(item.Kind)
	if err != nil {
		return requests.ValidationResult{}, err
	}
	return processor.CanCreateOutgoing(ctx, item, request, recipient), nil
}

// checkCrossItemKeyUniqueness rejects a request whose own items would
// violate the relationship attribute key uniqueness rule among each other.
func (c *OutgoingController) checkCrossItemKeyUniqueness(request *requests.Request,
	recipient domain.Address) requests.ValidationResult {
	type identifier struct {
		owner     domain.Address
		key       string
		valueType domain.ValueType
	}
	seen := make(map[identifier]bool)
	violated := false
	_ = requests.ForEachItem(request, nil, func(item *requests.RequestItem, _ *requests.ResponseItem) error {
		if item.Attribute == nil || item.Attribute.Kind != attributes.KindRelationship {
			return nil
		}
		owner := item.Attribute.Owner
		if owner.IsEmpty() {
			owner = recipient
		}
		id := identifier{owner: owner, key: item.Attribute.Key, valueType: item.Attribute.Value.Type}
		if seen[id] {
			violated = true
		}
		seen[id] = true
		return nil
	})
	if violated {
		return requests.ValidationError(processors.CodeKeyUniqueness,
			"The request contains multiple relationship attributes with the same key, owner and value type.")
	}
	return requests.ValidationSuccess()
}

// Create validates and persists a new draft request. Callers that skipped
// CanCreate get its failure thrown here.
func (c *OutgoingController) Create(ctx context.Context, params CreateParams) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.Create")
	defer span.End()

	result, err := c.CanCreate(ctx, params)
	if err != nil {
		return nil, err
	}
	if result.IsError() {
		if result.Code == requests.CodeInheritedFromItem {
			return nil, derrors.New(requests.CodeInheritedFromItem,
				"Some child items have errors. Call canCreate to get more information.")
		}
		return nil, derrors.New(result.Code, result.Message)
	}

	id := domain.NewRequestID()
	if params.Content.ID != nil {
		id = *params.Content.ID
	}
	content := params.Content
	content.ID = &id
	request := &requests.LocalRequest{
		ID:        id,
		Direction: requests.DirectionOutgoing,
		Peer:      params.Peer,
		CreatedAt: c.now(),
		Status:    requests.StatusDraft,
		Content:   content,
	}
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.metrics.IncCreated(string(requests.DirectionOutgoing))
	c.statusChanged(request)
	return request, nil
}

// Sent marks a draft request as handed to the transport. The source must
// be a concrete outgoing object; a request can only be sent by its
// creator.
func (c *OutgoingController) Sent(ctx context.Context, id domain.RequestID, source requests.Source) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.Sent")
	defer span.End()

	request, err := c.load(ctx, id, requests.DirectionOutgoing)
	if err != nil {
		return nil, err
	}
	if err := request.EnsureStatus(requests.StatusDraft); err != nil {
		return nil, err
	}
	if err := validateSource(source); err != nil {
		return nil, err
	}
	request.Status = requests.StatusOpen
	request.Source = &source
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.statusChanged(request)
	return request, nil
}

func validateSource(source requests.Source) error {
	switch source.Type {
	case requests.SourceMessage, requests.SourceRelationshipTemplate, requests.SourceRelationship:
	default:
		return derrors.Newf(requests.CodeInvalidSource, "unknown source type '%s'", source.Type)
	}
	if source.Reference == "" {
		return derrors.New(requests.CodeInvalidSource,
			"the request requires a concrete source object")
	}
	if source.Incoming {
		return derrors.New(requests.CodeInvalidSource,
			"a request can only be sent by its creator")
	}
	return nil
}

// Complete applies the peer's response and finishes the request. An
// expired request may still be completed when the response was created
// before the expiration date.
func (c *OutgoingController) Complete(ctx context.Context, id domain.RequestID,
	response requests.ResponseSource) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.Complete")
	defer span.End()

	request, err := c.load(ctx, id, requests.DirectionOutgoing)
	if err != nil {
		return nil, err
	}
	if err := request.EnsureStatus(requests.StatusOpen, requests.StatusExpired); err != nil {
		return nil, err
	}
	if request.Status == requests.StatusExpired && response.CreatedAt.After(*request.Content.ExpiresAt) {
		return nil, derrors.New(requests.CodeRequestExpired,
			"Cannot complete an expired request with a response that was created after the expiration date.")
	}
	if err := c.applyResponse(ctx, request, &response); err != nil {
		return nil, err
	}
	request.Response = &response
	request.Status = requests.StatusCompleted
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.metrics.IncCompleted()
	c.statusChanged(request)
	return request, nil
}

func (c *OutgoingController) applyResponse(ctx context.Context, request *requests.LocalRequest,
	response *requests.ResponseSource) error {
	if err := response.Response.MatchShape(&request.Content); err != nil {
		return err
	}
	return requests.ForEachItem(&request.Content, &response.Response,
		func(item *requests.RequestItem, answer *requests.ResponseItem) error {
			processor, err := c.registry.For(item.Kind)
			if err != nil {
				return err
			}
			return processor.ApplyIncomingResponse(ctx, answer, item, request)
		})
}

// TemplateResponseParams carries a request that traveled inside a
// relationship template together with the response already embedded in the
// peer's answer.
type TemplateResponseParams struct {
	Peer     domain.Address
	Content  requests.Request
	Source   requests.Source
	Response requests.ResponseSource
}

// CreateFromRelationshipTemplateResponse performs create, sent and
// complete in one step for requests whose response already accompanies the
// triggering object. The local request's id is taken from the response.
func (c *OutgoingController) CreateFromRelationshipTemplateResponse(ctx context.Context,
	params TemplateResponseParams) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.CreateFromRelationshipTemplateResponse")
	defer span.End()

	if err := params.Content.Validate(); err != nil {
		return nil, err
	}
	if err := validateSource(params.Source); err != nil {
		return nil, err
	}
	id := params.Response.Response.RequestID
	content := params.Content
	content.ID = &id
	request := &requests.LocalRequest{
		ID:        id,
		Direction: requests.DirectionOutgoing,
		Peer:      params.Peer,
		CreatedAt: c.now(),
		Status:    requests.StatusOpen,
		Content:   content,
		Source:    &params.Source,
	}
	if err := c.applyResponse(ctx, request, &params.Response); err != nil {
		return nil, err
	}
	request.Response = &params.Response
	request.Status = requests.StatusCompleted
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.metrics.IncCreated(string(requests.DirectionOutgoing))
	c.metrics.IncCompleted()
	c.statusChanged(request)
	return request, nil
}

// Discard removes a request that was never sent.
func (c *OutgoingController) Discard(ctx context.Context, id domain.RequestID) error {
	ctx, span := tracer.Start(ctx, "requests.Discard")
	defer span.End()

	request, err := c.load(ctx, id, requests.DirectionOutgoing)
	if err != nil {
		return err
	}
	if err := request.EnsureStatus(requests.StatusDraft); err != nil {
		return err
	}
	return c.store.Delete(ctx, request.ID)
}
