package service

import (
	"context"

	"peermesh/internal/requests"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

const CodeMandatoryItemNotAccepted derrors.Code = "error.consumption.requests.mustBeAcceptedItemNotAccepted"

// ReceivedParams carries an incoming request together with the transport
// object it arrived in.
type ReceivedParams struct {
	Peer    domain.Address
	Content requests.Request
	Source  requests.Source
}

// Received records a request a peer sent. The local request keeps the
// sender's id so both sides track the negotiation under the same
// identifier.
func (c *IncomingController) Received(ctx context.Context, params ReceivedParams) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.Received")
	defer span.End()

	if params.Content.ID == nil {
		return nil, derrors.New(derrors.CodeInvalidInput,
			"an incoming request requires the sender's request id")
	}
	if err := params.Content.Validate(); err != nil {
		return nil, err
	}
	request := &requests.LocalRequest{
		ID:        *params.Content.ID,
		Direction: requests.DirectionIncoming,
		Peer:      params.Peer,
		CreatedAt: c.now(),
		Status:    requests.StatusOpen,
		Content:   params.Content,
		Source:    &params.Source,
	}
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.metrics.IncCreated(string(requests.DirectionIncoming))
	c.statusChanged(request)
	return request, nil
}

// CheckPrerequisites moves an open incoming request to the decision phase.
func (c *IncomingController) CheckPrerequisites(ctx context.Context, id domain.RequestID) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.CheckPrerequisites")
	defer span.End()

	request, err := c.load(ctx, id, requests.DirectionIncoming)
	if err != nil {
		return nil, err
	}
	if err := request.EnsureStatus(requests.StatusOpen); err != nil {
		return nil, err
	}
	request.Status = requests.StatusDecisionRequired
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.statusChanged(request)
	return request, nil
}

// CanAccept is the pre-flight check for Accept. The result tree is
// index-aligned with the request's items.
func (c *IncomingController) CanAccept(ctx context.Context, id domain.RequestID,
	decision requests.Decision) (requests.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "requests.CanAccept")
	defer span.End()

	request, err := c.load(ctx, id, requests.DirectionIncoming)
	if err != nil {
		return requests.ValidationResult{}, err
	}
	if err := request.EnsureStatus(requests.StatusDecisionRequired); err != nil {
		return requests.ValidationResult{}, err
	}
	if err := decision.MatchShape(&request.Content); err != nil {
		return requests.ValidationResult{}, err
	}

	var results []requests.ValidationResult
	for i, node := range request.Content.Items {
		switch n := node.(type) {
		case *requests.RequestItem:
			result, err := c.canAcceptItem(ctx, n, *decision.Items[i].Item, request)
			if err != nil {
				return requests.ValidationResult{}, err
			}
			results = append(results, result)
		case *requests.RequestItemGroup:
			var children []requests.ValidationResult
			for j, item := range n.Items {
				result, err := c.canAcceptItem(ctx, item, decision.Items[i].Group[j], request)
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

func (c *IncomingController) canAcceptItem(ctx context.Context, item *requests.RequestItem,
	decision requests.ItemDecision, request *requests.LocalRequest) (requests.ValidationResult, error) {
	if !decision.Accept {
		if item.MustBeAccepted {
			return requests.ValidationError(CodeMandatoryItemNotAccepted,
				"This item must be accepted."), nil
		}
		return requests.ValidationSuccess(), nil
	}
	processor, err := c.registry.For(item.Kind)
	if err != nil {
		return requests.ValidationResult{}, err
	}
	return processor.CanAccept(ctx, item, decision.Params, request), nil
}

// Accept decides the request, running every accepted item's processor and
// recording the response tree. Callers that skipped CanAccept get its
// failure thrown here.
func (c *IncomingController) Accept(ctx context.Context, id domain.RequestID,
	decision requests.Decision) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.Accept")
	defer span.End()

	result, err := c.CanAccept(ctx, id, decision)
	if err != nil {
		return nil, err
	}
	if result.IsError() {
		if result.Code == requests.CodeInheritedFromItem {
			return nil, derrors.New(requests.CodeInheritedFromItem,
				"Some child items have errors. Call canAccept to get more information.")
		}
		return nil, derrors.New(result.Code, result.Message)
	}

	request, err := c.load(ctx, id, requests.DirectionIncoming)
	if err != nil {
		return nil, err
	}
	response := requests.Response{RequestID: request.ID}
	for i, node := range request.Content.Items {
		switch n := node.(type) {
		case *requests.RequestItem:
			answer, err := c.decideItem(ctx, n, *decision.Items[i].Item, request)
			if err != nil {
				return nil, err
			}
			response.Items = append(response.Items, answer)
		case *requests.RequestItemGroup:
			group := &requests.ResponseItemGroup{}
			for j, item := range n.Items {
				answer, err := c.decideItem(ctx, item, decision.Items[i].Group[j], request)
				if err != nil {
					return nil, err
				}
				group.Items = append(group.Items, answer)
			}
			response.Items = append(response.Items, group)
		}
	}
	return c.decided(ctx, request, response, "accepted")
}

func (c *IncomingController) decideItem(ctx context.Context, item *requests.RequestItem,
	decision requests.ItemDecision, request *requests.LocalRequest) (*requests.ResponseItem, error) {
	if !decision.Accept {
		return &requests.ResponseItem{Result: requests.ResultRejected}, nil
	}
	processor, err := c.registry.For(item.Kind)
	if err != nil {
		return nil, err
	}
	return processor.Accept(ctx, item, decision.Params, request)
}

// CanReject is the pre-flight check for Reject.
func (c *IncomingController) CanReject(ctx context.Context, id domain.RequestID) (requests.ValidationResult, error) {
	request, err := c.load(ctx, id, requests.DirectionIncoming)
	if err != nil {
		return requests.ValidationResult{}, err
	}
	if err := request.EnsureStatus(requests.StatusDecisionRequired); err != nil {
		return requests.ValidationResult{}, err
	}
	return requests.ValidationSuccess(), nil
}

// Reject decides the request by rejecting every item.
func (c *IncomingController) Reject(ctx context.Context, id domain.RequestID) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.Reject")
	defer span.End()

	request, err := c.load(ctx, id, requests.DirectionIncoming)
	if err != nil {
		return nil, err
	}
	if err := request.EnsureStatus(requests.StatusDecisionRequired); err != nil {
		return nil, err
	}
	response := requests.Response{RequestID: request.ID}
	for _, node := range request.Content.Items {
		switch n := node.(type) {
		case *requests.RequestItem:
			response.Items = append(response.Items, &requests.ResponseItem{Result: requests.ResultRejected})
		case *requests.RequestItemGroup:
			group := &requests.ResponseItemGroup{}
			for range n.Items {
				group.Items = append(group.Items, &requests.ResponseItem{Result: requests.ResultRejected})
			}
			response.Items = append(response.Items, group)
		}
	}
	return c.decided(ctx, request, response, "rejected")
}

func (c *IncomingController) decided(ctx context.Context, request *requests.LocalRequest,
	response requests.Response, decision string) (*requests.LocalRequest, error) {
	request.Response = &requests.ResponseSource{Response: response, CreatedAt: c.now()}
	request.Status = requests.StatusDecided
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.metrics.IncDecided(decision)
	c.statusChanged(request)
	return request, nil
}

// Complete marks a decided request as answered once the response left
// through the transport.
func (c *IncomingController) Complete(ctx context.Context, id domain.RequestID) (*requests.LocalRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.Complete")
	defer span.End()

	request, err := c.load(ctx, id, requests.DirectionIncoming)
	if err != nil {
		return nil, err
	}
	if err := request.EnsureStatus(requests.StatusDecided); err != nil {
		return nil, err
	}
	request.Status = requests.StatusCompleted
	if err := c.store.Save(ctx, request); err != nil {
		return nil, err
	}
	c.metrics.IncCompleted()
	c.statusChanged(request)
	return request, nil
}
