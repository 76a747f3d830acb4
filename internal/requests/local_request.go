package requests

import (
	"time"

	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// Status is the lifecycle state of a local request.
type Status string

const (
	StatusDraft            Status = "Draft"
	StatusOpen             Status = "Open"
	StatusDecisionRequired Status = "DecisionRequired"
	StatusDecided          Status = "Decided"
	StatusCompleted        Status = "Completed"
	StatusExpired          Status = "Expired"
)

// Direction says which side of the negotiation this record tracks.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// SourceType is the transport object a request traveled in.
type SourceType string

const (
	SourceMessage              SourceType = "Message"
	SourceRelationshipTemplate SourceType = "RelationshipTemplate"
	SourceRelationship         SourceType = "Relationship"
)

// Source identifies the concrete transport object that carried a request.
// Incoming sources cannot be used to send a request; a request can only be
// sent by its creator.
type Source struct {
	Type      SourceType
	Reference string
	Incoming  bool
}

// LocalRequest tracks one negotiation with a peer, immutable once
// completed.
type LocalRequest struct {
	ID        domain.RequestID
	Direction Direction
	Peer      domain.Address
	CreatedAt time.Time
	Status    Status
	Content   Request
	Source    *Source
	Response  *ResponseSource
}

const (
	CodeWrongRequestStatus derrors.Code = "error.consumption.requests.wrongLocalRequestStatus"
	CodeInvalidSource      derrors.Code = "error.consumption.requests.invalidRequestSource"
	CodeRequestExpired     derrors.Code = "error.consumption.requests.requestExpired"
)

// ErrWrongStatus is the uniform precondition failure for state machine
// violations. These are thrown, never returned as validation results,
// since they indicate a protocol error rather than user input.
func ErrWrongStatus(required ...Status) error {
	text := ""
	for i, status := range required {
		if i > 0 {
			text += "/"
		}
		text += string(status)
	}
	return derrors.Newf(CodeWrongRequestStatus, "Local Request has to be in status '%s'.", text)
}

// EnsureStatus checks the current status against the allowed ones.
func (r *LocalRequest) EnsureStatus(allowed ...Status) error {
	for _, status := range allowed {
		if r.Status == status {
			return nil
		}
	}
	return ErrWrongStatus(allowed...)
}

// IsExpired reports whether the request's deadline has passed. Requests
// without a deadline never expire.
func (r *LocalRequest) IsExpired(now time.Time) bool {
	return r.Content.ExpiresAt != nil && r.Content.ExpiresAt.Before(now)
}

// ForEachItem walks the item tree in order, recursing into groups, pairing
// each request item with the response item at the same position when a
// response tree is given.
func ForEachItem(request *Request, response *Response, fn func(item *RequestItem, answer *ResponseItem) error) error {
	for i, node := range request.Items {
		switch n := node.(type) {
		case *RequestItem:
			var answer *ResponseItem
			if response != nil {
				answer = response.Items[i].(*ResponseItem)
			}
			if err := fn(n, answer); err != nil {
				return err
			}
		case *RequestItemGroup:
			var group *ResponseItemGroup
			if response != nil {
				group = response.Items[i].(*ResponseItemGroup)
			}
			for j, item := range n.Items {
				var answer *ResponseItem
				if group != nil {
					answer = group.Items[j]
				}
				if err := fn(item, answer); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
