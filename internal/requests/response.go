package requests

import (
	"time"

	"peermesh/internal/attributes"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// Result is the decision recorded for one request item.
type Result string

const (
	ResultAccepted Result = "Accepted"
	ResultRejected Result = "Rejected"
	ResultError    Result = "Error"
)

// AcceptKind distinguishes the accept payload variants a recipient may
// answer with.
type AcceptKind string

const (
	// AcceptPlain is an acceptance without attribute payload.
	AcceptPlain AcceptKind = "Plain"
	// AcceptAttribute carries the attribute materialized on the recipient's
	// side; the sender mirrors it under the same id.
	AcceptAttribute AcceptKind = "Attribute"
	// AcceptAlreadyShared points at a pre-existing shared copy instead of
	// creating a duplicate.
	AcceptAlreadyShared AcceptKind = "AttributeAlreadyShared"
	// AcceptSuccession reports that the accepted content superseded an
	// attribute both sides already held.
	AcceptSuccession AcceptKind = "AttributeSuccession"
)

// ResponseItem is the decision for one request item. Accept variants carry
// the ids both sides must agree on; rejections and errors carry a code and
// message.
type ResponseItem struct {
	Result Result
	Accept AcceptKind

	AttributeID *domain.AttributeID
	Attribute   *attributes.Content

	PredecessorID    *domain.AttributeID
	SuccessorID      *domain.AttributeID
	SuccessorContent *attributes.Content

	// ListenerID is set when a RegisterAttributeListener item is accepted.
	ListenerID string
	// Text answers a FreeText item.
	Text string

	Code    derrors.Code
	Message string
}

// AcceptedItem builds a plain acceptance.
func AcceptedItem() *ResponseItem {
	return &ResponseItem{Result: ResultAccepted, Accept: AcceptPlain}
}

// RejectedItem builds a rejection.
func RejectedItem(code derrors.Code, message string) *ResponseItem {
	return &ResponseItem{Result: ResultRejected, Code: code, Message: message}
}

// ErrorItem records a processing failure for one item.
func ErrorItem(code derrors.Code, message string) *ResponseItem {
	return &ResponseItem{Result: ResultError, Code: code, Message: message}
}

// ResponseItemGroup mirrors a RequestItemGroup.
type ResponseItemGroup struct {
	Items []*ResponseItem
}

// ResponseNode is either a ResponseItem or a ResponseItemGroup.
type ResponseNode interface{ isResponseNode() }

func (*ResponseItem) isResponseNode()      {}
func (*ResponseItemGroup) isResponseNode() {}

// Response is the recipient's decision tree for a request. Its item tree
// has the same shape as the request's.
type Response struct {
	RequestID domain.RequestID
	Items     []ResponseNode
}

const CodeResponseShapeMismatch derrors.Code = "error.consumption.requests.responseDoesNotMatchRequest"

// MatchShape checks that the response tree mirrors the request tree: same
// item count, groups in the same positions with the same child counts.
func (r *Response) MatchShape(request *Request) error {
	if len(r.Items) != len(request.Items) {
		return derrors.Newf(CodeResponseShapeMismatch,
			"the response has %d items but the request has %d", len(r.Items), len(request.Items))
	}
	for i, node := range request.Items {
		switch n := node.(type) {
		case *RequestItem:
			if _, ok := r.Items[i].(*ResponseItem); !ok {
				return derrors.Newf(CodeResponseShapeMismatch,
					"response item %d does not answer a request item", i)
			}
		case *RequestItemGroup:
			group, ok := r.Items[i].(*ResponseItemGroup)
			if !ok {
				return derrors.Newf(CodeResponseShapeMismatch,
					"response item %d does not answer a request item group", i)
			}
			if len(group.Items) != len(n.Items) {
				return derrors.Newf(CodeResponseShapeMismatch,
					"response group %d has %d items but the request group has %d",
					i, len(group.Items), len(n.Items))
			}
		}
	}
	return nil
}

// ResponseSource is a received response plus the time the peer created it,
// which decides whether an expired request may still be completed.
type ResponseSource struct {
	Response  Response
	CreatedAt time.Time
	Reference string
}
