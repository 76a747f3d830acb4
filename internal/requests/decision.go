package requests

import (
	"peermesh/internal/attributes"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

const CodeInvalidDecision derrors.Code = "error.consumption.requests.decisionDoesNotMatchRequest"

// AcceptParams carries per-item input the recipient provides when
// accepting, e.g. which existing attribute answers a ReadAttribute item,
// or a fresh attribute to create for it.
type AcceptParams struct {
	ExistingAttributeID *domain.AttributeID
	NewAttribute        *attributes.Content
	Text                string
}

// ItemDecision is the recipient's verdict for one request item.
type ItemDecision struct {
	Accept bool
	Params AcceptParams
}

// DecisionNode mirrors one node of the request tree: either a single item
// decision or the decisions for a group's items.
type DecisionNode struct {
	Item  *ItemDecision
	Group []ItemDecision
}

// Decision is the recipient's full answer to a request, shape-matched to
// the request's item tree.
type Decision struct {
	Items []DecisionNode
}

// MatchShape checks that the decision tree mirrors the request tree.
func (d *Decision) MatchShape(request *Request) error {
	if len(d.Items) != len(request.Items) {
		return derrors.Newf(CodeInvalidDecision,
			"the decision has %d items but the request has %d", len(d.Items), len(request.Items))
	}
	for i, node := range request.Items {
		switch n := node.(type) {
		case *RequestItem:
			if d.Items[i].Item == nil {
				return derrors.Newf(CodeInvalidDecision, "decision %d must answer a request item", i)
			}
		case *RequestItemGroup:
			if d.Items[i].Item != nil || len(d.Items[i].Group) != len(n.Items) {
				return derrors.Newf(CodeInvalidDecision,
					"decision %d must answer a group of %d items", i, len(n.Items))
			}
		}
	}
	return nil
}

// AcceptAll builds a decision accepting every item of the request without
// per-item parameters.
func AcceptAll(request *Request) Decision {
	return decideAll(request, true)
}

// RejectAll builds a decision rejecting every item of the request.
func RejectAll(request *Request) Decision {
	return decideAll(request, false)
}

func decideAll(request *Request, accept bool) Decision {
	var decision Decision
	for _, node := range request.Items {
		switch n := node.(type) {
		case *RequestItem:
			decision.Items = append(decision.Items, DecisionNode{Item: &ItemDecision{Accept: accept}})
		case *RequestItemGroup:
			group := make([]ItemDecision, len(n.Items))
			for i := range group {
				group[i] = ItemDecision{Accept: accept}
			}
			decision.Items = append(decision.Items, DecisionNode{Group: group})
		}
	}
	return decision
}
