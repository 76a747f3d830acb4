package requests

import (
	"peermesh/internal/attributes"
)

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}

// clone returns a deep copy, so the in-memory store can hand out records
// without sharing pointer state with the stored ones.
func (r *LocalRequest) clone() *LocalRequest {
	copied := *r
	copied.Content = *r.Content.clone()
	copied.Source = clonePtr(r.Source)
	if r.Response != nil {
		response := *r.Response
		response.Response.Items = cloneResponseNodes(r.Response.Response.Items)
		copied.Response = &response
	}
	return &copied
}

func (r *Request) clone() *Request {
	copied := *r
	copied.ID = clonePtr(r.ID)
	copied.ExpiresAt = clonePtr(r.ExpiresAt)
	if r.Metadata != nil {
		copied.Metadata = make(map[string]string, len(r.Metadata))
		for key, value := range r.Metadata {
			copied.Metadata[key] = value
		}
	}
	if r.Items != nil {
		copied.Items = make([]RequestNode, len(r.Items))
		for i, node := range r.Items {
			switch n := node.(type) {
			case *RequestItem:
				copied.Items[i] = n.clone()
			case *RequestItemGroup:
				group := *n
				group.Items = make([]*RequestItem, len(n.Items))
				for j, item := range n.Items {
					group.Items[j] = item.clone()
				}
				copied.Items[i] = &group
			}
		}
	}
	return &copied
}

func (i *RequestItem) clone() *RequestItem {
	copied := *i
	copied.Attribute = clonePtr(i.Attribute)
	copied.SourceAttribute = clonePtr(i.SourceAttribute)
	copied.Predecessor = clonePtr(i.Predecessor)
	if i.Query != nil {
		copied.Query = make(attributes.Query, len(i.Query))
		for j, condition := range i.Query {
			condition.Values = append([]string(nil), condition.Values...)
			copied.Query[j] = condition
		}
	}
	return &copied
}

func (i *ResponseItem) clone() *ResponseItem {
	copied := *i
	copied.AttributeID = clonePtr(i.AttributeID)
	copied.Attribute = clonePtr(i.Attribute)
	copied.PredecessorID = clonePtr(i.PredecessorID)
	copied.SuccessorID = clonePtr(i.SuccessorID)
	copied.SuccessorContent = clonePtr(i.SuccessorContent)
	return &copied
}

func cloneResponseNodes(nodes []ResponseNode) []ResponseNode {
	copied := make([]ResponseNode, len(nodes))
	for i, node := range nodes {
		switch n := node.(type) {
		case *ResponseItem:
			copied[i] = n.clone()
		case *ResponseItemGroup:
			group := &ResponseItemGroup{Items: make([]*ResponseItem, len(n.Items))}
			for j, item := range n.Items {
				group.Items[j] = item.clone()
			}
			copied[i] = group
		}
	}
	return copied
}
