package requests

import (
	"encoding/json"
	"time"

	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

// The item trees are sum types, so persistence and transport need a type
// tag per node. Groups only ever contain plain items, which keeps the
// envelope flat.

const (
	nodeTypeItem  = "RequestItem"
	nodeTypeGroup = "RequestItemGroup"
)

type typedNode struct {
	Type string `json:"@type"`
}

type requestJSON struct {
	ID        *domain.RequestID `json:"id,omitempty"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
	Items     []json.RawMessage `json:"items"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type requestItemAlias RequestItem

type requestItemEnvelope struct {
	Type string `json:"@type"`
	requestItemAlias
}

type requestGroupEnvelope struct {
	Type           string         `json:"@type"`
	Title          string         `json:"title,omitempty"`
	MustBeAccepted bool           `json:"mustBeAccepted"`
	Items          []*RequestItem `json:"items"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	out := requestJSON{
		ID:        r.ID,
		ExpiresAt: r.ExpiresAt,
		Metadata:  r.Metadata,
		Items:     make([]json.RawMessage, 0, len(r.Items)),
	}
	for _, node := range r.Items {
		var (
			raw []byte
			err error
		)
		switch n := node.(type) {
		case *RequestItem:
			raw, err = json.Marshal(requestItemEnvelope{Type: nodeTypeItem, requestItemAlias: requestItemAlias(*n)})
		case *RequestItemGroup:
			raw, err = json.Marshal(requestGroupEnvelope{
				Type: nodeTypeGroup, Title: n.Title, MustBeAccepted: n.MustBeAccepted, Items: n.Items,
			})
		}
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, raw)
	}
	return json.Marshal(out)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var in requestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.ID = in.ID
	r.ExpiresAt = in.ExpiresAt
	r.Metadata = in.Metadata
	r.Items = nil
	for _, raw := range in.Items {
		var tag typedNode
		if err := json.Unmarshal(raw, &tag); err != nil {
			return err
		}
		switch tag.Type {
		case nodeTypeItem:
			var envelope requestItemEnvelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return err
			}
			item := RequestItem(envelope.requestItemAlias)
			r.Items = append(r.Items, &item)
		case nodeTypeGroup:
			var envelope requestGroupEnvelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return err
			}
			r.Items = append(r.Items, &RequestItemGroup{
				Title: envelope.Title, MustBeAccepted: envelope.MustBeAccepted, Items: envelope.Items,
			})
		default:
			return derrors.Newf(derrors.CodeInvalidInput, "unknown request node type '%s'", tag.Type)
		}
	}
	return nil
}

const (
	responseNodeTypeItem  = "ResponseItem"
	responseNodeTypeGroup = "ResponseItemGroup"
)

type responseJSON struct {
	RequestID domain.RequestID  `json:"requestId"`
	Items     []json.RawMessage `json:"items"`
}

type responseItemAlias ResponseItem

type responseItemEnvelope struct {
	Type string `json:"@type"`
	responseItemAlias
}

type responseGroupEnvelope struct {
	Type  string          `json:"@type"`
	Items []*ResponseItem `json:"items"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	out := responseJSON{
		RequestID: r.RequestID,
		Items:     make([]json.RawMessage, 0, len(r.Items)),
	}
	for _, node := range r.Items {
		var (
			raw []byte
			err error
		)
		switch n := node.(type) {
		case *ResponseItem:
			raw, err = json.Marshal(responseItemEnvelope{Type: responseNodeTypeItem, responseItemAlias: responseItemAlias(*n)})
		case *ResponseItemGroup:
			raw, err = json.Marshal(responseGroupEnvelope{Type: responseNodeTypeGroup, Items: n.Items})
		}
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, raw)
	}
	return json.Marshal(out)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var in responseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.RequestID = in.RequestID
	r.Items = nil
	for _, raw := range in.Items {
		var tag typedNode
		if err := json.Unmarshal(raw, &tag); err != nil {
			return err
		}
		switch tag.Type {
		case responseNodeTypeItem:
			var envelope responseItemEnvelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return err
			}
			item := ResponseItem(envelope.responseItemAlias)
			r.Items = append(r.Items, &item)
		case responseNodeTypeGroup:
			var envelope responseGroupEnvelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return err
			}
			r.Items = append(r.Items, &ResponseItemGroup{Items: envelope.Items})
		default:
			return derrors.Newf(derrors.CodeInvalidInput, "unknown response node type '%s'", tag.Type)
		}
	}
	return nil
}
