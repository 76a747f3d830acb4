package processors

import (
	"context"

	"github.com/google/uuid"

	"peermesh/internal/requests"
	"peermesh/pkg/domain"
)

// maxConsentLength caps the free-form consent text.
const maxConsentLength = 10000

// RegisterAttributeListenerProcessor handles items asking the recipient to
// watch for attributes matching a query. The listener itself lives with
// the event infrastructure; the engine only negotiates its registration.
type RegisterAttributeListenerProcessor struct{}

func (p *RegisterAttributeListenerProcessor) CanCreateOutgoing(_ context.Context, _ *requests.RequestItem,
	_ *requests.Request, _ domain.Address) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *RegisterAttributeListenerProcessor) CanAccept(_ context.Context, _ *requests.RequestItem,
	_ requests.AcceptParams, _ *requests.LocalRequest) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *RegisterAttributeListenerProcessor) Accept(_ context.Context, _ *requests.RequestItem,
	_ requests.AcceptParams, _ *requests.LocalRequest) (*requests.ResponseItem, error) {
	answer := requests.AcceptedItem()
	answer.ListenerID = uuid.NewString()
	return answer, nil
}

func (p *RegisterAttributeListenerProcessor) ApplyIncomingResponse(_ context.Context, _ *requests.ResponseItem,
	_ *requests.RequestItem, _ *requests.LocalRequest) error {
	return nil
}

// ConsentProcessor handles plain consent items; no attribute is involved.
type ConsentProcessor struct{}

func (p *ConsentProcessor) CanCreateOutgoing(_ context.Context, item *requests.RequestItem,
	_ *requests.Request, _ domain.Address) requests.ValidationResult {
	if len(item.Text) > maxConsentLength {
		return requests.ValidationError(requests.CodeInvalidRequestItem,
			"The consent text is too long.")
	}
	return requests.ValidationSuccess()
}

func (p *ConsentProcessor) CanAccept(_ context.Context, _ *requests.RequestItem,
	_ requests.AcceptParams, _ *requests.LocalRequest) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *ConsentProcessor) Accept(_ context.Context, _ *requests.RequestItem,
	_ requests.AcceptParams, _ *requests.LocalRequest) (*requests.ResponseItem, error) {
	return requests.AcceptedItem(), nil
}

func (p *ConsentProcessor) ApplyIncomingResponse(_ context.Context, _ *requests.ResponseItem,
	_ *requests.RequestItem, _ *requests.LocalRequest) error {
	return nil
}

// AuthenticationProcessor handles items asking the recipient to confirm an
// authentication challenge by accepting.
type AuthenticationProcessor struct{}

func (p *AuthenticationProcessor) CanCreateOutgoing(_ context.Context, _ *requests.RequestItem,
	_ *requests.Request, _ domain.Address) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *AuthenticationProcessor) CanAccept(_ context.Context, _ *requests.RequestItem,
	_ requests.AcceptParams, _ *requests.LocalRequest) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *AuthenticationProcessor) Accept(_ context.Context, _ *requests.RequestItem,
	_ requests.AcceptParams, _ *requests.LocalRequest) (*requests.ResponseItem, error) {
	return requests.AcceptedItem(), nil
}

func (p *AuthenticationProcessor) ApplyIncomingResponse(_ context.Context, _ *requests.ResponseItem,
	_ *requests.RequestItem, _ *requests.LocalRequest) error {
	return nil
}

// FreeTextProcessor handles free-form text items; the acceptance may carry
// a text answer.
type FreeTextProcessor struct{}

func (p *FreeTextProcessor) CanCreateOutgoing(_ context.Context, _ *requests.RequestItem,
	_ *requests.Request, _ domain.Address) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *FreeTextProcessor) CanAccept(_ context.Context, _ *requests.RequestItem,
	_ requests.AcceptParams, _ *requests.LocalRequest) requests.ValidationResult {
	return requests.ValidationSuccess()
}

func (p *FreeTextProcessor) Accept(_ context.Context, _ *requests.RequestItem,
	params requests.AcceptParams, _ *requests.LocalRequest) (*requests.ResponseItem, error) {
	answer := requests.AcceptedItem()
	answer.Text = params.Text
	return answer, nil
}

func (p *FreeTextProcessor) ApplyIncomingResponse(_ context.Context, _ *requests.ResponseItem,
	_ *requests.RequestItem, _ *requests.LocalRequest) error {
	return nil
}
