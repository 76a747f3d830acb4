// Package notifications is the lighter one-way protocol path: succession,
// deletion and sharing announcements that do not need a full
// request/response negotiation. Outbound notifications for a terminated relationship are held
// and redelivered FIFO when the relationship reactivates.
package notifications

import (
	"time"

	"peermesh/internal/attributes"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
)

type ItemKind string

const (
	ItemSuccession ItemKind = "succession"
	ItemDeletion   ItemKind = "deletion"
	ItemShared     ItemKind = "shared"
)

// Item is one announcement inside a notification. Succession items carry the
// predecessor id plus the successor's id and content; deletion items carry
// the target id and the status the peer should record; shared items carry
// the content of a newly shared attribute under its agreed id.
type Item struct {
	Kind             ItemKind                  `json:"kind"`
	AttributeID      domain.AttributeID        `json:"attributeId"`
	SuccessorID      *domain.AttributeID       `json:"successorId,omitempty"`
	SuccessorContent *attributes.Content       `json:"successorContent,omitempty"`
	Content          *attributes.Content       `json:"content,omitempty"`
	DeletionStatus   attributes.DeletionStatus `json:"deletionStatus,omitempty"`
	DeletionDate     time.Time                 `json:"deletionDate,omitzero"`
}

type Notification struct {
	ID        domain.NotificationID `json:"id"`
	Peer      domain.Address        `json:"peer"`
	Items     []Item                `json:"items"`
	CreatedAt time.Time             `json:"createdAt"`
}

// New builds an outbound notification for the peer.
func New(peer domain.Address, items ...Item) *Notification {
	return &Notification{
		ID:        domain.NewNotificationID(),
		Peer:      peer,
		Items:     items,
		CreatedAt: time.Now(),
	}
}

const CodeInvalidNotification derrors.Code = "error.consumption.notifications.invalidNotification"

func (n *Notification) Validate() error {
	if n.Peer.IsEmpty() {
		return derrors.New(CodeInvalidNotification, "notification requires a peer")
	}
	if len(n.Items) == 0 {
		return derrors.New(CodeInvalidNotification, "notification requires at least one item")
	}
	for _, item := range n.Items {
		switch item.Kind {
		case ItemSuccession:
			if item.SuccessorID == nil || item.SuccessorContent == nil {
				return derrors.New(CodeInvalidNotification,
					"succession items require a successor id and content")
			}
		case ItemDeletion:
			if item.DeletionStatus == "" {
				return derrors.New(CodeInvalidNotification,
					"deletion items require a deletion status")
			}
		case ItemShared:
			if item.Content == nil {
				return derrors.New(CodeInvalidNotification,
					"shared items require the attribute content")
			}
		default:
			return derrors.Newf(CodeInvalidNotification, "unknown item kind '%s'", item.Kind)
		}
	}
	return nil
}
