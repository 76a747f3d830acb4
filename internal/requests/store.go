package requests

import (
	"context"

	"peermesh/pkg/domain"
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status          []Status
	Peer            domain.Address
	Direction       Direction
	SourceReference string
}

// Matches reports whether the request satisfies every set filter field.
func (f Filter) Matches(r *LocalRequest) bool {
	if len(f.Status) > 0 {
		found := false
		for _, status := range f.Status {
			if r.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Peer.IsEmpty() && r.Peer != f.Peer {
		return false
	}
	if f.Direction != "" && r.Direction != f.Direction {
		return false
	}
	if f.SourceReference != "" && (r.Source == nil || r.Source.Reference != f.SourceReference) {
		return false
	}
	return true
}

// Store persists local requests. Implementations return
// sentinel.ErrNotFound for unknown ids.
type Store interface {
	Save(ctx context.Context, request *LocalRequest) error
	Get(ctx context.Context, id domain.RequestID) (*LocalRequest, error)
	Delete(ctx context.Context, id domain.RequestID) error
	List(ctx context.Context, filter Filter) ([]*LocalRequest, error)
}
