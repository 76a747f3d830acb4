// Package service implements the local request lifecycle: the outgoing
// controller drives requests this identity creates and sends, the incoming
// controller drives requests received from peers. Both share one store and
// the processor registry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"peermesh/internal/events"
	"peermesh/internal/requests"
	"peermesh/internal/requests/metrics"
	"peermesh/internal/requests/processors"
	"peermesh/pkg/domain"
	derrors "peermesh/pkg/domain-errors"
	"peermesh/pkg/platform/sentinel"
)

var tracer = otel.Tracer("peermesh/internal/requests/service")

// engine is the plumbing shared by both controllers.
type engine struct {
	address   domain.Address
	store     requests.Store
	registry  *processors.Registry
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// OutgoingController manages requests created by the local identity.
type OutgoingController struct {
	engine
}

// IncomingController manages requests received from peers.
type IncomingController struct {
	engine
}

// NewControllers wires both controllers over one store and registry.
func NewControllers(address domain.Address, store requests.Store, registry *processors.Registry,
	publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) (*OutgoingController, *IncomingController) {
	e := engine{
		address:   address,
		store:     store,
		registry:  registry,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
	return &OutgoingController{engine: e}, &IncomingController{engine: e}
}

// load fetches a request and applies lazy expiry: a draft or open request
// whose deadline passed is upgraded to expired and persisted before it is
// returned.
func (e *engine) load(ctx context.Context, id domain.RequestID, direction requests.Direction) (*requests.LocalRequest, error) {
	request, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.NotFound("Local Request", id.String())
		}
		return nil, err
	}
	if request.Direction != direction {
		return nil, derrors.NotFound("Local Request", id.String())
	}
	return e.expireIfDue(ctx, request)
}

func (e *engine) expireIfDue(ctx context.Context, request *requests.LocalRequest) (*requests.LocalRequest, error) {
	if request.Status != requests.StatusDraft && request.Status != requests.StatusOpen {
		return request, nil
	}
	if !request.IsExpired(e.now()) {
		return request, nil
	}
	request.Status = requests.StatusExpired
	if err := e.store.Save(ctx, request); err != nil {
		return nil, err
	}
	e.metrics.IncExpired()
	e.statusChanged(request)
	return request, nil
}

func (e *engine) statusChanged(request *requests.LocalRequest) {
	e.publisher.Publish(events.New(events.RequestStatusChanged, map[string]string{
		"requestId": request.ID.String(),
		"status":    string(request.Status),
		"direction": string(request.Direction),
	}))
}

// getRequest reads one request for a direction, applying lazy expiry.
func (e *engine) getRequest(ctx context.Context, id domain.RequestID, direction requests.Direction) (*requests.LocalRequest, error) {
	return e.load(ctx, id, direction)
}

// getRequests lists requests for a direction, applying lazy expiry to
// every match.
func (e *engine) getRequests(ctx context.Context, filter requests.Filter, direction requests.Direction) ([]*requests.LocalRequest, error) {
	filter.Direction = direction
	matches, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]*requests.LocalRequest, 0, len(matches))
	for _, request := range matches {
		expired, err := e.expireIfDue(ctx, request)
		if err != nil {
			return nil, err
		}
		result = append(result, expired)
	}
	return result, nil
}

// GetRequest returns one outgoing request.
func (c *OutgoingController) GetRequest(ctx context.Context, id domain.RequestID) (*requests.LocalRequest, error) {
	return c.getRequest(ctx, id, requests.DirectionOutgoing)
}

// GetRequests lists outgoing requests matching the filter.
func (c *OutgoingController) GetRequests(ctx context.Context, filter requests.Filter) ([]*requests.LocalRequest, error) {
	return c.getRequests(ctx, filter, requests.DirectionOutgoing)
}

// GetRequest returns one incoming request.
func (c *IncomingController) GetRequest(ctx context.Context, id domain.RequestID) (*requests.LocalRequest, error) {
	return c.getRequest(ctx, id, requests.DirectionIncoming)
}

// GetRequests lists incoming requests matching the filter.
func (c *IncomingController) GetRequests(ctx context.Context, filter requests.Filter) ([]*requests.LocalRequest, error) {
	return c.getRequests(ctx, filter, requests.DirectionIncoming)
}
