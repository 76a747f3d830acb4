// Package httptransport is the thin HTTP layer over the domain services.
// Handlers decode, delegate and encode; business rules live in the
// services.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/notifications"
	"peermesh/internal/relationships"
	reqservice "peermesh/internal/requests/service"
	derrors "peermesh/pkg/domain-errors"
)

type Handler struct {
	attrs         *attrservice.Service
	outgoing      *reqservice.OutgoingController
	incoming      *reqservice.IncomingController
	notifications *notifications.Service
	relationships *relationships.Service
	logger        *slog.Logger
}

func NewHandler(attrs *attrservice.Service, outgoing *reqservice.OutgoingController,
	incoming *reqservice.IncomingController, notificationService *notifications.Service,
	relationshipService *relationships.Service, logger *slog.Logger) *Handler {
	return &Handler{
		attrs:         attrs,
		outgoing:      outgoing,
		incoming:      incoming,
		notifications: notificationService,
		relationships: relationshipService,
		logger:        logger,
	}
}

// NewRouter wires all endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/attributes", func(r chi.Router) {
			r.Post("/", h.createRepositoryAttribute)
			r.Post("/relationship", h.createAndShareRelationshipAttribute)
			r.Get("/{id}", h.getAttribute)
			r.Get("/{id}/versions", h.getAttributeVersions)
			r.Post("/{id}/succeed", h.succeedRepositoryAttribute)
			r.Post("/{id}/notify-succession", h.notifyPeerAboutSuccession)
			r.Post("/{id}/delete", h.deleteAndNotify)
			r.Delete("/{id}", h.deleteRepositoryAttribute)
		})
		r.Route("/requests", func(r chi.Router) {
			r.Route("/outgoing", func(r chi.Router) {
				r.Post("/validate", h.canCreateRequest)
				r.Post("/", h.createRequest)
				r.Get("/{id}", h.getOutgoingRequest)
				r.Post("/{id}/sent", h.requestSent)
				r.Post("/{id}/complete", h.completeOutgoingRequest)
				r.Delete("/{id}", h.discardRequest)
			})
			r.Route("/incoming", func(r chi.Router) {
				r.Post("/", h.requestReceived)
				r.Get("/{id}", h.getIncomingRequest)
				r.Post("/{id}/check-prerequisites", h.checkPrerequisites)
				r.Post("/{id}/can-accept", h.canAcceptRequest)
				r.Post("/{id}/accept", h.acceptRequest)
				r.Post("/{id}/reject", h.rejectRequest)
				r.Post("/{id}/complete", h.completeIncomingRequest)
			})
		})
		r.Post("/notifications/received", h.notificationReceived)
		r.Route("/relationships/{peer}", func(r chi.Router) {
			r.Put("/", h.establishRelationship)
			r.Post("/terminate", h.terminateRelationship)
			r.Post("/reactivate", h.reactivateRelationship)
		})
	})
	return r
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("encode response failed", "error", err.Error())
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		h.writeError(w, r, derrors.Wrap(err, derrors.CodeInvalidInput, "malformed request body"))
		return false
	}
	return true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError translates domain errors into HTTP responses. Not-found maps
// to 404, input problems to 400, violated lifecycle rules to 409,
// everything else to 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := derrors.CodeOf(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "error", err.Error())
	}
	message := err.Error()
	var de *derrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	h.writeJSON(w, status, map[string]errorBody{
		"error": {Code: string(code), Message: message},
	})
}

func statusOf(code derrors.Code) int {
	switch code {
	case derrors.CodeNotFound:
		return http.StatusNotFound
	case derrors.CodeInvalidInput:
		return http.StatusBadRequest
	case derrors.CodeInternal, derrors.CodeTimeout:
		return http.StatusInternalServerError
	default:
		// Module codes are lifecycle and protocol violations.
		return http.StatusConflict
	}
}
