package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"peermesh/internal/notifications"
	"peermesh/pkg/domain"
)

func (h *Handler) notificationReceived(w http.ResponseWriter, r *http.Request) {
	var notification notifications.Notification
	if !h.decode(w, r, &notification) {
		return
	}
	if err := h.notifications.Receive(r.Context(), &notification); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) peerParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	peer, err := domain.ParseAddress(chi.URLParam(r, "peer"))
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return peer, true
}

func (h *Handler) establishRelationship(w http.ResponseWriter, r *http.Request) {
	peer, ok := h.peerParam(w, r)
	if !ok {
		return
	}
	relationship, err := h.relationships.Establish(r.Context(), peer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, relationship)
}

func (h *Handler) terminateRelationship(w http.ResponseWriter, r *http.Request) {
	peer, ok := h.peerParam(w, r)
	if !ok {
		return
	}
	if err := h.relationships.Terminate(r.Context(), peer); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reactivateRelationship(w http.ResponseWriter, r *http.Request) {
	peer, ok := h.peerParam(w, r)
	if !ok {
		return
	}
	if err := h.relationships.Reactivate(r.Context(), peer); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
