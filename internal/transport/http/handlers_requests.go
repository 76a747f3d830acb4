package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"peermesh/internal/requests"
	reqservice "peermesh/internal/requests/service"
	"peermesh/pkg/domain"
)

type createRequestBody struct {
	Peer    string           `json:"peer"`
	Content requests.Request `json:"content"`
}

func (h *Handler) canCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.outgoing.CanCreate(r.Context(), reqservice.CreateParams{
		Peer:    domain.Address(body.Peer),
		Content: body.Content,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	request, err := h.outgoing.Create(r.Context(), reqservice.CreateParams{
		Peer:    domain.Address(body.Peer),
		Content: body.Content,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, request)
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (domain.RequestID, bool) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return domain.RequestID{}, false
	}
	return id, true
}

func (h *Handler) getOutgoingRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	request, err := h.outgoing.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

func (h *Handler) requestSent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var source requests.Source
	if !h.decode(w, r, &source) {
		return
	}
	request, err := h.outgoing.Sent(r.Context(), id, source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

type completeRequestBody struct {
	Response  requests.Response `json:"response"`
	CreatedAt time.Time         `json:"createdAt"`
	Reference string            `json:"reference,omitempty"`
}

func (h *Handler) completeOutgoingRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body completeRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	request, err := h.outgoing.Complete(r.Context(), id, requests.ResponseSource{
		Response:  body.Response,
		CreatedAt: body.CreatedAt,
		Reference: body.Reference,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

func (h *Handler) discardRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	if err := h.outgoing.Discard(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type receivedRequestBody struct {
	Peer    string           `json:"peer"`
	Content requests.Request `json:"content"`
	Source  requests.Source  `json:"source"`
}

func (h *Handler) requestReceived(w http.ResponseWriter, r *http.Request) {
	var body receivedRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	request, err := h.incoming.Received(r.Context(), reqservice.ReceivedParams{
		Peer:    domain.Address(body.Peer),
		Content: body.Content,
		Source:  body.Source,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, request)
}

func (h *Handler) getIncomingRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	request, err := h.incoming.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

func (h *Handler) checkPrerequisites(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	request, err := h.incoming.CheckPrerequisites(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

func (h *Handler) canAcceptRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var decision requests.Decision
	if !h.decode(w, r, &decision) {
		return
	}
	result, err := h.incoming.CanAccept(r.Context(), id, decision)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var decision requests.Decision
	if !h.decode(w, r, &decision) {
		return
	}
	request, err := h.incoming.Accept(r.Context(), id, decision)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	request, err := h.incoming.Reject(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

func (h *Handler) completeIncomingRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	request, err := h.incoming.Complete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}
