package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"peermesh/internal/attributes"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/pkg/domain"
)

type createAttributeRequest struct {
	Value    attributes.Value   `json:"value"`
	Children []attributes.Value `json:"children,omitempty"`
}

func (h *Handler) createRepositoryAttribute(w http.ResponseWriter, r *http.Request) {
	var body createAttributeRequest
	if !h.decode(w, r, &body) {
		return
	}
	attribute, err := h.attrs.CreateRepositoryAttribute(r.Context(), attrservice.CreateRepositoryAttributeParams{
		Value:    body.Value,
		Children: body.Children,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, attribute)
}

type createRelationshipAttributeRequest struct {
	Peer  string           `json:"peer"`
	Key   string           `json:"key"`
	Value attributes.Value `json:"value"`
}

type createRelationshipAttributeResponse struct {
	Attribute      *attributes.Attribute `json:"attribute"`
	NotificationID domain.NotificationID `json:"notificationId"`
}

func (h *Handler) createAndShareRelationshipAttribute(w http.ResponseWriter, r *http.Request) {
	var body createRelationshipAttributeRequest
	if !h.decode(w, r, &body) {
		return
	}
	peer, err := domain.ParseAddress(body.Peer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	attribute, notificationID, err := h.attrs.CreateAndShareRelationshipAttribute(r.Context(),
		attrservice.CreateAndShareRelationshipAttributeParams{
			Key:   body.Key,
			Value: body.Value,
			Peer:  peer,
		})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createRelationshipAttributeResponse{
		Attribute:      attribute,
		NotificationID: notificationID,
	})
}

func (h *Handler) attributeID(w http.ResponseWriter, r *http.Request) (domain.AttributeID, bool) {
	id, err := domain.ParseAttributeID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return domain.AttributeID{}, false
	}
	return id, true
}

func (h *Handler) getAttribute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attributeID(w, r)
	if !ok {
		return
	}
	attribute, err := h.attrs.GetAttribute(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, attribute)
}

func (h *Handler) getAttributeVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attributeID(w, r)
	if !ok {
		return
	}
	versions, err := h.attrs.GetVersionsOfAttribute(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, versions)
}

type succeedAttributeRequest struct {
	Value attributes.Value `json:"value"`
}

// succeedRepositoryAttribute dispatches on the predecessor's role:
// repository attributes get a new local version, own shared relationship
// attributes additionally announce the succession to the peer.
func (h *Handler) succeedRepositoryAttribute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attributeID(w, r)
	if !ok {
		return
	}
	var body succeedAttributeRequest
	if !h.decode(w, r, &body) {
		return
	}
	predecessor, err := h.attrs.GetAttribute(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var result *attrservice.SuccessionResult
	if predecessor.Role == attributes.RoleOwnShared && predecessor.Content.Kind == attributes.KindRelationship {
		result, _, err = h.attrs.SucceedRelationshipAttributeAndNotifyPeer(r.Context(), id, body.Value)
	} else {
		result, err = h.attrs.SucceedRepositoryAttribute(r.Context(), id, body.Value)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type notifySuccessionRequest struct {
	Peer string `json:"peer"`
}

type notifySuccessionResponse struct {
	Result         *attrservice.SuccessionResult `json:"result"`
	NotificationID domain.NotificationID         `json:"notificationId"`
}

func (h *Handler) notifyPeerAboutSuccession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attributeID(w, r)
	if !ok {
		return
	}
	var body notifySuccessionRequest
	if !h.decode(w, r, &body) {
		return
	}
	peer, err := domain.ParseAddress(body.Peer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, notificationID, err := h.attrs.NotifyPeerAboutRepositoryAttributeSuccession(r.Context(), id, peer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, notifySuccessionResponse{Result: result, NotificationID: notificationID})
}

type deleteAndNotifyResponse struct {
	NotificationIDs []domain.NotificationID `json:"notificationIds"`
}

func (h *Handler) deleteAndNotify(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attributeID(w, r)
	if !ok {
		return
	}
	notificationIDs, err := h.attrs.DeleteAttributeAndNotify(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deleteAndNotifyResponse{NotificationIDs: notificationIDs})
}

func (h *Handler) deleteRepositoryAttribute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attributeID(w, r)
	if !ok {
		return
	}
	if err := h.attrs.DeleteRepositoryAttribute(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
