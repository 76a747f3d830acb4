package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peermesh/internal/attributes"
	attrmetrics "peermesh/internal/attributes/metrics"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/events"
	"peermesh/internal/notifications"
	"peermesh/internal/relationships"
	"peermesh/internal/requests"
	reqmetrics "peermesh/internal/requests/metrics"
	"peermesh/internal/requests/processors"
	reqservice "peermesh/internal/requests/service"
	"peermesh/pkg/domain"
	"peermesh/pkg/testutil"
)

var (
	testAttrMetrics    = attrmetrics.New()
	testRequestMetrics = reqmetrics.New()
)

// lateDispatcher breaks the attributes/notifications construction cycle:
// the attributes service needs a dispatcher before the notification
// service, which needs the attributes service as applier, exists.
type lateDispatcher struct {
	target attrservice.NotificationDispatcher
}

func (d *lateDispatcher) Dispatch(ctx context.Context, n *notifications.Notification) error {
	return d.target.Dispatch(ctx, n)
}

type nopSender struct{}

func (nopSender) Send(context.Context, *notifications.Notification) error { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	publisher := events.NopPublisher{}

	dispatcher := &lateDispatcher{}
	attrs := attrservice.NewService("did:mesh:alice", attributes.NewInMemoryStore(),
		dispatcher, publisher, testAttrMetrics, logger)
	relationshipService := relationships.NewService(relationships.NewInMemoryStore(), logger)
	notificationService := notifications.NewService(nopSender{}, notifications.NewInMemoryQueue(),
		relationshipService, attrs, publisher, logger)
	dispatcher.target = notificationService

	outgoing, incoming := reqservice.NewControllers("did:mesh:alice", requests.NewInMemoryStore(),
		processors.NewRegistry(attrs), publisher, testRequestMetrics, logger)
	return NewRouter(NewHandler(attrs, outgoing, incoming, notificationService, relationshipService, logger))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoRequest(router, testutil.NewJSONRequest(t, method, path, body))
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	body := testutil.UnmarshalResponse[map[string]errorBody](t, recorder)
	return (*body)["error"].Code
}

func TestAttributeEndpoints(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/v1/attributes", createAttributeRequest{
		Value: attributes.Value{Type: domain.ValueTypeGivenName, Value: "Petra"},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	var created attributes.Attribute
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	assert.Equal(t, attributes.RoleRepository, created.Role)

	t.Run("created attributes are readable", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodGet, "/v1/attributes/"+created.ID.String(), nil)
		require.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("unknown ids yield 404", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodGet, "/v1/attributes/"+domain.NewAttributeID().String(), nil)
		require.Equal(t, http.StatusNotFound, recorder.Code)
		assert.Equal(t, "error.platform.recordNotFound", errorCode(t, recorder))
	})

	t.Run("malformed ids yield 400", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodGet, "/v1/attributes/not-a-uuid", nil)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("relationship attributes are created and announced", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodPost, "/v1/attributes/relationship", createRelationshipAttributeRequest{
			Peer:  "did:mesh:bob",
			Key:   "customerId",
			Value: attributes.Value{Type: domain.ValueTypeProprietaryString, Value: "C-1"},
		})
		require.Equal(t, http.StatusCreated, recorder.Code)
		created := testutil.UnmarshalResponse[createRelationshipAttributeResponse](t, recorder)
		require.NotNil(t, created.Attribute)
		assert.Equal(t, attributes.RoleOwnShared, created.Attribute.Role)
	})

	t.Run("succession returns both versions", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodPost,
			"/v1/attributes/"+created.ID.String()+"/succeed", succeedAttributeRequest{
				Value: attributes.Value{Type: domain.ValueTypeGivenName, Value: "Tina"},
			})
		require.Equal(t, http.StatusOK, recorder.Code)

		recorder = doJSON(t, router, http.MethodGet, "/v1/attributes/"+created.ID.String()+"/versions", nil)
		require.Equal(t, http.StatusOK, recorder.Code)
		var versions []attributes.Attribute
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &versions))
		assert.Len(t, versions, 2)
	})
}

func TestRequestEndpoints(t *testing.T) {
	router := newTestRouter(t)

	content := requests.Request{Items: []requests.RequestNode{
		&requests.RequestItem{Kind: requests.KindFreeText, Text: "hello"},
	}}
	recorder := doJSON(t, router, http.MethodPost, "/v1/requests/outgoing/", createRequestBody{
		Peer: "did:mesh:bob", Content: content,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	var created requests.LocalRequest
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	assert.Equal(t, requests.StatusDraft, created.Status)

	base := "/v1/requests/outgoing/" + created.ID.String()

	t.Run("sending moves the request to open", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodPost, base+"/sent",
			requests.Source{Type: requests.SourceMessage, Reference: "msg-1"})
		require.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("state machine violations yield 409", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodPost, base+"/sent",
			requests.Source{Type: requests.SourceMessage, Reference: "msg-2"})
		require.Equal(t, http.StatusConflict, recorder.Code)
		assert.Equal(t, string(requests.CodeWrongRequestStatus), errorCode(t, recorder))
	})

	t.Run("sent requests cannot be discarded", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodDelete, base, nil)
		require.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("self addressed requests yield 409", func(t *testing.T) {
		recorder := doJSON(t, router, http.MethodPost, "/v1/requests/outgoing/", createRequestBody{
			Peer: "did:mesh:alice", Content: content,
		})
		require.Equal(t, http.StatusConflict, recorder.Code)
		assert.Equal(t, string(reqservice.CodeSelfAddressed), errorCode(t, recorder))
	})

	t.Run("malformed bodies yield 400", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/v1/requests/outgoing/", bytes.NewReader([]byte("{")))
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestRelationshipEndpoints(t *testing.T) {
	router := newTestRouter(t)
	base := "/v1/relationships/did:mesh:bob"

	recorder := doJSON(t, router, http.MethodPut, base+"/", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var relationship relationships.Relationship
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &relationship))
	assert.Equal(t, relationships.StatusActive, relationship.Status)

	recorder = doJSON(t, router, http.MethodPost, base+"/terminate", nil)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, base+"/terminate", nil)
	require.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, base+"/reactivate", nil)
	require.Equal(t, http.StatusNoContent, recorder.Code)
}
