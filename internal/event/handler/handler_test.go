package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"audittrail/internal/event/service"
	"audittrail/internal/event/store/memory"
	"audittrail/internal/identity/mocks"
	"audittrail/pkg/domain"
	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/testutil"
)

const (
	acmeToken   = "acme-token"
	globexToken = "globex-token"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctrl := gomock.NewController(t)

	verifier := mocks.NewMockTenantVerifier(ctrl)
	verifier.EXPECT().VerifyToken(acmeToken).Return(domain.TenantID("acme"), nil).AnyTimes()
	verifier.EXPECT().VerifyToken(globexToken).Return(domain.TenantID("globex"), nil).AnyTimes()
	verifier.EXPECT().VerifyToken(gomock.Any()).
		Return(domain.TenantID(""), dErrors.New(dErrors.CodeUnauthorized, "invalid token")).
		AnyTimes()

	logger := slog.New(slog.DiscardHandler)
	events := service.New(memory.New(), service.WithLogger(logger))
	h := New(events, logger, verifier)

	router := chi.NewRouter()
	h.Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string, body []byte) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func ingestBody(t *testing.T, overrides map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"type":        "user.created",
		"actor":       map[string]string{"kind": "user", "id": "u-1"},
		"occurred_at": "2026-03-14T09:30:00Z",
		"payload":     map[string]any{"email": "a@example.com"},
		"entities":    []map[string]string{{"kind": "account", "id": "a-7"}},
	}
	for k, v := range overrides {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func TestIngest_CreatesEvent(t *testing.T) {
	server := newTestServer(t)

	resp, body := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, ingestBody(t, nil))

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var event eventResponse
	require.NoError(t, json.Unmarshal(body, &event))
	assert.NotEmpty(t, event.ID)
	assert.NotEmpty(t, event.ContentHash)
	assert.False(t, event.RecordedAt.IsZero())
	require.Len(t, event.Entities, 2)
	assert.Equal(t, "actor", event.Entities[0].Role)
}

func TestIngest_ReplayReturns200(t *testing.T) {
	server := newTestServer(t)
	body := ingestBody(t, map[string]any{"idempotency_key": "req-42"})

	first, firstBody := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, body)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, secondBody := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, body)
	require.Equal(t, http.StatusOK, second.StatusCode)

	var original, replayed eventResponse
	require.NoError(t, json.Unmarshal(firstBody, &original))
	require.NoError(t, json.Unmarshal(secondBody, &replayed))
	assert.Equal(t, original.ID, replayed.ID)
}

func TestIngest_ValidationError(t *testing.T) {
	server := newTestServer(t)

	resp, body := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken,
		ingestBody(t, map[string]any{"type": ""}))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "validation_failed")
}

func TestIngest_MalformedBody(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngest_RequiresJSONContentType(t *testing.T) {
	server := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/events", bytes.NewReader(ingestBody(t, nil)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+acmeToken)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestAuth_MissingToken(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, server, http.MethodGet, "/v1/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_InvalidToken(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, server, http.MethodGet, "/v1/events", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetEvent_RoundTrip(t *testing.T) {
	server := newTestServer(t)

	_, createdBody := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, ingestBody(t, nil))
	var created eventResponse
	require.NoError(t, json.Unmarshal(createdBody, &created))

	resp, body := doRequest(t, server, http.MethodGet, "/v1/events/"+created.ID, acmeToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got eventResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.ContentHash, got.ContentHash)
}

func TestGetEvent_CrossTenantIsNotFound(t *testing.T) {
	server := newTestServer(t)

	_, createdBody := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, ingestBody(t, nil))
	var created eventResponse
	require.NoError(t, json.Unmarshal(createdBody, &created))

	resp, _ := doRequest(t, server, http.MethodGet, "/v1/events/"+created.ID, globexToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetEvent_InvalidID(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, server, http.MethodGet, "/v1/events/not-a-uuid", acmeToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTimeline_ByEntity(t *testing.T) {
	server := newTestServer(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		body := ingestBody(t, map[string]any{
			"occurred_at": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"payload":     map[string]any{"seq": i},
		})
		resp, _ := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doRequest(t, server, http.MethodGet, "/v1/timeline?entity=account:a-7", acmeToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var timeline timelineResponse
	require.NoError(t, json.Unmarshal(body, &timeline))
	require.Len(t, timeline.Events, 3)
	assert.True(t, timeline.Events[0].OccurredAt.After(timeline.Events[1].OccurredAt))
}

func TestTimeline_Pagination(t *testing.T) {
	server := newTestServer(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		body := ingestBody(t, map[string]any{
			"occurred_at": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"payload":     map[string]any{"seq": i},
		})
		doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, body)
	}

	resp, body := doRequest(t, server, http.MethodGet, "/v1/timeline?entity=account:a-7&limit=2", acmeToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page1 timelineResponse
	require.NoError(t, json.Unmarshal(body, &page1))
	require.Len(t, page1.Events, 2)
	require.NotEmpty(t, page1.NextCursor)

	resp, body = doRequest(t, server, http.MethodGet,
		"/v1/timeline?entity=account:a-7&limit=2&cursor="+page1.NextCursor, acmeToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page2 timelineResponse
	require.NoError(t, json.Unmarshal(body, &page2))
	require.Len(t, page2.Events, 1)
	assert.Empty(t, page2.NextCursor)
}

func TestTimeline_MalformedEntityParam(t *testing.T) {
	server := newTestServer(t)

	for _, entity := range []string{"", "useronly", ":u-1", "user:"} {
		resp, _ := doRequest(t, server, http.MethodGet, "/v1/timeline?entity="+entity, acmeToken, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "entity=%q", entity)
	}
}

func TestTimeline_BadCursor(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, server, http.MethodGet,
		"/v1/timeline?entity=account:a-7&cursor=garbage", acmeToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestList_Filters(t *testing.T) {
	server := newTestServer(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		body := ingestBody(t, map[string]any{
			"occurred_at": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"payload":     map[string]any{"seq": i},
		})
		doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, body)
	}

	from := base.Add(2 * time.Minute).Format(time.RFC3339)
	resp, body := doRequest(t, server, http.MethodGet,
		fmt.Sprintf("/v1/events?from=%s", from), acmeToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var timeline timelineResponse
	require.NoError(t, json.Unmarshal(body, &timeline))
	assert.Len(t, timeline.Events, 2)

	resp, body = doRequest(t, server, http.MethodGet, "/v1/events?actor_id=u-999", acmeToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &timeline))
	assert.Empty(t, timeline.Events)
}

func TestList_BadTimestamp(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, server, http.MethodGet, "/v1/events?from=yesterday", acmeToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestList_BadLimit(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, server, http.MethodGet, "/v1/events?limit=-5", acmeToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngest_DirectHandler(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	events := service.New(memory.New(), service.WithLogger(logger))
	h := New(events, logger, nil)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/events", map[string]any{
		"type":        "user.created",
		"actor":       map[string]string{"kind": "user", "id": "u-1"},
		"occurred_at": "2026-03-14T09:30:00Z",
		"payload":     map[string]any{"email": "a@example.com"},
	})
	req = testutil.WithTenant(t, req, "acme")

	rr := testutil.DoRequest(http.HandlerFunc(h.handleIngest), req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	event := testutil.UnmarshalResponse[eventResponse](t, rr)
	assert.NotEmpty(t, event.ID)
}

func TestIngest_MissingTenantScopeIsInternal(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	events := service.New(memory.New(), service.WithLogger(logger))
	h := New(events, logger, nil)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/events", map[string]any{})

	rr := testutil.DoRequest(http.HandlerFunc(h.handleIngest), req)
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	testutil.AssertErrorCode(t, rr, "internal_error")
}

func TestIngest_OversizedBodyRejected(t *testing.T) {
	server := newTestServer(t)

	body := ingestBody(t, map[string]any{
		"payload": map[string]any{"blob": string(bytes.Repeat([]byte("a"), maxIngestBodyBytes))},
	})
	resp, raw := doRequest(t, server, http.MethodPost, "/v1/events", acmeToken, body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, string(raw), "payload_too_large")
}
