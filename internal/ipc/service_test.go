package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heytcass/jasper/internal/model"
	"github.com/heytcass/jasper/internal/registry"
	"github.com/heytcass/jasper/internal/store"
)

func newTestService(t *testing.T, refresh ForceRefreshFunc) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New(30 * time.Second)
	if refresh == nil {
		refresh = func() bool { return true }
	}
	return New(st, reg, refresh, nil, 60, zap.NewNop()), st
}

func TestCurrentInsightNotFoundBeforeAnyAppend(t *testing.T) {
	svc, _ := newTestService(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/insight/current", nil)
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCurrentInsightReturnsCommittedInsight(t *testing.T) {
	svc, st := newTestService(t, nil)
	committed, err := st.Append(context.Background(), model.Insight{
		Emoji: "📅", Preview: "busy day", Body: "you have 3 meetings", Urgency: 5,
		ContextFingerprint: "fp1", Provider: "anthropic", Model: "claude",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/insight/current", nil)
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.Insight
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, committed.ID, got.ID)
	assert.Equal(t, "busy day", got.Preview)
}

func TestRegisterHeartbeatUnregisterFrontend(t *testing.T) {
	svc, _ := newTestService(t, nil)

	body, _ := json.Marshal(registerFrontendRequest{FrontendID: "frontend-1", PID: 4242})
	req := httptest.NewRequest(http.MethodPost, "/v1/frontends", bytes.NewReader(body))
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var reg model.FrontendRegistration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.Equal(t, "frontend-1", reg.ID)

	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/frontends/"+reg.ID+"/heartbeat", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/frontends/"+reg.ID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/frontends/"+reg.ID+"/heartbeat", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterFrontendTwiceReturnsConflict(t *testing.T) {
	svc, _ := newTestService(t, nil)

	body, _ := json.Marshal(registerFrontendRequest{FrontendID: "frontend-1", PID: 4242})
	svc.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/frontends", bytes.NewReader(body)))

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/frontends", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterFrontendRejectsMissingFrontendID(t *testing.T) {
	svc, _ := newTestService(t, nil)

	body, _ := json.Marshal(registerFrontendRequest{PID: 4242})
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/frontends", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForceRefreshRejectedWhenQueueSaturated(t *testing.T) {
	svc, _ := newTestService(t, func() bool { return false })

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
}

func TestForceRefreshReturnsAcceptedImmediately(t *testing.T) {
	svc, _ := newTestService(t, func() bool { return true })

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/refresh", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
}

func TestStatusReportsActiveFrontendCount(t *testing.T) {
	svc, _ := newTestService(t, nil)

	body, _ := json.Marshal(registerFrontendRequest{FrontendID: "frontend-1", PID: 1})
	svc.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/frontends", bytes.NewReader(body)))

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.FrontendCount)
	assert.True(t, resp.Online)
}
