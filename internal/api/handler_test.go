package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legalpub/internal/config"
	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/pipeline"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) Sync(ctx context.Context, req pipeline.Request) (*model.SyncResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncResult), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestHandleSync_OK(t *testing.T) {
	s := &mockSyncer{}
	s.On("Sync", mock.Anything, pipeline.Request{OABNumber: "123456", UF: "SP", Name: "Maria", Persist: true}).
		Return(&model.SyncResult{
			Lawyer: model.Lawyer{OABNumber: "123456", UF: "SP"},
			Stats:  model.Stats{TotalProcesses: 2, TotalClients: 1},
		}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/lawyers/SP/123456/sync", strings.NewReader(`{"name":"Maria","persist":true}`))
	rec := httptest.NewRecorder()
	newRouter(New(s, nil)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Stats.TotalProcesses)
	assert.Equal(t, "123456", got.Lawyer.OABNumber)
	s.AssertExpectations(t)
}

func TestHandleSync_EmptyBodyIsPreview(t *testing.T) {
	s := &mockSyncer{}
	s.On("Sync", mock.Anything, pipeline.Request{OABNumber: "1", UF: "rj"}).Return(&model.SyncResult{}, nil)

	rec := httptest.NewRecorder()
	newRouter(New(s, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lawyers/rj/1/sync", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	s.AssertExpectations(t)
}

func TestHandleSync_BadBody(t *testing.T) {
	s := &mockSyncer{}
	rec := httptest.NewRecorder()
	newRouter(New(s, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lawyers/SP/1/sync", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	s.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
}

func TestHandleSync_ErrorKinds(t *testing.T) {
	// A real pipeline with no credentials produces a config error.
	p := pipeline.New(&config.Config{}, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	newRouter(New(p, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lawyers/SP/1/sync", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(pipeline.KindConfig), resp.Error)
	assert.NotEmpty(t, resp.Message)
}

func TestErrorResponse(t *testing.T) {
	status, resp := errorResponse(&pipeline.Error{Kind: pipeline.KindAuth, Message: "denied", Status: 403})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, ErrorResponse{Error: "auth", Message: "denied", UpstreamStatus: 403}, resp)

	status, resp = errorResponse(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", resp.Error)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(New(nil, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := pingFunc(func(context.Context) error { return errors.New("db down") })
	rec = httptest.NewRecorder()
	newRouter(New(nil, down)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
