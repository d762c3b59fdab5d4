package flags

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipswitch/internal/logger"
	pkgerrors "flipswitch/pkg/errors"
	"flipswitch/pkg/middleware"
)

type stubService struct {
	flags        map[string]*Flag
	lastTenant   string
	lastActor    Actor
	lastLimit    int
	lastFlagKey  string
	auditEntries []AuditEntry
}

func newStubService() *stubService {
	return &stubService{flags: make(map[string]*Flag)}
}

func (s *stubService) Evaluate(ctx context.Context, tenant string, input EvaluationInput) (EvaluationResult, error) {
	s.lastTenant = tenant
	flag := s.flags[input.FlagKey]
	return EvaluateFlag(flag, input), nil
}

func (s *stubService) GetFlag(ctx context.Context, tenant, key string) (*Flag, error) {
	s.lastTenant = tenant
	flag, ok := s.flags[key]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("key", key)
	}
	return flag, nil
}

func (s *stubService) ListFlags(ctx context.Context, tenant string) ([]Flag, error) {
	s.lastTenant = tenant
	list := []Flag{}
	for _, flag := range s.flags {
		list = append(list, *flag)
	}
	return list, nil
}

func (s *stubService) CreateFlag(ctx context.Context, tenant string, req UpsertFlagRequest, actor Actor) (*Flag, error) {
	s.lastTenant = tenant
	s.lastActor = actor
	if _, ok := s.flags[req.Key]; ok {
		return nil, pkgerrors.ErrConflict
	}
	flag := &Flag{Key: req.Key, DefaultValue: req.DefaultValue, Enabled: true}
	s.flags[req.Key] = flag
	return flag, nil
}

func (s *stubService) UpdateFlag(ctx context.Context, tenant, key string, req UpsertFlagRequest, actor Actor) (*Flag, error) {
	s.lastTenant = tenant
	s.lastActor = actor
	flag, ok := s.flags[key]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return flag, nil
}

func (s *stubService) RemoveFlag(ctx context.Context, tenant, key string, actor Actor) error {
	s.lastTenant = tenant
	s.lastActor = actor
	if _, ok := s.flags[key]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(s.flags, key)
	return nil
}

func (s *stubService) ListAuditEntries(ctx context.Context, tenant, flagKey string, limit int) ([]AuditEntry, error) {
	s.lastTenant = tenant
	s.lastFlagKey = flagKey
	s.lastLimit = limit
	return s.auditEntries, nil
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.Identity())

	handler := NewHandler(svc, logger.NopLogger())
	handler.RegisterRoutes(router)
	return router
}

func adminHeaders(req *http.Request) {
	req.Header.Set("X-Tenant", "acme")
	req.Header.Set("X-Actor-Id", "u-1")
	req.Header.Set("X-Actor-Name", "Jordan")
	req.Header.Set("X-Actor-Role", "admin")
}

func TestHandlerEvaluate(t *testing.T) {
	svc := newStubService()
	svc.flags["beta"] = &Flag{
		Key:     "beta",
		Enabled: true,
		Rules: []Rule{
			{Attribute: "plan", Comparator: ComparatorEquals, Value: "pro", Rollout: 100},
		},
	}
	router := newTestRouter(svc)

	body, _ := json.Marshal(EvaluateRequest{
		Key:        "beta",
		UnitID:     "user-1",
		Attributes: map[string]interface{}{"plan": "pro"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader(body))
	req.Header.Set("X-Tenant", "acme")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result EvaluationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Value)
	assert.Equal(t, "matched rule 1", result.Reason)
	assert.Equal(t, "acme", svc.lastTenant)
}

func TestHandlerEvaluateMissingUnitID(t *testing.T) {
	router := newTestRouter(newStubService())

	body, _ := json.Marshal(EvaluateRequest{Key: "beta"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "VALIDATION_ERROR", response["error_code"])
}

func TestHandlerEvaluateUnknownFlag(t *testing.T) {
	router := newTestRouter(newStubService())

	body, _ := json.Marshal(EvaluateRequest{Key: "missing", UnitID: "user-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// An unknown flag evaluates to a result, never an error status.
	require.Equal(t, http.StatusOK, w.Code)

	var result EvaluationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Value)
	assert.Equal(t, ReasonNotFound, result.Reason)
}

func TestHandlerGetFlagNotFound(t *testing.T) {
	router := newTestRouter(newStubService())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flags/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerCreateFlag(t *testing.T) {
	svc := newStubService()
	router := newTestRouter(svc)

	body, _ := json.Marshal(UpsertFlagRequest{Key: "beta"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flags", bytes.NewReader(body))
	adminHeaders(req)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "acme", svc.lastTenant)
	assert.Equal(t, "u-1", svc.lastActor.ID)
	assert.Equal(t, "Jordan", svc.lastActor.Name)
}

func TestHandlerCreateFlagRequiresActor(t *testing.T) {
	router := newTestRouter(newStubService())

	body, _ := json.Marshal(UpsertFlagRequest{Key: "beta"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flags", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerCreateFlagRequiresAdminRole(t *testing.T) {
	router := newTestRouter(newStubService())

	body, _ := json.Marshal(UpsertFlagRequest{Key: "beta"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flags", bytes.NewReader(body))
	req.Header.Set("X-Actor-Id", "u-2")
	req.Header.Set("X-Actor-Role", "viewer")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandlerDeleteFlag(t *testing.T) {
	svc := newStubService()
	svc.flags["beta"] = &Flag{Key: "beta"}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/flags/beta", nil)
	adminHeaders(req)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, svc.flags, "beta")
}

func TestHandlerGetAuditLogs(t *testing.T) {
	svc := newStubService()
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs?flag_key=beta&limit=25", nil)
	req.Header.Set("X-Tenant", "acme")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "beta", svc.lastFlagKey)
	assert.Equal(t, 25, svc.lastLimit)
}

func TestHandlerGetAuditLogsLimitParsing(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "missing", query: "", want: 10},
		{name: "zero", query: "?limit=0", want: 10},
		{name: "negative", query: "?limit=-5", want: 10},
		{name: "above max clamps", query: "?limit=500", want: 100},
		{name: "not a number", query: "?limit=abc", want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubService()
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, svc.lastLimit)
		})
	}
}

func TestHandlerDefaultTenant(t *testing.T) {
	svc := newStubService()
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flags", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default", svc.lastTenant)
}
