package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"org-service/internal/org"
	"org-service/internal/repository"
	"org-service/internal/routing"
	"org-service/internal/services"
)

func setupTestRouter(t *testing.T, principal *org.Principal) (*gin.Engine, *ApprovalHandler, *RoleHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := org.Load()
	assert.NoError(t, err)

	service := services.NewApprovalService(nil, catalog, routing.NewRouter(catalog), nil, nil)
	approvalHandler := NewApprovalHandler(service)
	roleHandler := NewRoleHandler(catalog)

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set("tenant_id", "tenant-1")
		if principal != nil {
			c.Set("principal", *principal)
		}
	})

	return engine, approvalHandler, roleHandler
}

func TestCheckPermission(t *testing.T) {
	principal := &org.Principal{ID: uuid.New(), Role: org.RoleTerritoryManager}
	engine, handler, _ := setupTestRouter(t, principal)
	engine.GET("/permissions/check", handler.CheckPermission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/permissions/check?module=plans&action=approve", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["allowed"])

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/permissions/check?module=targets&action=approve", nil)
	engine.ServeHTTP(w, req)

	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["allowed"])
}

func TestCheckPermissionMissingParams(t *testing.T) {
	principal := &org.Principal{ID: uuid.New(), Role: org.RoleAdmin}
	engine, handler, _ := setupTestRouter(t, principal)
	engine.GET("/permissions/check", handler.CheckPermission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/permissions/check?module=plans", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckPermissionNoPrincipal(t *testing.T) {
	engine, handler, _ := setupTestRouter(t, nil)
	engine.GET("/permissions/check", handler.CheckPermission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/permissions/check?module=plans&action=view", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetScope(t *testing.T) {
	principal := &org.Principal{ID: uuid.New(), Role: org.RoleZoneManager, Zone: "north"}
	engine, handler, _ := setupTestRouter(t, principal)
	engine.GET("/permissions/scope", handler.GetScope)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/permissions/scope", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(org.ScopeZone), body["scope"])
	assert.Equal(t, "north", body["zone"])
}

func TestRoutePreview(t *testing.T) {
	principal := &org.Principal{ID: uuid.New(), Role: org.RoleFieldOfficer}
	engine, handler, _ := setupTestRouter(t, principal)
	engine.POST("/approvals/route-preview", handler.RoutePreview)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/approvals/route-preview",
		strings.NewReader(`{"requestType":"plan"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["autoApprove"])
	assert.Equal(t, []interface{}{string(org.RoleTerritoryManager)}, body["chain"])
}

func TestRoutePreviewAutoApprove(t *testing.T) {
	principal := &org.Principal{ID: uuid.New(), Role: org.RoleAdmin}
	engine, handler, _ := setupTestRouter(t, principal)
	engine.POST("/approvals/route-preview", handler.RoutePreview)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/approvals/route-preview",
		strings.NewReader(`{"requestType":"expense"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["autoApprove"])
}

func TestRoutePreviewUnknownType(t *testing.T) {
	principal := &org.Principal{ID: uuid.New(), Role: org.RoleFieldOfficer}
	engine, handler, _ := setupTestRouter(t, principal)
	engine.POST("/approvals/route-preview", handler.RoutePreview)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/approvals/route-preview",
		strings.NewReader(`{"requestType":"office_party"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRoles(t *testing.T) {
	engine, _, roleHandler := setupTestRouter(t, nil)
	engine.GET("/roles", roleHandler.ListRoles)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string][]org.Role
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["roles"], 6)
}

func TestGetRole(t *testing.T) {
	engine, _, roleHandler := setupTestRouter(t, nil)
	engine.GET("/roles/:code", roleHandler.GetRole)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/roles/state_head", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/roles/janitor", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetReportingChain(t *testing.T) {
	engine, _, roleHandler := setupTestRouter(t, nil)
	engine.GET("/roles/:code/chain", roleHandler.GetReportingChain)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/roles/field_officer/chain", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	chain, _ := body["chain"].([]interface{})
	assert.Len(t, chain, 5)
	assert.Equal(t, string(org.RoleTerritoryManager), chain[0])
}

func TestGetRequestInvalidID(t *testing.T) {
	principal := &org.Principal{ID: uuid.New(), Role: org.RoleAdmin}
	engine, handler, _ := setupTestRouter(t, principal)
	engine.GET("/approvals/:id", handler.GetRequest)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/approvals/not-a-uuid", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecideStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrRequestNotFound, http.StatusNotFound},
		{services.ErrNotCurrentApprover, http.StatusForbidden},
		{services.ErrPermissionDenied, http.StatusForbidden},
		{services.ErrAlreadyTerminal, http.StatusConflict},
		{services.ErrAlreadyEscalated, http.StatusConflict},
		{repository.ErrVersionConflict, http.StatusConflict},
		{services.ErrInvalidDecision, http.StatusBadRequest},
		{services.ErrEscalationFromRoot, http.StatusBadRequest},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, decideStatusFor(tt.err), "error %v", tt.err)
	}
}

func TestCreateStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, createStatusFor(routing.ErrUnknownRequestType))
	assert.Equal(t, http.StatusForbidden, createStatusFor(org.ErrRoleNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, createStatusFor(routing.ErrRoutingConflict))
}
