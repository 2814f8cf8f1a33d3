package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"org-service/internal/org"
	"org-service/internal/repository"
	"org-service/internal/routing"
	"org-service/internal/services"
)

// ApprovalHandler handles HTTP requests for approval workflows
type ApprovalHandler struct {
	service *services.ApprovalService
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(service *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// getPrincipal pulls the authenticated principal built by the middleware
func getPrincipal(c *gin.Context) (org.Principal, bool) {
	value, exists := c.Get("principal")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal"})
		return org.Principal{}, false
	}
	principal, ok := value.(org.Principal)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "malformed principal"})
		return org.Principal{}, false
	}
	return principal, true
}

// CreateRequest creates a new approval request
// @Summary Submit an approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body services.CreateRequestInput true "Create Request"
// @Success 201 {object} models.ApprovalRequest
// @Router /api/v1/approvals [post]
func (h *ApprovalHandler) CreateRequest(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	var input services.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.service.CreateRequest(c.Request.Context(), tenantID, principal, input)
	if err != nil {
		c.JSON(createStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    request,
	})
}

// GetRequest retrieves an approval request by ID
// @Summary Get approval request
// @Tags Approvals
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Router /api/v1/approvals/{id} [get]
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	request, err := h.service.GetRequest(c.Request.Context(), id)
	if err != nil {
		c.JSON(decideStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// ListPending lists undecided requests waiting on the caller's role
// @Summary List pending approvals for the caller's role
// @Tags Approvals
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)

	requests, total, err := h.service.ListPendingForRole(c.Request.Context(), tenantID, string(principal.Role), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// ListMine lists requests submitted by the caller
// @Summary List the caller's submitted requests
// @Tags Approvals
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approvals/mine [get]
func (h *ApprovalHandler) ListMine(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)

	requests, total, err := h.service.ListMyRequests(c.Request.Context(), tenantID, principal.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// DecideInput represents a decision on a request
type DecideInput struct {
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment,omitempty"`
}

// Decide applies an approve, reject or escalate decision
// @Summary Decide on an approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param request body DecideInput true "Decision"
// @Success 200 {object} models.ApprovalRequest
// @Router /api/v1/approvals/{id}/decide [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	var input DecideInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.service.Decide(c.Request.Context(), id, principal, input.Decision, input.Comment)
	if err != nil {
		c.JSON(decideStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// GetHistory retrieves the audit history for a request
// @Summary Get request audit history
// @Tags Approvals
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {array} models.ApprovalAuditLog
// @Router /api/v1/approvals/{id}/history [get]
func (h *ApprovalHandler) GetHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	history, err := h.service.GetRequestHistory(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// RoutePreviewInput represents input for a route preview
type RoutePreviewInput struct {
	RequestType routing.RequestType `json:"requestType" binding:"required"`
	Context     routing.Context     `json:"context,omitempty"`
}

// RoutePreview computes the approver chain a submission would freeze
// @Summary Preview the approver chain for a submission
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body RoutePreviewInput true "Preview Request"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approvals/route-preview [post]
func (h *ApprovalHandler) RoutePreview(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	var input RoutePreviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chain, err := h.service.RoutePreview(input.RequestType, principal.Role, input.Context)
	if err != nil {
		c.JSON(createStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chain":       chain,
		"autoApprove": len(chain) == 0,
	})
}

// CheckPermission answers whether the caller's role can perform an action
// @Summary Check a module/action permission for the caller
// @Tags Permissions
// @Produce json
// @Param module query string true "Module"
// @Param action query string true "Action"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/permissions/check [get]
func (h *ApprovalHandler) CheckPermission(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	module := c.Query("module")
	action := c.Query("action")
	if module == "" || action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "module and action are required"})
		return
	}

	allowed := h.service.HasPermission(principal.Role, org.Module(module), org.Action(action))

	c.JSON(http.StatusOK, gin.H{
		"role":    principal.Role,
		"module":  module,
		"action":  action,
		"allowed": allowed,
	})
}

// GetScope resolves the caller's data visibility scope
// @Summary Get the caller's data scope
// @Tags Permissions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/permissions/scope [get]
func (h *ApprovalHandler) GetScope(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	scope, err := h.service.DataScope(principal)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"role":      principal.Role,
		"scope":     scope,
		"territory": principal.Territory,
		"state":     principal.State,
		"zone":      principal.Zone,
	})
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// createStatusFor maps submission-path errors to HTTP statuses
func createStatusFor(err error) int {
	switch {
	case errors.Is(err, routing.ErrUnknownRequestType):
		return http.StatusBadRequest
	case errors.Is(err, org.ErrRoleNotFound):
		return http.StatusForbidden
	case errors.Is(err, routing.ErrRoutingConflict):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decideStatusFor maps decision-path errors to HTTP statuses
func decideStatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotCurrentApprover),
		errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrAlreadyTerminal),
		errors.Is(err, services.ErrAlreadyEscalated),
		errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidDecision),
		errors.Is(err, services.ErrEscalationFromRoot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
