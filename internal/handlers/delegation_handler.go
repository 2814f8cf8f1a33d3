package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"org-service/internal/routing"
	"org-service/internal/services"
)

// DelegationHandler handles HTTP requests for delegations
type DelegationHandler struct {
	service *services.DelegationService
}

// NewDelegationHandler creates a new DelegationHandler
func NewDelegationHandler(service *services.DelegationService) *DelegationHandler {
	return &DelegationHandler{service: service}
}

// CreateDelegation creates a new delegation
// @Summary Create delegation
// @Tags Delegations
// @Accept json
// @Produce json
// @Param request body services.CreateDelegationInput true "Create Delegation"
// @Success 201 {object} models.ApprovalDelegation
// @Router /api/v1/delegations [post]
func (h *DelegationHandler) CreateDelegation(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	var input services.CreateDelegationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delegation, err := h.service.CreateDelegation(c.Request.Context(), tenantID, principal, input)
	if err != nil {
		c.JSON(delegationStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, delegation)
}

// GetDelegation retrieves a delegation by ID
// @Summary Get delegation
// @Tags Delegations
// @Produce json
// @Param id path string true "Delegation ID"
// @Success 200 {object} models.ApprovalDelegation
// @Router /api/v1/delegations/{id} [get]
func (h *DelegationHandler) GetDelegation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegation id"})
		return
	}

	delegation, err := h.service.GetDelegation(c.Request.Context(), id)
	if err != nil {
		c.JSON(delegationStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"delegation": delegation,
		"status":     delegation.GetStatus(),
	})
}

// ListOutgoing lists delegations granted by the caller
// @Summary List delegations created by the caller
// @Tags Delegations
// @Produce json
// @Param includeExpired query bool false "Include expired and revoked delegations"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/outgoing [get]
func (h *DelegationHandler) ListOutgoing(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	includeExpired := c.Query("includeExpired") == "true"

	delegations, err := h.service.ListOutgoing(c.Request.Context(), tenantID, principal.ID, includeExpired)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"delegations": delegations})
}

// ListIncoming lists delegations granted to the caller
// @Summary List delegations granted to the caller
// @Tags Delegations
// @Produce json
// @Param includeExpired query bool false "Include expired and revoked delegations"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/incoming [get]
func (h *DelegationHandler) ListIncoming(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	includeExpired := c.Query("includeExpired") == "true"

	delegations, err := h.service.ListIncoming(c.Request.Context(), tenantID, principal.ID, includeExpired)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"delegations": delegations})
}

// RevokeInput carries the optional reason for a revocation
type RevokeInput struct {
	Reason string `json:"reason,omitempty"`
}

// RevokeDelegation revokes an active delegation
// @Summary Revoke delegation
// @Tags Delegations
// @Accept json
// @Produce json
// @Param id path string true "Delegation ID"
// @Param request body RevokeInput false "Revocation reason"
// @Success 200 {object} models.ApprovalDelegation
// @Router /api/v1/delegations/{id}/revoke [post]
func (h *DelegationHandler) RevokeDelegation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegation id"})
		return
	}

	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	var input RevokeInput
	_ = c.ShouldBindJSON(&input)

	delegation, err := h.service.RevokeDelegation(c.Request.Context(), id, principal, input.Reason)
	if err != nil {
		c.JSON(delegationStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, delegation)
}

func delegationStatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrDelegationNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotDelegationOwner):
		return http.StatusForbidden
	case errors.Is(err, services.ErrOverlappingDelegation),
		errors.Is(err, services.ErrDelegationNotActive):
		return http.StatusConflict
	case errors.Is(err, services.ErrSelfDelegation),
		errors.Is(err, services.ErrInvalidDateRange),
		errors.Is(err, routing.ErrUnknownRequestType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
