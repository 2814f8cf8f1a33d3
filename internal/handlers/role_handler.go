package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"org-service/internal/org"
)

// RoleHandler exposes the role catalog and reporting hierarchy
type RoleHandler struct {
	catalog *org.Catalog
}

// NewRoleHandler creates a new RoleHandler
func NewRoleHandler(catalog *org.Catalog) *RoleHandler {
	return &RoleHandler{catalog: catalog}
}

// ListRoles lists the role catalog, junior-first
// @Summary List roles
// @Tags Roles
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roles": h.catalog.Roles()})
}

// GetRole retrieves a role definition by code
// @Summary Get role
// @Tags Roles
// @Produce json
// @Param code path string true "Role code"
// @Success 200 {object} org.Role
// @Router /api/v1/roles/{code} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.catalog.RoleByCode(org.RoleCode(c.Param("code")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, role)
}

// GetReportingChain walks a role's chain up to the root
// @Summary Get a role's reporting chain
// @Tags Roles
// @Produce json
// @Param code path string true "Role code"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/roles/{code}/chain [get]
func (h *RoleHandler) GetReportingChain(c *gin.Context) {
	code := org.RoleCode(c.Param("code"))
	chain, err := h.catalog.ReportingChain(code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"role":  code,
		"chain": chain,
	})
}
