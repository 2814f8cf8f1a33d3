package middleware

import (
	"net/http"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"org-service/internal/org"
)

// Principal builds the authenticated org.Principal from the identity set by
// the auth middleware (mesh or local JWT) plus the placement headers, and
// rejects callers whose role is not in the catalog.
func Principal(catalog *org.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDStr := c.GetString("user_id")
		roleStr := c.GetString("user_role")

		if userIDStr == "" || roleStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id and user_role are required"})
			c.Abort()
			return
		}

		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			c.Abort()
			return
		}

		role := org.RoleCode(roleStr)
		if _, err := catalog.RoleByCode(role); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "unknown role: " + roleStr})
			c.Abort()
			return
		}

		// Display name and email: mesh actor info first, local claims second
		actor := gosharedmw.GetActorInfo(c)
		name := actor.ActorName
		if name == "" {
			name = c.GetString("user_name")
		}
		email := actor.ActorEmail
		if email == "" {
			email = c.GetString("user_email")
		}

		principal := org.Principal{
			ID:        userID,
			Name:      name,
			Email:     email,
			Role:      role,
			Territory: c.GetHeader("X-User-Territory"),
			Region:    c.GetHeader("X-User-Region"),
			Zone:      c.GetHeader("X-User-Zone"),
			State:     c.GetHeader("X-User-State"),
		}

		c.Set("principal", principal)
		c.Next()
	}
}
