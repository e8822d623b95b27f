package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/policies"
)

// Authentication happens in front of the engine; the gateway forwards the
// caller as plain headers.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserClass = "X-User-Class"
	HeaderUserRoles = "X-User-Roles"
)

// IdentityMiddleware attaches the forwarded caller to the request context.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id == "" {
			c.Next()
			return
		}
		identity := policies.Identity{
			ID:            id,
			PriorityClass: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserClass))),
			Roles:         splitRoles(c.GetHeader(HeaderUserRoles)),
		}
		c.Request = c.Request.WithContext(policies.ContextWithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// RequireRole rejects callers without role before the handler runs.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := policies.IdentityFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}
		if !id.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) (policies.Identity, bool) {
	return policies.IdentityFromContext(c.Request.Context())
}

func splitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
