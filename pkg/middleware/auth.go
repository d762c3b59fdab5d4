package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flipswitch/internal/constants"
	"flipswitch/pkg/logging"
)

// Identity headers are populated by the fronting auth proxy, which has
// already authenticated the caller. This service trusts them as-is.
const (
	HeaderTenant     = "X-Tenant"
	HeaderActorID    = "X-Actor-Id"
	HeaderActorName  = "X-Actor-Name"
	HeaderActorEmail = "X-Actor-Email"
	HeaderActorRole  = "X-Actor-Role"

	principalKey = "principal"
	tenantKey    = "tenant"
)

// Principal is the resolved caller identity for the current request.
type Principal struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// Identity resolves the tenant and principal from the proxy headers and
// stamps both into the request context for downstream logging. A missing
// tenant header falls back to the default tenant so single-tenant
// deployments need no proxy configuration.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(HeaderTenant)
		if tenant == "" {
			tenant = constants.DefaultTenant
		}

		principal := Principal{
			ID:    c.GetHeader(HeaderActorID),
			Name:  c.GetHeader(HeaderActorName),
			Email: c.GetHeader(HeaderActorEmail),
			Role:  c.GetHeader(HeaderActorRole),
		}

		c.Set(tenantKey, tenant)
		c.Set(principalKey, principal)

		ctx := logging.WithTenant(c.Request.Context(), tenant)
		if principal.ID != "" {
			ctx = logging.WithActorID(ctx, principal.ID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole rejects requests without an identified actor (401) or with
// the wrong role (403).
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFrom(c)
		if principal.ID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":      "actor identity required",
				"error_code": "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		if principal.Role != role {
			c.JSON(http.StatusForbidden, gin.H{
				"error":      "insufficient role",
				"error_code": "FORBIDDEN",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func TenantFrom(c *gin.Context) string {
	if tenant, ok := c.Get(tenantKey); ok {
		if s, ok := tenant.(string); ok && s != "" {
			return s
		}
	}
	return constants.DefaultTenant
}

func PrincipalFrom(c *gin.Context) Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}
