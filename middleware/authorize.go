// middleware/authorize.go

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudgate-io/permcache/cache"
	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/model"
	"github.com/cloudgate-io/permcache/util"
)

// RequirePermission gates a route on a cached permission check. The
// principal and tenant come from the authentication layer via the
// X-Principal-ID and X-Tenant-ID headers.
func RequirePermission(manager cache.ICacheManager, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID, tenantID := util.GetPrincipalFromContext(c)
		if principalID == "" || tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing principal or tenant"})
			c.Abort()
			return
		}

		decision, err := manager.CheckPermission(c.Request.Context(), model.CheckRequest{
			TenantID:    tenantID,
			PrincipalID: principalID,
			Permission:  permission,
			ResourceID:  c.Param("id"),
		})
		if err != nil {
			logger.Warn("Permission check failed",
				zap.String("principalID", principalID),
				zap.String("permission", permission),
				zap.Error(err))
			c.JSON(http.StatusForbidden, gin.H{"error": "permission check failed"})
			c.Abort()
			return
		}
		if !decision.Allowed() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
