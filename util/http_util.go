// util/http_util.go
package util

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/cloudgate-io/permcache/logging"
)

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

func GetPrincipalFromContext(c *gin.Context) (principalID, tenantID string) {
	return c.GetHeader("X-Principal-ID"), c.GetHeader("X-Tenant-ID")
}
