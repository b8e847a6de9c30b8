// controller/cache_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudgate-io/permcache/cache"
	perm_errors "github.com/cloudgate-io/permcache/errors"
	"github.com/cloudgate-io/permcache/model"
	"github.com/cloudgate-io/permcache/util"
)

type CacheController struct {
	manager        cache.ICacheManager
	validationUtil *util.ValidationUtil
}

func NewCacheController(manager cache.ICacheManager, validationUtil *util.ValidationUtil) *CacheController {
	return &CacheController{
		manager:        manager,
		validationUtil: validationUtil,
	}
}

// RegisterRoutes registers the API routes
func (cc *CacheController) RegisterRoutes(r *gin.RouterGroup) {
	permissions := r.Group("/permissions")
	{
		permissions.POST("/check", cc.CheckPermission)
		permissions.POST("/check-batch", cc.CheckPermissionsBatch)
		permissions.POST("/warm", cc.Warm)
	}
	invalidations := r.Group("/invalidations")
	{
		invalidations.POST("/users/:id", cc.InvalidateUser)
		invalidations.POST("/tenants/:id", cc.InvalidateTenant)
		invalidations.POST("/permissions/:name", cc.InvalidatePermission)
		invalidations.POST("/clear", cc.ClearAll)
	}
	r.GET("/statistics", cc.GetStatistics)
	r.GET("/recommendations", cc.GetRecommendations)
}

// CheckPermission endpoint
func (cc *CacheController) CheckPermission(c *gin.Context) {
	var req model.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid check request", err)
		return
	}
	if err := cc.validationUtil.ValidateCheckRequest(req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid check request", err)
		return
	}

	decision, err := cc.manager.CheckPermission(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, perm_errors.ErrInvalidKey):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid check request", err)
		case errors.Is(err, perm_errors.ErrPermissionCheckFailed):
			// Fail-closed deny; the caller gets the decision plus a
			// generic failure marker and no internal detail.
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":    "permission check failed",
				"decision": decision,
			})
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Permission check failed", err)
		}
		return
	}
	c.JSON(http.StatusOK, decision)
}

// CheckPermissionsBatch endpoint
func (cc *CacheController) CheckPermissionsBatch(c *gin.Context) {
	var body struct {
		Requests []model.CheckRequest `json:"requests"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid batch request", err)
		return
	}
	for _, req := range body.Requests {
		if err := cc.validationUtil.ValidateCheckRequest(req); err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid batch request", err)
			return
		}
	}

	decisions, err := cc.manager.CheckPermissionsBatch(c.Request.Context(), body.Requests)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Batch permission check failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// Warm endpoint
func (cc *CacheController) Warm(c *gin.Context) {
	var body struct {
		PrincipalID string   `json:"principal_id"`
		TenantID    string   `json:"tenant_id"`
		Permissions []string `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid warm request", err)
		return
	}
	if body.PrincipalID == "" || body.TenantID == "" || len(body.Permissions) == 0 {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid warm request", perm_errors.ErrInvalidKey)
		return
	}

	if err := cc.manager.Warm(c.Request.Context(), body.PrincipalID, body.TenantID, body.Permissions); err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Cache warm failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "warmed"})
}

// InvalidateUser endpoint
func (cc *CacheController) InvalidateUser(c *gin.Context) {
	if err := cc.manager.InvalidateUser(c.Param("id")); err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Invalidation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// InvalidateTenant endpoint
func (cc *CacheController) InvalidateTenant(c *gin.Context) {
	if err := cc.manager.InvalidateTenant(c.Param("id")); err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Invalidation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// InvalidatePermission endpoint
func (cc *CacheController) InvalidatePermission(c *gin.Context) {
	if err := cc.manager.InvalidatePermission(c.Param("name")); err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Invalidation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// ClearAll endpoint
func (cc *CacheController) ClearAll(c *gin.Context) {
	if err := cc.manager.ClearAll(); err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Cache clear failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// GetStatistics endpoint
func (cc *CacheController) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, cc.manager.Statistics())
}

// GetRecommendations endpoint
func (cc *CacheController) GetRecommendations(c *gin.Context) {
	recs := cc.manager.Recommendations()
	if recs == nil {
		recs = []model.Recommendation{}
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}
