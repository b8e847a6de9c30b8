// router/router.go

package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudgate-io/permcache/cache"
	"github.com/cloudgate-io/permcache/controller"
	"github.com/cloudgate-io/permcache/middleware"
)

func SetupRouter(
	cacheController *controller.CacheController,
	manager cache.ICacheManager,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	router.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		c.JSON(status, gin.H{
			"status":     "ok",
			"l2_healthy": manager.L2Healthy(),
		})
	})

	api := router.Group("/api/v1")

	cacheController.RegisterRoutes(api)

	return router
}
