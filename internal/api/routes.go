package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/validate", handler.Validate)
		v1.POST("/grades", handler.SaveGrade)
		v1.POST("/sync/drain", handler.TriggerDrain)

		v1.POST("/cache/refresh", handler.RefreshCache)
		v1.GET("/cache/metadata", handler.CacheMetadata)
		v1.DELETE("/cache", handler.ClearCache)
		v1.GET("/students", handler.SearchStudents)

		v1.POST("/imports", handler.ProcessImport)
	}
}
