package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/health", handler.GetHealth)
		api.POST("/observations", handler.IngestObservations)
		api.POST("/backfill/detect", handler.DetectMissingPeriods)
		api.POST("/backfill/run", handler.RunBackfill)
		api.GET("/backfill/results", handler.GetBackfillResults)
		api.GET("/regions", handler.GetRegions)
		api.PUT("/regions", handler.UpdateRegion)
	}
}
