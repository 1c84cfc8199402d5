package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"emlakindex/server/config"
)

// GetRegions lists the configured region groupings.
func (h *Handler) GetRegions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regions": config.GetRegions()})
}

// UpdateRegion creates or replaces a region grouping and persists the
// configuration.
func (h *Handler) UpdateRegion(c *gin.Context) {
	var region config.Region
	if err := c.ShouldBindJSON(&region); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if region.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "region name is required"})
		return
	}
	for i, code := range region.Locations {
		region.Locations[i] = config.NormalizeLocationCode(code)
	}

	config.UpdateRegion(region)
	if err := config.SaveRegionConfig(); err != nil {
		h.logger.WithError(err).Error("Failed to save region configuration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save region configuration"})
		return
	}
	c.JSON(http.StatusOK, region)
}
