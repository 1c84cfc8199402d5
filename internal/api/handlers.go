package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"emlakindex/server/config"
	"emlakindex/server/internal/backfill"
	"emlakindex/server/internal/database"
	"emlakindex/server/internal/macro"
	"emlakindex/server/internal/models"
	"emlakindex/server/internal/queue"
)

type Handler struct {
	db     *database.Database
	cfg    *config.Config
	queue  *queue.ObservationQueue
	macro  *macro.Provider
	logger *logrus.Logger
}

// BackfillRequest carries per-request overrides of the configured backfill
// defaults. Zero-valued fields fall back to configuration.
type BackfillRequest struct {
	StartDate           string   `json:"start_date"`
	EndDate             string   `json:"end_date"`
	CurrentDataMonths   int      `json:"current_data_months"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	Models              []string `json:"models"`
	PropertyType        string   `json:"property_type"`
	Region              string   `json:"region"`
}

// ObservationRequest is one ingested price record.
type ObservationRequest struct {
	LocationCode     string  `json:"location_code" binding:"required"`
	PropertyType     string  `json:"property_type" binding:"required"`
	Date             string  `json:"date" binding:"required"`
	Price            float64 `json:"price" binding:"required"`
	SizeM2           float64 `json:"size_m2"`
	PricePerM2       float64 `json:"price_per_m2"`
	TransactionCount *int    `json:"transaction_count"`
}

func NewHandler(db *database.Database, cfg *config.Config, obsQueue *queue.ObservationQueue, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{
		db:     db,
		cfg:    cfg,
		queue:  obsQueue,
		macro:  macro.NewProvider(logger),
		logger: logger,
	}
}

// buildConfig merges a request with the configured defaults.
func (h *Handler) buildConfig(req BackfillRequest) (models.BackfillConfig, models.PropertyType, error) {
	cfg := models.BackfillConfig{
		CurrentDataMonths:   h.cfg.Backfill.CurrentDataMonths,
		ConfidenceThreshold: h.cfg.Backfill.ConfidenceThreshold,
	}

	start := req.StartDate
	if start == "" {
		start = h.cfg.Backfill.StartDate
	}
	end := req.EndDate
	if end == "" {
		end = h.cfg.Backfill.EndDate
	}
	var err error
	if cfg.StartDate, err = time.Parse("2006-01-02", start); err != nil {
		return cfg, "", err
	}
	if cfg.EndDate, err = time.Parse("2006-01-02", end); err != nil {
		return cfg, "", err
	}

	if req.CurrentDataMonths > 0 {
		cfg.CurrentDataMonths = req.CurrentDataMonths
	}
	if req.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *req.ConfidenceThreshold
	}

	modelNames := req.Models
	if len(modelNames) == 0 {
		modelNames = h.cfg.Backfill.Models
	}
	for _, name := range modelNames {
		kind, err := models.ParseModelKind(name)
		if err != nil {
			return cfg, "", err
		}
		cfg.ModelsToUse = append(cfg.ModelsToUse, kind)
	}

	propertyType := models.PropertyResidentialSale
	if req.PropertyType != "" {
		if propertyType, err = models.ParsePropertyType(req.PropertyType); err != nil {
			return cfg, "", err
		}
	}
	return cfg, propertyType, cfg.Validate()
}

// DetectMissingPeriods reports which months each location is missing in the
// requested range without training anything.
func (h *Handler) DetectMissingPeriods(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, propertyType, err := h.buildConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pipeline := backfill.NewPipeline(h.db, h.macro, propertyType, h.logger)
	missing, err := pipeline.Detect(c.Request.Context(), cfg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to detect missing periods")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to detect missing periods"})
		return
	}

	if req.Region != "" {
		region := config.GetRegionByName(req.Region)
		if region == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown region: " + req.Region})
			return
		}
		inRegion := make(map[string]bool, len(region.Locations))
		for _, code := range region.Locations {
			inRegion[code] = true
		}
		for loc := range missing {
			if !inRegion[loc] {
				delete(missing, loc)
			}
		}
	}

	total := 0
	for _, months := range missing {
		total += len(months)
	}
	c.JSON(http.StatusOK, gin.H{
		"property_type":   propertyType,
		"locations":       len(missing),
		"missing_periods": missing,
		"total_missing":   total,
	})
}

// RunBackfill executes a full backfill pass synchronously and returns its
// summary. Configuration problems map to 400, run failures to 500.
func (h *Handler) RunBackfill(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, propertyType, err := h.buildConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pipeline := backfill.NewPipeline(h.db, h.macro, propertyType, h.logger)
	summary := pipeline.Run(c.Request.Context(), cfg)
	if !summary.Success {
		h.logger.WithField("error", summary.Error).Error("Backfill run failed")
		c.JSON(http.StatusInternalServerError, summary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetBackfillResults returns the stored results of a session, defaulting to
// the most recent one.
func (h *Handler) GetBackfillResults(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		var err error
		sessionID, err = h.db.GetLatestSessionID()
		if err != nil {
			h.logger.WithError(err).Error("Failed to look up latest session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up latest session"})
			return
		}
		if sessionID == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "No backfill runs recorded"})
			return
		}
	}

	results, err := h.db.GetBackfillResults(sessionID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get backfill results")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get backfill results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"results":    results,
	})
}

// IngestObservations accepts a batch of observations and enqueues it for the
// batch processor.
func (h *Handler) IngestObservations(c *gin.Context) {
	var reqs []ObservationRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}

	batch := make([]*models.PriceObservation, 0, len(reqs))
	for _, r := range reqs {
		propertyType, err := models.ParsePropertyType(r.PropertyType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date: " + r.Date})
			return
		}
		code := config.NormalizeLocationCode(r.LocationCode)
		if config.GetLocationByCode(code) == nil {
			h.logger.WithField("location_code", code).Warn("Observation for unregistered location")
		}
		batch = append(batch, &models.PriceObservation{
			LocationCode:     code,
			PropertyType:     propertyType,
			Date:             date,
			Price:            r.Price,
			SizeM2:           r.SizeM2,
			PricePerM2:       r.PricePerM2,
			TransactionCount: r.TransactionCount,
		})
	}

	if err := h.queue.Push(batch); err != nil {
		if err == queue.ErrQueueFull {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion queue is full"})
			return
		}
		h.logger.WithError(err).Error("Failed to enqueue observations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue observations"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": len(batch)})
}

// GetHealth reports basic liveness plus data volume.
func (h *Handler) GetHealth(c *gin.Context) {
	count, err := h.db.GetObservationCount("")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"observations": count,
	})
}
