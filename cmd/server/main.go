package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	sqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"emlakindex/server/config"
	"emlakindex/server/internal/api"
	"emlakindex/server/internal/backfill"
	"emlakindex/server/internal/database"
	"emlakindex/server/internal/macro"
	"emlakindex/server/internal/models"
	"emlakindex/server/internal/processor"
	"emlakindex/server/internal/queue"
	"emlakindex/server/internal/scheduler"
	"emlakindex/server/internal/telegram"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := config.LoadRegionConfig(); err != nil {
		logger.WithError(err).Warn("Failed to load region configuration, using defaults")
	}

	dbPath := cfg.Server.DBPath
	if !filepath.IsAbs(dbPath) {
		currentDir, err := os.Getwd()
		if err != nil {
			logger.WithError(err).Fatal("Failed to get current directory")
		}
		dbPath = filepath.Join(currentDir, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", dbPath)

	// Initialize database
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// Separate gorm handle for the batch ingestion path
	gormDB, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to open gorm connection")
	}

	// Start the observation ingestion pipeline
	obsQueue := queue.NewObservationQueue(cfg.BatchProcessing.MaxBatchSize, logger)
	obsQueue.Start()
	batchProcessor := processor.NewBatchProcessor(gormDB, obsQueue, cfg, logger)
	batchProcessor.Start()
	defer batchProcessor.Stop()
	defer obsQueue.Close()

	// Scheduled backfill runs, opt-in
	if cfg.Backfill.ScheduleEnabled {
		backfillCfg, err := backfillConfigFromDefaults(cfg)
		if err != nil {
			logger.WithError(err).Fatal("Invalid backfill configuration")
		}
		var propertyTypes []models.PropertyType
		for _, name := range cfg.Backfill.PropertyTypes {
			propertyType, err := models.ParsePropertyType(name)
			if err != nil {
				logger.WithError(err).Fatal("Invalid backfill property type")
			}
			propertyTypes = append(propertyTypes, propertyType)
		}

		notifier := telegram.NewService(cfg, logger)
		provider := macro.NewProvider(logger)
		runJob := func(propertyType models.PropertyType) models.RunSummary {
			pipeline := backfill.NewPipeline(db, provider, propertyType, logger)
			summary := pipeline.Run(context.Background(), backfillCfg)
			if err := notifier.NotifyRunSummary(propertyType, summary); err != nil {
				logger.WithError(err).Warn("Failed to send run notification")
			}
			return summary
		}

		backfillScheduler := scheduler.NewScheduler(runJob, propertyTypes, cfg.Backfill.ScheduleHour, logger)
		backfillScheduler.Start()
		defer backfillScheduler.Stop()
	}

	// Initialize router
	router := gin.Default()
	router.Use(cors.Default())

	handler := api.NewHandler(db, cfg, obsQueue, logger)
	api.SetupRoutes(router, handler)

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}

// backfillConfigFromDefaults builds the run configuration scheduled jobs use.
func backfillConfigFromDefaults(cfg *config.Config) (models.BackfillConfig, error) {
	out := models.BackfillConfig{
		CurrentDataMonths:   cfg.Backfill.CurrentDataMonths,
		ConfidenceThreshold: cfg.Backfill.ConfidenceThreshold,
	}
	var err error
	if out.StartDate, err = time.Parse("2006-01-02", cfg.Backfill.StartDate); err != nil {
		return out, err
	}
	if out.EndDate, err = time.Parse("2006-01-02", cfg.Backfill.EndDate); err != nil {
		return out, err
	}
	for _, name := range cfg.Backfill.Models {
		kind, err := models.ParseModelKind(name)
		if err != nil {
			return out, err
		}
		out.ModelsToUse = append(out.ModelsToUse, kind)
	}
	return out, out.Validate()
}
