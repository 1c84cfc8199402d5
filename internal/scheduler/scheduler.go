package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"emlakindex/server/internal/models"
)

// JobType represents different kinds of backfill jobs
type JobType int

const (
	JobTypeStartup JobType = iota
	JobTypeScheduled
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeStartup:
		return "startup"
	case JobTypeScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// RunFunc executes one backfill run for a property type.
type RunFunc func(propertyType models.PropertyType) models.RunSummary

// Scheduler runs the backfill pipeline for each configured property type at
// a fixed hour of the day, plus once at startup. Jobs run sequentially; a
// run still in progress delays the next tick rather than overlapping it.
type Scheduler struct {
	runJob        RunFunc
	logger        *logrus.Logger
	stopChan      chan struct{}
	wg            sync.WaitGroup
	propertyTypes []models.PropertyType
	runHour       int
	jobMutex      sync.Mutex
	isStartupRun  bool
}

// NewScheduler creates a new scheduler
func NewScheduler(runJob RunFunc, propertyTypes []models.PropertyType, runHour int, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		runJob:        runJob,
		logger:        logger,
		stopChan:      make(chan struct{}),
		propertyTypes: propertyTypes,
		runHour:       runHour,
		isStartupRun:  true,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler handles all scheduled tasks
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	// Run startup jobs in a separate goroutine
	go func() {
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.logger.Info("Running startup backfill jobs")
		s.runBackfills(JobTypeStartup)
		s.isStartupRun = false
		s.logger.Info("Startup backfill jobs completed")
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

// executeScheduledJobs runs all jobs that are scheduled for the given time
func (s *Scheduler) executeScheduledJobs(t time.Time) {
	// Skip if we're still running startup jobs
	if s.isStartupRun {
		s.logger.Debug("Skipping scheduled jobs while startup is in progress")
		return
	}

	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"hour":   t.Hour(),
		"minute": t.Minute(),
	}).Debug("Checking scheduled jobs")

	if t.Hour() == s.runHour && t.Minute() == 0 {
		s.logger.Info("Starting scheduled backfill jobs")
		s.runBackfills(JobTypeScheduled)
		s.logger.Info("Completed scheduled backfill jobs")
	}
}

// runBackfills runs the backfill pipeline for all configured property types sequentially
func (s *Scheduler) runBackfills(jobType JobType) {
	for _, propertyType := range s.propertyTypes {
		s.logger.WithFields(logrus.Fields{
			"property_type": propertyType,
			"job_type":      jobType.String(),
		}).Info("Starting backfill job")

		summary := s.runJob(propertyType)
		if !summary.Success {
			s.logger.WithFields(logrus.Fields{
				"property_type": propertyType,
				"job_type":      jobType.String(),
				"error":         summary.Error,
			}).Error("Backfill job failed")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"property_type": propertyType,
			"job_type":      jobType.String(),
			"session":       summary.SessionID,
			"locations":     summary.BackfilledLocations,
			"predictions":   summary.TotalPredictions,
		}).Info("Backfill job completed successfully")
	}
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
