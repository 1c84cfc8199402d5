package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"emlakindex/server/config"
	"emlakindex/server/internal/database"
	"emlakindex/server/internal/models"
	"emlakindex/server/internal/queue"
)

// BatchProcessor drains the observation queue into sqlite. Each batch is
// written in one gorm transaction; failed writes are retried a bounded number
// of times before the batch is dropped.
type BatchProcessor struct {
	db     *gorm.DB
	logger *logrus.Logger
	config *config.Config
	queue  *queue.ObservationQueue
	work   chan []*models.PriceObservation
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBatchProcessor(db *gorm.DB, obsQueue *queue.ObservationQueue, cfg *config.Config, logger *logrus.Logger) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:     db,
		queue:  obsQueue,
		config: cfg,
		logger: logger,
		work:   make(chan []*models.PriceObservation, cfg.BatchProcessing.MaxBatchSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the queue and launches the write workers. Retries in
// one batch only stall its own worker, not the whole ingest path.
func (p *BatchProcessor) Start() {
	for i := 0; i < p.config.BatchProcessing.ProcessorCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.queue.Subscribe(p.enqueue)
}

// Stop cancels in-flight retries and waits for the workers to exit.
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *BatchProcessor) enqueue(batch []*models.PriceObservation) error {
	select {
	case p.work <- batch:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *BatchProcessor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case batch := <-p.work:
			if err := p.processBatch(batch); err != nil {
				p.logger.WithError(err).WithField("batch_size", len(batch)).Error("Dropping observation batch")
			}
		}
	}
}

// processBatch upserts one batch, retrying with a fixed delay. The delay wait
// aborts when the processor is stopped.
func (p *BatchProcessor) processBatch(batch []*models.PriceObservation) error {
	maxRetries := p.config.BatchProcessing.MaxRetries
	delay := time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.WithFields(logrus.Fields{
				"attempt":     attempt,
				"max_retries": maxRetries,
			}).Info("Retrying observation batch write")
			select {
			case <-p.ctx.Done():
				return p.ctx.Err()
			case <-time.After(delay):
			}
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			return database.UpsertObservations(tx, batch)
		})
		if err == nil {
			p.logger.WithField("batch_size", len(batch)).Info("Observation batch written")
			return nil
		}
		p.logger.WithError(err).Error("Observation batch write failed")
	}
	return fmt.Errorf("batch not written after %d retries: %w", maxRetries, err)
}
