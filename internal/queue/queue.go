package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"emlakindex/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// ObservationQueue buffers ingested observation batches between the HTTP
// surface and the batch writer. A full buffer rejects the push rather than
// blocking the ingest handler.
type ObservationQueue struct {
	batches  chan []*models.PriceObservation
	logger   *logrus.Logger
	mu       sync.RWMutex
	closed   bool
	handlers []func([]*models.PriceObservation) error
}

func NewObservationQueue(bufferSize int, logger *logrus.Logger) *ObservationQueue {
	return &ObservationQueue{
		batches: make(chan []*models.PriceObservation, bufferSize),
		logger:  logger,
	}
}

// Push enqueues one batch without blocking.
func (q *ObservationQueue) Push(batch []*models.PriceObservation) error {
	// The read lock is held across the send so Close cannot slip between the
	// closed check and the channel write.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.batches <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Queued observation batch")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a handler invoked for every dequeued batch. Handlers
// registered after Start still receive subsequent batches.
func (q *ObservationQueue) Subscribe(handler func([]*models.PriceObservation) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start launches the dispatch loop. It drains until Close.
func (q *ObservationQueue) Start() {
	go func() {
		for batch := range q.batches {
			q.dispatch(batch)
		}
	}()
}

func (q *ObservationQueue) dispatch(batch []*models.PriceObservation) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).WithField("batch_size", len(batch)).Error("Observation batch handler failed")
		}
	}
}

// Close rejects further pushes and lets the dispatch loop drain out. Safe to
// call more than once.
func (q *ObservationQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.batches)
	return nil
}

// Len reports the number of batches currently buffered.
func (q *ObservationQueue) Len() int {
	return len(q.batches)
}

func (q *ObservationQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
