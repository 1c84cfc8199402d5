package queue

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emlakindex/server/internal/models"
)

func batchOf(codes ...string) []*models.PriceObservation {
	batch := make([]*models.PriceObservation, len(codes))
	for i, code := range codes {
		batch[i] = &models.PriceObservation{LocationCode: code}
	}
	return batch
}

func TestObservationQueue_PushAndLen(t *testing.T) {
	q := NewObservationQueue(2, logrus.New())

	require.NoError(t, q.Push(batchOf("IST-001")))
	assert.Equal(t, 1, q.Len())
	require.NoError(t, q.Push(batchOf("ANK-001")))

	// Buffer of two is now full
	assert.Equal(t, ErrQueueFull, q.Push(batchOf("IZM-001")))
}

func TestObservationQueue_PushAfterClose(t *testing.T) {
	q := NewObservationQueue(2, logrus.New())
	require.NoError(t, q.Close())
	assert.Equal(t, ErrQueueClosed, q.Push(batchOf("IST-001")))
}

func TestObservationQueue_DispatchesToAllHandlers(t *testing.T) {
	q := NewObservationQueue(10, logrus.New())

	var mu sync.Mutex
	var received [][]*models.PriceObservation
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		q.Subscribe(func(batch []*models.PriceObservation) error {
			mu.Lock()
			received = append(received, batch)
			mu.Unlock()
			wg.Done()
			return nil
		})
	}

	q.Start()
	require.NoError(t, q.Push(batchOf("IST-001", "ANK-001")))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 3)
	for _, batch := range received {
		require.Len(t, batch, 2)
		assert.Equal(t, "IST-001", batch[0].LocationCode)
		assert.Equal(t, "ANK-001", batch[1].LocationCode)
	}
}

func TestObservationQueue_HandlerErrorDoesNotStopDispatch(t *testing.T) {
	q := NewObservationQueue(10, logrus.New())

	var wg sync.WaitGroup
	wg.Add(2)
	q.Subscribe(func([]*models.PriceObservation) error {
		wg.Done()
		return assert.AnError
	})
	var mu sync.Mutex
	var got int
	q.Subscribe(func(batch []*models.PriceObservation) error {
		mu.Lock()
		got = len(batch)
		mu.Unlock()
		wg.Done()
		return nil
	})

	q.Start()
	require.NoError(t, q.Push(batchOf("IST-001")))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, got)
}

func TestObservationQueue_CloseIsIdempotent(t *testing.T) {
	q := NewObservationQueue(10, logrus.New())

	require.NoError(t, q.Close())
	assert.True(t, q.IsClosed())
	assert.NoError(t, q.Close())
}
