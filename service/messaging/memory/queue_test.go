package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/messaging"
)

func testConfig() Config {
	config := DefaultConfig()
	config.Retry = messaging.RetryPolicy{MaxRetries: 2, InitialDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond}
	return config
}

func TestQueue(t *testing.T) {
	queue := NewQueue[model.Notification](testConfig())
	ctx := context.Background()
	payload := model.Notification{Kind: model.NotificationAllocated, Severity: model.SeverityInfo, Entities: []string{"W1"}}

	require.NoError(t, queue.Publish(ctx, &payload))
	assert.Equal(t, 1, queue.Size())
	assert.Equal(t, 1, queue.Stats().Pending)

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID())
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, payload.Entities, message.T().Entities)
	assert.Equal(t, 1, queue.Stats().InFlight)

	require.NoError(t, message.Ack())
	assert.True(t, errors.Is(message.Ack(), ErrProcessed))
	stats := queue.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, uint64(1), stats.Processed)
}

func TestQueueRetries(t *testing.T) {
	queue := NewQueue[model.Notification](testConfig())
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &model.Notification{Kind: model.NotificationBlocked}))

	for attempt := 0; attempt <= 2; attempt++ {
		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		message, err := queue.Consume(waitCtx)
		cancel()
		require.NoError(t, err, "attempt %d", attempt)
		assert.Equal(t, attempt, message.Attempt())
		require.NoError(t, message.Nack(fmt.Errorf("delivery failed")))
	}

	assert.Equal(t, 1, queue.DLQSize())
	assert.Equal(t, model.NotificationBlocked, queue.DeadLetters()[0].Kind)
	assert.Equal(t, uint64(2), queue.Stats().Retried)
	assert.Equal(t, 0, queue.Size())
}

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue[model.Notification](testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	producers, perProducer := 8, 25

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				assert.NoError(t, queue.Publish(ctx, &model.Notification{ID: fmt.Sprintf("p%d-%d", producer, j)}))
			}
		}(i)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	for i := 0; i < producers; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for j := 0; j < perProducer; j++ {
				message, err := queue.Consume(ctx)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[message.T().ID] = true
				mu.Unlock()
				assert.NoError(t, message.Ack())
			}
		}()
	}
	wg.Wait()
	consumers.Wait()
	assert.Len(t, seen, producers*perProducer)
	assert.Equal(t, uint64(producers*perProducer), queue.Stats().Processed)
}
