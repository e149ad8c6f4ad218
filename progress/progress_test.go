package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_Update(t *testing.T) {
	tracker := New(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	var calls atomic.Int32
	tracker.OnChange(func(p Progress) { calls.Add(1) })
	ctx := WithTracker(context.Background(), tracker)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			UpdateCtx(ctx, Delta{Passes: 1, Allocated: 2, Blocked: 1})
		}()
	}
	wg.Wait()
	tracker.OnChange(nil)

	snapshot := tracker.Snapshot()
	assert.Equal(t, 10, snapshot.Passes)
	assert.Equal(t, 20, snapshot.Allocated)
	assert.Equal(t, 10, snapshot.Blocked)
	assert.Equal(t, int32(10), calls.Load())

	found, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, tracker, found)
	_, ok = FromContext(context.Background())
	assert.False(t, ok)

	var nilTracker *Progress
	nilTracker.Update(Delta{Passes: 1})
	assert.Equal(t, 0, nilTracker.Snapshot().Passes)
}
