package protocol

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock детерминированные часы для тестов: каждая метка на step больше
type stepClock struct {
	next int64
	step int64
}

func (c *stepClock) Now() int64 {
	ts := c.next
	c.next += c.step
	return ts
}

func TestHybridClock_FollowsWallClock(t *testing.T) {
	wall := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := NewHybridClockWithSource(func() time.Time { return wall })

	assert.Equal(t, wall.UnixMilli(), clock.Now())

	wall = wall.Add(time.Second)
	assert.Equal(t, wall.UnixMilli(), clock.Now())
	assert.Equal(t, wall.UnixMilli(), clock.Last())
}

func TestHybridClock_StrictlyIncreasing(t *testing.T) {
	wall := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := NewHybridClockWithSource(func() time.Time { return wall })

	first := clock.Now()
	// Та же миллисекунда
	assert.Equal(t, first+1, clock.Now())

	// Часы переведены назад
	wall = wall.Add(-time.Minute)
	assert.Equal(t, first+2, clock.Now())
}

func TestHybridClock_Observe(t *testing.T) {
	wall := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := NewHybridClockWithSource(func() time.Time { return wall })

	remote := wall.Add(time.Hour).UnixMilli()
	clock.Observe(remote)
	assert.Equal(t, remote+1, clock.Now())

	// Старые метки ничего не меняют
	clock.Observe(0)
	assert.Equal(t, remote+2, clock.Now())

	clock.SetLast(5)
	assert.Equal(t, int64(5), clock.Last())
}

func TestHybridClock_Concurrent(t *testing.T) {
	clock := NewHybridClock()

	const workers, perWorker = 8, 100
	results := make(chan int64, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, workers*perWorker)
	for ts := range results {
		require.False(t, seen[ts], "duplicate timestamp %d", ts)
		seen[ts] = true
	}
	assert.Len(t, seen, workers*perWorker)
}
