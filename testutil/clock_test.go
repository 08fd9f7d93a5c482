package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func TestManualClock_NowOnlyMovesOnAdvance(t *testing.T) {
	clock := NewManualClock(epoch)
	assert.Equal(t, epoch, clock.Now())

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), clock.Now())
}

func TestManualClock_FiresDueTimersInOrder(t *testing.T) {
	clock := NewManualClock(epoch)
	var fired []string

	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	clock.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, clock.Pending())
}

func TestManualClock_Stop(t *testing.T) {
	clock := NewManualClock(epoch)
	fired := false

	stop := clock.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, stop())
	assert.False(t, stop(), "second stop reports the timer was not pending")

	clock.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManualClock_StopAfterFire(t *testing.T) {
	clock := NewManualClock(epoch)
	stop := clock.AfterFunc(time.Second, func() {})

	clock.Advance(time.Second)
	assert.False(t, stop())
}

func TestManualClock_CallbackSeesDeadline(t *testing.T) {
	clock := NewManualClock(epoch)
	var seen time.Time

	clock.AfterFunc(time.Second, func() { seen = clock.Now() })
	clock.Advance(5 * time.Second)

	assert.Equal(t, epoch.Add(time.Second), seen)
	assert.Equal(t, epoch.Add(5*time.Second), clock.Now())
}

func TestManualClock_CallbackCanReschedule(t *testing.T) {
	clock := NewManualClock(epoch)
	count := 0

	var tick func()
	tick = func() {
		count++
		clock.AfterFunc(time.Second, tick)
	}
	clock.AfterFunc(time.Second, tick)

	clock.Advance(3 * time.Second)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, clock.Pending())
}

func TestTicker(t *testing.T) {
	now := Ticker(epoch, time.Second)
	assert.Equal(t, epoch, now())
	assert.Equal(t, epoch.Add(time.Second), now())
	assert.Equal(t, epoch.Add(2*time.Second), now())
}

func TestIDSequence_ThreadSafe(t *testing.T) {
	next := IDSequence("m_")
	assert.Equal(t, "m_1", next())

	const goroutines = 50
	ids := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- next()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}
