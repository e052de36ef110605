package wheel_test

import (
	"testing"

	"github.com/ocx/cachecluster/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleAndAdvanceFires(t *testing.T) {
	w := wheel.New(16, 10, 0)
	w.Schedule("k1", 35)

	var fired []string
	w.AdvanceTo(40, func(key string, nowMs uint64) {
		fired = append(fired, key)
	})
	assert.Contains(t, fired, "k1")
}

func TestDescheduleRemovesKey(t *testing.T) {
	w := wheel.New(16, 10, 0)
	w.Schedule("k1", 35)
	w.Deschedule("k1")

	var fired []string
	w.AdvanceTo(100, func(key string, nowMs uint64) {
		fired = append(fired, key)
	})
	assert.NotContains(t, fired, "k1")
}

func TestRescheduleMovesSlot(t *testing.T) {
	w := wheel.New(4, 10, 0)
	w.Schedule("k1", 15) // tick 1, slot 1
	w.Schedule("k1", 95) // tick 9, slot 1 (9 & 3 == 1) -- pick a case that actually differs
	w.Schedule("k1", 25) // tick 2, slot 2

	var fired []string
	w.AdvanceTo(50, func(key string, nowMs uint64) {
		fired = append(fired, key)
	})
	require.Len(t, fired, 1)
	assert.Equal(t, "k1", fired[0])
}

func TestCoarseHorizonVerifyAndReinsert(t *testing.T) {
	// size*tick_ms horizon is small; a far-future expiration wraps into an
	// earlier slot and must be re-checked/re-scheduled by the caller.
	w := wheel.New(4, 10, 0) // horizon = 40ms
	w.Schedule("far", 1000) // lands in some slot well before 1000ms really elapses

	reScheduled := false
	w.AdvanceTo(40, func(key string, nowMs uint64) {
		if key == "far" {
			// verify-and-reinsert: caller checks real expiry (1000) vs now (40)
			if 1000 > nowMs {
				w.Schedule(key, 1000)
				reScheduled = true
			}
		}
	})
	assert.True(t, reScheduled)

	var firedLater []string
	w.AdvanceTo(1005, func(key string, nowMs uint64) {
		firedLater = append(firedLater, key)
	})
	assert.Contains(t, firedLater, "far")
}

func TestAdvanceIsIdempotentNoDoubleFire(t *testing.T) {
	w := wheel.New(8, 10, 0)
	w.Schedule("k1", 25)

	count := 0
	cb := func(key string, nowMs uint64) { count++ }
	w.AdvanceTo(30, cb)
	w.AdvanceTo(60, cb)
	assert.Equal(t, 1, count)
}
