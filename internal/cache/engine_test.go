package cache_test

import (
	"testing"

	"github.com/ocx/cachecluster/internal/cache"
	"github.com/ocx/cachecluster/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, capacity, wheelSize int, tickMs uint64) (*cache.Engine, *clock.Mock) {
	t.Helper()
	mc := clock.NewMock(0)
	e := cache.New(cache.Config{Capacity: capacity, WheelSize: wheelSize, TickMillis: tickMs, Clock: mc})
	return e, mc
}

func TestTTLEviction(t *testing.T) {
	e, mc := newEngine(t, 128, 16, 10)

	e.Put("kx", "vx", true, 30)
	v, ok := e.Get("kx")
	require.True(t, ok)
	assert.Equal(t, "vx", v)

	mc.Advance(35)
	e.AdvanceWheelToNow()

	_, ok = e.Get("kx")
	assert.False(t, ok)
	assert.Equal(t, 0, e.Size())
}

func TestTTLExtensionWins(t *testing.T) {
	e, mc := newEngine(t, 128, 16, 10)

	e.Put("kext", "v", true, 20)
	e.Put("kext", "v", true, 200)

	mc.Advance(50)
	e.AdvanceWheelToNow()
	v, ok := e.Get("kext")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	mc.Advance(170)
	e.AdvanceWheelToNow()
	_, ok = e.Get("kext")
	assert.False(t, ok)
}

func TestLRUEvictionOrder(t *testing.T) {
	e, _ := newEngine(t, 2, 16, 10)

	e.Put("k1", "v1", false, 0)
	e.Put("k2", "v2", false, 0)
	_, _ = e.Get("k1")
	e.Put("k3", "v3", false, 0)

	_, hasK1 := e.Get("k1")
	_, hasK2 := e.Get("k2")
	_, hasK3 := e.Get("k3")
	assert.True(t, hasK1)
	assert.False(t, hasK2)
	assert.True(t, hasK3)
}

func TestZeroTTLBornExpired(t *testing.T) {
	e, _ := newEngine(t, 128, 16, 10)
	e.Put("k", "v", true, 0)
	_, ok := e.Get("k")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	e, _ := newEngine(t, 128, 16, 10)
	e.Put("k", "v", false, 0)
	assert.True(t, e.Invalidate("k"))
	_, ok := e.Get("k")
	assert.False(t, ok)
	assert.False(t, e.Invalidate("k"))
}

func TestPutWithoutTTLAfterTTLDeschedules(t *testing.T) {
	e, mc := newEngine(t, 128, 16, 10)
	e.Put("k", "v", true, 20)
	e.Put("k", "v2", false, 0)

	mc.Advance(50)
	e.AdvanceWheelToNow()

	v, ok := e.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestInclusiveExpiryBoundary(t *testing.T) {
	e, mc := newEngine(t, 128, 16, 10)
	e.Put("k", "v", true, 30)
	mc.Advance(30) // expires_at == now -> expired (inclusive)
	_, ok := e.Get("k")
	assert.False(t, ok)
}

func TestSizeNeverExceedsCapacity(t *testing.T) {
	e, _ := newEngine(t, 4, 16, 10)
	for i := 0; i < 100; i++ {
		e.Put(string(rune('a'+i%26)), "v", false, 0)
		assert.LessOrEqual(t, e.Size(), 4)
	}
}
