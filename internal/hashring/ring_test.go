package hashring_test

import (
	"testing"

	"github.com/ocx/cachecluster/internal/hashring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodeIsIdempotent(t *testing.T) {
	r := hashring.New()
	assert.True(t, r.AddNode("m1"))
	assert.False(t, r.AddNode("m1"))
	assert.True(t, r.HasNode("m1"))
}

func TestEmptyRingLocateMisses(t *testing.T) {
	r := hashring.New()
	_, ok := r.Locate(hashring.HashKey("foo"))
	assert.False(t, ok)
}

func TestLocateIsDeterministic(t *testing.T) {
	r := hashring.New()
	r.AddNode("m1")
	r.AddNode("m2")
	r.AddNode("m3")

	h := hashring.HashKey("foo")
	first, ok := r.Locate(h)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := r.Locate(h)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestRemoveNodeDropsAllVirtualNodes(t *testing.T) {
	r := hashring.New()
	r.AddNode("m1")
	r.AddNode("m2")

	assert.True(t, r.RemoveNode("m1"))
	assert.False(t, r.HasNode("m1"))
	assert.False(t, r.RemoveNode("m1"))

	// every lookup now lands on the only remaining node
	for _, k := range []string{"a", "b", "c", "d"} {
		node, ok := r.Locate(hashring.HashKey(k))
		require.True(t, ok)
		assert.Equal(t, "m2", node)
	}
}

func TestSameHistorySameRing(t *testing.T) {
	build := func() *hashring.Ring {
		r := hashring.New()
		r.AddNode("m1")
		r.AddNode("m2")
		r.RemoveNode("m1")
		r.AddNode("m3")
		return r
	}
	r1 := build()
	r2 := build()

	for _, k := range []string{"x", "y", "z", "w"} {
		n1, _ := r1.Locate(hashring.HashKey(k))
		n2, _ := r2.Locate(hashring.HashKey(k))
		assert.Equal(t, n1, n2)
	}
}
