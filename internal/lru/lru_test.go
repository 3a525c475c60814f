package lru

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecencyTouchChangesVictim(t *testing.T) {
	c := New[string, int](2)
	c.Put("A", 1)
	c.Put("B", 2)

	_, ok := c.Get("A")
	require.True(t, ok)
	c.Put("C", 3)

	_, ok = c.Get("B")
	assert.False(t, ok, "B was least recently used and must be evicted")
	v, ok := c.Get("A")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = c.Get("C")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestOverflowEvictsExactlyOldest(t *testing.T) {
	const capacity = 5
	c := New[string, int](capacity)
	for i := 0; i <= capacity; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}

	assert.Equal(t, capacity, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok)
	for i := 1; i <= capacity; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d should survive", i)
	}
}

func TestTouchedKeySurvivesCapacityMinusOneInserts(t *testing.T) {
	const capacity = 4
	c := New[string, int](capacity)
	for i := 0; i < capacity; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	_, ok := c.Get("k0")
	require.True(t, ok)

	for i := 0; i < capacity-1; i++ {
		c.Put(fmt.Sprintf("new%d", i), i)
	}
	_, ok = c.Get("k0")
	assert.True(t, ok)
}

func TestPutOverwritesAndRefreshes(t *testing.T) {
	c := New[string, int](2)
	c.Put("A", 1)
	c.Put("B", 2)
	c.Put("A", 10)
	c.Put("C", 3)

	v, ok := c.Get("A")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("B")
	assert.False(t, ok)
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New[string, int](0).Capacity())
}

func TestConcurrentAccessKeepsBound(t *testing.T) {
	c := New[int, int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Put(g*1000+i, i)
				c.Get(g*1000 + i/2)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}
