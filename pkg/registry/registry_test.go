package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("one", 1))

	v, ok := r.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("two")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("one", 1))
	assert.Error(t, r.Register("one", 2))
	assert.Error(t, r.Register("", 3))

	v, _ := r.Get("one")
	assert.Equal(t, 1, v)
}

func TestReplace(t *testing.T) {
	r := NewBaseRegistry[string]()
	assert.False(t, r.Replace("k", "a"))
	assert.True(t, r.Replace("k", "b"))

	v, _ := r.Get("k")
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, r.Count())
}

func TestRemoveAndClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("one", 1))
	require.NoError(t, r.Register("two", 2))

	require.NoError(t, r.Remove("one"))
	assert.Error(t, r.Remove("one"))
	assert.Equal(t, 1, r.Count())

	r.Clear()
	assert.Equal(t, 0, r.Count())
}

func TestListAndNames(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	assert.ElementsMatch(t, []int{1, 2}, r.List())
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}

func TestConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Replace("k", 1)
		}()
		go func() {
			defer wg.Done()
			r.Get("k")
			r.Count()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Count())
}
