package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Register("b", 2))
	require.NoError(t, r.Register("a", 1))
	assert.Error(t, r.Register("a", 3))

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, []int{2, 1}, r.All())

	r.Replace("b", 20)
	assert.Equal(t, []int{20, 1}, r.All())
	assert.Equal(t, 2, r.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New[string]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("p%d", i), "x")
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Names()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := New[int]()
	r.MustRegister("x", 1)
	assert.Panics(t, func() { r.MustRegister("x", 2) })
}
