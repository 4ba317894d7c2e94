package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterUnregisterMultiDevice(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Register("a@x.io", "c1"))
	assert.False(t, r.Register("a@x.io", "c2"))
	assert.False(t, r.Register("a@x.io", "c2"), "re-register is idempotent")
	assert.Equal(t, []string{"c1", "c2"}, r.ConnectionsFor("a@x.io"))
	assert.True(t, r.IsOnline("a@x.io"))
	assert.Equal(t, 1, r.Len())

	assert.False(t, r.Unregister("a@x.io", "c1"), "non-last connection")
	assert.True(t, r.Unregister("a@x.io", "c2"), "last connection")
	assert.False(t, r.IsOnline("a@x.io"))
	assert.Empty(t, r.ConnectionsFor("a@x.io"))
	assert.Zero(t, r.Len())
}

func TestUnregisterUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Unregister("ghost", "c1"))
	r.Register("a", "c1")
	assert.False(t, r.Unregister("a", "c9"))
	assert.True(t, r.IsOnline("a"))
}

func TestConnectionsForIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "c1")
	conns := r.ConnectionsFor("a")
	conns[0] = "mutated"
	assert.Equal(t, []string{"c1"}, r.ConnectionsFor("a"))
}

func TestFilterOnline(t *testing.T) {
	r := NewRegistry()
	r.Register("b", "c1")
	r.Register("d", "c2")
	assert.Equal(t, []string{"b", "d"}, r.FilterOnline([]string{"a", "b", "c", "d"}))
}

func TestConcurrentRegisterExactlyOneOffline(t *testing.T) {
	r := NewRegistry()
	const n = 64
	for i := 0; i < n; i++ {
		r.Register("a", fmt.Sprintf("c%d", i))
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		offlines int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Unregister("a", fmt.Sprintf("c%d", i)) {
				mu.Lock()
				offlines++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, offlines)
}
