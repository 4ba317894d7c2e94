package locks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := k.Lock("c:1")
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, k.Len(), "entries should be released")
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	release := k.Lock("a")
	defer release()

	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLockManyOrdersAndDedupes(t *testing.T) {
	k := NewKeyed()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); k.LockMany("x", "y")() }()
		go func() { defer wg.Done(); k.LockMany("y", "x", "x")() }()
	}
	wg.Wait()
	assert.Zero(t, k.Len())
}
