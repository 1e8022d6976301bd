package trips

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_SerialisesSameKey(t *testing.T) {
	locks := newKeyedLocks()

	unlock := locks.Lock("trip:1")
	acquired := make(chan struct{})
	go func() {
		release := locks.Lock("trip:1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the key was locked")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the key")
	}
}

func TestKeyedLocks_IndependentKeys(t *testing.T) {
	locks := newKeyedLocks()
	unlockA := locks.Lock("actor:a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		locks.Lock("actor:b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated key blocked")
	}
}

func TestKeyedLocks_ForgetsIdleKeys(t *testing.T) {
	locks := newKeyedLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("actor:x")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}
