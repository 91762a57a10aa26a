package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("user-1")
			counter++
			km.Unlock("user-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	// Holding one key must not block a different key. If the shards
	// collided this would deadlock and the test would time out.
	km.Lock("alpha")
	done := make(chan struct{})
	go func() {
		km.Lock("beta")
		km.Unlock("beta")
		close(done)
	}()
	<-done
	km.Unlock("alpha")
}
