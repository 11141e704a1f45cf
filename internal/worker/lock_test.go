package worker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLockExclusive(t *testing.T) {
	l := NewKeyedLock()

	assert.True(t, l.TryAcquire("daft punk|get lucky"))
	assert.False(t, l.TryAcquire("daft punk|get lucky"))
	assert.True(t, l.TryAcquire("m83|midnight city"), "different key is independent")

	l.Release("daft punk|get lucky")
	assert.True(t, l.TryAcquire("daft punk|get lucky"))
}

func TestKeyedLockReleaseUnheld(t *testing.T) {
	l := NewKeyedLock()
	l.Release("never-held")
	assert.True(t, l.TryAcquire("never-held"))
}

func TestKeyedLockConcurrent(t *testing.T) {
	l := NewKeyedLock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("contested") {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
}
