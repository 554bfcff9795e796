package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionLocksSerialiseAndCleanUp(t *testing.T) {
	l := newSessionLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		overlap bool
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("s1")
			defer unlock()

			mu.Lock()
			active++
			if active > 1 {
				overlap = true
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.False(t, overlap)
	assert.Equal(t, 0, l.size())
}

func TestSessionLocksAreIndependentPerSession(t *testing.T) {
	l := newSessionLocks()
	unlockA := l.lock("a")
	unlockB := l.lock("b")
	assert.Equal(t, 2, l.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, l.size())
}
