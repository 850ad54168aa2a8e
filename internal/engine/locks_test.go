package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTableSerializesOneSession(t *testing.T) {
	table := newLockTable()

	const workers = 16
	const iterations = 200
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				release := table.Acquire("sess-1")
				counter++
				release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*iterations, counter)
}

func TestLockTableIsolatesSessions(t *testing.T) {
	table := newLockTable()

	releaseA := table.Acquire("sess-a")
	defer releaseA()

	// Another session's lock must be acquirable while sess-a is held.
	done := make(chan struct{})
	go func() {
		release := table.Acquire("sess-b")
		release()
		close(done)
	}()
	<-done
}

func TestLockTableReusesLockAcrossAcquires(t *testing.T) {
	table := newLockTable()

	release := table.Acquire("sess-1")
	release()
	release = table.Acquire("sess-1")
	release()

	table.mu.Lock()
	defer table.mu.Unlock()
	assert.Len(t, table.locks, 1)
}
