package p2p

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolSpawnRunsJobsConcurrently(t *testing.T) {
	p := NewPool()
	p.Start(4)
	t.Cleanup(p.Stop)

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		i := i
		p.Spawn("test.job", func() {
			defer wg.Done()
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pool jobs")
	}
	require.Len(t, seen, 8)
}

func TestPoolSpawnRecoversPanickingJob(t *testing.T) {
	p := NewPool()
	p.Start(1)
	t.Cleanup(p.Stop)

	done := make(chan struct{})
	p.Spawn("test.panic", func() { panic("boom") })
	p.Spawn("test.after", func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestPoolStartIsIdempotent(t *testing.T) {
	p := NewPool()
	p.Start(2)
	p.Start(4) // must be a no-op, not a second set of workers
	p.Stop()
	p.Stop() // must not panic or block
}

func TestPoolSpawnWithoutStartFallsBackToSupervisedGoroutine(t *testing.T) {
	p := NewPool()
	done := make(chan struct{})
	p.Spawn("test.unstarted", func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spawn on an unstarted pool never ran")
	}
}
