package p2p

import (
	"sync"

	"github.com/lastcanal/libbitcoin-network/internal/panics"
)

// job is one unit of work submitted to the pool, carrying the name
// panics.GoroutineWrapperFunc logs a recovered panic under.
type job struct {
	name string
	f    func()
}

// Pool is the coordinator's shared low-priority worker pool (spec.md
// 4.6 start stage 3: "spawn N low-priority workers per configuration").
// Every session (inbound accept loop, outbound maintenance loop,
// per-channel read pumps) submits its long-running goroutines through
// Spawn rather than calling go directly, so the coordinator can bound
// concurrency to config.Config.Threads and join every worker cleanly
// on Stop — the Go substitute for the teacher's threadpool-per-service
// model, sized down to spec.md's narrower "N workers" contract.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
	quit    chan struct{}
}

// NewPool returns a pool with no workers running. Call Start to spawn.
func NewPool() *Pool {
	return &Pool{}
}

// Start spawns n workers, each draining jobs until Stop signals them to
// quit; jobs still queued at that point are not run. Calling Start while already running is a no-op — it is the
// "join any existing worker pool" half of spec.md's start stage 3.
func (p *Pool) Start(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	if n <= 0 {
		n = 1
	}
	p.jobs = make(chan job, n*4)
	p.quit = make(chan struct{})
	p.running = true

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.runJob(j)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) runJob(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Criticalf("panic in pool job %s: %v", j.name, r)
		}
	}()
	j.f()
}

// Spawn submits f to the pool under name for logging. If the pool has
// not been started (or has already stopped), Spawn falls back to the
// module's supervised-goroutine helper so callers never block on a
// queue that will never drain.
func (p *Pool) Spawn(name string, f func()) {
	p.mu.Lock()
	running := p.running
	jobs := p.jobs
	p.mu.Unlock()

	if !running {
		panics.GoroutineWrapperFunc(log)(name, f)
		return
	}
	select {
	case jobs <- job{name: name, f: f}:
	default:
		// Queue full: spawning long-lived loops (accept/maintain) must
		// never block on pool capacity, only short request-response work
		// is expected to queue.
		panics.GoroutineWrapperFunc(log)(name, f)
	}
}

// Stop signals every worker to exit and waits for them to drain,
// joining the pool the way spec.md's stop stage 5 "shut down the
// worker pool" requires.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
}
