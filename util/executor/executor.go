package executor

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrStopped is returned by Submit once Shutdown has begun.
var ErrStopped = errors.New("executor: stopped")

const queueDepthPerWorker = 128

// Executor runs submitted tasks on a fixed set of worker goroutines.
// With a single worker, tasks run strictly in submission order.
type Executor struct {
	name    string
	workers int
	tasks   chan func()

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	discard int32
}

// New create an executor named name with the given worker count.
func New(name string, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	e := &Executor{
		name:    name,
		workers: workers,
		tasks:   make(chan func(), workers*queueDepthPerWorker),
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.workLoop()
	}
	return e
}

// Name returns the executor name.
func (e *Executor) Name() string { return e.name }

// Workers returns the fixed worker count.
func (e *Executor) Workers() int { return e.workers }

// Submit enqueues task for asynchronous execution. It may block while the
// queue is full and fails with ErrStopped after Shutdown.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	// enqueue under mu so no send can race the channel close in Shutdown
	e.tasks <- task
	e.mu.Unlock()
	return nil
}

// Shutdown stops the executor and waits for the workers to exit. With
// wait=true pending tasks are drained, otherwise they are discarded. The
// task currently running always finishes.
func (e *Executor) Shutdown(wait bool) {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		if !wait {
			atomic.StoreInt32(&e.discard, 1)
		}
		close(e.tasks)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Stopped reports whether Shutdown has begun.
func (e *Executor) Stopped() bool {
	e.mu.Lock()
	s := e.stopped
	e.mu.Unlock()
	return s
}

func (e *Executor) workLoop() {
	defer e.wg.Done()
	for task := range e.tasks {
		if atomic.LoadInt32(&e.discard) == 1 {
			continue
		}
		task()
	}
}
