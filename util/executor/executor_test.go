package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRuns(t *testing.T) {
	e := New("test", 4)
	defer e.Shutdown(true)

	var wg sync.WaitGroup
	var n int64
	wg.Add(100)
	for i := 0; i < 100; i++ {
		if err := e.Submit(func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		}); err != nil {
			t.Fatalf("submit error: %v", err)
		}
	}
	wg.Wait()
	if n != 100 {
		t.Errorf("expected 100 tasks run, got %d", n)
	}
}

func TestSingleWorkerOrdering(t *testing.T) {
	e := New("ordered", 1)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 64; i++ {
		i := i
		if err := e.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit error: %v", err)
		}
	}
	e.Shutdown(true)

	if len(got) != 64 {
		t.Fatalf("expected 64 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order: got %d", i, v)
		}
	}
}

func TestShutdownDrain(t *testing.T) {
	e := New("drain", 1)
	var n int64
	for i := 0; i < 16; i++ {
		e.Submit(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&n, 1)
		})
	}
	e.Shutdown(true)
	if n != 16 {
		t.Errorf("drain shutdown lost tasks: ran %d of 16", n)
	}
	if !e.Stopped() {
		t.Error("executor not stopped after Shutdown")
	}
}

func TestShutdownDiscard(t *testing.T) {
	e := New("discard", 1)
	block := make(chan struct{})
	var n int64
	e.Submit(func() { <-block })
	for i := 0; i < 16; i++ {
		e.Submit(func() { atomic.AddInt64(&n, 1) })
	}

	done := make(chan struct{})
	go func() {
		e.Shutdown(false)
		close(done)
	}()
	close(block)
	<-done

	if n != 0 {
		t.Errorf("discard shutdown ran %d pending tasks", n)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	e := New("stopped", 2)
	e.Shutdown(true)
	if err := e.Submit(func() {}); err != ErrStopped {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
