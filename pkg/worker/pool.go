// Package worker provides a generic, bounded worker pool used to run
// subscription deliveries concurrently without letting a slow transport
// block the event dispatch stream.
//
// Submit is non-blocking: when the queue is full the work item is dropped
// and ErrQueueFull returned, which callers treat as a failed delivery.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned by Submit when the work queue is at capacity.
var ErrQueueFull = errors.New("worker queue full")

// ErrPoolStopped is returned by Submit after Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

// Stats holds always-on pool counters, tracked atomically.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Completed uint64
	Failed    uint64
}

// Pool runs work items of type T on a fixed set of goroutines.
type Pool[T any] struct {
	queue   chan T
	handler func(context.Context, T) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lifecycleMu orders Submit's check-and-send against Stop's close;
	// without it a Submit racing Stop can send on the closed queue.
	lifecycleMu sync.Mutex
	stopped     bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewPool creates a pool with the given worker count and queue size and
// starts its workers. The handler's error only affects stats; it is never
// propagated to the submitter.
func NewPool[T any](workers, queueSize int, handler func(context.Context, T) error) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		queue:   make(chan T, queueSize),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for item := range p.queue {
		if err := p.handler(p.ctx, item); err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

// Submit enqueues a work item without blocking. The send stays
// non-blocking, so holding the lifecycle lock here never stalls on a
// full queue.
func (p *Pool[T]) Submit(item T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- item:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop drains the queue, waits for in-flight work, and releases workers.
// Safe to call more than once; Submit fails afterwards.
func (p *Pool[T]) Stop() {
	p.lifecycleMu.Lock()
	if p.stopped {
		p.lifecycleMu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.lifecycleMu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}
