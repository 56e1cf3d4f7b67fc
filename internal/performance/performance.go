// Package performance provides the concurrency helpers used by the CPU-heavy
// analyses and by bulk storage writes.
package performance

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolNotRunning is returned by Submit before Start or after Stop.
	ErrPoolNotRunning = errors.New("worker pool is not running")
	// ErrQueueFull is returned by Submit when the task queue has no room.
	ErrQueueFull = errors.New("worker pool queue is full")
)

// WorkerPool runs submitted tasks on a fixed set of goroutines. Tasks
// queued before Stop always run.
type WorkerPool struct {
	workers    int
	taskQueue  chan func()
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	stopped    bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0, it defaults to runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*64),
	}
}

// Start launches the workers. Calling Start on a running or stopped pool
// is a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return
	}
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker drains the queue until Stop closes it.
func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		task()
		p.tasksDone.Add(1)
	}
}

// Submit queues a task without blocking.
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolNotRunning
	}

	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait queues a task and blocks until it has run.
func (p *WorkerPool) SubmitWait(task func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		task()
	}

	if err := p.Submit(wrapped); err != nil {
		return err
	}

	<-done
	return nil
}

// Run executes fn(0..n-1) on the pool and waits for all of them. Tasks the
// pool cannot accept run on the calling goroutine, so Run always completes
// every index it started, even when Stop is called meanwhile. It returns
// ctx.Err() if the context was cancelled before all tasks were queued;
// already queued tasks still finish.
func (p *WorkerPool) Run(ctx context.Context, n int, fn func(i int)) error {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(i)
		}
		if p.Submit(task) != nil {
			task()
		}
	}
	wg.Wait()
	return nil
}

// Stop refuses new tasks, lets the workers finish everything already
// queued and waits for them to exit.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	wasRunning := p.running
	p.running = false
	close(p.taskQueue)
	p.mu.Unlock()

	if wasRunning {
		p.wg.Wait()
	}
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	return PoolStats{
		Workers:    p.workers,
		Running:    running,
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		QueueLen:   len(p.taskQueue),
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	QueueLen   int
}

// BatchProcessor accumulates items and hands them to a processor in
// batches of a fixed size.
type BatchProcessor[T any] struct {
	batchSize int
	processor func([]T) error
	items     []T
	mu        sync.Mutex
	batches   int
}

// NewBatchProcessor creates a batch processor. A batchSize below 1 is
// treated as 1.
func NewBatchProcessor[T any](batchSize int, processor func([]T) error) *BatchProcessor[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchProcessor[T]{
		batchSize: batchSize,
		processor: processor,
		items:     make([]T, 0, batchSize),
	}
}

// Add appends an item, processing the batch once it is full.
func (b *BatchProcessor[T]) Add(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)
	if len(b.items) >= b.batchSize {
		return b.flush()
	}
	return nil
}

// Flush processes any remaining items.
func (b *BatchProcessor[T]) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush()
}

// Batches reports how many batches have been handed to the processor.
func (b *BatchProcessor[T]) Batches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches
}

func (b *BatchProcessor[T]) flush() error {
	if len(b.items) == 0 {
		return nil
	}

	b.batches++
	err := b.processor(b.items)
	b.items = b.items[:0]
	return err
}
