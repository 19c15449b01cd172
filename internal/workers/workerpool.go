package workers

import (
	"context"
	"sync"
)

// WorkerPool manages a pool of workers that execute jobs concurrently.
type WorkerPool struct {
	jobCh    chan func()
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWorkerPool initializes a worker pool with a fixed number of workers.
func NewWorkerPool(workerCount, jobBufferSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	wp := &WorkerPool{
		jobCh: make(chan func(), jobBufferSize),
	}
	for i := 0; i < workerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobCh {
		job()
	}
}

func (wp *WorkerPool) wrap(job func()) func() {
	return func() {
		defer wp.wg.Done()
		job()
	}
}

// AddJob enqueues a job without blocking. It returns false when the queue
// is full and the job was dropped.
func (wp *WorkerPool) AddJob(job func()) bool {
	wp.wg.Add(1)
	select {
	case wp.jobCh <- wp.wrap(job):
		return true
	default:
		wp.wg.Done()
		return false
	}
}

// Submit enqueues a job, waiting for queue space until ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) error {
	wp.wg.Add(1)
	select {
	case wp.jobCh <- wp.wrap(job):
		return nil
	case <-ctx.Done():
		wp.wg.Done()
		return ctx.Err()
	}
}

// Wait blocks until all jobs are completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop waits for queued jobs and then shuts the workers down. No jobs may
// be added afterwards.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.wg.Wait()
		close(wp.jobCh)
	})
}
