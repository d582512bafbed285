package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is an in-memory job queue backed by a channel. It is safe for
// concurrent use and suitable for single-instance deployments; a distributed
// deployment would swap in an external broker behind the same shape.
type Queue struct {
	jobChan   chan *ProcessJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     Store
	workers   int
	closed    bool
}

// NewQueue creates a queue. bufferSize bounds how many jobs can wait before
// Enqueue blocks; workers is the number of concurrent consumers.
func NewQueue(bufferSize, workers int, store Store) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan *ProcessJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
	}
}

// Enqueue registers the job as pending and hands it to a worker. The job's ID
// and timestamps are filled in when missing.
func (q *Queue) Enqueue(ctx context.Context, job *ProcessJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	q.store.SaveJob(job)

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start launches the worker goroutines. Each job goes through handler once;
// the store reflects running/completed/failed transitions.
func (q *Queue) Start(ctx context.Context, handler Handler) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.runJob(ctx, job, handler)
		}
	}
}

func (q *Queue) runJob(ctx context.Context, job *ProcessJob, handler Handler) {
	now := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &now
	q.store.SaveJob(job)

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Progress = 100
	}
	q.store.SaveJob(job)
}

// Stop closes the queue and waits for in-flight jobs to finish, bounded by
// ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
