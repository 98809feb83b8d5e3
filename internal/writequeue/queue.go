package writequeue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// job is a unit of work waiting for its turn on the queue goroutine.
type job struct {
	fn   func() error
	done chan error
}

// Queue serializes mutations to a shared resource through a single worker
// goroutine. The local template library's read-modify-write persistence has
// no internal locking, so every mutating call is funneled through a Queue to
// rule out lost updates between concurrent requests.
type Queue struct {
	jobs   chan job
	quit   chan struct{}
	wg     sync.WaitGroup
	logger *logrus.Logger
}

// New creates a queue with the given backlog size.
func New(backlog int, logger *logrus.Logger) *Queue {
	return &Queue{
		jobs:   make(chan job, backlog),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

// Run starts the worker goroutine.
func (q *Queue) Run() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case j := <-q.jobs:
				j.done <- j.fn()
			case <-q.quit:
				// Drain whatever was already queued before exiting so no
				// submitted caller is left waiting.
				for {
					select {
					case j := <-q.jobs:
						j.done <- j.fn()
					default:
						return
					}
				}
			}
		}
	}()
}

// Do submits fn and blocks until it has run on the queue goroutine or ctx is
// done. Functions submitted from multiple goroutines execute one at a time in
// submission order.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The job still runs; the caller just stops waiting on it.
		return ctx.Err()
	}
}

// Stop shuts the queue down after draining queued work.
func (q *Queue) Stop() {
	close(q.quit)
	q.wg.Wait()
	q.logger.Info("Write queue stopped")
}
