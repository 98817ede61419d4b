package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned for work submitted while the executor shuts down
var ErrStopped = errors.New("serial executor stopped")

// Serial confines work to one logical execution context: at most one
// submitted function runs at a time, in submission order. Functions must not
// submit to the same executor they run on.
type Serial struct {
	queueSize int
	taskQueue chan func()
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	mu        sync.Mutex

	// inline serializes callers while the worker is not running
	inline sync.Mutex
}

// NewSerial creates an executor whose queue holds queueSize pending calls
func NewSerial(queueSize int) *Serial {
	if queueSize <= 0 {
		queueSize = 16 // default
	}
	return &Serial{queueSize: queueSize}
}

// Start starts the worker goroutine
func (s *Serial) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.taskQueue = make(chan func(), s.queueSize)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.started = true
	go s.worker(s.taskQueue, s.stopCh, s.doneCh)
}

// worker runs queued tasks until stopped, then drains what is already queued
func (s *Serial) worker(queue chan func(), stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			for {
				select {
				case task := <-queue:
					task()
				default:
					return
				}
			}
		case task := <-queue:
			task()
		}
	}
}

// Task states. A queued task is either claimed by the worker or abandoned
// by its caller, never both.
const (
	taskQueued int32 = iota
	taskRunning
	taskAbandoned
)

// Do runs fn on the executor and returns its error. Before Start, and after
// Stop, fn runs on the caller's goroutine under a lock.
//
// A call whose ctx ends while it is still queued is dropped and fn never
// runs. Once fn has started Do waits for it to return, so fn never outlives
// the call.
func (s *Serial) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	started, queue, stopCh, doneCh := s.started, s.taskQueue, s.stopCh, s.doneCh
	s.mu.Unlock()

	if !started {
		s.inline.Lock()
		defer s.inline.Unlock()
		return fn(ctx)
	}

	var state atomic.Int32
	result := make(chan error, 1)
	task := func() {
		if !state.CompareAndSwap(taskQueued, taskRunning) {
			return
		}
		result <- fn(ctx)
	}

	select {
	case <-stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case queue <- task:
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ctx.Err()
		}
		return <-result
	case <-doneCh:
		// The worker drained the queue before exiting unless the task
		// raced in after the drain
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ErrStopped
		}
		return <-result
	}
}

// Stop stops the worker and waits for queued work to finish
func (s *Serial) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// QueueLength returns the current number of calls waiting to run
func (s *Serial) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.taskQueue)
}
