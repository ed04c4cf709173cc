package render

import (
	"errors"
	"sync"
)

// DefaultQueueSize is the default maximum number of queued jobs.
const DefaultQueueSize = 1000

// ErrQueueFull is returned when enqueueing to a full queue.
var ErrQueueFull = errors.New("render queue is full")

// JobQueue is a thread-safe FIFO of pending jobs. The interactive side
// enqueues; RenderAll drains it into one batch.
type JobQueue struct {
	entries []Job
	mu      sync.Mutex
	maxSize int
}

// NewJobQueue creates a queue holding at most maxSize jobs. If maxSize is
// <= 0, DefaultQueueSize is used.
func NewJobQueue(maxSize int) *JobQueue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	return &JobQueue{
		entries: make([]Job, 0),
		maxSize: maxSize,
	}
}

// Enqueue adds jobs to the back of the queue. Either every job is added or,
// when they do not all fit, none are and ErrQueueFull is returned.
func (q *JobQueue) Enqueue(jobs ...Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries)+len(jobs) > q.maxSize {
		return ErrQueueFull
	}
	q.entries = append(q.entries, jobs...)
	return nil
}

// Dequeue removes and returns the job at the front of the queue.
func (q *JobQueue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Job{}, false
	}
	job := q.entries[0]
	q.entries = q.entries[1:]
	return job, true
}

// Peek returns the job at the front of the queue without removing it.
func (q *JobQueue) Peek() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Job{}, false
	}
	return q.entries[0], true
}

// Len returns the number of queued jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drain removes and returns every queued job, leaving the queue empty.
func (q *JobQueue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := q.entries
	q.entries = make([]Job, 0)
	return result
}
