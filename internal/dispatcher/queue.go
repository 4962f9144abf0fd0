package dispatcher

import (
	"sync"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// Queue is the dispatcher's shared mutable state: an ordered pending list
// popped from the tail (LIFO), an append-only completed list, and a
// failed list for chunks that exhausted their attempt budget. One mutex
// guards all three; every critical section is a single pop or push
// (spec.md §4.2, §5).
type Queue struct {
	mu          sync.Mutex
	pending     []swarm.Chunk
	completed   []swarm.Chunk
	failed      []swarm.Chunk
	attempts    map[int]int
	maxAttempts int
	total       int
}

// NewQueue seeds the queue with every chunk of a job, pending.
func NewQueue(chunks []swarm.Chunk, maxAttempts int) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	pending := make([]swarm.Chunk, len(chunks))
	copy(pending, chunks)

	return &Queue{
		pending:     pending,
		attempts:    make(map[int]int, len(chunks)),
		maxAttempts: maxAttempts,
		total:       len(chunks),
	}
}

// Pop removes and returns the chunk at the tail of pending, if any.
func (q *Queue) Pop() (swarm.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	if n == 0 {
		return swarm.Chunk{}, false
	}
	chunk := q.pending[n-1]
	q.pending = q.pending[:n-1]
	return chunk, true
}

// Complete appends a successfully encoded chunk to the completed list.
func (q *Queue) Complete(chunk swarm.Chunk) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, chunk)
}

// Requeue records a failed attempt at chunk. If the chunk's attempt count
// is still under the budget it goes back onto pending (to be picked up by
// any node, not necessarily the one that just failed it) and Requeue
// returns true. Once the budget is exhausted the chunk moves to the
// failed bucket instead and Requeue returns false.
func (q *Queue) Requeue(chunk swarm.Chunk) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.attempts[chunk.Index]++
	chunk.Attempts = q.attempts[chunk.Index]

	if chunk.Attempts >= q.maxAttempts {
		q.failed = append(q.failed, chunk)
		return false
	}

	q.pending = append(q.pending, chunk)
	return true
}

// Snapshot returns copies of the completed and failed lists.
func (q *Queue) Snapshot() (completed, failed []swarm.Chunk) {
	q.mu.Lock()
	defer q.mu.Unlock()

	completed = make([]swarm.Chunk, len(q.completed))
	copy(completed, q.completed)
	failed = make([]swarm.Chunk, len(q.failed))
	copy(failed, q.failed)
	return completed, failed
}

// Total is the number of chunks the queue was seeded with.
func (q *Queue) Total() int {
	return q.total
}

// Counts reports the current completed-chunk count and the running total
// of failed attempts across every chunk, for progress reporting.
func (q *Queue) Counts() (completed, totalFailedAttempts int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	completed = len(q.completed)
	for _, n := range q.attempts {
		totalFailedAttempts += n
	}
	return completed, totalFailedAttempts
}
