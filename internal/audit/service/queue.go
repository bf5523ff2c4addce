package service

import (
	"sync"

	"diocese/internal/audit"
)

// retryQueue is a bounded, thread-safe ring buffer of entries whose first
// append attempt failed. When full, the oldest entries are dropped to make
// room for new ones; the ledger prefers losing old retries over blocking the
// mutation path.
type retryQueue struct {
	mu       sync.Mutex
	entries  []audit.Entry
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

func newRetryQueue(capacity int) *retryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &retryQueue{
		entries:  make([]audit.Entry, capacity),
		capacity: capacity,
	}
}

// enqueue adds an entry, dropping the oldest if necessary. Returns the number
// of entries dropped to make room (0 or 1).
func (q *retryQueue) enqueue(entry audit.Entry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var dropped int
	if q.count >= q.capacity {
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		q.dropped++
		dropped = 1
	}

	q.entries[q.head] = entry
	q.head = (q.head + 1) % q.capacity
	q.count++
	return dropped
}

// dequeueBatch removes up to n entries from the queue.
func (q *retryQueue) dequeueBatch(n int) []audit.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	if n > q.count {
		n = q.count
	}

	result := make([]audit.Entry, n)
	for i := 0; i < n; i++ {
		result[i] = q.entries[q.tail]
		q.tail = (q.tail + 1) % q.capacity
	}
	q.count -= n
	return result
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *retryQueue) droppedTotal() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
