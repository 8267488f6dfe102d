package compiler

// completionQueue holds work deferred until the statement being compiled
// is complete: cardinality checks that need the finished scope tree.
//
// The queue is FIFO and unbounded. Work items may enqueue more work while
// the queue drains; drain runs them too, after everything enqueued
// before them. Compilation is single-threaded, so there is no locking.
type completionQueue struct {
	work []func() error
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{work: make([]func() error, 0, 16)}
}

// Enqueue adds fn to the back of the queue.
func (q *completionQueue) Enqueue(fn func() error) {
	q.work = append(q.work, fn)
}

// TryDequeue removes and returns the front item, or false when the queue
// is empty.
func (q *completionQueue) TryDequeue() (func() error, bool) {
	if len(q.work) == 0 {
		return nil, false
	}
	fn := q.work[0]

	// Drop the reference so the closure and what it captured can be
	// collected.
	q.work[0] = nil
	if len(q.work) == 1 {
		q.work = q.work[:0]
	} else {
		q.work = q.work[1:]
	}
	return fn, true
}

// Len returns the number of queued items.
func (q *completionQueue) Len() int {
	return len(q.work)
}

// drain runs queued work until the queue is empty and returns how many
// items ran. It stops at the first error.
func (q *completionQueue) drain() (int, error) {
	n := 0
	for {
		fn, ok := q.TryDequeue()
		if !ok {
			return n, nil
		}
		n++
		if err := fn(); err != nil {
			return n, err
		}
	}
}
