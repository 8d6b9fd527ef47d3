package compare

import "time"

// Queue is the bounded FIFO between extractors and loaders. A buffered
// channel already provides the multi-producer / multi-consumer contract;
// the wrapper pins the blocking-put / timed-poll surface the workers use.
type Queue struct {
	ch chan Batch
}

// NewQueue returns a queue holding at most capacity batches.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Batch, capacity)}
}

// Put appends a batch, blocking while the queue is full. This is the
// extractors' sole backpressure path.
func (q *Queue) Put(b Batch) {
	q.ch <- b
}

// Poll removes the oldest batch, waiting up to timeout. The second result
// is false when the timeout elapsed with nothing available.
func (q *Queue) Poll(timeout time.Duration) (Batch, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-q.ch:
		return b, true
	case <-timer.C:
		return nil, false
	}
}

// Len is the number of batches currently queued.
func (q *Queue) Len() int { return len(q.ch) }

// Empty reports whether no batch is queued.
func (q *Queue) Empty() bool { return len(q.ch) == 0 }
