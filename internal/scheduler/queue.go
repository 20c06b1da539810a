package scheduler

import (
	"container/heap"
	"time"
)

// Job is one captured frame awaiting face verification. Immutable after
// creation; consumed exactly once.
type Job struct {
	SessionID     string
	ClassID       string
	ClientID      string // signaling client that delivered the frame
	StudentIDHint string // optional, from the capture payload
	Frame         []byte
	QualityScore  float64 // frame quality estimate, computed at ingest
	CapturedAt    time.Time
	EnqueuedAt    time.Time
	Phase         Phase // fixed at enqueue time

	seq uint64 // monotonic enqueue sequence, FIFO tie-breaker
}

// jobQueue is a min-heap ordered by (phase rank, enqueue sequence). Lower
// rank first; equal ranks dequeue in FIFO order so no job starves within
// its priority class. Not safe for concurrent use; the scheduler guards it
// with its own lock.
type jobQueue []*Job

var _ heap.Interface = (*jobQueue)(nil)

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].Phase.Rank != q[j].Phase.Rank {
		return q[i].Phase.Rank < q[j].Phase.Rank
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *jobQueue) Push(x any) {
	*q = append(*q, x.(*Job))
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return job
}
