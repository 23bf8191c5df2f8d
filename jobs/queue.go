package jobs

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// Delivery is a received job that must be acknowledged once handled.
type Delivery struct {
	Job          Job
	MessageID    string
	Receipt      string
	DequeueCount int64
	// Raw holds the undecodable message text when Job could not be parsed.
	Raw string
}

// Queue is the message-passing boundary between producers and the worker.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Receive returns the next delivery or nil when the queue is empty.
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
}

var errQueueClosed = errors.New("queue closed")

// MemoryQueue is an in-process Queue used when no queue service is
// configured and in tests.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []*Delivery
	inflight map[string]*Delivery
	seq      uint64
	closed   bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{inflight: make(map[string]*Delivery)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.seq++
	q.pending = append(q.pending, &Delivery{Job: job, MessageID: strconv.FormatUint(q.seq, 10)})
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	d := q.pending[0]
	q.pending = q.pending[1:]
	d.DequeueCount++
	q.inflight[d.MessageID] = d
	return d, nil
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, d.MessageID)
	return nil
}

// Len reports jobs waiting to be received.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Jobs returns a copy of the pending jobs in FIFO order.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.pending))
	for _, d := range q.pending {
		out = append(out, d.Job)
	}
	return out
}

// Unfinished reports jobs that are pending or received but not yet acked.
func (q *MemoryQueue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight)
}

// WaitIdle blocks until every job has been received and acked, or ctx ends.
func (q *MemoryQueue) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for q.Unfinished() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (q *MemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
