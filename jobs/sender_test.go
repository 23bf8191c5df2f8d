package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type blockingQueue struct {
	mu      sync.Mutex
	calls   []Job
	entered chan struct{}
	release chan struct{}
}

func newBlockingQueue() *blockingQueue {
	return &blockingQueue{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingQueue) Enqueue(ctx context.Context, job Job) error {
	b.mu.Lock()
	b.calls = append(b.calls, job)
	first := len(b.calls) == 1
	b.mu.Unlock()
	if first {
		b.entered <- struct{}{}
		<-b.release
	}
	return nil
}

func (b *blockingQueue) Receive(context.Context) (*Delivery, error) { return nil, nil }
func (b *blockingQueue) Ack(context.Context, *Delivery) error       { return nil }

func (b *blockingQueue) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	for i, j := range b.calls {
		out[i] = j.Name
	}
	return out
}

func TestSenderDeliversAndDrainsOnClose(t *testing.T) {
	q := NewMemoryQueue()
	logger, _ := test.NewNullLogger()
	s := NewSender(q, SenderConfig{Workers: 2, Buffer: 16}, logger)

	for i := 0; i < 10; i++ {
		if err := s.Enqueue(context.Background(), Job{ID: "id", Name: "job"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	s.Close()

	if q.Len() != 10 {
		t.Fatalf("expected 10 jobs in queue, got %d", q.Len())
	}
	if err := s.Enqueue(context.Background(), Job{Name: "late"}); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestSenderFallsBackInlineWhenSaturated(t *testing.T) {
	q := newBlockingQueue()
	logger, hook := test.NewNullLogger()
	s := NewSender(q, SenderConfig{Workers: 1, Buffer: 1}, logger)

	if err := s.Enqueue(context.Background(), Job{Name: "first"}); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	select {
	case <-q.entered:
	case <-time.After(time.Second):
		t.Fatalf("worker never picked up first job")
	}
	if err := s.Enqueue(context.Background(), Job{Name: "buffered"}); err != nil {
		t.Fatalf("enqueue buffered: %v", err)
	}
	if err := s.Enqueue(context.Background(), Job{Name: "inline"}); err != nil {
		t.Fatalf("enqueue inline: %v", err)
	}

	names := q.names()
	if len(names) != 2 || names[1] != "inline" {
		t.Fatalf("expected inline enqueue while worker blocked, got %v", names)
	}
	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected saturation warning")
	}

	close(q.release)
	s.Close()
	if names := q.names(); len(names) != 3 {
		t.Fatalf("expected buffered job delivered on close, got %v", names)
	}
}
