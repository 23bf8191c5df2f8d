package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SenderConfig tunes the Sender worker pool.
type SenderConfig struct {
	Workers        int
	Buffer         int
	EnqueueTimeout time.Duration
	HandoffTimeout time.Duration
}

// Sender hands jobs to a pool of workers that push them to the queue, so
// callers on the request path never wait on the queue service unless the
// buffer is saturated.
type Sender struct {
	queue  Queue
	cfg    SenderConfig
	logger *log.Logger

	mu     sync.RWMutex
	jobs   chan Job
	closed bool
	wg     sync.WaitGroup
}

var errSenderClosed = errors.New("job sender closed")

func NewSender(q Queue, cfg SenderConfig, logger *log.Logger) *Sender {
	if q == nil {
		panic("jobs.NewSender: queue is nil")
	}
	if logger == nil {
		panic("jobs.NewSender: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 60 * time.Second
	}
	s := &Sender{
		queue:  q,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan Job, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("job sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.EnqueueTimeout, cfg.HandoffTimeout)
	return s
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()
	for j := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EnqueueTimeout)
		err := s.queue.Enqueue(ctx, j)
		cancel()
		if err != nil {
			s.logger.WithFields(log.Fields{"job": j.Name, "job_id": j.ID, "worker": id}).WithError(err).Error("job enqueue failed")
		}
	}
}

// Enqueue schedules job for delivery. When the buffer stays full past the
// handoff timeout the job is written to the queue inline.
func (s *Sender) Enqueue(ctx context.Context, job Job) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errSenderClosed
	}
	handed := s.handoff(job)
	s.mu.RUnlock()
	if handed {
		return nil
	}

	s.logger.WithField("job", job.Name).Warn("job buffer saturated; enqueueing inline")
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.EnqueueTimeout)
	defer cancel()
	return s.queue.Enqueue(enqueueCtx, job)
}

func (s *Sender) handoff(job Job) bool {
	select {
	case s.jobs <- job:
		return true
	default:
	}
	if s.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(s.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case s.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting jobs and waits for buffered ones to reach the queue.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}
