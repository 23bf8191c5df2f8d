package jobs

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Handler runs a received job. Returned errors are logged; the delivery is
// acknowledged either way and never retried by the consumer.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// ConsumerConfig tunes the polling loop.
type ConsumerConfig struct {
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Consumer drains a Queue into a Handler.
type Consumer struct {
	queue   Queue
	handler Handler
	deduper Deduper
	cfg     ConsumerConfig
	logger  *log.Logger
}

// NewConsumer builds a consumer. deduper may be nil.
func NewConsumer(q Queue, h Handler, deduper Deduper, cfg ConsumerConfig, logger *log.Logger) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Consumer{queue: q, handler: h, deduper: deduper, cfg: cfg, logger: logger}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("job consumer started")
	for {
		processed, err := c.ProcessOne(ctx)
		if ctx.Err() != nil {
			c.logger.Info("job consumer stopped")
			return nil
		}
		if err != nil {
			c.logger.WithError(err).Error("receive failed")
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			c.logger.Info("job consumer stopped")
			return nil
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// ProcessOne receives and handles at most one delivery. It reports whether a
// delivery was taken off the queue.
func (c *Consumer) ProcessOne(ctx context.Context) (bool, error) {
	d, err := c.queue.Receive(ctx)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}
	ack := true
	defer func() {
		if ack {
			c.ack(ctx, d)
		}
	}()

	entry := c.logger.WithFields(log.Fields{"message_id": d.MessageID, "dequeue_count": d.DequeueCount})
	if d.Job.Name == "" {
		entry.WithField("raw", d.Raw).Error("dropping undecodable job")
		return true, nil
	}
	entry = entry.WithFields(log.Fields{"job": d.Job.Name, "job_id": d.Job.ID})

	if c.deduper != nil && d.Job.ID != "" {
		seen, derr := c.deduper.Seen(ctx, d.Job.ID)
		switch {
		case derr != nil:
			entry.WithError(derr).Warn("dedupe check failed; handling anyway")
		case seen:
			entry.Info("skipping duplicate job")
			return true, nil
		}
	}

	jobCtx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()
	herr := c.handler.Handle(jobCtx, d.Job)
	if herr != nil && errors.Is(herr, context.Canceled) && ctx.Err() != nil {
		// Shutdown interrupted the job; leave it for redelivery.
		ack = false
		entry.WithError(herr).Warn("job interrupted")
		return true, nil
	}
	c.markDone(ctx, entry, d.Job.ID)
	if herr != nil {
		entry.WithError(herr).Error("job failed")
		return true, nil
	}
	entry.Debug("job handled")
	return true, nil
}

// markDone records a finished job so later redeliveries are skipped.
func (c *Consumer) markDone(ctx context.Context, entry *log.Entry, id string) {
	if c.deduper == nil || id == "" {
		return
	}
	if _, err := c.deduper.Add(context.WithoutCancel(ctx), id); err != nil {
		entry.WithError(err).Warn("failed to record completed job")
	}
}

func (c *Consumer) ack(ctx context.Context, d *Delivery) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.queue.Ack(ackCtx, d); err != nil {
		c.logger.WithError(err).WithField("message_id", d.MessageID).Error("ack failed")
	}
}
