package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when processing succeeded and the offset may
// be committed. A non-nil error keeps the message in place: it is retried
// with backoff until it succeeds or the consumer shuts down.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	commit  func(ctx context.Context, msgs ...kafka.Message) error

	retryMin time.Duration
	retryMax time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:        r,
		workers:  workers,
		commit:   r.CommitMessages,
		retryMin: 200 * time.Millisecond,
		retryMax: 10 * time.Second,
	}
}

// Start fetches messages and shards them to workers by partition. Sharding by
// partition keeps each partition's messages on one worker, so offsets commit
// in fetch order and a commit never acknowledges an earlier offset whose
// handler has not succeeded yet.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(ch <-chan kafka.Message) {
			defer wg.Done()
			for m := range ch {
				c.deliver(ctx, h, m)
			}
		}(jobs[i])
	}
	defer func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		// FetchMessage, not ReadMessage: offsets commit only after the
		// handler succeeds, so failed messages are redelivered.
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// deliver drives one message to success before its offset commits. Skipping a
// failed message would let a later commit of the same partition acknowledge
// it, so transient failures back off and retry in place instead.
func (c *Consumer) deliver(ctx context.Context, h Handler, m kafka.Message) {
	backoff := c.retryMin
	for {
		err := h(ctx, m)
		if err == nil {
			// A failed commit is redelivery, not loss: handlers are
			// idempotent, so log and move on.
			if err := c.commit(ctx, m); err != nil && ctx.Err() == nil {
				slog.Error("offset commit failed",
					slog.Int("partition", m.Partition),
					slog.Int64("offset", m.Offset),
					slog.Any("error", err))
			}
			return
		}

		slog.Error("handler failed, retrying in place",
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.retryMax {
			backoff = c.retryMax
		}
	}
}
