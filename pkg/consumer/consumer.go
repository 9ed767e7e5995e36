// Package consumer drains the notification queue: each message names a
// stored digest, which is mailed to the message's recipient.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"listing-hunter/pkg/artifact"
	"listing-hunter/pkg/mail"
	"listing-hunter/pkg/queue"
	"log/slog"
	"sync"
	"time"
)

type Queue interface {
	Receive(ctx context.Context) (queue.Message, error)
	Ack(ctx context.Context, receipt string) error
}

type Consumer struct {
	Queue     Queue
	Artifacts artifact.Store
	Mail      mail.Sender
	// From is the fixed sender address; each message only picks the
	// display name.
	From         string
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (c *Consumer) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// ErrDiscarded wraps failures no redelivery can fix. Such messages are
// acknowledged so they do not come back every visibility timeout.
var ErrDiscarded = errors.New("consumer: message discarded")

// Handle processes one delivery. The message is acknowledged only after the
// mail service accepted it, or when it can never succeed; on any other error
// it stays in the queue and reappears once its visibility timeout lapses.
func (c *Consumer) Handle(ctx context.Context, m queue.Message) error {
	note, err := m.Decode()
	if err != nil {
		return c.discard(ctx, m, err)
	}

	body, err := c.Artifacts.Get(ctx, note.ObjectKey)
	if err != nil {
		return fmt.Errorf("consumer: fetch digest %s: %w", note.ObjectKey, err)
	}

	id, err := c.Mail.Send(ctx, mail.Email{
		FromName: note.SenderName,
		From:     c.From,
		To:       note.Recipient,
		Subject:  note.Subject,
		HTMLBody: string(body),
	})
	if errors.Is(err, mail.ErrInvalidAddress) {
		return c.discard(ctx, m, err)
	}
	if err != nil {
		return fmt.Errorf("consumer: send %s: %w", m.ID, err)
	}

	if err := c.Queue.Ack(ctx, m.Receipt); err != nil {
		return fmt.Errorf("consumer: ack %s: %w", m.ID, err)
	}

	c.logger().Info("digest mailed",
		"message_id", m.ID,
		"mail_id", id,
		"key", note.ObjectKey,
		"receive_count", m.ReceiveCount,
	)
	return nil
}

func (c *Consumer) discard(ctx context.Context, m queue.Message, cause error) error {
	c.logger().Error("discarding undeliverable message", "message_id", m.ID, "error", cause)
	if err := c.Queue.Ack(ctx, m.Receipt); err != nil {
		return fmt.Errorf("consumer: ack discarded %s: %w", m.ID, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrDiscarded, m.ID, cause)
}

// Poll receives and handles a single message. It returns queue.ErrEmpty when
// nothing is visible.
func (c *Consumer) Poll(ctx context.Context) error {
	m, err := c.Queue.Receive(ctx)
	if err != nil {
		return err
	}
	return c.Handle(ctx, m)
}

// Run starts workers that poll until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.work(ctx, worker, interval)
		}(i)
	}
	wg.Wait()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (c *Consumer) work(ctx context.Context, worker int, interval time.Duration) {
	log := c.logger().With("worker", worker)
	for {
		err := c.Poll(ctx)
		switch {
		case err == nil:
			continue
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrDiscarded):
			continue
		case errors.Is(err, queue.ErrEmpty):
		default:
			log.Error("message not processed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
