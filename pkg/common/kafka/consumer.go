package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/common/models"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader messageReader

	// handler retry schedule; fetch errors reuse the same backoff bounds
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader:      reader,
		maxAttempts: 5,
		baseBackoff: 500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
}

// Consume runs handler for every event until ctx is done. Undecodable
// messages are committed and skipped. A failing handler is retried with
// backoff; when the attempts run out Consume returns the error without
// committing, and nothing after that message is fetched. Offsets are
// committed by position, so the caller must restart the reader (in practice
// the process) for the group to redeliver from the failed message.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	fetchDelay := c.baseBackoff
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			logger.Log.WithError(err).WithField("retry_in", fetchDelay.String()).Error("Failed to fetch message")
			if err := sleep(ctx, fetchDelay); err != nil {
				return err
			}
			fetchDelay = c.next(fetchDelay)
			continue
		}
		fetchDelay = c.baseBackoff

		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Log.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal event")
			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Log.WithError(err).Error("Failed to commit message")
			}
			continue
		}

		if err := c.handle(ctx, handler, event); err != nil {
			return fmt.Errorf("event %s at offset %d: %w", event.ID, message.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			logger.Log.WithError(err).Error("Failed to commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler EventHandler, event models.Event) error {
	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.baseBackoff
	var err error
	for i := 0; i < attempts; i++ {
		if err = handler(ctx, event); err == nil {
			return nil
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
			"attempt":    i + 1,
		}).Error("Failed to process event")
		if i == attempts-1 {
			break
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
		delay = c.next(delay)
	}
	return err
}

func (c *Consumer) next(delay time.Duration) time.Duration {
	delay *= 2
	if c.maxBackoff > 0 && delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
