package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// JobHandler processes a single file ingestion job.
type JobHandler interface {
	ProcessJob(ctx context.Context, job *domain.JobMessage) error
}

// RetryableError lets handlers mark failures as permanent. Errors that do not
// implement it are treated as retryable.
type RetryableError interface {
	error
	Retryable() bool
}

// RetryPolicy bounds redelivery of failed jobs.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// Consumer pulls jobs from the queue and dispatches them to a handler.
// Prefetch is one, so a crashed worker leaves at most one unacked job to be
// redelivered.
type Consumer struct {
	ch        *amqp.Channel
	queue     string
	handler   JobHandler
	publisher *Publisher
	policy    RetryPolicy
}

// NewConsumer opens a channel, declares and binds the queue.
func NewConsumer(conn *amqp.Connection, exchange, routingKey, queueName string, handler JobHandler, publisher *Publisher, policy RetryPolicy) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue %s: %w", queueName, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		ch:        ch,
		queue:     q.Name,
		handler:   handler,
		publisher: publisher,
		policy:    policy,
	}, nil
}

// Start consumes jobs until the context is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.ch.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Info().Str("queue", c.queue).Msg("Consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var job domain.JobMessage
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal job, dropping")
		_ = d.Nack(false, false)
		return
	}

	attempts := deliveryAttempts(d)

	err := c.handler.ProcessJob(ctx, &job)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	if !isRetryable(err) {
		// Permanent failure. The handler already recorded the outcome.
		log.Warn().
			Err(err).
			Uint("file_id", job.FileID).
			Msg("Job failed permanently")
		_ = d.Ack(false)
		return
	}

	if attempts >= c.policy.MaxAttempts {
		log.Error().
			Err(err).
			Uint("file_id", job.FileID).
			Int("attempts", attempts).
			Msg("Job exhausted retry attempts")
		_ = d.Nack(false, false)
		return
	}

	delay := c.backoff(attempts)
	log.Warn().
		Err(err).
		Uint("file_id", job.FileID).
		Int("attempt", attempts).
		Dur("delay", delay).
		Msg("Job failed, scheduling retry")

	select {
	case <-ctx.Done():
		// Leave the job unacked so the broker redelivers it.
		_ = d.Nack(false, true)
		return
	case <-time.After(delay):
	}

	if err := c.publisher.EnqueueRetry(ctx, &job, attempts+1); err != nil {
		log.Error().Err(err).Uint("file_id", job.FileID).Msg("Failed to republish job")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// backoff computes the delay before the given attempt's retry.
func (c *Consumer) backoff(attempt int) time.Duration {
	delay := c.policy.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.policy.Multiplier)
		if delay >= c.policy.MaxDelay {
			return c.policy.MaxDelay
		}
	}
	if delay > c.policy.MaxDelay {
		delay = c.policy.MaxDelay
	}
	return delay
}

// deliveryAttempts reads the attempt counter from the message headers.
func deliveryAttempts(d amqp.Delivery) int {
	if d.Headers == nil {
		return 1
	}
	switch v := d.Headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

// isRetryable reports whether the handler error permits another attempt.
func isRetryable(err error) bool {
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// Close closes the channel.
func (c *Consumer) Close() error {
	return c.ch.Close()
}
