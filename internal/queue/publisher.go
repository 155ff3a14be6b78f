package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// attemptsHeader carries the delivery attempt count across republishes.
const attemptsHeader = "x-attempts"

// Publisher enqueues file processing jobs.
type Publisher struct {
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewPublisher opens a channel and declares the job exchange.
func NewPublisher(conn *amqp.Connection, exchange, routingKey string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Enqueue publishes a fresh job with the attempt counter at one.
func (p *Publisher) Enqueue(ctx context.Context, job *domain.JobMessage) error {
	return p.publish(ctx, job, 1)
}

// EnqueueRetry republishes a job carrying the given attempt count.
func (p *Publisher) EnqueueRetry(ctx context.Context, job *domain.JobMessage, attempts int) error {
	return p.publish(ctx, job, attempts)
}

func (p *Publisher) publish(ctx context.Context, job *domain.JobMessage, attempts int) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Headers:      amqp.Table{attemptsHeader: int32(attempts)},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job for file %d: %w", job.FileID, err)
	}

	log.Debug().
		Uint("file_id", job.FileID).
		Int("attempts", attempts).
		Msg("Job published")
	return nil
}

// Close closes the channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}
