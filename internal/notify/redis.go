package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// Channel names for cross-process progress fan-out. API instances subscribe
// to these to push updates to clients connected to a different process than
// the worker.
const (
	EventsChannel       = "file-events"
	eventsChannelPrefix = "file-events:"
)

// FileChannel returns the per-file Redis channel name.
func FileChannel(fileID uint) string {
	return fmt.Sprintf("%s%d", eventsChannelPrefix, fileID)
}

// RedisNotifier publishes progress events to Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a notifier over an established client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Publish sends the event to the global channel and the per-file channel.
func (n *RedisNotifier) Publish(ctx context.Context, ev domain.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	if err := n.client.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", EventsChannel, err)
	}
	if err := n.client.Publish(ctx, FileChannel(ev.FileID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", FileChannel(ev.FileID), err)
	}
	return nil
}

// Notifier delivers progress events to interested parties.
type Notifier interface {
	Publish(ctx context.Context, ev domain.ProgressEvent) error
}

// Multi fans one event out to several notifiers. Failures are logged but do
// not stop delivery to the rest; progress events are advisory.
type Multi []Notifier

// Publish delivers the event to every notifier.
func (m Multi) Publish(ctx context.Context, ev domain.ProgressEvent) error {
	for _, n := range m {
		if err := n.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Uint("file_id", ev.FileID).Msg("Progress notification failed")
		}
	}
	return nil
}
