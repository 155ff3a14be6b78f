package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// RedisBridge relays progress events published by workers into a local Hub,
// so API instances can serve live progress for files processed elsewhere.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
}

// NewRedisBridge creates a bridge between Redis pub/sub and hub.
func NewRedisBridge(client *redis.Client, hub *Hub) *RedisBridge {
	return &RedisBridge{client: client, hub: hub}
}

// Run subscribes to the global events channel and forwards events until the
// context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	log.Info().Str("channel", EventsChannel).Msg("Progress bridge started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("Dropping malformed progress event")
				continue
			}
			_ = b.hub.Publish(ctx, ev)
		}
	}
}
