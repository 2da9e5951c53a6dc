// README: Redis pub/sub transport for feed events across API instances.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bagdrop/internal/logger"
)

const Channel = "bagdrop:contracts"

type Broker struct {
	rdb *redis.Client
	hub *Hub
	log logger.Logger
}

func NewBroker(rdb *redis.Client, hub *Hub, log logger.Logger) *Broker {
	return &Broker{rdb: rdb, hub: hub, log: log}
}

func (b *Broker) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding feed event: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing feed event: %w", err)
	}
	return nil
}

// Run relays events from Redis into the hub until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", Channel, err)
	}
	b.log.Info("feed broker subscribed", "channel", Channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.Warn("dropping malformed feed event", "error", err)
				continue
			}
			b.hub.Dispatch(e)
		}
	}
}
