package control

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// channelPrefix namespaces this module's fan-out from any other use of
// the same Redis instance.
const channelPrefix = "recorder:events:"

// Bridge fans Hub broadcasts out to every other instance subscribed to
// the same Redis channel, and feeds messages received from other
// instances back into the local Hub. One Bridge serves every room:
// Publish sends on the room's channel, and receiving needs one Subscribe
// loop per room. cmd/server creates a single Bridge and starts no
// Subscribe loop, so it publishes events but does not receive them from
// other instances.
type Bridge struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

// NewBridge wires hub's outbound publishes through client. Pass the
// result's Publish method as the Hub's publish callback.
func NewBridge(client *redis.Client, hub *Hub, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{client: client, hub: hub, logger: logger}
}

// Publish sends payload on room's Redis channel so every other
// instance's Subscribe loop delivers it locally.
func (b *Bridge) Publish(room string, payload []byte) {
	if b.client == nil {
		return
	}
	ctx := context.Background()
	if err := b.client.Publish(ctx, channelPrefix+room, payload).Err(); err != nil {
		b.logger.Warn("redis publish failed", zap.String("room", room), zap.Error(err))
	}
}

// Subscribe runs until ctx is canceled, delivering every message
// received on room's channel into the local Hub via DeliverRemote.
func (b *Bridge) Subscribe(ctx context.Context, room string) {
	if b.client == nil {
		return
	}
	sub := b.client.Subscribe(ctx, channelPrefix+room)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.hub.DeliverRemote(room, []byte(msg.Payload))
		}
	}
}
