package realtime

import (
	"context"
	"strings"

	"hola-chat/internal/events"
	"hola-chat/internal/metrics"
	"hola-chat/pkg/logger"

	"go.uber.org/zap"
)

// BridgePatterns are the Redis patterns the gateway relays.
var BridgePatterns = []string{
	events.ChannelPrefixTable + "*",
	events.ChannelPrefixTyping + "*",
}

// RedisBridge relays Redis pub/sub messages to hub subscribers verbatim.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
	log        *logger.Logger
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub, l *logger.Logger) *RedisBridge {
	if l == nil {
		l = logger.Nop()
	}
	return &RedisBridge{subscriber: subscriber, hub: hub, log: l.Named("bridge")}
}

func (b *RedisBridge) Run(ctx context.Context, patterns []string) error {
	return b.subscriber.Subscribe(ctx, patterns, b.relay)
}

func (b *RedisBridge) relay(channel string, payload []byte) {
	delivered := b.hub.Broadcast(channel, payload)
	metrics.GatewayBroadcasts.WithLabelValues(channelKind(channel)).Inc()
	b.log.Debug("relayed", zap.String("channel", channel), zap.Int("clients", delivered))
}

// channelKind keeps metric cardinality bounded: table channels are labelled
// by table, typing channels collapse into one label.
func channelKind(channel string) string {
	if table, ok := events.TableFromChannel(channel); ok {
		return table
	}
	if strings.HasPrefix(channel, events.ChannelPrefixTyping) {
		return "typing"
	}
	return "other"
}
