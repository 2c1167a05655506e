package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/events"
	"hola-chat/internal/testutil/testredis"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startClient(t *testing.T) *goredis.Client {
	t.Helper()
	host, port := testredis.StartRedis(t)
	client, err := Connect(context.Background(), Config{Host: host, Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type collected struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (c *collected) add(channel string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, channel)
	c.payloads = append(c.payloads, payload)
}

func (c *collected) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func subscribe(t *testing.T, client *goredis.Client, pattern string) *collected {
	t.Helper()
	got := &collected{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSubscriber(client).Subscribe(ctx, []string{pattern}, got.add) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// PSubscribe is acknowledged asynchronously; wait until the pattern is live.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumPat(context.Background()).Result()
		return err == nil && n > 0
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestPublisher_PublishChangeReachesPatternSubscriber(t *testing.T) {
	client := startClient(t)
	got := subscribe(t, client, events.ChannelPrefixTable+"*")

	change := events.NewChange(events.ChangeInsert, "messages", map[string]any{"id": "m1"})
	require.NoError(t, NewPublisher(client).PublishChange(context.Background(), change))

	require.Eventually(t, func() bool { return got.len() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "channel:table:messages", got.channels[0])
	decoded, err := events.DecodeChange(got.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "m1", decoded.Record["id"])
}

func TestTypingStore_TracksAndPublishes(t *testing.T) {
	client := startClient(t)
	got := subscribe(t, client, events.ChannelPrefixTyping+"*")
	store := NewTypingStore(client, NewPublisher(client), time.Minute)
	key := message.NewConversationKey("alice", "bob")
	ctx := context.Background()

	require.NoError(t, store.PublishTyping(ctx, key, "alice", true))
	users, err := store.TypingUsers(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	require.NoError(t, store.PublishTyping(ctx, key, "alice", false))
	users, err = store.TypingUsers(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.Eventually(t, func() bool { return got.len() == 2 }, 5*time.Second, 10*time.Millisecond)
	var first events.TypingEvent
	require.NoError(t, json.Unmarshal(got.payloads[0], &first))
	assert.Equal(t, "alice:bob", first.Conversation)
	assert.True(t, first.Typing)
	assert.Equal(t, events.TypingChannel("alice:bob"), got.channels[0])
}
