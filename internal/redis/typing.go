package redis

import (
	"context"
	"encoding/json"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/events"

	goredis "github.com/redis/go-redis/v9"
)

const typingKeyPrefix = "typing:"

// TypingStore keeps the set of users typing in each conversation and
// announces every change on the conversation's typing channel.
type TypingStore struct {
	client    *goredis.Client
	publisher *Publisher
	ttl       time.Duration
}

func NewTypingStore(client *goredis.Client, publisher *Publisher, ttl time.Duration) *TypingStore {
	if ttl == 0 {
		ttl = 10 * time.Second
	}
	return &TypingStore{client: client, publisher: publisher, ttl: ttl}
}

func (t *TypingStore) PublishTyping(ctx context.Context, key message.ConversationKey, userID string, typing bool) error {
	setKey := typingKeyPrefix + key.String()

	if typing {
		pipe := t.client.Pipeline()
		pipe.SAdd(ctx, setKey, userID)
		pipe.Expire(ctx, setKey, t.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	} else if err := t.client.SRem(ctx, setKey, userID).Err(); err != nil {
		return err
	}

	if t.publisher == nil {
		return nil
	}
	data, err := json.Marshal(events.TypingEvent{
		Conversation: key.String(),
		UserID:       userID,
		Typing:       typing,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return t.publisher.Publish(ctx, events.TypingChannel(key.String()), data)
}

// TypingUsers returns the users currently typing in a conversation.
func (t *TypingStore) TypingUsers(ctx context.Context, key message.ConversationKey) ([]string, error) {
	return t.client.SMembers(ctx, typingKeyPrefix+key.String()).Result()
}
