package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"hola-chat/internal/domain/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu  sync.Mutex
	got []bool
}

func (r *typingRecorder) PublishTyping(ctx context.Context, key message.ConversationKey, userID string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, typing)
	return nil
}

func (r *typingRecorder) calls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.got...)
}

func TestTypingSignal_ExpiresAfterIdle(t *testing.T) {
	rec := &typingRecorder{}
	ts := NewTypingSignal(rec, message.NewConversationKey(alice, bob), alice, 30*time.Millisecond, nil)
	defer ts.Close()

	ts.Touch()
	assert.True(t, ts.IsTyping())
	require.Eventually(t, func() bool { return !ts.IsTyping() }, waitFor, tick)
	require.Eventually(t, func() bool { return len(rec.calls()) == 2 }, waitFor, tick)
	assert.Equal(t, []bool{true, false}, rec.calls())
}

func TestTypingSignal_TouchExtendsIdle(t *testing.T) {
	ts := NewTypingSignal(nil, message.NewConversationKey(alice, bob), alice, 80*time.Millisecond, nil)
	defer ts.Close()

	ts.Touch()
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		ts.Touch()
		assert.True(t, ts.IsTyping())
	}
	require.Eventually(t, func() bool { return !ts.IsTyping() }, waitFor, tick)
}

func TestTypingSignal_StopIsImmediate(t *testing.T) {
	rec := &typingRecorder{}
	ts := NewTypingSignal(rec, message.NewConversationKey(alice, bob), alice, time.Hour, nil)

	ts.Touch()
	ts.Touch()
	ts.Stop()
	assert.False(t, ts.IsTyping())
	ts.Stop()

	ts.Close()
	// keep-alive within the same second is throttled
	assert.Equal(t, []bool{true, false}, rec.calls())
}

func TestTypingSignal_CloseIsIdempotent(t *testing.T) {
	rec := &typingRecorder{}
	ts := NewTypingSignal(rec, message.NewConversationKey(alice, bob), alice, time.Hour, nil)
	ts.Touch()
	ts.Close()
	ts.Close()
	ts.Touch()
	assert.False(t, ts.IsTyping())
	assert.Equal(t, []bool{true, false}, rec.calls())
}
