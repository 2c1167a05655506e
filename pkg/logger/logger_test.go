package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextCarriesIds(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	ctx := context.WithValue(context.Background(), RequestIdKey, "req-1")
	ctx = context.WithValue(ctx, UserIdKey, "alice")
	ctx = context.WithValue(ctx, PeerIdKey, "bob")
	l.WithContext(ctx).Info("subscribed")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "alice", fields["user_id"])
		assert.Equal(t, "bob", fields["peer_id"])
	}
}

func TestWithContextWithoutIds(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.WithContext(context.Background()).Info("plain")
	assert.Empty(t, logs.All()[0].ContextMap())
}
