package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKeyIsUnordered(t *testing.T) {
	assert.Equal(t, NewConversationKey("alice", "bob"), NewConversationKey("bob", "alice"))
	assert.NotEqual(t, NewConversationKey("alice", "bob"), NewConversationKey("alice", "carol"))

	k := NewConversationKey("bob", "alice")
	assert.True(t, k.Has("alice"))
	assert.False(t, k.Has("carol"))
	assert.Equal(t, "bob", k.Peer("alice"))
	assert.Equal(t, "alice:bob", k.String())
}

func TestFromRowAcceptsDriverAndJSONShapes(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC)

	tests := []struct {
		name string
		row  map[string]any
	}{
		{
			name: "driver values",
			row: map[string]any{
				"id": "m1", "created_at": at, "sender_id": "a", "receiver_id": "b",
				"content": "hi", "read": true, "file_url": nil, "file_type": nil,
			},
		},
		{
			name: "json values",
			row: map[string]any{
				"id": "m1", "created_at": "2024-05-01T10:00:00.123+00:00", "sender_id": "a", "receiver_id": "b",
				"content": "hi", "read": true,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := FromRow(tc.row)
			require.NoError(t, err)
			assert.Equal(t, "m1", m.ID)
			assert.True(t, m.CreatedAt.Equal(at))
			assert.True(t, m.Read)
			assert.Nil(t, m.Attachment)
			assert.Nil(t, m.ReplyTo)
			assert.Equal(t, StateConfirmed, m.DeliveryState)
		})
	}
}

func TestFromRowRejectsIncompleteRows(t *testing.T) {
	_, err := FromRow(map[string]any{"created_at": time.Now(), "sender_id": "a", "receiver_id": "b"})
	require.Error(t, err)

	_, err = FromRow(map[string]any{"id": "m1", "sender_id": "a", "receiver_id": "b"})
	require.Error(t, err)

	_, err = FromRow(map[string]any{"id": "m1", "created_at": time.Now(), "sender_id": "a"})
	require.Error(t, err)
}

func TestInsertRowCarriesAttachmentAndReply(t *testing.T) {
	m := Message{
		ID:         NewProvisionalID(),
		SenderID:   "a",
		ReceiverID: "b",
		Content:    "see file",
		Attachment: &Attachment{URL: "https://cdn/x.png", MimeType: "image/png"},
		ReplyTo:    &ReplyRef{TargetMessageID: "m0", SnapshotContent: "original"},
	}

	row := m.InsertRow()
	assert.NotContains(t, row, ColID)
	assert.Equal(t, "https://cdn/x.png", row[ColFileURL])
	assert.Equal(t, "m0", row[ColReplyToID])

	row[ColID] = "m9"
	row[ColCreatedAt] = time.Now()
	decoded, err := FromRow(row)
	require.NoError(t, err)
	require.NotNil(t, decoded.Attachment)
	assert.Equal(t, "image/png", decoded.Attachment.MimeType)
	require.NotNil(t, decoded.ReplyTo)
	assert.Equal(t, "original", decoded.ReplyTo.SnapshotContent)
}

func TestProvisionalIDs(t *testing.T) {
	id := NewProvisionalID()
	assert.True(t, IsProvisionalID(id))
	assert.False(t, Message{ID: id}.IsDurable())
	assert.True(t, Message{ID: "6f1c"}.IsDurable())
}
