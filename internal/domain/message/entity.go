package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryState is local-only and never persisted.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

const provisionalPrefix = "local-"

// Message represents one row of the messages table as seen by the client.
type Message struct {
	ID            string
	SenderID      string
	ReceiverID    string
	Content       string
	CreatedAt     time.Time
	Read          bool
	Attachment    *Attachment
	ReplyTo       *ReplyRef
	DeliveryState DeliveryState
}

// Attachment is set only after a successful upload.
type Attachment struct {
	URL      string
	MimeType string
}

// ReplyRef is a denormalized snapshot of the quoted message taken at reply
// time. It does not follow later edits of the original.
type ReplyRef struct {
	TargetMessageID string
	SnapshotContent string
}

// NewProvisionalID returns a locally generated id for an optimistic message.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id was generated locally.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// Key returns the conversation this message belongs to.
func (m Message) Key() ConversationKey {
	return NewConversationKey(m.SenderID, m.ReceiverID)
}

// IsDurable reports whether the message carries a server-assigned id.
func (m Message) IsDurable() bool {
	return m.ID != "" && !IsProvisionalID(m.ID)
}

// HasBody reports whether the message has text or an attachment.
func (m Message) HasBody() bool {
	return strings.TrimSpace(m.Content) != "" || m.Attachment != nil
}

// Less orders messages by (CreatedAt, ID).
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
