package message

import (
	"fmt"
	"time"
)

// TableName is the logical backend table holding direct messages.
const TableName = "messages"

// Column names of the messages table.
const (
	ColID             = "id"
	ColCreatedAt      = "created_at"
	ColSenderID       = "sender_id"
	ColReceiverID     = "receiver_id"
	ColContent        = "content"
	ColRead           = "read"
	ColFileURL        = "file_url"
	ColFileType       = "file_type"
	ColReplyToID      = "reply_to_id"
	ColReplyToContent = "reply_to_content"
)

// Columns lists every column in select order.
var Columns = []string{
	ColID, ColCreatedAt, ColSenderID, ColReceiverID, ColContent,
	ColRead, ColFileURL, ColFileType, ColReplyToID, ColReplyToContent,
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
}

// FromRow decodes a backend row. Rows arrive either straight from the
// database driver or as decoded JSON from the change stream, so values are
// accepted in both shapes. Decoded messages are always confirmed.
func FromRow(row map[string]any) (Message, error) {
	id := stringValue(row[ColID])
	if id == "" {
		return Message{}, fmt.Errorf("message row without id")
	}
	createdAt, err := timeValue(row[ColCreatedAt])
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", id, err)
	}

	m := Message{
		ID:            id,
		SenderID:      stringValue(row[ColSenderID]),
		ReceiverID:    stringValue(row[ColReceiverID]),
		Content:       stringValue(row[ColContent]),
		CreatedAt:     createdAt,
		Read:          boolValue(row[ColRead]),
		DeliveryState: StateConfirmed,
	}
	if m.SenderID == "" || m.ReceiverID == "" {
		return Message{}, fmt.Errorf("message %s: missing participants", id)
	}
	if url := stringValue(row[ColFileURL]); url != "" {
		m.Attachment = &Attachment{URL: url, MimeType: stringValue(row[ColFileType])}
	}
	if target := stringValue(row[ColReplyToID]); target != "" {
		m.ReplyTo = &ReplyRef{TargetMessageID: target, SnapshotContent: stringValue(row[ColReplyToContent])}
	}
	return m, nil
}

// InsertRow renders the columns a client supplies on insert. The id and
// created_at are assigned by the backend.
func (m Message) InsertRow() map[string]any {
	row := map[string]any{
		ColSenderID:   m.SenderID,
		ColReceiverID: m.ReceiverID,
		ColContent:    m.Content,
		ColRead:       false,
		ColFileURL:    nil,
		ColFileType:   nil,
	}
	if m.Attachment != nil {
		row[ColFileURL] = m.Attachment.URL
		row[ColFileType] = m.Attachment.MimeType
	}
	if m.ReplyTo != nil {
		row[ColReplyToID] = m.ReplyTo.TargetMessageID
		row[ColReplyToContent] = m.ReplyTo.SnapshotContent
	}
	return row
}

// ToRow renders the full row including id and created_at.
func (m Message) ToRow() map[string]any {
	row := m.InsertRow()
	row[ColID] = m.ID
	row[ColCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	row[ColRead] = m.Read
	return row
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t != nil {
			return *t
		}
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return ""
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case *bool:
		return t != nil && *t
	case string:
		return t == "true" || t == "t"
	}
	return false
}

func timeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable created_at %q", t)
	}
	return time.Time{}, fmt.Errorf("missing created_at")
}
