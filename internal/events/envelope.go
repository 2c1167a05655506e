package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Change is one row-level notification published after a write. Record
// carries the full row as returned by the database.
type Change struct {
	Type       string         `json:"type"`
	Table      string         `json:"table"`
	Record     map[string]any `json:"record"`
	OccurredAt time.Time      `json:"occurred_at"`
}

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

func NewChange(changeType, table string, record map[string]any) Change {
	return Change{Type: changeType, Table: table, Record: record, OccurredAt: time.Now().UTC()}
}

func (c Change) Encode() ([]byte, error) {
	return json.Marshal(c)
}

func DecodeChange(data []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Type == "" || c.Table == "" {
		return Change{}, fmt.Errorf("decode change: missing type or table")
	}
	return c, nil
}

// Control frames are sent by the gateway outside the change feed.
const (
	ControlSubscribed = "subscribed"
	ControlError      = "error"
)

type Control struct {
	Type  string `json:"type"`
	Table string `json:"table,omitempty"`
	Error string `json:"error,omitempty"`
}

// Frame is the union read by stream clients: either a Control or a Change.
type Frame struct {
	Type       string         `json:"type"`
	Table      string         `json:"table,omitempty"`
	Error      string         `json:"error,omitempty"`
	Record     map[string]any `json:"record,omitempty"`
	OccurredAt time.Time      `json:"occurred_at,omitempty"`
}

func (f Frame) IsControl() bool {
	return f.Type == ControlSubscribed || f.Type == ControlError
}

func (f Frame) Change() Change {
	return Change{Type: f.Type, Table: f.Table, Record: f.Record, OccurredAt: f.OccurredAt}
}

// TypingEvent announces that a user started or stopped typing in a
// direct conversation.
type TypingEvent struct {
	Conversation string    `json:"conversation"`
	UserID       string    `json:"user_id"`
	Typing       bool      `json:"typing"`
	OccurredAt   time.Time `json:"occurred_at"`
}
